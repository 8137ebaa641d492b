package resolve

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractPONumber(t *testing.T) {
	cases := []struct {
		text string
		want string
	}{
		{"Order No: PO-2024-0051\nitems follow", "PO-2024-0051"},
		{"PO Number 88213 attached", "88213"},
		{"our P.O.: ACM/1192 thanks", "ACM/1192"},
		{"LPO # DXB-4471 for Marina branch", "DXB-4471"},
		{"no reference anywhere", ""},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, ExtractPONumber(tc.text), "text: %q", tc.text)
	}
}
