package extract

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestExtractText(t *testing.T) {
	path := writeFile(t, "order.txt", "Order No: PO-1001\nSUNFLOWER OIL TIN 3 TIN\n")

	doc, err := NewFileExtractor().Extract(path)
	if err != nil {
		t.Fatal(err)
	}
	if doc.Text == "" {
		t.Fatal("expected text")
	}
	if len(doc.Tables) != 0 {
		t.Fatalf("expected no tables, got %d", len(doc.Tables))
	}
}

func TestExtractHTMLTables(t *testing.T) {
	html := `<html><body>
<p>Purchase Order PO-2002 for Acme Marina branch</p>
<table>
  <tr><th>Item</th><th>Qty</th><th>Unit</th></tr>
  <tr><td>SUNFLOWER OIL TIN</td><td>3</td><td>TIN</td></tr>
  <tr><td>FRYING OIL BUNGE PRO F10</td><td>2</td><td>CAN</td></tr>
</table>
</body></html>`
	path := writeFile(t, "order.html", html)

	doc, err := NewFileExtractor().Extract(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(doc.Tables) != 1 {
		t.Fatalf("expected 1 table, got %d", len(doc.Tables))
	}
	if got := len(doc.Tables[0]); got != 3 {
		t.Fatalf("expected 3 rows, got %d", got)
	}
	if doc.Tables[0][1][0] != "SUNFLOWER OIL TIN" {
		t.Fatalf("unexpected cell: %q", doc.Tables[0][1][0])
	}
	for _, want := range []string{"PO-2002", "SUNFLOWER OIL TIN"} {
		if !strings.Contains(doc.Text, want) {
			t.Fatalf("text missing %q", want)
		}
	}
}

func TestExtractRejectsUnknownType(t *testing.T) {
	path := writeFile(t, "order.zip", "binary")

	if _, err := NewFileExtractor().Extract(path); err == nil {
		t.Fatal("expected error for unsupported type")
	}
}
