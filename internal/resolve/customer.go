package resolve

import (
	"fmt"
	"strings"

	"lpoflow/internal"
)

// ResolveCustomer disambiguates which customer record a document
// belongs to when several branches share one contact address. A nil
// error with ByFallback set means the choice was best-effort, not
// token-confirmed.
func ResolveCustomer(text, email string, customers []internal.Customer, branches []internal.BranchIdentifier) (*internal.ResolvedCustomer, error) {
	if len(customers) == 0 {
		return nil, fmt.Errorf("no customer on record for %s", email)
	}
	if len(customers) == 1 {
		return &internal.ResolvedCustomer{Customer: customers[0]}, nil
	}

	lowerText := strings.ToLower(text)
	for _, b := range branches {
		token := strings.ToLower(strings.TrimSpace(b.Token))
		if token == "" || !strings.Contains(lowerText, token) {
			continue
		}
		if c := customerForBranch(customers, b); c != nil {
			branch := b
			return &internal.ResolvedCustomer{Customer: *c, Branch: &branch}, nil
		}
	}

	// No token matched. Ambiguity must never block processing, so the
	// first stored record wins, visibly flagged.
	return &internal.ResolvedCustomer{Customer: customers[0], ByFallback: true}, nil
}

// customerForBranch picks the customer record a matched token refers
// to: the one whose shipping address contains the branch delivery
// address, or whose display name contains the branch name.
func customerForBranch(customers []internal.Customer, b internal.BranchIdentifier) *internal.Customer {
	addr := strings.ToLower(strings.TrimSpace(b.DeliveryAddress))
	name := strings.ToLower(strings.TrimSpace(b.BranchName))

	for i, c := range customers {
		if addr != "" && strings.Contains(strings.ToLower(c.ShippingAddress), addr) {
			return &customers[i]
		}
		if name != "" && strings.Contains(strings.ToLower(c.Name), name) {
			return &customers[i]
		}
	}
	// Token matched but no record lines up with the branch metadata;
	// let the caller keep scanning other tokens.
	return nil
}
