package catalog

import (
	"strings"
	"sync"

	"lpoflow/internal"
	"lpoflow/internal/storage"
)

// Store is the read side of the customer reference data. Lookups hit
// the database directly; only the known-sender set is cached, because
// the ingestion filter consults it for every fetched message.
type Store struct {
	db *storage.DB

	mu           sync.RWMutex
	knownSenders map[string]struct{}
}

func NewStore(db *storage.DB) *Store {
	return &Store{db: db}
}

// CustomersByEmail returns all active customer records for a contact
// address, in stable insertion order.
func (s *Store) CustomersByEmail(email string) ([]internal.Customer, error) {
	return s.db.ListCustomersByEmail(email)
}

func (s *Store) Branches(email string) ([]internal.BranchIdentifier, error) {
	return s.db.ListBranchIdentifiers(email)
}

func (s *Store) Mappings(email string) ([]internal.ProductMapping, error) {
	return s.db.ListProductMappings(email)
}

// IsKnownSender reports whether the address belongs to any active
// customer. The first call loads the set; Refresh invalidates it after
// customer records change.
func (s *Store) IsKnownSender(email string) (bool, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	s.mu.RLock()
	senders := s.knownSenders
	s.mu.RUnlock()

	if senders == nil {
		var err error
		senders, err = s.loadSenders()
		if err != nil {
			return false, err
		}
	}

	_, ok := senders[email]
	return ok, nil
}

func (s *Store) loadSenders() (map[string]struct{}, error) {
	emails, err := s.db.ListActiveContactEmails()
	if err != nil {
		return nil, err
	}
	senders := make(map[string]struct{}, len(emails))
	for _, e := range emails {
		senders[strings.ToLower(e)] = struct{}{}
	}

	s.mu.Lock()
	s.knownSenders = senders
	s.mu.Unlock()
	return senders, nil
}

// Refresh drops the cached sender set so the next lookup reloads it.
func (s *Store) Refresh() {
	s.mu.Lock()
	s.knownSenders = nil
	s.mu.Unlock()
}
