package ledger

import (
	"context"
	"sort"
	"strings"

	"golang.org/x/text/cases"
)

// =============================================================================
// CLIENT DIRECTORY
// =============================================================================

// NewClient is the registration input.
type NewClient struct {
	ExternalCode string
	Name         string
	Phone        string
	Locality     string
}

// Directory owns client records: registration, lookup and removal.
type Directory struct {
	store TxStore
	clock Clock
}

func NewDirectory(store TxStore, clock Clock) *Directory {
	return &Directory{store: store, clock: clock}
}

// Register creates a client. The external code must be unique (exact match).
func (d *Directory) Register(ctx context.Context, in NewClient) (ClientID, error) {
	c := Client{
		ExternalCode: strings.TrimSpace(in.ExternalCode),
		Name:         strings.TrimSpace(in.Name),
		Phone:        strings.TrimSpace(in.Phone),
		Locality:     strings.TrimSpace(in.Locality),
		CreatedAt:    d.clock.Now(),
	}
	if c.ExternalCode == "" || c.Name == "" {
		return 0, ErrInvalidClient
	}

	// The store's unique index on external_code is the duplicate check.
	id, err := d.store.InsertClient(ctx, c)
	if err != nil {
		return 0, storageErr("register client", err)
	}
	return id, nil
}

// Get returns a client by ID.
func (d *Directory) Get(ctx context.Context, id ClientID) (Client, error) {
	c, err := d.store.GetClient(ctx, id)
	if err != nil {
		return Client{}, storageErr("get client", err)
	}
	return c, nil
}

// Find returns clients whose external code, name or locality contains query,
// ignoring case. An empty query matches everyone. Results are sorted by name.
func (d *Directory) Find(ctx context.Context, query string) ([]Client, error) {
	clients, err := d.store.ListClients(ctx)
	if err != nil {
		return nil, storageErr("find clients", err)
	}

	// A Caser carries state; one per call.
	fold := cases.Fold()
	needle := fold.String(strings.TrimSpace(query))
	matches := make([]Client, 0, len(clients))
	for _, c := range clients {
		if needle == "" ||
			strings.Contains(fold.String(c.ExternalCode), needle) ||
			strings.Contains(fold.String(c.Name), needle) ||
			strings.Contains(fold.String(c.Locality), needle) {
			matches = append(matches, c)
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		a, b := fold.String(matches[i].Name), fold.String(matches[j].Name)
		if a != b {
			return a < b
		}
		return matches[i].ID < matches[j].ID
	})
	return matches, nil
}

// Delete removes a client together with its debts and their payments.
func (d *Directory) Delete(ctx context.Context, id ClientID) error {
	err := d.store.WithTx(ctx, func(s Store) error {
		if _, err := s.GetClient(ctx, id); err != nil {
			return err
		}
		return s.DeleteClient(ctx, id)
	})
	return storageErr("delete client", err)
}
