// Package store provides in-process ledger.TxStore implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warp/tab-ledger/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu sync.RWMutex
	t  *tables
}

type tables struct {
	clients  map[ledger.ClientID]ledger.Client
	debts    map[ledger.DebtID]ledger.Debt
	payments map[ledger.PaymentID]ledger.Payment

	nextClient  ledger.ClientID
	nextDebt    ledger.DebtID
	nextPayment ledger.PaymentID
}

func newTables() *tables {
	return &tables{
		clients:  make(map[ledger.ClientID]ledger.Client),
		debts:    make(map[ledger.DebtID]ledger.Debt),
		payments: make(map[ledger.PaymentID]ledger.Payment),
	}
}

func NewMemory() *Memory {
	return &Memory{t: newTables()}
}

// Reset drops every row and restarts the ID sequences.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.t = newTables()
	return nil
}

func (m *Memory) InsertClient(ctx context.Context, c ledger.Client) (ledger.ClientID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.t.InsertClient(ctx, c)
}

func (m *Memory) GetClient(ctx context.Context, id ledger.ClientID) (ledger.Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.t.GetClient(ctx, id)
}

func (m *Memory) ListClients(ctx context.Context) ([]ledger.Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.t.ListClients(ctx)
}

func (m *Memory) DeleteClient(ctx context.Context, id ledger.ClientID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.t.DeleteClient(ctx, id)
}

func (m *Memory) InsertDebt(ctx context.Context, d ledger.Debt) (ledger.DebtID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.t.InsertDebt(ctx, d)
}

func (m *Memory) GetDebt(ctx context.Context, id ledger.DebtID) (ledger.Debt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.t.GetDebt(ctx, id)
}

func (m *Memory) UpdateDebt(ctx context.Context, d ledger.Debt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.t.UpdateDebt(ctx, d)
}

func (m *Memory) DeleteDebt(ctx context.Context, id ledger.DebtID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.t.DeleteDebt(ctx, id)
}

func (m *Memory) DebtsByClient(ctx context.Context, clientID ledger.ClientID) ([]ledger.Debt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.t.DebtsByClient(ctx, clientID)
}

func (m *Memory) ListDebts(ctx context.Context) ([]ledger.Debt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.t.ListDebts(ctx)
}

func (m *Memory) InsertPayment(ctx context.Context, p ledger.Payment) (ledger.PaymentID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.t.InsertPayment(ctx, p)
}

func (m *Memory) PaymentsByDebt(ctx context.Context, debtID ledger.DebtID) ([]ledger.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.t.PaymentsByDebt(ctx, debtID)
}

func (m *Memory) PaymentsInRange(ctx context.Context, from, to time.Time) ([]ledger.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.t.PaymentsInRange(ctx, from, to)
}

func (m *Memory) ListPayments(ctx context.Context) ([]ledger.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.t.ListPayments(ctx)
}

// WithTx executes fn within a transaction.
// For the memory store this is simulated with a snapshot + rollback on error.
func (m *Memory) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.t.clone()
	if err := fn(m.t); err != nil {
		m.t = snapshot
		return err
	}
	return nil
}

var _ ledger.TxStore = (*Memory)(nil)

// =============================================================================
// TABLES - unlocked row operations, shared by Memory and its tx view
// =============================================================================

func (t *tables) clone() *tables {
	c := &tables{
		clients:     make(map[ledger.ClientID]ledger.Client, len(t.clients)),
		debts:       make(map[ledger.DebtID]ledger.Debt, len(t.debts)),
		payments:    make(map[ledger.PaymentID]ledger.Payment, len(t.payments)),
		nextClient:  t.nextClient,
		nextDebt:    t.nextDebt,
		nextPayment: t.nextPayment,
	}
	for k, v := range t.clients {
		c.clients[k] = v
	}
	for k, v := range t.debts {
		c.debts[k] = v
	}
	for k, v := range t.payments {
		c.payments[k] = v
	}
	return c
}

func (t *tables) InsertClient(_ context.Context, c ledger.Client) (ledger.ClientID, error) {
	for _, existing := range t.clients {
		if existing.ExternalCode == c.ExternalCode {
			return 0, ledger.ErrDuplicateClient
		}
	}
	t.nextClient++
	c.ID = t.nextClient
	t.clients[c.ID] = c
	return c.ID, nil
}

func (t *tables) GetClient(_ context.Context, id ledger.ClientID) (ledger.Client, error) {
	c, ok := t.clients[id]
	if !ok {
		return ledger.Client{}, ledger.ErrClientNotFound
	}
	return c, nil
}

func (t *tables) ListClients(_ context.Context) ([]ledger.Client, error) {
	result := make([]ledger.Client, 0, len(t.clients))
	for _, c := range t.clients {
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (t *tables) DeleteClient(ctx context.Context, id ledger.ClientID) error {
	if _, ok := t.clients[id]; !ok {
		return ledger.ErrClientNotFound
	}
	for debtID, d := range t.debts {
		if d.ClientID == id {
			if err := t.DeleteDebt(ctx, debtID); err != nil {
				return err
			}
		}
	}
	delete(t.clients, id)
	return nil
}

func (t *tables) InsertDebt(_ context.Context, d ledger.Debt) (ledger.DebtID, error) {
	if _, ok := t.clients[d.ClientID]; !ok {
		return 0, ledger.ErrClientNotFound
	}
	t.nextDebt++
	d.ID = t.nextDebt
	t.debts[d.ID] = d
	return d.ID, nil
}

func (t *tables) GetDebt(_ context.Context, id ledger.DebtID) (ledger.Debt, error) {
	d, ok := t.debts[id]
	if !ok {
		return ledger.Debt{}, ledger.ErrDebtNotFound
	}
	return d, nil
}

func (t *tables) UpdateDebt(_ context.Context, d ledger.Debt) error {
	existing, ok := t.debts[d.ID]
	if !ok {
		return ledger.ErrDebtNotFound
	}
	// Owner and creation date are immutable.
	d.ClientID = existing.ClientID
	d.CreatedAt = existing.CreatedAt
	t.debts[d.ID] = d
	return nil
}

func (t *tables) DeleteDebt(_ context.Context, id ledger.DebtID) error {
	if _, ok := t.debts[id]; !ok {
		return ledger.ErrDebtNotFound
	}
	for paymentID, p := range t.payments {
		if p.DebtID == id {
			delete(t.payments, paymentID)
		}
	}
	delete(t.debts, id)
	return nil
}

func (t *tables) DebtsByClient(_ context.Context, clientID ledger.ClientID) ([]ledger.Debt, error) {
	var result []ledger.Debt
	for _, d := range t.debts {
		if d.ClientID == clientID {
			result = append(result, d)
		}
	}
	sortDebts(result)
	return result, nil
}

func (t *tables) ListDebts(_ context.Context) ([]ledger.Debt, error) {
	result := make([]ledger.Debt, 0, len(t.debts))
	for _, d := range t.debts {
		result = append(result, d)
	}
	sortDebts(result)
	return result, nil
}

func (t *tables) InsertPayment(_ context.Context, p ledger.Payment) (ledger.PaymentID, error) {
	if _, ok := t.debts[p.DebtID]; !ok {
		return 0, ledger.ErrDebtNotFound
	}
	t.nextPayment++
	p.ID = t.nextPayment
	t.payments[p.ID] = p
	return p.ID, nil
}

func (t *tables) PaymentsByDebt(_ context.Context, debtID ledger.DebtID) ([]ledger.Payment, error) {
	var result []ledger.Payment
	for _, p := range t.payments {
		if p.DebtID == debtID {
			result = append(result, p)
		}
	}
	sortPayments(result)
	// Most recent first.
	for i, j := 0, len(result)-1; i < j; i, j = i+1, j-1 {
		result[i], result[j] = result[j], result[i]
	}
	return result, nil
}

func (t *tables) PaymentsInRange(_ context.Context, from, to time.Time) ([]ledger.Payment, error) {
	var result []ledger.Payment
	for _, p := range t.payments {
		if !p.PaidAt.Before(from) && p.PaidAt.Before(to) {
			result = append(result, p)
		}
	}
	sortPayments(result)
	return result, nil
}

func (t *tables) ListPayments(_ context.Context) ([]ledger.Payment, error) {
	result := make([]ledger.Payment, 0, len(t.payments))
	for _, p := range t.payments {
		result = append(result, p)
	}
	sortPayments(result)
	return result, nil
}

func sortDebts(debts []ledger.Debt) {
	sort.Slice(debts, func(i, j int) bool {
		if !debts[i].CreatedAt.Equal(debts[j].CreatedAt) {
			return debts[i].CreatedAt.Before(debts[j].CreatedAt)
		}
		return debts[i].ID < debts[j].ID
	})
}

func sortPayments(payments []ledger.Payment) {
	sort.Slice(payments, func(i, j int) bool {
		if !payments[i].PaidAt.Equal(payments[j].PaidAt) {
			return payments[i].PaidAt.Before(payments[j].PaidAt)
		}
		return payments[i].ID < payments[j].ID
	})
}
