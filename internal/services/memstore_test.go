package services

import (
	"context"
	"sync"
	"time"

	"github.com/playarena/credit_engine/internal/models"
	"github.com/playarena/credit_engine/internal/storage"
	"github.com/playarena/credit_engine/pkg/errors"
)

// memStore is an in-memory storage.Datastore for tests. Atomically
// snapshots the whole state and restores it when the callback fails, so
// the all-or-nothing semantics of the real store hold.
type memStore struct {
	mu    *sync.Mutex
	state *memState
	inTx  bool
}

type memState struct {
	accounts  map[uint]models.Account
	matches   map[uint]models.Match
	orders    map[uint]models.PaymentOrder
	ledger    []models.LedgerEntry
	templates map[uint]models.GameTemplate
	packs     map[uint]models.CreditPack
	h2h       map[[2]uint]models.HeadToHead
	nextID    uint
}

func newMemStore() *memStore {
	return &memStore{
		mu: &sync.Mutex{},
		state: &memState{
			accounts:  make(map[uint]models.Account),
			matches:   make(map[uint]models.Match),
			orders:    make(map[uint]models.PaymentOrder),
			templates: make(map[uint]models.GameTemplate),
			packs:     make(map[uint]models.CreditPack),
			h2h:       make(map[[2]uint]models.HeadToHead),
			nextID:    1,
		},
	}
}

func (s *memStore) lock() {
	if !s.inTx {
		s.mu.Lock()
	}
}

func (s *memStore) unlock() {
	if !s.inTx {
		s.mu.Unlock()
	}
}

func (st *memState) clone() *memState {
	out := &memState{
		accounts:  make(map[uint]models.Account, len(st.accounts)),
		matches:   make(map[uint]models.Match, len(st.matches)),
		orders:    make(map[uint]models.PaymentOrder, len(st.orders)),
		ledger:    append([]models.LedgerEntry(nil), st.ledger...),
		templates: make(map[uint]models.GameTemplate, len(st.templates)),
		packs:     make(map[uint]models.CreditPack, len(st.packs)),
		h2h:       make(map[[2]uint]models.HeadToHead, len(st.h2h)),
		nextID:    st.nextID,
	}
	for k, v := range st.accounts {
		out.accounts[k] = v
	}
	for k, v := range st.matches {
		out.matches[k] = v
	}
	for k, v := range st.orders {
		out.orders[k] = v
	}
	for k, v := range st.templates {
		out.templates[k] = v
	}
	for k, v := range st.packs {
		out.packs[k] = v
	}
	for k, v := range st.h2h {
		out.h2h[k] = v
	}
	return out
}

func (s *memStore) Atomically(ctx context.Context, fn func(tx storage.Datastore) error) error {
	if s.inTx {
		return fn(s)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.state.clone()
	tx := &memStore{mu: s.mu, state: s.state, inTx: true}
	if err := fn(tx); err != nil {
		*s.state = *snapshot
		return err
	}
	return nil
}

func (s *memStore) Accounts() storage.AccountStore   { return &memAccounts{s} }
func (s *memStore) Matches() storage.MatchStore      { return &memMatches{s} }
func (s *memStore) Orders() storage.OrderStore       { return &memOrders{s} }
func (s *memStore) Ledger() storage.LedgerJournal    { return &memLedger{s} }
func (s *memStore) Templates() storage.TemplateStore { return &memTemplates{s} }
func (s *memStore) Packs() storage.PackStore         { return &memPacks{s} }

func (s *memStore) allocID() uint {
	id := s.state.nextID
	s.state.nextID++
	return id
}

// --- accounts ---

type memAccounts struct{ s *memStore }

func (m *memAccounts) Create(a *models.Account) error {
	m.s.lock()
	defer m.s.unlock()
	a.ID = m.s.allocID()
	m.s.state.accounts[a.ID] = *a
	return nil
}

func (m *memAccounts) GetByAccountID(accountID string) (*models.Account, error) {
	m.s.lock()
	defer m.s.unlock()
	for _, a := range m.s.state.accounts {
		if a.AccountID == accountID {
			out := a
			return &out, nil
		}
	}
	return nil, errors.New(errors.ErrCodeNotFound, "account not found")
}

func (m *memAccounts) GetByID(id uint) (*models.Account, error) {
	m.s.lock()
	defer m.s.unlock()
	a, ok := m.s.state.accounts[id]
	if !ok {
		return nil, errors.New(errors.ErrCodeNotFound, "account not found")
	}
	out := a
	return &out, nil
}

func (m *memAccounts) GetForUpdate(id uint) (*models.Account, error) {
	return m.GetByID(id)
}

func (m *memAccounts) AdjustCredits(id uint, delta int64) error {
	m.s.lock()
	defer m.s.unlock()
	a, ok := m.s.state.accounts[id]
	if !ok {
		return errors.New(errors.ErrCodeNotFound, "account not found")
	}
	if a.Credits+delta < 0 {
		return errors.New(errors.ErrCodeInternalError, "check constraint: credits >= 0")
	}
	a.Credits += delta
	m.s.state.accounts[id] = a
	return nil
}

func (m *memAccounts) IncrementPurchases(id uint) error {
	m.s.lock()
	defer m.s.unlock()
	a, ok := m.s.state.accounts[id]
	if !ok {
		return errors.New(errors.ErrCodeNotFound, "account not found")
	}
	a.PurchaseCount++
	m.s.state.accounts[id] = a
	return nil
}

func (m *memAccounts) ApplyMatchOutcome(id uint, outcome storage.MatchOutcome) error {
	m.s.lock()
	defer m.s.unlock()
	a, ok := m.s.state.accounts[id]
	if !ok {
		return errors.New(errors.ErrCodeNotFound, "account not found")
	}
	a.GamesPlayed++
	switch outcome {
	case storage.OutcomeWon:
		a.GamesWon++
		a.WinStreak++
		if a.WinStreak > a.LongestWinStreak {
			a.LongestWinStreak = a.WinStreak
		}
	case storage.OutcomeLost:
		a.GamesLost++
		a.WinStreak = 0
	case storage.OutcomeDrawn:
		a.GamesDrawn++
		a.WinStreak = 0
	}
	m.s.state.accounts[id] = a
	return nil
}

func (m *memAccounts) BumpHeadToHead(accountID, opponentID uint, outcome storage.MatchOutcome) error {
	m.s.lock()
	defer m.s.unlock()
	key := [2]uint{accountID, opponentID}
	row := m.s.state.h2h[key]
	row.AccountID = accountID
	row.OpponentID = opponentID
	switch outcome {
	case storage.OutcomeWon:
		row.Wins++
	case storage.OutcomeLost:
		row.Losses++
	case storage.OutcomeDrawn:
		row.Draws++
	}
	m.s.state.h2h[key] = row
	return nil
}

// --- matches ---

type memMatches struct{ s *memStore }

func (m *memMatches) Create(match *models.Match) error {
	m.s.lock()
	defer m.s.unlock()
	match.ID = m.s.allocID()
	m.s.state.matches[match.ID] = *match
	return nil
}

func (m *memMatches) GetByMatchID(matchID string) (*models.Match, error) {
	m.s.lock()
	defer m.s.unlock()
	for _, match := range m.s.state.matches {
		if match.MatchID == matchID {
			out := match
			return &out, nil
		}
	}
	return nil, errors.New(errors.ErrCodeNotFound, "match not found")
}

func (m *memMatches) GetForUpdate(id uint) (*models.Match, error) {
	m.s.lock()
	defer m.s.unlock()
	match, ok := m.s.state.matches[id]
	if !ok {
		return nil, errors.New(errors.ErrCodeNotFound, "match not found")
	}
	out := match
	return &out, nil
}

func (m *memMatches) Close(id uint, updates map[string]interface{}) (bool, error) {
	m.s.lock()
	defer m.s.unlock()
	match, ok := m.s.state.matches[id]
	if !ok || match.Status != models.MatchStatusStarted {
		return false, nil
	}
	if v, ok := updates["status"]; ok {
		match.Status = v.(string)
	}
	if v, ok := updates["payout"]; ok {
		match.Payout = v.(int64)
	}
	if v, ok := updates["ended_at"]; ok {
		t := v.(time.Time)
		match.EndedAt = &t
	}
	if v, ok := updates["duration"]; ok {
		match.Duration = v.(int64)
	}
	if v, ok := updates["player_score"]; ok {
		match.PlayerScore = v.(int)
	}
	if v, ok := updates["opponent_score"]; ok {
		match.OpponentScore = v.(int)
	}
	if v, ok := updates["winner_id"]; ok {
		id := v.(uint)
		match.WinnerID = &id
	}
	m.s.state.matches[id] = match
	return true, nil
}

// --- orders ---

type memOrders struct{ s *memStore }

func (m *memOrders) Create(o *models.PaymentOrder) error {
	m.s.lock()
	defer m.s.unlock()
	o.ID = m.s.allocID()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	m.s.state.orders[o.ID] = *o
	return nil
}

func (m *memOrders) GetByOrderID(orderID string) (*models.PaymentOrder, error) {
	m.s.lock()
	defer m.s.unlock()
	for _, o := range m.s.state.orders {
		if o.OrderID == orderID {
			out := o
			return &out, nil
		}
	}
	return nil, errors.New(errors.ErrCodeNotFound, "payment order not found")
}

func (m *memOrders) GetByGatewayOrderID(gatewayOrderID string) (*models.PaymentOrder, error) {
	m.s.lock()
	defer m.s.unlock()
	for _, o := range m.s.state.orders {
		if o.GatewayOrderID == gatewayOrderID {
			out := o
			return &out, nil
		}
	}
	return nil, errors.New(errors.ErrCodeNotFound, "payment order not found")
}

func (m *memOrders) GetForUpdate(id uint) (*models.PaymentOrder, error) {
	m.s.lock()
	defer m.s.unlock()
	o, ok := m.s.state.orders[id]
	if !ok {
		return nil, errors.New(errors.ErrCodeNotFound, "payment order not found")
	}
	out := o
	return &out, nil
}

func (m *memOrders) TransitionFromPending(id uint, to string, updates map[string]interface{}) (bool, error) {
	m.s.lock()
	defer m.s.unlock()
	o, ok := m.s.state.orders[id]
	if !ok || o.Status != models.OrderStatusPending {
		return false, nil
	}
	o.Status = to
	if v, ok := updates["status_detail"]; ok {
		o.StatusDetail = v.(string)
	}
	if v, ok := updates["gateway_payment_id"]; ok {
		o.GatewayPaymentID = v.(string)
	}
	m.s.state.orders[id] = o
	return true, nil
}

func (m *memOrders) MarkRetried(id uint, from string) (bool, error) {
	m.s.lock()
	defer m.s.unlock()
	o, ok := m.s.state.orders[id]
	if !ok || o.Status != from {
		return false, nil
	}
	o.Status = models.OrderStatusRetried
	m.s.state.orders[id] = o
	return true, nil
}

func (m *memOrders) CancelPendingForAccount(accountID uint) error {
	m.s.lock()
	defer m.s.unlock()
	for id, o := range m.s.state.orders {
		if o.AccountID == accountID && o.Status == models.OrderStatusPending {
			o.Status = models.OrderStatusCancelled
			o.StatusDetail = "superseded by a newer order"
			m.s.state.orders[id] = o
		}
	}
	return nil
}

func (m *memOrders) ExpireStalePending(now time.Time) (int64, error) {
	m.s.lock()
	defer m.s.unlock()
	var n int64
	for id, o := range m.s.state.orders {
		if o.Status == models.OrderStatusPending && o.ExpiresAt.Before(now) {
			o.Status = models.OrderStatusExpired
			o.StatusDetail = "expired by sweeper"
			m.s.state.orders[id] = o
			n++
		}
	}
	return n, nil
}

func (m *memOrders) FailStaleErrors(cutoff time.Time) (int64, error) {
	m.s.lock()
	defer m.s.unlock()
	var n int64
	for id, o := range m.s.state.orders {
		if o.Status == models.OrderStatusError && o.CreatedAt.Before(cutoff) {
			o.Status = models.OrderStatusFailed
			o.StatusDetail = "failed by sweeper after prolonged error state"
			m.s.state.orders[id] = o
			n++
		}
	}
	return n, nil
}

// --- ledger ---

type memLedger struct{ s *memStore }

func (m *memLedger) Append(e *models.LedgerEntry) error {
	m.s.lock()
	defer m.s.unlock()
	if e.BalanceAfter != e.BalanceBefore+e.Delta {
		return errors.New(errors.ErrCodeValidationFailed, "ledger entry balances do not reconcile")
	}
	e.ID = m.s.allocID()
	m.s.state.ledger = append(m.s.state.ledger, *e)
	return nil
}

func (m *memLedger) ListByAccount(accountID uint, f models.LedgerFilters) ([]models.LedgerEntry, error) {
	m.s.lock()
	defer m.s.unlock()
	var out []models.LedgerEntry
	for _, e := range m.s.state.ledger {
		if e.AccountID != accountID {
			continue
		}
		if f.Kind != "" && e.Kind != f.Kind {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (m *memLedger) SumDeltas(accountID uint) (int64, error) {
	m.s.lock()
	defer m.s.unlock()
	var sum int64
	for _, e := range m.s.state.ledger {
		if e.AccountID == accountID {
			sum += e.Delta
		}
	}
	return sum, nil
}

// --- catalog ---

type memTemplates struct{ s *memStore }

func (m *memTemplates) GetByID(id uint) (*models.GameTemplate, error) {
	m.s.lock()
	defer m.s.unlock()
	t, ok := m.s.state.templates[id]
	if !ok {
		return nil, errors.New(errors.ErrCodeNotFound, "game template not found")
	}
	out := t
	return &out, nil
}

type memPacks struct{ s *memStore }

func (m *memPacks) GetByID(id uint) (*models.CreditPack, error) {
	m.s.lock()
	defer m.s.unlock()
	p, ok := m.s.state.packs[id]
	if !ok {
		return nil, errors.New(errors.ErrCodeNotFound, "credit pack not found")
	}
	out := p
	return &out, nil
}

// --- fixture helpers ---

func (s *memStore) addAccount(accountID string, credits int64) *models.Account {
	a := &models.Account{AccountID: accountID, Credits: credits, Status: models.AccountStatusActive}
	_ = s.Accounts().Create(a)
	return a
}

func (s *memStore) addTemplate(name string, minWager, maxWager int64, active bool) *models.GameTemplate {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := models.GameTemplate{Name: name, MinWager: minWager, MaxWager: maxWager, Active: active}
	t.ID = s.allocID()
	s.state.templates[t.ID] = t
	return &t
}

func (s *memStore) addPack(name string, credits, price int64, active bool) *models.CreditPack {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := models.CreditPack{Name: name, Credits: credits, Price: price, Active: active}
	p.ID = s.allocID()
	s.state.packs[p.ID] = p
	return &p
}

func (s *memStore) account(id uint) models.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.accounts[id]
}

func (s *memStore) order(orderID string) models.PaymentOrder {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.state.orders {
		if o.OrderID == orderID {
			return o
		}
	}
	return models.PaymentOrder{}
}
