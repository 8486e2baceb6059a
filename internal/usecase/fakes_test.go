package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"mahjong-booking/internal/data/entity"
	"mahjong-booking/internal/data/repository"
	"mahjong-booking/internal/gateway"
	"mahjong-booking/pkg/metrics"
	"mahjong-booking/pkg/utils"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// memStore backs every fake repository. memTx serialises transactions and restores
// a snapshot when fn fails, which is enough to observe all-or-nothing behaviour.
type memStore struct {
	mu        sync.Mutex
	users     map[uuid.UUID]*entity.User
	sessions  map[uuid.UUID]*entity.Session
	bookings  map[uuid.UUID]*entity.Booking
	txns      []*entity.Transaction
	processed map[string]string

	// failCreateAt makes the n-th CreatePending call fail (1-based, 0 = never)
	failCreateAt int
	createCalls  int
}

func newMemStore() *memStore {
	return &memStore{
		users:     map[uuid.UUID]*entity.User{},
		sessions:  map[uuid.UUID]*entity.Session{},
		bookings:  map[uuid.UUID]*entity.Booking{},
		processed: map[string]string{},
	}
}

type memSnapshot struct {
	users     map[uuid.UUID]entity.User
	bookings  map[uuid.UUID]entity.Booking
	txns      []*entity.Transaction
	processed map[string]string
}

func (m *memStore) snapshot() memSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := memSnapshot{
		users:     make(map[uuid.UUID]entity.User, len(m.users)),
		bookings:  make(map[uuid.UUID]entity.Booking, len(m.bookings)),
		txns:      append([]*entity.Transaction(nil), m.txns...),
		processed: make(map[string]string, len(m.processed)),
	}
	for k, v := range m.users {
		s.users[k] = *v
	}
	for k, v := range m.bookings {
		s.bookings[k] = *v
	}
	for k, v := range m.processed {
		s.processed[k] = v
	}
	return s
}

func (m *memStore) restore(s memSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.users = make(map[uuid.UUID]*entity.User, len(s.users))
	for k, v := range s.users {
		v := v
		m.users[k] = &v
	}
	m.bookings = make(map[uuid.UUID]*entity.Booking, len(s.bookings))
	for k, v := range s.bookings {
		v := v
		m.bookings[k] = &v
	}
	m.txns = s.txns
	m.processed = s.processed
}

func (m *memStore) bookingsWhere(pred func(*entity.Booking) bool) []*entity.Booking {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*entity.Booking
	for _, b := range m.bookings {
		if pred(b) {
			c := *b
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].StartTime < out[j].StartTime
	})
	return out
}

func (m *memStore) ledger() []*entity.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*entity.Transaction(nil), m.txns...)
}

func (m *memStore) user(id uuid.UUID) entity.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.users[id]
}

func (m *memStore) addUser(email string) *entity.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := &entity.User{
		Base:       entity.Base{ID: uuid.New()},
		Name:       "Player",
		Email:      email,
		Role:       entity.RoleCustomer,
		Membership: entity.MembershipRegular,
	}
	m.users[u.ID] = u
	c := *u
	return &c
}

func (m *memStore) addBooking(userID uuid.UUID, date, start string, status entity.BookingStatus) *entity.Booking {
	d, err := ParseDate(date)
	if err != nil {
		panic(err)
	}
	hour, ok := parseHour(start)
	if !ok {
		panic("bad start time " + start)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	b := &entity.Booking{
		BaseNoDelete: entity.BaseNoDelete{ID: uuid.New()},
		UserID:       userID,
		Date:         d,
		StartTime:    start,
		EndTime:      Slot{Hour: hour}.End(),
		Amount:       10000,
		Status:       status,
	}
	m.bookings[b.ID] = b
	c := *b
	return &c
}

func (m *memStore) confirmedAt(date time.Time, start string, except uuid.UUID) bool {
	for _, b := range m.bookings {
		if b.ID != except && b.Status == entity.BookingStatusConfirmed && b.Date.Equal(date) && b.StartTime == start {
			return true
		}
	}
	return false
}

type memTx struct {
	store *memStore
	mu    sync.Mutex
}

func (t *memTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	snap := t.store.snapshot()
	if err := fn(ctx); err != nil {
		t.store.restore(snap)
		return err
	}
	return nil
}

// ---------- repositories ----------

type memBookingRepo struct{ s *memStore }

func (r memBookingRepo) CreatePending(_ context.Context, b *entity.Booking) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	r.s.createCalls++
	if r.s.failCreateAt > 0 && r.s.createCalls == r.s.failCreateAt {
		return errors.New("insert failed")
	}
	if r.s.confirmedAt(b.Date, b.StartTime, uuid.Nil) {
		return fmt.Errorf("create pending booking: %w", repository.ErrSlotTaken)
	}
	b.Status = entity.BookingStatusPending
	c := *b
	r.s.bookings[b.ID] = &c
	return nil
}

func (r memBookingRepo) FindByID(_ context.Context, id uuid.UUID) (*entity.Booking, error) {
	found := r.s.bookingsWhere(func(b *entity.Booking) bool { return b.ID == id })
	if len(found) == 0 {
		return nil, nil
	}
	return found[0], nil
}

func (r memBookingRepo) FindByIDs(_ context.Context, ids []uuid.UUID) ([]*entity.Booking, error) {
	set := map[uuid.UUID]bool{}
	for _, id := range ids {
		set[id] = true
	}
	return r.s.bookingsWhere(func(b *entity.Booking) bool { return set[b.ID] }), nil
}

func (r memBookingRepo) FindConfirmedBySlots(_ context.Context, date time.Time, starts []string) ([]*entity.Booking, error) {
	set := map[string]bool{}
	for _, s := range starts {
		set[s] = true
	}
	return r.s.bookingsWhere(func(b *entity.Booking) bool {
		return b.Status == entity.BookingStatusConfirmed && b.Date.Equal(date) && set[b.StartTime]
	}), nil
}

func (r memBookingRepo) FindConfirmedByDate(_ context.Context, date time.Time) ([]*entity.Booking, error) {
	return r.s.bookingsWhere(func(b *entity.Booking) bool {
		return b.Status == entity.BookingStatusConfirmed && b.Date.Equal(date)
	}), nil
}

func (r memBookingRepo) FindByUserID(_ context.Context, userID uuid.UUID, limit, offset int) ([]*entity.Booking, error) {
	all := r.s.bookingsWhere(func(b *entity.Booking) bool { return b.UserID == userID })
	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (r memBookingRepo) CountByUserID(_ context.Context, userID uuid.UUID) (int64, error) {
	return int64(len(r.s.bookingsWhere(func(b *entity.Booking) bool { return b.UserID == userID }))), nil
}

func (r memBookingRepo) List(_ context.Context, f repository.BookingFilter) ([]*entity.BookingWithCustomer, int64, error) {
	all := r.s.bookingsWhere(func(b *entity.Booking) bool {
		if f.Status != "" && b.Status != f.Status {
			return false
		}
		if f.DateFrom != nil && b.Date.Before(*f.DateFrom) {
			return false
		}
		if f.DateTo != nil && b.Date.After(*f.DateTo) {
			return false
		}
		return true
	})

	var out []*entity.BookingWithCustomer
	for i, b := range all {
		if i < f.Offset || len(out) >= f.Limit {
			continue
		}
		u := r.s.user(b.UserID)
		out = append(out, &entity.BookingWithCustomer{
			Booking:            *b,
			CustomerName:       u.Name,
			CustomerEmail:      u.Email,
			CustomerMembership: string(u.Membership),
		})
	}
	return out, int64(len(all)), nil
}

func (r memBookingRepo) ConfirmPending(_ context.Context, ids []uuid.UUID) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var n int64
	for _, id := range ids {
		b, ok := r.s.bookings[id]
		if !ok || b.Status != entity.BookingStatusPending {
			continue
		}
		if r.s.confirmedAt(b.Date, b.StartTime, b.ID) {
			return 0, fmt.Errorf("confirm bookings: %w", repository.ErrSlotTaken)
		}
		b.Status = entity.BookingStatusConfirmed
		n++
	}
	return n, nil
}

func (r memBookingRepo) DeletePending(_ context.Context, ids []uuid.UUID) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var n int64
	for _, id := range ids {
		if b, ok := r.s.bookings[id]; ok && b.Status == entity.BookingStatusPending {
			delete(r.s.bookings, id)
			n++
		}
	}
	return n, nil
}

type memUserRepo struct{ s *memStore }

func (r memUserRepo) Create(_ context.Context, u *entity.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c := *u
	r.s.users[u.ID] = &c
	return nil
}

func (r memUserRepo) FindByID(_ context.Context, id uuid.UUID) (*entity.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, nil
	}
	c := *u
	return &c, nil
}

func (r memUserRepo) FindByEmail(_ context.Context, email string) (*entity.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.Email == email {
			c := *u
			return &c, nil
		}
	}
	return nil, nil
}

func (r memUserRepo) AddTotalSpent(_ context.Context, id uuid.UUID, amount int64) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return false, nil
	}
	u.TotalSpent += amount
	return true, nil
}

type memSessionRepo struct{ s *memStore }

func (r memSessionRepo) Create(_ context.Context, session *entity.Session) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c := *session
	r.s.sessions[session.Token] = &c
	return nil
}

func (r memSessionRepo) FindValidSession(_ context.Context, token uuid.UUID) (*entity.Session, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	session, ok := r.s.sessions[token]
	if !ok || session.RevokedAt != nil {
		return nil, nil
	}
	c := *session
	return &c, nil
}

func (r memSessionRepo) Revoke(_ context.Context, token uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	session, ok := r.s.sessions[token]
	if !ok || session.RevokedAt != nil {
		return repository.ErrSessionNotFound
	}
	now := time.Now()
	session.RevokedAt = &now
	return nil
}

type memTransactionRepo struct{ s *memStore }

func (r memTransactionRepo) Create(_ context.Context, t *entity.Transaction) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if t.PaymentID != nil {
		for _, existing := range r.s.txns {
			if existing.PaymentID != nil && *existing.PaymentID == *t.PaymentID && existing.Type == t.Type {
				return &pgconn.PgError{Code: "23505", ConstraintName: "transactions_payment_type"}
			}
		}
	}
	c := *t
	r.s.txns = append(r.s.txns, &c)
	return nil
}

func (r memTransactionRepo) FindByUserID(_ context.Context, userID uuid.UUID, limit, offset int) ([]*entity.Transaction, error) {
	var out []*entity.Transaction
	for i, t := range r.s.ledger() {
		if t.UserID == userID && i >= offset && len(out) < limit {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r memTransactionRepo) CountByUserID(_ context.Context, userID uuid.UUID) (int64, error) {
	var n int64
	for _, t := range r.s.ledger() {
		if t.UserID == userID {
			n++
		}
	}
	return n, nil
}

type memPaymentEventRepo struct{ s *memStore }

func (r memPaymentEventRepo) MarkProcessed(_ context.Context, sessionID string, kind entity.PaymentEventKind, eventID string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := sessionID + "/" + string(kind)
	if _, ok := r.s.processed[key]; ok {
		return false, nil
	}
	r.s.processed[key] = eventID
	return true, nil
}

// ---------- collaborators ----------

const validSignature = "t=1,v1=valid"

type fakeGateway struct {
	mu        sync.Mutex
	requests  []gateway.CheckoutRequest
	createErr error
	events    map[string]*gateway.Event
	sessions  int
}

func (g *fakeGateway) CreateSession(_ context.Context, req gateway.CheckoutRequest) (*gateway.CheckoutSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	if g.createErr != nil {
		return nil, g.createErr
	}
	g.sessions++
	id := fmt.Sprintf("cs_test_%d", g.sessions)
	return &gateway.CheckoutSession{ID: id, URL: "https://checkout.stripe.test/" + id}, nil
}

func (g *fakeGateway) ParseEvent(payload []byte, signature string) (*gateway.Event, error) {
	if signature != validSignature {
		return nil, fmt.Errorf("%w: bad signature", gateway.ErrInvalidSignature)
	}
	ev, ok := g.events[string(payload)]
	if !ok {
		return nil, fmt.Errorf("%w: unknown payload", gateway.ErrMalformedEvent)
	}
	return ev, nil
}

func (g *fakeGateway) lastRequest() gateway.CheckoutRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.requests[len(g.requests)-1]
}

type publishedEvent struct {
	key string
	msg any
}

type fakePublisher struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
}

func (p *fakePublisher) PublishJSON(_ context.Context, key string, v any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{key: key, msg: v})
	return p.err
}

// mutablePricing lets a test change the rules after bookings exist
type mutablePricing struct {
	mu    sync.Mutex
	price SlotPrice
}

func (p *mutablePricing) Quote(time.Time, int) SlotPrice {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.price
}

func (p *mutablePricing) set(price SlotPrice) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.price = price
}

// ---------- harness ----------

var hongKong = func() *time.Location {
	loc, err := time.LoadLocation("Asia/Hong_Kong")
	if err != nil {
		return time.FixedZone("HKT", 8*3600)
	}
	return loc
}()

type harness struct {
	store   *memStore
	gateway *fakeGateway
	pub     *fakePublisher
	metrics *metrics.Metrics
	config  *utils.Config
	svc     *Service
}

func testConfig() *utils.Config {
	return &utils.Config{
		App: utils.AppConfig{
			PublicBaseURL: "https://mahjong.test",
			Timezone:      "Asia/Hong_Kong",
		},
		Session: utils.SessionConfig{ExpiryHours: 24},
		Pricing: utils.PricingConfig{
			PeakPrice:     15000,
			OffPeakPrice:  10000,
			PeakStartHour: 18,
			Currency:      "hkd",
		},
		Payment: utils.PaymentConfig{
			ProductName:       "Mahjong Party Room booking",
			SessionTTLMinutes: 30,
		},
	}
}

// newHarness pins "now" to the evening of 2023-12-31 in Hong Kong
func newHarness(t *testing.T, pricing PricingRules) *harness {
	t.Helper()

	store := newMemStore()
	h := &harness{
		store:   store,
		gateway: &fakeGateway{events: map[string]*gateway.Event{}},
		pub:     &fakePublisher{},
		metrics: metrics.New("test"),
		config:  testConfig(),
	}

	h.svc = NewService(Dependencies{
		Repo: &repository.Repository{
			User:         memUserRepo{store},
			Session:      memSessionRepo{store},
			Booking:      memBookingRepo{store},
			Transaction:  memTransactionRepo{store},
			PaymentEvent: memPaymentEventRepo{store},
		},
		Tx:        &memTx{store: store},
		Gateway:   h.gateway,
		Publisher: h.pub,
		Pricing:   pricing,
		Clock:     utils.FixedClock{At: time.Date(2023, 12, 31, 20, 0, 0, 0, hongKong)},
		Metrics:   h.metrics,
		Config:    h.config,
		Log:       zap.NewNop(),
	})
	return h
}

// deliver registers ev under a unique payload and hands it to the webhook service
func (h *harness) deliver(t *testing.T, ev *gateway.Event) (*WebhookResult, error) {
	t.Helper()
	payload := fmt.Sprintf(`{"id":%q,"n":%d}`, ev.ID, len(h.gateway.events))
	h.gateway.events[payload] = ev
	return h.svc.Webhook.HandleEvent(context.Background(), []byte(payload), validSignature)
}

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := ParseDate(s)
	if err != nil {
		t.Fatalf("parse date %s: %v", s, err)
	}
	return d
}
