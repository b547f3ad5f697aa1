package jobs

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"rental-obligations/internal/clock"
	"rental-obligations/internal/config"
	"rental-obligations/internal/domain"
	"rental-obligations/internal/repository"
	"rental-obligations/internal/service"
)

type memRentals struct {
	rentals []domain.RentalObligation
	listErr error
	panics  bool
}

func (m *memRentals) ListUpcomingReturns(ctx context.Context, from, to time.Time) ([]domain.RentalObligation, error) {
	if m.panics {
		panic("rental store exploded")
	}
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []domain.RentalObligation
	for _, r := range m.rentals {
		if r.Status == domain.RentalStatusApproved && r.PaymentStatus == domain.RentalPaymentPaid &&
			!r.EndDate.Before(from) && !r.EndDate.After(to) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memRentals) ListOverdueReturns(ctx context.Context, now time.Time) ([]domain.RentalObligation, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []domain.RentalObligation
	for _, r := range m.rentals {
		active := r.Status == domain.RentalStatusApproved || r.Status == domain.RentalStatusActive
		if active && r.PaymentStatus == domain.RentalPaymentPaid && r.EndDate.Before(now) {
			out = append(out, r)
		}
	}
	return out, nil
}

// memInvoices enforces the same version check as the SQL store.
type memInvoices struct {
	mu       sync.Mutex
	invoices map[int32]domain.InvoiceObligation
	listErr  error
	updates  int
	// beforeUpdate runs ahead of the version check, outside the lock, so a
	// test can play a concurrent writer.
	beforeUpdate func(id int32)
}

func newMemInvoices(invoices ...domain.InvoiceObligation) *memInvoices {
	m := &memInvoices{invoices: make(map[int32]domain.InvoiceObligation)}
	for _, inv := range invoices {
		m.invoices[inv.ID] = inv
	}
	return m
}

func (m *memInvoices) GetByID(ctx context.Context, id int32) (*domain.InvoiceObligation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invoices[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &inv, nil
}

func (m *memInvoices) ListOverdue(ctx context.Context, now time.Time) ([]domain.InvoiceObligation, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.InvoiceObligation
	for _, inv := range m.invoices {
		if inv.PaymentStatus != domain.InvoiceStatusPaid && inv.DueDate.Before(now) {
			out = append(out, inv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memInvoices) UpdateLateFee(ctx context.Context, inv *domain.InvoiceObligation, expectedVersion int32) error {
	if m.beforeUpdate != nil {
		m.beforeUpdate(inv.ID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.invoices[inv.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if cur.Version != expectedVersion || cur.PaymentStatus == domain.InvoiceStatusPaid {
		return repository.ErrConcurrentUpdate
	}
	inv.Version = expectedVersion + 1
	m.invoices[inv.ID] = *inv
	m.updates++
	return nil
}

// write plays another writer: it mutates the stored invoice and bumps its version.
func (m *memInvoices) write(id int32, mutate func(*domain.InvoiceObligation)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv := m.invoices[id]
	mutate(&inv)
	inv.Version++
	m.invoices[id] = inv
}

func (m *memInvoices) get(id int32) domain.InvoiceObligation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.invoices[id]
}

// memNotifications keeps at most one row per notification key.
type memNotifications struct {
	mu     sync.Mutex
	rows   map[int32]domain.Notification
	nextID int32
}

func newMemNotifications() *memNotifications {
	return &memNotifications{rows: make(map[int32]domain.Notification)}
}

func (m *memNotifications) Create(ctx context.Context, n *domain.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row.Key() == n.Key() {
			return repository.ErrDuplicateNotification
		}
	}
	m.nextID++
	n.ID = m.nextID
	if n.CreatedAt.IsZero() {
		n.CreatedAt = n.ScheduledAt
	}
	m.rows[n.ID] = *n
	return nil
}

func (m *memNotifications) ListByKey(ctx context.Context, key domain.NotificationKey) ([]domain.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Notification
	for _, row := range m.rows {
		if row.Key() == key {
			out = append(out, row)
		}
	}
	return out, nil
}

func (m *memNotifications) ListDue(ctx context.Context, from, to time.Time) ([]domain.Notification, error) {
	var out []domain.Notification
	for _, row := range m.all() {
		if row.SentAt == nil && !row.ScheduledAt.Before(from) && !row.ScheduledAt.After(to) {
			out = append(out, row)
		}
	}
	return out, nil
}

func (m *memNotifications) Claim(ctx context.Context, id int32, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return false, repository.ErrNotFound
	}
	if row.SentAt != nil {
		return false, nil
	}
	row.SentAt = &at
	m.rows[id] = row
	return true, nil
}

func (m *memNotifications) MarkDispatched(ctx context.Context, n *domain.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[n.ID]
	if !ok {
		return repository.ErrNotFound
	}
	row.SentAt = n.SentAt
	row.EmailSent = n.EmailSent
	row.EmailMessageID = n.EmailMessageID
	row.EmailError = n.EmailError
	m.rows[n.ID] = row
	return nil
}

func (m *memNotifications) DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var deleted int64
	for id, row := range m.rows {
		if row.IsRead && row.CreatedAt.Before(cutoff) {
			delete(m.rows, id)
			deleted++
		}
	}
	return deleted, nil
}

func (m *memNotifications) markRead(id int32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row := m.rows[id]
	row.IsRead = true
	m.rows[id] = row
}

func (m *memNotifications) all() []domain.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Notification, 0, len(m.rows))
	for _, row := range m.rows {
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// blindNotifications never finds an existing row, leaving the unique key as
// the only guard against a second insert.
type blindNotifications struct {
	*memNotifications
}

func (blindNotifications) ListByKey(ctx context.Context, key domain.NotificationKey) ([]domain.Notification, error) {
	return nil, nil
}

// failingCreates fails the next remaining Create calls.
type failingCreates struct {
	*memNotifications
	mu        sync.Mutex
	remaining int
}

func (f *failingCreates) Create(ctx context.Context, n *domain.Notification) error {
	f.mu.Lock()
	if f.remaining > 0 {
		f.remaining--
		f.mu.Unlock()
		return errors.New("connection reset")
	}
	f.mu.Unlock()
	return f.memNotifications.Create(ctx, n)
}

type memUsers map[int32]domain.Customer

func (m memUsers) GetByID(ctx context.Context, id int32) (*domain.Customer, error) {
	c, ok := m[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &c, nil
}

type memPreferences map[int32]domain.UserPreference

func (m memPreferences) GetPreferences(ctx context.Context, userID int32) (domain.UserPreference, error) {
	if pref, ok := m[userID]; ok {
		return pref, nil
	}
	return domain.UserPreference{UserID: userID, ReminderOffsets: []int{3, 1}, EmailEnabled: true}, nil
}

type recordingSender struct {
	mu   sync.Mutex
	sent []service.Message
}

func (s *recordingSender) Deliver(ctx context.Context, msg service.Message) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg)
	return "msg-" + msg.To, nil
}

func (s *recordingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

// interleavingSender runs hook once, on its first delivery, before recording
// the message.
type interleavingSender struct {
	recordingSender
	once sync.Once
	hook func()
}

func (s *interleavingSender) Deliver(ctx context.Context, msg service.Message) (string, error) {
	s.once.Do(s.hook)
	return s.recordingSender.Deliver(ctx, msg)
}

type panickingEmail struct{}

func (panickingEmail) Send(ctx context.Context, to string, kind domain.NotificationType, data service.TemplateData) service.SendResult {
	panic("smtp exploded")
}

type harness struct {
	now           time.Time
	cfg           *config.Config
	rentals       *memRentals
	invoices      *memInvoices
	notifications *memNotifications
	users         memUsers
	prefs         memPreferences
	sender        *recordingSender
	services      *Services
	// notificationRepo replaces notifications in repos() when set.
	notificationRepo repository.NotificationRepository
}

func newHarness(t *testing.T, now time.Time) *harness {
	t.Helper()
	cfg := &config.Config{
		LateFee:      config.LateFeeConfig{DailyRateCents: 500, MaxRetries: 3},
		Reminder:     config.ReminderConfig{DefaultOffsets: []int{3, 1}, LookaheadDays: 1},
		Notification: config.NotificationConfig{LookbackMinutes: 60, RetentionDays: 90},
		Jobs:         config.JobsConfig{Workers: 4},
	}
	h := &harness{
		now:           now,
		cfg:           cfg,
		rentals:       &memRentals{},
		invoices:      newMemInvoices(),
		notifications: newMemNotifications(),
		users:         memUsers{},
		prefs:         memPreferences{},
		sender:        &recordingSender{},
	}
	h.services = &Services{
		Email:       service.NewEmailService(h.sender, 1000),
		Preferences: h.prefs,
	}
	return h
}

func (h *harness) repos() Repositories {
	var notifications repository.NotificationRepository = h.notifications
	if h.notificationRepo != nil {
		notifications = h.notificationRepo
	}
	return Repositories{
		Rentals:       h.rentals,
		Invoices:      h.invoices,
		Notifications: notifications,
		Users:         h.users,
	}
}

func (h *harness) runner() *JobRunner {
	return NewJobRunner(h.repos(), h.services, h.cfg, clock.Fixed(h.now))
}

func (h *harness) dispatcher() *Dispatcher {
	return NewDispatcher(h.repos(), h.services, clock.Fixed(h.now), h.cfg.Jobs.Workers)
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
