package service_test

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	appErrors "github.com/unclebandit/mailcampaign/internal/errors"
	"github.com/unclebandit/mailcampaign/internal/mailer"
	"github.com/unclebandit/mailcampaign/internal/model"
	"github.com/unclebandit/mailcampaign/internal/repository"
	"github.com/unclebandit/mailcampaign/internal/service"
)

// MockCampaignRepo is an in-memory progress sink that checks the counter
// invariants on every write.
type MockCampaignRepo struct {
	mu         sync.Mutex
	records    map[string]*model.Campaign
	history    map[string][]model.Status
	violations []string
	maxSeq     int64

	CreateErr   error
	UpdateErr   error
	FailUpdates int // fail this many upcoming writes, then recover
	panicOnce   bool
	PanicAt     int // panic on the first write with this processed count, once
	updateCalls int
}

func NewMockCampaignRepo() *MockCampaignRepo {
	return &MockCampaignRepo{
		records: make(map[string]*model.Campaign),
		history: make(map[string][]model.Status),
		PanicAt: -1,
	}
}

func (m *MockCampaignRepo) CreateRecord(_ context.Context, c *model.Campaign) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateErr != nil {
		return m.CreateErr
	}
	c.Status = model.StatusQueued
	rec := *c
	m.records[c.ID] = &rec
	m.history[c.ID] = []model.Status{model.StatusQueued}
	if c.Seq > m.maxSeq {
		m.maxSeq = c.Seq
	}
	return nil
}

func (m *MockCampaignRepo) UpdateStats(_ context.Context, id string, st model.Stats) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateCalls++

	if m.PanicAt >= 0 && st.Processed == m.PanicAt && !m.panicOnce {
		m.panicOnce = true
		panic("sink exploded")
	}
	if m.UpdateErr != nil {
		return m.UpdateErr
	}
	if m.FailUpdates > 0 {
		m.FailUpdates--
		return appErrors.NewStorage("update campaign stats", errors.New("connection reset"))
	}

	rec, ok := m.records[id]
	if !ok {
		return appErrors.NewCampaignNotFound(id)
	}
	if st.Sent+st.Failed != st.Processed || st.Processed > rec.Total {
		m.violations = append(m.violations, fmt.Sprintf("%s: sent %d failed %d processed %d total %d", id, st.Sent, st.Failed, st.Processed, rec.Total))
	}
	if st.Processed < rec.Processed || st.Sent < rec.Sent || st.Failed < rec.Failed {
		m.violations = append(m.violations, fmt.Sprintf("%s: counters went backwards", id))
	}
	if rec.Status.Terminal() {
		m.violations = append(m.violations, fmt.Sprintf("%s: write after terminal %s", id, rec.Status))
	}
	if st.Status != rec.Status {
		if !rec.Status.CanTransition(st.Status) {
			m.violations = append(m.violations, fmt.Sprintf("%s: %s -> %s", id, rec.Status, st.Status))
		}
		m.history[id] = append(m.history[id], st.Status)
	}

	rec.Status = st.Status
	rec.Processed, rec.Sent, rec.Failed = st.Processed, st.Sent, st.Failed
	rec.Delivered, rec.Bounced = st.Delivered, st.Bounced
	rec.LastError = st.LastError
	now := time.Now()
	rec.UpdatedAt = &now
	return nil
}

func (m *MockCampaignRepo) SetStatus(_ context.Context, id, username string, status model.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok || rec.Username != username {
		return appErrors.NewCampaignNotFound(id)
	}
	if !rec.Status.Terminal() {
		rec.Status = status
		m.history[id] = append(m.history[id], status)
	}
	return nil
}

func (m *MockCampaignRepo) ReadRecord(_ context.Context, id, username string) (*model.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok || rec.Username != username {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	c := *rec
	return &c, nil
}

func (m *MockCampaignRepo) ListRecords(_ context.Context, username string) ([]*model.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*model.Campaign{}
	for _, rec := range m.records {
		if rec.Username == username {
			c := *rec
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].Seq > out[j].Seq
	})
	return out, nil
}

func (m *MockCampaignRepo) MaxSequence(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxSeq, nil
}

func (m *MockCampaignRepo) StopOrphaned(_ context.Context, reason string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, rec := range m.records {
		if !rec.Status.Terminal() {
			rec.Status = model.StatusStopped
			msg := reason
			rec.LastError = &msg
			m.history[id] = append(m.history[id], model.StatusStopped)
			n++
		}
	}
	return n, nil
}

func (m *MockCampaignRepo) seed(c model.Campaign) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[c.ID] = &c
	if c.Seq > m.maxSeq {
		m.maxSeq = c.Seq
	}
}

func (m *MockCampaignRepo) record(id string) model.Campaign {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.records[id]
}

func (m *MockCampaignRepo) statuses(id string) []model.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Status(nil), m.history[id]...)
}

func (m *MockCampaignRepo) invariantViolations() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.violations...)
}

func (m *MockCampaignRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

// MockProfileRepo keeps profiles per owner.
type MockProfileRepo struct {
	mu       sync.Mutex
	profiles []*model.Profile
}

func (m *MockProfileRepo) Save(_ context.Context, p *model.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	cp := *p
	m.profiles = append(m.profiles, &cp)
	return nil
}

func (m *MockProfileRepo) List(_ context.Context, owner string) ([]*model.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*model.Profile{}
	for i := len(m.profiles) - 1; i >= 0; i-- {
		if m.profiles[i].Owner == owner {
			cp := *m.profiles[i]
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MockProfileRepo) Get(_ context.Context, owner, id string) (*model.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.profiles {
		if p.ID == id && p.Owner == owner {
			cp := *p
			return &cp, nil
		}
	}
	return nil, appErrors.NewProfileNotFound(id)
}

type sendCall struct {
	msg mailer.Message
	at  time.Time
}

// MockSender records every call. OnSend runs before the outcome is decided
// and may return an error for that call.
type MockSender struct {
	mu     sync.Mutex
	calls  []sendCall
	OnSend func(n int, msg mailer.Message) error
}

func (s *MockSender) Send(_ context.Context, msg mailer.Message) error {
	s.mu.Lock()
	s.calls = append(s.calls, sendCall{msg: msg, at: time.Now()})
	n := len(s.calls)
	hook := s.OnSend
	s.mu.Unlock()

	if hook != nil {
		return hook(n, msg)
	}
	return nil
}

func (s *MockSender) Calls() []sendCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sendCall(nil), s.calls...)
}

// recordingQueue captures published events synchronously.
type recordingQueue struct {
	mu     sync.Mutex
	events []model.CampaignEvent
}

func (q *recordingQueue) Publish(_ string, payload any) error {
	ev, ok := payload.(model.CampaignEvent)
	if !ok {
		return errors.New("unexpected payload")
	}
	q.mu.Lock()
	q.events = append(q.events, ev)
	q.mu.Unlock()
	return nil
}

func (q *recordingQueue) Subscribe(string, func(any) error) error { return nil }

func (q *recordingQueue) statuses(campaignID string) []model.Status {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []model.Status
	for _, ev := range q.events {
		if ev.CampaignID == campaignID {
			out = append(out, ev.Status)
		}
	}
	return out
}

var (
	_ repository.CampaignRepositoryInterface = (*MockCampaignRepo)(nil)
	_ repository.ProfileRepositoryInterface  = (*MockProfileRepo)(nil)
	_ mailer.Sender                          = (*MockSender)(nil)
)

type fixture struct {
	svc      *service.CampaignService
	repo     *MockCampaignRepo
	profiles *MockProfileRepo
	sender   *MockSender
	events   *recordingQueue
}

func newFixture(t *testing.T, paceUnit time.Duration, configure ...func(*MockCampaignRepo)) *fixture {
	t.Helper()

	f := &fixture{
		repo:     NewMockCampaignRepo(),
		profiles: &MockProfileRepo{},
		sender:   &MockSender{},
		events:   &recordingQueue{},
	}
	for _, c := range configure {
		c(f.repo)
	}

	svc, err := service.NewCampaignService(context.Background(), service.Options{
		CampaignRepo: f.repo,
		ProfileRepo:  f.profiles,
		Sender:       f.sender,
		Queue:        f.events,
		Logger:       zap.NewNop(),
		PaceUnit:     paceUnit,
		WriteTimeout: time.Second,
	})
	require.NoError(t, err)
	f.svc = svc

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, svc.Shutdown(ctx))
	})
	return f
}

func (f *fixture) wait(t *testing.T, campaignID string) {
	t.Helper()
	select {
	case <-f.svc.Done(campaignID):
	case <-time.After(10 * time.Second):
		t.Fatalf("campaign %s did not finish", campaignID)
	}
}

func testIdentity() *model.SenderIdentity {
	return &model.SenderIdentity{Host: "smtp.example.com", Port: 587, Username: "news", Password: "secret", FromEmail: "news@example.com"}
}

func recipients(n int) []model.Recipient {
	out := make([]model.Recipient, n)
	for i := range out {
		out[i] = model.Recipient{Name: fmt.Sprintf("User %d", i+1), Email: fmt.Sprintf("user%d@example.com", i+1)}
	}
	return out
}
