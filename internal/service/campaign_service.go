// internal/service/campaign_service.go
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/unclebandit/mailcampaign/internal/errors"
	"github.com/unclebandit/mailcampaign/internal/mailer"
	"github.com/unclebandit/mailcampaign/internal/model"
	"github.com/unclebandit/mailcampaign/internal/queue"
	"github.com/unclebandit/mailcampaign/internal/repository"
)

// InterruptedReason is recorded on campaigns that had no live task after a restart.
const InterruptedReason = "interrupted: service restarted"

type Options struct {
	CampaignRepo repository.CampaignRepositoryInterface
	ProfileRepo  repository.ProfileRepositoryInterface
	Sender       mailer.Sender
	// Queue receives lifecycle events; nil disables them.
	Queue  queue.Queue
	Logger *zap.Logger

	// PaceUnit is the window speed_per_minute refers to. Defaults to a minute.
	PaceUnit     time.Duration
	WriteTimeout time.Duration
	Now          func() time.Time
}

// CampaignService owns the registry of live campaigns. Each submitted
// campaign gets one execution goroutine that lives until it finishes or stops.
type CampaignService struct {
	CampaignRepo repository.CampaignRepositoryInterface
	ProfileRepo  repository.ProfileRepositoryInterface
	Queue        queue.Queue

	worker   *Worker
	logger   *zap.Logger
	paceUnit time.Duration
	now      func() time.Time

	seq atomic.Int64

	mu     sync.RWMutex
	runs   map[string]*campaignRun
	closed bool
	tasks  sync.WaitGroup
}

type SubmitRequest struct {
	Owner    string
	Subject  string
	HTMLBody string
	// Sender is used as is; otherwise ProfileID is resolved under Owner.
	Sender         *model.SenderIdentity
	ProfileID      string
	SpeedPerMinute int
	Recipients     []model.Recipient
}

type SubmitResult struct {
	CampaignID string
	Total      int
}

// NewCampaignService seeds the id sequence from the sink so ids are never
// reused across restarts.
func NewCampaignService(ctx context.Context, opts Options) (*CampaignService, error) {
	if opts.CampaignRepo == nil || opts.Sender == nil {
		return nil, errors.New("campaign service: campaign repository and sender are required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	paceUnit := opts.PaceUnit
	if paceUnit <= 0 {
		paceUnit = time.Minute
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	s := &CampaignService{
		CampaignRepo: opts.CampaignRepo,
		ProfileRepo:  opts.ProfileRepo,
		Queue:        opts.Queue,
		worker:       NewWorker(opts.CampaignRepo, opts.Sender, opts.Queue, logger, opts.WriteTimeout),
		logger:       logger,
		paceUnit:     paceUnit,
		now:          now,
		runs:         make(map[string]*campaignRun),
	}

	seq, err := opts.CampaignRepo.MaxSequence(ctx)
	if err != nil {
		return nil, fmt.Errorf("seed campaign sequence: %w", err)
	}
	s.seq.Store(seq)
	return s, nil
}

// Reconcile stops durable records left queued or running by a previous
// process. Call it before the first Submit.
func (s *CampaignService) Reconcile(ctx context.Context) (int64, error) {
	n, err := s.CampaignRepo.StopOrphaned(ctx, InterruptedReason)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Warn("stopped campaigns interrupted by restart", zap.Int64("count", n))
	}
	return n, nil
}

// Pacing interval between consecutive sends. Speeds below 1 are clamped to 1.
func (s *CampaignService) Interval(speedPerMinute int) time.Duration {
	if speedPerMinute < 1 {
		speedPerMinute = 1
	}
	return s.paceUnit / time.Duration(speedPerMinute)
}

// Submit validates the request, writes the queued record and starts the
// execution task. Nothing is registered when it returns an error.
func (s *CampaignService) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	if s.isClosed() {
		return nil, appErrors.ErrShuttingDown
	}
	if strings.TrimSpace(req.Owner) == "" {
		return nil, appErrors.NewValidation("owner", "owner is required")
	}
	if len(req.Recipients) == 0 {
		return nil, appErrors.NewValidation("recipients", "no valid contacts")
	}
	for i, r := range req.Recipients {
		if strings.TrimSpace(r.Email) == "" {
			return nil, appErrors.NewValidation("recipients", fmt.Sprintf("recipient %d has no email", i+1))
		}
	}

	identity, err := s.resolveIdentity(ctx, req)
	if err != nil {
		return nil, err
	}

	recipients := make([]model.Recipient, len(req.Recipients))
	copy(recipients, req.Recipients)

	seq := s.seq.Add(1)
	c := &model.Campaign{
		ID:        fmt.Sprintf("%s-%d", req.Owner, seq),
		Seq:       seq,
		Username:  req.Owner,
		Subject:   req.Subject,
		Total:     len(recipients),
		CreatedAt: s.now(),
	}
	if err := s.CampaignRepo.CreateRecord(ctx, c); err != nil {
		if !errors.Is(err, appErrors.ErrStorageUnavailable) {
			err = appErrors.NewStorage("create campaign record", err)
		}
		return nil, err
	}

	run := newCampaignRun(*c, req.HTMLBody, identity, recipients, s.Interval(req.SpeedPerMinute))

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		if err := s.CampaignRepo.SetStatus(ctx, c.ID, c.Username, model.StatusStopped); err != nil {
			s.logger.Error("failed to stop campaign submitted during shutdown", zap.String("campaign_id", c.ID), zap.Error(err))
		}
		return nil, appErrors.ErrShuttingDown
	}
	s.runs[c.ID] = run
	s.tasks.Add(1)
	s.mu.Unlock()

	s.logger.Info("campaign submitted",
		zap.String("campaign_id", c.ID),
		zap.String("username", c.Username),
		zap.Int("total", c.Total),
		zap.Duration("interval", run.interval))
	publishEvent(s.Queue, s.logger, run.campaign)

	go func() {
		defer s.tasks.Done()
		s.worker.Execute(context.Background(), run)
		s.release(run)
	}()

	return &SubmitResult{CampaignID: c.ID, Total: c.Total}, nil
}

func (s *CampaignService) resolveIdentity(ctx context.Context, req SubmitRequest) (model.SenderIdentity, error) {
	var identity model.SenderIdentity
	switch {
	case req.Sender != nil:
		identity = *req.Sender
	case req.ProfileID != "":
		if s.ProfileRepo == nil {
			return identity, appErrors.NewValidation("profile_id", "profiles are not available")
		}
		p, err := s.ProfileRepo.Get(ctx, req.Owner, req.ProfileID)
		if err != nil {
			if errors.Is(err, appErrors.ErrNotFound) {
				return identity, appErrors.NewValidation("profile_id", "unknown sender profile")
			}
			return identity, err
		}
		identity = p.Sender
	default:
		return identity, appErrors.NewValidation("sender", "sender identity or profile_id is required")
	}

	if err := identity.Validate(); err != nil {
		return identity, err
	}
	return identity, nil
}

// Terminal writes the sink missed are retried this many times before the
// run is kept in memory as the only record of its final state.
const (
	terminalWriteAttempts = 3
	terminalWriteBackoff  = 50 * time.Millisecond
)

// release drops a finished run from the registry once its terminal state is
// durable. Until then the live snapshot keeps answering status queries.
func (s *CampaignService) release(run *campaignRun) {
	for attempt := 1; !run.persisted && attempt <= terminalWriteAttempts; attempt++ {
		time.Sleep(time.Duration(attempt) * terminalWriteBackoff)
		run.persisted = s.worker.persist(context.Background(), run)
	}
	if !run.persisted {
		s.logger.Error("terminal state not persisted, keeping live snapshot",
			zap.String("campaign_id", run.campaign.ID),
			zap.String("status", string(run.campaign.Status)),
			zap.Int("attempts", terminalWriteAttempts))
		return
	}
	s.mu.Lock()
	delete(s.runs, run.campaign.ID)
	s.mu.Unlock()
}

func (s *CampaignService) lookup(campaignID string) (*campaignRun, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[campaignID]
	return run, ok
}

// GetStatus prefers the live snapshot and falls back to the durable record.
// Campaigns of other owners are reported as not found.
func (s *CampaignService) GetStatus(ctx context.Context, owner, campaignID string) (*model.Campaign, error) {
	if run, ok := s.lookup(campaignID); ok {
		snap := run.Snapshot()
		if snap.Username != owner {
			return nil, appErrors.NewCampaignNotFound(campaignID)
		}
		return &snap, nil
	}
	return s.CampaignRepo.ReadRecord(ctx, campaignID, owner)
}

// RequestStop is idempotent and a no-op on terminal campaigns. A live task
// observes the request at its next recipient boundary.
func (s *CampaignService) RequestStop(ctx context.Context, owner, campaignID string) error {
	if run, ok := s.lookup(campaignID); ok {
		if run.Snapshot().Username != owner {
			return appErrors.NewCampaignNotFound(campaignID)
		}
		run.requestStop()
		s.logger.Info("stop requested", zap.String("campaign_id", campaignID), zap.String("username", owner))
		return nil
	}
	return s.CampaignRepo.SetStatus(ctx, campaignID, owner, model.StatusStopped)
}

// List returns the owner's campaigns newest first, with live counters for
// campaigns that are still executing.
func (s *CampaignService) List(ctx context.Context, owner string) ([]model.Campaign, error) {
	records, err := s.CampaignRepo.ListRecords(ctx, owner)
	if err != nil {
		return nil, err
	}

	campaigns := make([]model.Campaign, len(records))
	for i, rec := range records {
		campaigns[i] = *rec
		if run, ok := s.lookup(rec.ID); ok {
			if snap := run.Snapshot(); snap.Username == owner {
				snap.UpdatedAt = rec.UpdatedAt
				campaigns[i] = snap
			}
		}
	}
	return campaigns, nil
}

// Done is closed once the campaign's task has returned. Campaigns without a
// live task get an already closed channel.
func (s *CampaignService) Done(campaignID string) <-chan struct{} {
	if run, ok := s.lookup(campaignID); ok {
		return run.done
	}
	ch := make(chan struct{})
	close(ch)
	return ch
}

// Active returns the number of live campaigns.
func (s *CampaignService) Active() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, run := range s.runs {
		if !run.Snapshot().Status.Terminal() {
			n++
		}
	}
	return n
}

func (s *CampaignService) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// Shutdown rejects new submissions, asks every live campaign to stop and
// waits for the tasks until ctx expires.
func (s *CampaignService) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	for _, run := range s.runs {
		run.requestStop()
	}
	live := len(s.runs)
	s.mu.Unlock()

	s.logger.Info("waiting for campaign tasks", zap.Int("live", live))

	done := make(chan struct{})
	go func() {
		s.tasks.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("campaign shutdown: %w", ctx.Err())
	}
}

// SaveProfile stores a sender identity under owner and returns its id.
func (s *CampaignService) SaveProfile(ctx context.Context, owner string, p *model.Profile) (string, error) {
	if s.ProfileRepo == nil {
		return "", errors.New("profile repository not configured")
	}
	if strings.TrimSpace(p.Name) == "" {
		return "", appErrors.NewValidation("name", "profile name is required")
	}
	if err := p.Sender.Validate(); err != nil {
		return "", err
	}
	p.Owner = owner
	if err := s.ProfileRepo.Save(ctx, p); err != nil {
		return "", err
	}
	s.logger.Info("sender profile saved", zap.String("profile_id", p.ID), zap.String("username", owner))
	return p.ID, nil
}

func (s *CampaignService) ListProfiles(ctx context.Context, owner string) ([]*model.Profile, error) {
	if s.ProfileRepo == nil {
		return []*model.Profile{}, nil
	}
	return s.ProfileRepo.List(ctx, owner)
}

func (s *CampaignService) GetProfile(ctx context.Context, owner, profileID string) (*model.Profile, error) {
	if s.ProfileRepo == nil {
		return nil, appErrors.NewProfileNotFound(profileID)
	}
	return s.ProfileRepo.Get(ctx, owner, profileID)
}
