package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/unclebandit/mailcampaign/internal/mailer"
	"github.com/unclebandit/mailcampaign/internal/model"
	"github.com/unclebandit/mailcampaign/internal/queue"
	"github.com/unclebandit/mailcampaign/internal/repository"
)

// campaignRun is the working copy of one campaign plus its stop token.
// campaign is owned by the execution task; everyone else reads snapshot.
type campaignRun struct {
	campaign   model.Campaign
	htmlBody   string
	identity   model.SenderIdentity
	recipients []model.Recipient
	interval   time.Duration

	stopCtx context.Context
	stop    context.CancelFunc
	done    chan struct{}

	mu       sync.RWMutex
	snapshot model.Campaign

	// terminal state reached the sink
	persisted bool
}

func newCampaignRun(c model.Campaign, htmlBody string, identity model.SenderIdentity, recipients []model.Recipient, interval time.Duration) *campaignRun {
	stopCtx, stop := context.WithCancel(context.Background())
	return &campaignRun{
		campaign:   c,
		htmlBody:   htmlBody,
		identity:   identity,
		recipients: recipients,
		interval:   interval,
		stopCtx:    stopCtx,
		stop:       stop,
		done:       make(chan struct{}),
		snapshot:   c,
	}
}

func (r *campaignRun) Snapshot() model.Campaign {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshot
}

func (r *campaignRun) requestStop() {
	r.stop()
}

func (r *campaignRun) stopRequested() bool {
	return r.stopCtx.Err() != nil
}

func (r *campaignRun) publishSnapshot() {
	r.mu.Lock()
	r.snapshot = r.campaign
	r.mu.Unlock()
}

// pause waits one pacing interval. A stop request cuts the wait short; the
// next boundary check then ends the loop.
func (r *campaignRun) pause() {
	if r.interval <= 0 {
		return
	}
	t := time.NewTimer(r.interval)
	defer t.Stop()
	select {
	case <-t.C:
	case <-r.stopCtx.Done():
	}
}

// Worker executes campaigns, one goroutine per campaign.
type Worker struct {
	Sink         repository.CampaignRepositoryInterface
	Sender       mailer.Sender
	Queue        queue.Queue
	Logger       *zap.Logger
	WriteTimeout time.Duration
}

// Constructor
func NewWorker(sink repository.CampaignRepositoryInterface, sender mailer.Sender, q queue.Queue, logger *zap.Logger, writeTimeout time.Duration) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	return &Worker{
		Sink:         sink,
		Sender:       sender,
		Queue:        q,
		Logger:       logger,
		WriteTimeout: writeTimeout,
	}
}

// Execute walks the recipient list in order until it is exhausted or a stop
// is observed at a recipient boundary. ctx bounds sends and sink writes; it
// is not the stop signal.
func (w *Worker) Execute(ctx context.Context, run *campaignRun) {
	defer close(run.done)
	defer w.recoverTask(ctx, run)

	w.transition(ctx, run, model.StatusRunning)

	last := len(run.recipients) - 1
	for i, rcpt := range run.recipients {
		if run.stopRequested() {
			break
		}

		w.attempt(ctx, run, i, rcpt)
		w.persist(ctx, run)

		if i < last {
			run.pause()
		}
	}

	final := model.StatusFinished
	if run.stopRequested() {
		final = model.StatusStopped
	}
	w.transition(ctx, run, final)
}

func (w *Worker) attempt(ctx context.Context, run *campaignRun, index int, rcpt model.Recipient) {
	c := &run.campaign
	msg := mailer.Message{
		Identity: run.identity,
		To:       rcpt,
		Subject:  c.Subject,
		HTMLBody: RenderTemplate(run.htmlBody, rcpt),
	}

	if err := w.send(ctx, msg); err != nil {
		c.Failed++
		c.Bounced++
		desc := err.Error()
		c.LastError = &desc
		w.Logger.Warn("recipient send failed",
			zap.String("campaign_id", c.ID), zap.Int("index", index), zap.Error(err))
	} else {
		c.Sent++
		c.Delivered++
	}
	c.Processed++
	run.publishSnapshot()
}

// send turns a panicking channel into an ordinary per-recipient failure.
func (w *Worker) send(ctx context.Context, msg mailer.Message) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("send channel panic: %v", p)
		}
	}()
	return w.Sender.Send(ctx, msg)
}

// persist pushes the current counters. Failures are logged and the loop
// carries on; the in-memory copy stays authoritative until the next write.
func (w *Worker) persist(ctx context.Context, run *campaignRun) bool {
	wctx, cancel := context.WithTimeout(ctx, w.WriteTimeout)
	defer cancel()

	if err := w.Sink.UpdateStats(wctx, run.campaign.ID, run.campaign.Stats()); err != nil {
		w.Logger.Error("progress write failed",
			zap.String("campaign_id", run.campaign.ID),
			zap.String("status", string(run.campaign.Status)),
			zap.Int("processed", run.campaign.Processed),
			zap.Error(err))
		return false
	}
	return true
}

func (w *Worker) transition(ctx context.Context, run *campaignRun, to model.Status) {
	from := run.campaign.Status
	if !from.CanTransition(to) {
		w.Logger.Error("rejected status transition",
			zap.String("campaign_id", run.campaign.ID), zap.String("from", string(from)), zap.String("to", string(to)))
		return
	}

	run.campaign.Status = to
	run.publishSnapshot()
	ok := w.persist(ctx, run)
	if to.Terminal() {
		run.persisted = ok
	}

	w.Logger.Info("campaign status changed",
		zap.String("campaign_id", run.campaign.ID),
		zap.String("status", string(to)),
		zap.Int("processed", run.campaign.Processed),
		zap.Int("total", run.campaign.Total))
	publishEvent(w.Queue, w.Logger, run.campaign)
}

// recoverTask keeps a crashed task from leaving its campaign in running.
func (w *Worker) recoverTask(ctx context.Context, run *campaignRun) {
	p := recover()
	if p == nil {
		return
	}
	w.Logger.Error("campaign task crashed",
		zap.String("campaign_id", run.campaign.ID), zap.Any("panic", p), zap.Stack("stack"))

	msg := fmt.Sprintf("internal error: %v", p)
	run.campaign.LastError = &msg
	if !run.campaign.Status.Terminal() {
		run.campaign.Status = model.StatusStopped
	}
	run.publishSnapshot()
	run.persisted = w.persist(ctx, run)
	publishEvent(w.Queue, w.Logger, run.campaign)
}

func publishEvent(q queue.Queue, logger *zap.Logger, c model.Campaign) {
	if q == nil {
		return
	}
	if err := q.Publish(queue.TopicCampaignEvents, model.NewCampaignEvent(c, time.Now())); err != nil {
		logger.Debug("campaign event not published",
			zap.String("campaign_id", c.ID), zap.String("status", string(c.Status)), zap.Error(err))
	}
}
