package queue

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/unclebandit/mailcampaign/internal/model"
)

// TopicCampaignEvents carries model.CampaignEvent values.
const TopicCampaignEvents = "campaign_events"

// Queue interface
type Queue interface {
	Publish(topic string, payload any) error
	Subscribe(topic string, handler func(payload any) error) error
}

// InMemoryQueue delivers to in-process subscribers with bounded retry.
type InMemoryQueue struct {
	mu       sync.Mutex
	handlers map[string][]func(payload any) error
	inflight sync.WaitGroup
	logger   *zap.Logger

	MaxRetries int
	Backoff    time.Duration
}

// NewInMemoryQueue creates a new queue
func NewInMemoryQueue(logger *zap.Logger) *InMemoryQueue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InMemoryQueue{
		handlers:   make(map[string][]func(payload any) error),
		logger:     logger,
		MaxRetries: 3,
		Backoff:    500 * time.Millisecond,
	}
}

// JobPayload wraps a message payload with retry info
type JobPayload struct {
	Topic      string
	Payload    any
	RetryCount int
	MaxRetries int
}

// Publish sends a message to all subscribers
func (q *InMemoryQueue) Publish(topic string, payload any) error {
	q.mu.Lock()
	handlers := q.handlers[topic]
	q.mu.Unlock()

	if len(handlers) == 0 {
		return fmt.Errorf("no subscribers for topic %s", topic)
	}

	for _, handler := range handlers {
		job := JobPayload{
			Topic:      topic,
			Payload:    payload,
			MaxRetries: q.MaxRetries,
		}
		q.inflight.Add(1)
		go q.processJob(handler, job)
	}

	return nil
}

// processJob handles retries and errors
func (q *InMemoryQueue) processJob(handler func(payload any) error, job JobPayload) {
	defer q.inflight.Done()

	for {
		err := handler(job.Payload)
		if err == nil {
			return
		}

		job.RetryCount++
		if job.RetryCount > job.MaxRetries {
			q.logger.Error("job permanently failed",
				zap.String("topic", job.Topic), zap.Int("attempts", job.RetryCount), zap.Error(err))
			return
		}
		q.logger.Warn("job failed, retrying",
			zap.String("topic", job.Topic), zap.Int("attempt", job.RetryCount), zap.Error(err))

		time.Sleep(time.Duration(job.RetryCount) * q.Backoff)
	}
}

// Subscribe adds a handler for a topic
func (q *InMemoryQueue) Subscribe(topic string, handler func(payload any) error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.handlers[topic] = append(q.handlers[topic], handler)
	return nil
}

// Wait blocks until every published job has been handled.
func (q *InMemoryQueue) Wait() {
	q.inflight.Wait()
}

// DecodeEvent accepts the payload shapes produced by both queue
// implementations: the value itself in process, JSON bytes over AMQP.
func DecodeEvent(payload any) (model.CampaignEvent, error) {
	switch v := payload.(type) {
	case model.CampaignEvent:
		return v, nil
	case *model.CampaignEvent:
		if v == nil {
			return model.CampaignEvent{}, fmt.Errorf("nil campaign event")
		}
		return *v, nil
	case []byte:
		var ev model.CampaignEvent
		if err := json.Unmarshal(v, &ev); err != nil {
			return model.CampaignEvent{}, fmt.Errorf("decode campaign event: %w", err)
		}
		return ev, nil
	}
	return model.CampaignEvent{}, fmt.Errorf("unexpected payload type %T", payload)
}

// LogEvents subscribes a handler that writes every campaign event to logger.
func LogEvents(q Queue, logger *zap.Logger) error {
	return q.Subscribe(TopicCampaignEvents, func(payload any) error {
		ev, err := DecodeEvent(payload)
		if err != nil {
			logger.Warn("dropping malformed campaign event", zap.Error(err))
			return nil
		}
		fields := []zap.Field{
			zap.String("campaign_id", ev.CampaignID),
			zap.String("username", ev.Username),
			zap.String("status", string(ev.Status)),
			zap.Int("processed", ev.Processed),
			zap.Int("total", ev.Total),
			zap.Int("sent", ev.Sent),
			zap.Int("failed", ev.Failed),
		}
		if ev.LastError != nil {
			fields = append(fields, zap.String("last_error", *ev.LastError))
		}
		logger.Info("campaign event", fields...)
		return nil
	})
}
