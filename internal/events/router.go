package events

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/aioutlet/product-service/internal/catalog"
)

// Router errors.
var (
	// ErrRouteTopicEmpty is returned when a route has no topic.
	ErrRouteTopicEmpty = errors.New("route topic cannot be empty")

	// ErrRouteHandlerNil is returned when a route has no handler.
	ErrRouteHandlerNil = errors.New("route handler cannot be nil")

	// ErrRouteDuplicate is returned when a topic is registered twice.
	ErrRouteDuplicate = errors.New("route already registered for topic")

	// ErrRouterStarted is returned when routes are registered after Start.
	ErrRouterStarted = errors.New("router already started")
)

// Outcome classifies the result of dispatching one inbound event.
type Outcome string

// Outcome values map to broker signals: SUCCESS commits, RETRY redelivers,
// DROP commits after recording the event to the dead letter log.
const (
	OutcomeSuccess Outcome = "SUCCESS"
	OutcomeRetry   Outcome = "RETRY"
	OutcomeDrop    Outcome = "DROP"
)

// ClassifyOutcome maps a handler error to its broker signal. Transient store
// failures and deadline expiries are retried; everything else is permanent.
func ClassifyOutcome(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeSuccess
	case catalog.IsTransient(err):
		return OutcomeRetry
	default:
		return OutcomeDrop
	}
}

type (
	// HandlerFunc processes one decoded inbound envelope. The returned error
	// decides the broker signal via ClassifyOutcome.
	HandlerFunc func(ctx context.Context, envelope *Envelope, correlationID string) error

	// Route binds an inbound topic to a named handler. Name is the internal
	// route identifier surfaced by discovery.
	Route struct {
		Topic   string
		Name    string
		Handler HandlerFunc
	}

	// RouteInfo is the discovery view of a registered route.
	RouteInfo struct {
		Topic string `json:"topic"`
		Name  string `json:"name"`
	}

	// DeadLetter captures an event that was dropped, with enough context to
	// replay it by hand.
	DeadLetter struct {
		Topic         string
		EventID       string
		EventType     string
		CorrelationID string
		Payload       []byte
		Reason        string
	}

	// DeadLetterStore records dropped events.
	DeadLetterStore interface {
		RecordDeadLetter(ctx context.Context, entry DeadLetter) error
	}

	// Router subscribes one consumer-group reader per registered topic and
	// dispatches each delivered envelope to its handler.
	Router struct {
		cfg         *Config
		deadLetters DeadLetterStore
		logger      *slog.Logger

		routes map[string]Route
		order  []string

		readers   []*kafka.Reader
		started   bool
		wg        sync.WaitGroup
		cancel    context.CancelFunc
		closeOnce sync.Once
	}
)

// NewRouter creates a router with no routes registered.
func NewRouter(cfg *Config, deadLetters DeadLetterStore, logger *slog.Logger) *Router {
	return &Router{
		cfg:         cfg,
		deadLetters: deadLetters,
		logger:      logger,
		routes:      make(map[string]Route),
	}
}

// Register adds a route. Registration is rejected after Start.
func (r *Router) Register(route Route) error {
	if r.started {
		return ErrRouterStarted
	}

	if route.Topic == "" {
		return ErrRouteTopicEmpty
	}

	if route.Handler == nil {
		return fmt.Errorf("%w: topic %s", ErrRouteHandlerNil, route.Topic)
	}

	if _, exists := r.routes[route.Topic]; exists {
		return fmt.Errorf("%w: %s", ErrRouteDuplicate, route.Topic)
	}

	r.routes[route.Topic] = route
	r.order = append(r.order, route.Topic)

	return nil
}

// Routes enumerates the registered routes in registration order. This is the
// discovery operation surfaced on the admin API.
func (r *Router) Routes() []RouteInfo {
	infos := make([]RouteInfo, 0, len(r.order))
	for _, topic := range r.order {
		route := r.routes[topic]
		infos = append(infos, RouteInfo{Topic: route.Topic, Name: route.Name})
	}

	return infos
}

// Start spawns one consumer goroutine per registered topic. All readers join
// the same consumer group so replicas share the inbound stream.
func (r *Router) Start(ctx context.Context) error {
	if r.started {
		return ErrRouterStarted
	}

	r.started = true

	ctx, r.cancel = context.WithCancel(ctx)

	for _, topic := range r.order {
		route := r.routes[topic]

		reader := kafka.NewReader(kafka.ReaderConfig{
			Brokers:  r.cfg.Brokers,
			GroupID:  r.cfg.GroupID(),
			Topic:    route.Topic,
			MinBytes: defaultMinBytes,
			MaxBytes: defaultMaxBytes,
			MaxWait:  r.cfg.MaxWait,
		})
		r.readers = append(r.readers, reader)

		r.wg.Add(1)

		go r.consume(ctx, reader, route)
	}

	r.logger.Info("event router started",
		slog.Int("topics", len(r.order)),
		slog.String("group_id", r.cfg.GroupID()),
	)

	return nil
}

// Close stops all consumers and waits for in-flight handlers to finish.
func (r *Router) Close() error {
	var errs []error

	r.closeOnce.Do(func() {
		if r.cancel != nil {
			r.cancel()
		}

		for _, reader := range r.readers {
			if err := reader.Close(); err != nil {
				errs = append(errs, fmt.Errorf("failed to close reader for %s: %w", reader.Config().Topic, err))
			}
		}

		r.wg.Wait()
		r.logger.Info("event router stopped")
	})

	return errors.Join(errs...)
}

// consume is the per-topic fetch loop. It runs until the router context is
// cancelled or the reader is closed.
func (r *Router) consume(ctx context.Context, reader *kafka.Reader, route Route) {
	defer r.wg.Done()

	for {
		message, err := reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
				return
			}

			r.logger.Error("fetch failed",
				slog.String("topic", route.Topic),
				slog.String("error", err.Error()),
			)

			if !r.sleep(ctx, r.cfg.RetryBackoff) {
				return
			}

			continue
		}

		outcome := r.Dispatch(ctx, route.Topic, message.Value)
		if outcome == OutcomeRetry {
			// Retry budget exhausted during shutdown; leave the offset
			// uncommitted so the next group member redelivers.
			return
		}

		if err := reader.CommitMessages(ctx, message); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}

			r.logger.Error("commit failed",
				slog.String("topic", route.Topic),
				slog.String("error", err.Error()),
			)
		}
	}
}

// Dispatch routes one raw message. Transient handler failures are retried in
// process with backoff up to the configured budget; an exhausted budget parks
// the event in the dead letter log so the partition is never wedged by a
// single poisoned message. The returned outcome is RETRY only when shutdown
// interrupted the backoff, in which case the message must not be committed.
func (r *Router) Dispatch(ctx context.Context, topic string, raw []byte) Outcome {
	route, known := r.routes[topic]
	if !known {
		r.logger.Warn("event dropped: unknown topic", slog.String("topic", topic))
		r.park(ctx, DeadLetter{Topic: topic, Payload: raw, Reason: "unknown topic"})

		return OutcomeDrop
	}

	envelope, err := ParseEnvelope(raw)
	if err != nil {
		r.logger.Warn("event dropped: invalid envelope",
			slog.String("topic", topic),
			slog.String("error", err.Error()),
		)
		r.park(ctx, DeadLetter{Topic: topic, Payload: raw, Reason: err.Error()})

		return OutcomeDrop
	}

	logger := r.logger.With(
		slog.String("topic", topic),
		slog.String("route", route.Name),
		slog.String("event_id", envelope.ID),
		slog.String("correlation_id", envelope.CorrelationID),
	)

	for attempt := 0; ; attempt++ {
		err := route.Handler(ctx, envelope, envelope.CorrelationID)

		switch ClassifyOutcome(err) {
		case OutcomeSuccess:
			if attempt > 0 {
				logger.Info("event handled after retry", slog.Int("attempts", attempt+1))
			}

			return OutcomeSuccess

		case OutcomeRetry:
			if attempt >= r.cfg.MaxRetries {
				logger.Error("event parked: retry budget exhausted",
					slog.Int("attempts", attempt+1),
					slog.String("error", err.Error()),
				)
				r.park(ctx, r.deadLetterFor(topic, envelope, raw, fmt.Sprintf("retry budget exhausted: %v", err)))

				return OutcomeDrop
			}

			logger.Warn("transient handler failure, retrying",
				slog.Int("attempt", attempt+1),
				slog.String("error", err.Error()),
			)

			if !r.sleep(ctx, r.cfg.RetryBackoff) {
				return OutcomeRetry
			}

		case OutcomeDrop:
			logger.Warn("event dropped: permanent handler failure",
				slog.String("error", err.Error()),
			)
			r.park(ctx, r.deadLetterFor(topic, envelope, raw, err.Error()))

			return OutcomeDrop
		}
	}
}

func (r *Router) deadLetterFor(topic string, envelope *Envelope, raw []byte, reason string) DeadLetter {
	return DeadLetter{
		Topic:         topic,
		EventID:       envelope.ID,
		EventType:     envelope.Type,
		CorrelationID: envelope.CorrelationID,
		Payload:       raw,
		Reason:        reason,
	}
}

func (r *Router) park(ctx context.Context, entry DeadLetter) {
	if r.deadLetters == nil {
		return
	}

	if err := r.deadLetters.RecordDeadLetter(ctx, entry); err != nil {
		r.logger.Error("failed to record dead letter",
			slog.String("topic", entry.Topic),
			slog.String("event_id", entry.EventID),
			slog.String("error", err.Error()),
		)
	}
}

// sleep waits for d or until ctx is done. Returns false when interrupted.
func (r *Router) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
