// Package processor connects the pipeline to NATS: recommendation
// requests arrive by request/reply, feedback by plain publish, and
// escalations go out on their own subject.
package processor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/haski/recengine/internal/config"
	"github.com/haski/recengine/internal/metrics"
	"github.com/haski/recengine/internal/pipeline"
	"github.com/haski/recengine/pkg/events"
	"github.com/haski/recengine/pkg/skincare"
)

// Recommender is the part of the pipeline the processor drives.
type Recommender interface {
	Recommend(ctx context.Context, req pipeline.Request) (*pipeline.Response, error)
	SubmitFeedback(ctx context.Context, fb skincare.FeedbackRecord) (*pipeline.FeedbackResult, error)
}

type Processor struct {
	cfg     config.NATSConfig
	nc      *nats.Conn
	svc     Recommender
	logger  zerolog.Logger
	timeout time.Duration
	subs    []*nats.Subscription
	wg      sync.WaitGroup
	once    sync.Once
}

const (
	startTimeout = 5 * time.Second
	drainTimeout = 30 * time.Second
)

// Connect dials NATS. The connection is also used as the escalation
// publisher, so it is opened before the pipeline is built.
func Connect(cfg config.NATSConfig) (*nats.Conn, error) {
	nc, err := nats.Connect(cfg.URL, nats.Name("recengine"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return nc, nil
}

// New builds a processor that runs each message with the given timeout.
func New(cfg config.NATSConfig, nc *nats.Conn, svc Recommender, timeout time.Duration, logger zerolog.Logger) *Processor {
	return &Processor{cfg: cfg, nc: nc, svc: svc, timeout: timeout, logger: logger}
}

func (p *Processor) Start(ctx context.Context) error {
	sub, err := p.nc.QueueSubscribe(p.cfg.SubjectRequests, p.cfg.QueueGroup, p.handleRequest)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", p.cfg.SubjectRequests, err)
	}
	p.subs = append(p.subs, sub)

	sub, err = p.nc.QueueSubscribe(p.cfg.SubjectFeedback, p.cfg.QueueGroup, p.handleFeedback)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", p.cfg.SubjectFeedback, err)
	}
	p.subs = append(p.subs, sub)

	fctx, cancel := context.WithTimeout(ctx, startTimeout)
	defer cancel()
	if err := p.nc.FlushWithContext(fctx); err != nil {
		return fmt.Errorf("flush subscriptions: %w", err)
	}

	p.logger.Info().
		Str("requests", p.cfg.SubjectRequests).
		Str("feedback", p.cfg.SubjectFeedback).
		Str("queue", p.cfg.QueueGroup).
		Msg("nats processor subscribed")
	return nil
}

// Close drains both subscriptions and returns once every message already
// delivered has been handled. It is safe to call more than once; later
// calls block until the first has finished.
func (p *Processor) Close() {
	p.once.Do(func() {
		for _, sub := range p.subs {
			if err := sub.Drain(); err != nil {
				p.logger.Warn().Err(err).Str("subject", sub.Subject).Msg("drain subscription")
			}
		}
		if p.awaitDrained(drainTimeout) {
			p.wg.Wait()
		}
		p.subs = nil
	})
}

// awaitDrained polls until every subscription has finished draining, which
// is when the client unsubscribes it and no further callbacks can start.
func (p *Processor) awaitDrained(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for _, sub := range p.subs {
		for sub.IsValid() {
			if time.Now().After(deadline) {
				p.logger.Warn().Str("subject", sub.Subject).Msg("subscription still draining at deadline")
				return false
			}
			<-ticker.C
		}
	}
	return true
}

func (p *Processor) handleRequest(msg *nats.Msg) {
	p.wg.Add(1)
	defer p.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	reply := p.Recommend(ctx, msg.Data)
	if msg.Reply == "" {
		return
	}
	payload, err := json.Marshal(reply)
	if err != nil {
		p.logger.Error().Err(err).Msg("encode reply")
		return
	}
	if err := msg.Respond(payload); err != nil {
		p.logger.Error().Err(err).Msg("respond to recommendation request")
	}
}

func (p *Processor) handleFeedback(msg *nats.Msg) {
	p.wg.Add(1)
	defer p.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	reply := p.Feedback(ctx, msg.Data)
	if msg.Reply == "" {
		return
	}
	payload, err := json.Marshal(reply)
	if err != nil {
		p.logger.Error().Err(err).Msg("encode reply")
		return
	}
	if err := msg.Respond(payload); err != nil {
		p.logger.Error().Err(err).Msg("respond to feedback")
	}
}

// Recommend decodes a pipeline.Request, runs it and wraps the outcome in a
// reply envelope. It never fails; errors are reported inside the envelope.
func (p *Processor) Recommend(ctx context.Context, data []byte) events.Reply {
	var req pipeline.Request
	if err := pipeline.Decode(data, &req); err != nil {
		metrics.Requests.WithLabelValues("nats", "recommend", "invalid").Inc()
		return errorReply(err)
	}
	resp, err := p.svc.Recommend(ctx, req)
	metrics.Requests.WithLabelValues("nats", "recommend", pipeline.Outcome(err)).Inc()
	if err != nil {
		p.logger.Warn().Err(err).Str("user_id", req.UserID).Msg("recommendation request failed")
		return errorReply(err)
	}
	return resultReply(resp)
}

// Feedback decodes and submits one feedback record.
func (p *Processor) Feedback(ctx context.Context, data []byte) events.Reply {
	var fb skincare.FeedbackRecord
	if err := pipeline.Decode(data, &fb); err != nil {
		metrics.Requests.WithLabelValues("nats", "feedback", "invalid").Inc()
		return errorReply(err)
	}
	res, err := p.svc.SubmitFeedback(ctx, fb)
	metrics.Requests.WithLabelValues("nats", "feedback", pipeline.Outcome(err)).Inc()
	if err != nil {
		p.logger.Warn().Err(err).Str("recommendation_id", fb.RecommendationID).Msg("feedback rejected")
		return errorReply(err)
	}
	return resultReply(events.FeedbackAck{
		RecommendationID:  fb.RecommendationID,
		Accepted:          true,
		RequiresAttention: res.Insights.RequiresAttention(),
	})
}

func resultReply(v interface{}) events.Reply {
	payload, err := json.Marshal(v)
	if err != nil {
		return events.Reply{Error: &events.ReplyError{Code: events.CodeInternal, Message: err.Error()}}
	}
	return events.Reply{OK: true, Result: payload}
}

func errorReply(err error) events.Reply {
	var ve *skincare.ValidationError
	switch {
	case errors.As(err, &ve):
		return events.Reply{Error: &events.ReplyError{Code: events.CodeInvalid, Message: ve.Error(), Fields: ve.Fields}}
	case errors.Is(err, pipeline.ErrNotFound):
		return events.Reply{Error: &events.ReplyError{Code: events.CodeNotFound, Message: err.Error()}}
	case errors.Is(err, pipeline.ErrUnavailable):
		return events.Reply{Error: &events.ReplyError{Code: events.CodeUnavailable, Message: pipeline.ErrUnavailable.Error()}}
	default:
		return events.Reply{Error: &events.ReplyError{Code: events.CodeInternal, Message: "internal error"}}
	}
}

// Publisher sends escalation events to NATS.
type Publisher struct {
	nc      *nats.Conn
	subject string
}

func NewPublisher(nc *nats.Conn, subject string) *Publisher {
	return &Publisher{nc: nc, subject: subject}
}

func (p *Publisher) PublishEscalation(_ context.Context, ev events.Escalation) error {
	if err := ev.Valid(); err != nil {
		return fmt.Errorf("invalid escalation: %w", err)
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.nc.Publish(p.subject, payload)
}
