package stream

import (
	"context"
	"time"

	"ecom-agent/internal/apperr"
	"ecom-agent/internal/models"
	"ecom-agent/internal/service"
	"ecom-agent/internal/util"

	"go.uber.org/zap"
)

// Event statuses
const (
	StatusTyping   = "typing"
	StatusComplete = "complete"
	StatusError    = "error"
)

// DefaultCharDelay is the pause between typing events
const DefaultCharDelay = 20 * time.Millisecond

// Event is one server-pushed message. A complete event carries the result
// fields at the top level.
type Event struct {
	Status string `json:"status"`
	Char   string `json:"char,omitempty"`
	Error  string `json:"error,omitempty"`
	*models.QueryResult
}

// Terminal reports whether no event follows e
func (e Event) Terminal() bool {
	return e.Status == StatusComplete || e.Status == StatusError
}

// Answerer runs the question pipeline
type Answerer interface {
	Answer(ctx context.Context, question string, visualize bool) (*models.QueryResult, error)
}

// Emitter delivers an answer one character at a time
type Emitter struct {
	answerer Answerer
	delay    time.Duration
	logger   *zap.Logger
}

// NewEmitter creates a new emitter. A zero delay emits as fast as the
// consumer reads.
func NewEmitter(answerer Answerer, delay time.Duration) *Emitter {
	if delay < 0 {
		delay = 0
	}
	return &Emitter{
		answerer: answerer,
		delay:    delay,
		logger:   util.GetLogger(),
	}
}

// Stream answers question and returns its events. The channel yields one
// typing event per character of the answer text, then exactly one
// complete or error event, and is then closed. When ctx is canceled the
// channel is closed without a terminal event.
func (e *Emitter) Stream(ctx context.Context, question string) <-chan Event {
	events := make(chan Event)
	go e.run(ctx, question, events)
	return events
}

func (e *Emitter) run(ctx context.Context, question string, events chan<- Event) {
	defer close(events)

	ctx, span := util.StartSpan(ctx, "Emitter.Stream")
	defer span.End()

	result, err := e.answerer.Answer(ctx, question, false)
	if ctx.Err() != nil {
		e.abort(ctx)
		return
	}
	if err != nil {
		e.send(ctx, events, Event{Status: StatusError, Error: apperr.PublicMessage(err)})
		return
	}

	var timer *time.Timer
	if e.delay > 0 {
		timer = time.NewTimer(time.Hour)
		timer.Stop()
		defer timer.Stop()
	}

	for _, r := range service.AnswerText(result) {
		if !e.send(ctx, events, Event{Status: StatusTyping, Char: string(r)}) {
			e.abort(ctx)
			return
		}
		if timer == nil {
			continue
		}
		timer.Reset(e.delay)
		select {
		case <-ctx.Done():
			e.abort(ctx)
			return
		case <-timer.C:
		}
	}

	if !e.send(ctx, events, Event{Status: StatusComplete, QueryResult: result}) {
		e.abort(ctx)
	}
}

// send delivers ev unless ctx is done first
func (e *Emitter) send(ctx context.Context, events chan<- Event, ev Event) bool {
	if ctx.Err() != nil {
		return false
	}
	select {
	case <-ctx.Done():
		return false
	case events <- ev:
		util.StreamEventsTotal.WithLabelValues(ev.Status).Inc()
		return true
	}
}

func (e *Emitter) abort(ctx context.Context) {
	util.StreamsAbortedTotal.Inc()
	e.logger.Info("Stream aborted", zap.Error(apperr.StreamAborted(ctx.Err())))
}
