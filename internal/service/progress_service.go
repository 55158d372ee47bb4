package service

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/noah-isme/worksheet-grader/internal/pipeline"
)

const progressBufferSize = 16

// ProgressBroker fans pipeline transitions out to run subscribers on this
// node and, when NATS is configured, to every other node.
type ProgressBroker interface {
	pipeline.Observer
	Subscribe(runID string) (<-chan pipeline.Event, func())
	Start(ctx context.Context)
}

type progressBroker struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan pipeline.Event]struct{}
	nats        *nats.Conn
	subject     string
	nodeID      string
	logger      zerolog.Logger
}

type progressEnvelope struct {
	Source string         `json:"source"`
	Event  pipeline.Event `json:"event"`
}

// NewProgressBroker constructs a broker. natsConn may be nil; subjectBase
// defaults to "grader.worksheet".
func NewProgressBroker(natsConn *nats.Conn, subjectBase string, logger zerolog.Logger) ProgressBroker {
	subjectBase = strings.Trim(strings.TrimSpace(subjectBase), ".")
	if subjectBase == "" {
		subjectBase = "grader.worksheet"
	}
	return &progressBroker{
		subscribers: make(map[string]map[chan pipeline.Event]struct{}),
		nats:        natsConn,
		subject:     subjectBase,
		nodeID:      uuid.NewString(),
		logger:      logger.With().Str("component", "progress_broker").Logger(),
	}
}

// EventSubject maps a transition to its NATS subject under base.
func EventSubject(base string, state pipeline.State) string {
	switch state {
	case pipeline.StateDone:
		return base + ".graded"
	case pipeline.StateFailed:
		return base + ".failed"
	default:
		return base + ".progress"
	}
}

func (b *progressBroker) Observe(ctx context.Context, event pipeline.Event) {
	if event.RunID == "" {
		return
	}
	b.broadcast(event)

	if b.nats == nil {
		return
	}
	payload, err := json.Marshal(progressEnvelope{Source: b.nodeID, Event: event})
	if err != nil {
		return
	}
	if err := b.nats.Publish(EventSubject(b.subject, event.State), payload); err != nil {
		b.logger.Warn().Err(err).Str("run_id", event.RunID).Msg("failed to publish pipeline event")
	}
}

func (b *progressBroker) Start(ctx context.Context) {
	if b.nats == nil {
		return
	}

	sub, err := b.nats.Subscribe(b.subject+".>", func(msg *nats.Msg) {
		b.handleMessage(msg.Data)
	})
	if err != nil {
		b.logger.Error().Err(err).Msg("failed to subscribe to pipeline events")
		return
	}

	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			b.logger.Warn().Err(err).Msg("failed to drain pipeline event subscription")
		}
	}()
}

func (b *progressBroker) handleMessage(payload []byte) {
	var envelope progressEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		b.logger.Warn().Err(err).Msg("invalid pipeline event payload")
		return
	}
	if envelope.Source == b.nodeID || envelope.Event.RunID == "" {
		return
	}
	b.broadcast(envelope.Event)
}

func (b *progressBroker) Subscribe(runID string) (<-chan pipeline.Event, func()) {
	ch := make(chan pipeline.Event, progressBufferSize)

	b.mu.Lock()
	if _, ok := b.subscribers[runID]; !ok {
		b.subscribers[runID] = make(map[chan pipeline.Event]struct{})
	}
	b.subscribers[runID][ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if subs, ok := b.subscribers[runID]; ok {
				delete(subs, ch)
				close(ch)
				if len(subs) == 0 {
					delete(b.subscribers, runID)
				}
			}
		})
	}
	return ch, cancel
}

func (b *progressBroker) broadcast(event pipeline.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subscribers[event.RunID] {
		select {
		case ch <- event:
		default:
		}
	}
}
