package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ahl-labs/lotteryd/internal/auth"
	"github.com/ahl-labs/lotteryd/internal/config"
	"github.com/ahl-labs/lotteryd/internal/model"
	"github.com/ahl-labs/lotteryd/internal/queue"
)

// Publisher broadcasts signed epoch-open and settlement envelopes to
// websocket relays. Emits enqueue and return immediately; a background
// loop dials relays lazily, rebuilds dropped connections on the next
// broadcast, and never lets a dead relay stall the others.
type Publisher struct {
	cfg        config.RelaysConfig
	instanceID string
	signer     *auth.Signer
	logger     *slog.Logger

	ring  *queue.Ring[event]
	conns map[string]*websocket.Conn

	wg sync.WaitGroup
}

// event is one queued broadcast; exactly one field is set.
type event struct {
	epoch  *model.Epoch
	result *model.SettlementResult
}

// NewPublisher creates a relay publisher. signer may be nil for unsigned
// broadcasts.
func NewPublisher(cfg config.RelaysConfig, instanceID string, signer *auth.Signer, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		cfg:        cfg,
		instanceID: instanceID,
		signer:     signer,
		logger:     logger,
		ring:       queue.NewRing[event](cfg.BufferSize),
		conns:      make(map[string]*websocket.Conn),
	}
}

// EmitEpochOpened queues an epoch-open announcement without blocking.
func (p *Publisher) EmitEpochOpened(e model.Epoch) {
	p.ring.Push(event{epoch: &e})
}

// EmitSettlement queues the result for broadcast without blocking.
func (p *Publisher) EmitSettlement(res model.SettlementResult) {
	p.ring.Push(event{result: &res})
}

// Start begins the broadcast loop.
func (p *Publisher) Start(ctx context.Context) error {
	p.wg.Add(1)
	go p.run(ctx)

	p.logger.Info("relay publisher started",
		"relays", len(p.cfg.URLs),
		"signed", p.signer != nil,
	)
	return nil
}

// Stop drains queued broadcasts and closes the relay connections.
func (p *Publisher) Stop(ctx context.Context) error {
	p.ring.Close()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	for url, conn := range p.conns {
		conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		conn.Close()
		delete(p.conns, url)
	}

	p.logger.Info("relay publisher stopped")
	return nil
}

// run pops queued events and fans each one out to every relay.
func (p *Publisher) run(ctx context.Context) {
	defer p.wg.Done()

	for {
		ev, ok := p.ring.Pop()
		if !ok {
			return
		}

		env, epochID, err := p.envelope(ev)
		if err != nil {
			p.logger.Error("failed to build broadcast envelope",
				"epoch_id", epochID,
				"error", err,
			)
			continue
		}

		data, err := json.Marshal(env)
		if err != nil {
			p.logger.Error("failed to marshal envelope", "error", err)
			continue
		}

		for _, url := range p.cfg.URLs {
			if err := p.send(ctx, url, data); err != nil {
				p.logger.Warn("relay broadcast failed",
					"relay", url,
					"epoch_id", epochID,
					"error", err,
				)
			}
		}
	}
}

// envelope builds the wire envelope for one queued event.
func (p *Publisher) envelope(ev event) (Envelope, string, error) {
	if ev.result != nil {
		env, err := NewEnvelope(p.instanceID, *ev.result, p.signer)
		return env, ev.result.EpochID, err
	}
	env, err := NewEpochEnvelope(p.instanceID, *ev.epoch, p.signer)
	return env, ev.epoch.ID, err
}

// send writes the frame to one relay, dialing if needed. A write failure
// drops the connection so the next broadcast redials.
func (p *Publisher) send(ctx context.Context, url string, data []byte) error {
	conn, ok := p.conns[url]
	if !ok {
		dialCtx, cancel := context.WithTimeout(ctx, p.cfg.DialTimeout)
		defer cancel()

		dialer := websocket.Dialer{HandshakeTimeout: p.cfg.DialTimeout}
		c, _, err := dialer.DialContext(dialCtx, url, nil)
		if err != nil {
			return err
		}
		p.conns[url] = c
		conn = c

		p.logger.Debug("relay connected", "relay", url)
	}

	conn.SetWriteDeadline(time.Now().Add(p.cfg.WriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		conn.Close()
		delete(p.conns, url)
		return err
	}
	return nil
}
