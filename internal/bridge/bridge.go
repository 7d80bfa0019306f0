// Package bridge owns the long-lived subscription to the OpenSong websocket
// channel and drives fetch, extract and write for every slide change.
package bridge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	xlog "github.com/stagelink/os2obs/internal/log"
	"github.com/stagelink/os2obs/internal/metrics"
	"github.com/stagelink/os2obs/internal/opensong"
)

// State of the connection manager.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateSubscribed   State = "subscribed"
)

func stateGauge(s State) float64 {
	switch s {
	case StateConnecting:
		return 1
	case StateSubscribed:
		return 2
	default:
		return 0
	}
}

// Fetcher retrieves slide content from the remote REST API.
type Fetcher interface {
	Slide(ctx context.Context, id int) (*opensong.SlideDocument, error)
	CloseIdle()
}

// FileWriter persists extracted fields to the output files.
type FileWriter interface {
	Write(fields opensong.Fields) error
}

// Config carries the connection parameters the bridge needs.
type Config struct {
	WSURL         string
	SubscribePath string
	RetryDelay    time.Duration
}

// Bridge is the connection manager. It holds the only mutable runtime state
// of the daemon: the current connection, its state, and the last slide seen.
type Bridge struct {
	cfg    Config
	api    Fetcher
	out    FileWriter
	dialer *websocket.Dialer
	logger zerolog.Logger

	mu        sync.RWMutex
	state     State
	lastSlide int
}

// New creates a Bridge. Run must be called to start it.
func New(cfg Config, api Fetcher, out FileWriter) *Bridge {
	return &Bridge{
		cfg:    cfg,
		api:    api,
		out:    out,
		dialer: websocket.DefaultDialer,
		logger: xlog.WithComponent("bridge"),
		state:  StateDisconnected,
	}
}

// State returns the current connection state.
func (b *Bridge) State() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// Ready reports whether the bridge holds a live subscription.
func (b *Bridge) Ready() bool {
	return b.State() == StateSubscribed
}

func (b *Bridge) setState(s State) {
	b.mu.Lock()
	b.state = s
	b.mu.Unlock()
	metrics.SetConnectionState(stateGauge(s))
}

// Run connects, subscribes and processes notifications until ctx is
// cancelled. Any connection failure is retried forever with the fixed
// configured delay; the remote is expected to eventually come back, so
// there is deliberately no backoff growth and no retry cap.
func (b *Bridge) Run(ctx context.Context) error {
	for {
		b.setState(StateConnecting)
		err := b.session(ctx)

		b.setState(StateDisconnected)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		b.logger.Warn().
			Err(err).
			Str("event", "bridge.disconnected").
			Dur("retry_delay", b.cfg.RetryDelay).
			Msg("connection lost, retrying")
		metrics.IncReconnect()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(b.cfg.RetryDelay):
		}
	}
}

// session runs one connect → subscribe → receive cycle and returns the error
// that ended it.
func (b *Bridge) session(ctx context.Context) error {
	conn, resp, err := b.dialer.DialContext(ctx, b.cfg.WSURL, nil)
	if err != nil {
		if resp != nil {
			_ = resp.Body.Close()
		}
		return fmt.Errorf("dial %s: %w", b.cfg.WSURL, err)
	}
	defer func() {
		_ = conn.Close()
	}()

	// Unblock the blocking read when ctx is cancelled.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	if err := conn.WriteMessage(websocket.TextMessage, []byte(b.cfg.SubscribePath)); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	b.setState(StateSubscribed)
	b.logger.Info().
		Str("event", "bridge.subscribed").
		Str("url", b.cfg.WSURL).
		Str("path", b.cfg.SubscribePath).
		Msg("connected and subscribed")

	// The remembered slide position belongs to the session: after a
	// reconnect the first running status always triggers a fresh write.
	b.lastSlide = 0

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		if mt != websocket.TextMessage {
			continue
		}
		b.handleFrame(ctx, string(data))
	}
}

func (b *Bridge) handleFrame(ctx context.Context, frame string) {
	if opensong.IsStatusFrame(frame) {
		metrics.IncNotification("status")
		st, err := opensong.ParseStatus(frame)
		if err != nil {
			b.logger.Warn().
				Err(err).
				Str("event", "bridge.bad_status").
				Msg("unparseable status frame")
			return
		}
		b.handleStatus(ctx, st)
		return
	}

	switch frame {
	case opensong.AckConnected:
		metrics.IncNotification("ack")
		b.logger.Info().
			Str("event", "bridge.ack").
			Msg("client connected and remote is running")
	case opensong.AckAlreadySubscribed:
		metrics.IncNotification("ack")
		b.logger.Info().
			Str("event", "bridge.already_subscribed").
			Msg("already subscribed, waiting for new messages")
	default:
		metrics.IncNotification("other")
		b.logger.Debug().
			Str("event", "bridge.unknown_frame").
			Str("frame", frame).
			Msg("unknown non-XML frame")
	}
}

func (b *Bridge) handleStatus(ctx context.Context, st opensong.Status) {
	if !st.Running {
		b.logger.Info().
			Str("event", "bridge.idle").
			Msg("presentation is not running")
		// The remote may be tearing its REST server down right now; do not
		// reuse a pooled connection against it.
		b.api.CloseIdle()
		return
	}

	if st.Slide == b.lastSlide {
		b.logger.Debug().
			Int("slide", st.Slide).
			Str("event", "bridge.slide_unchanged").
			Msg("slide unchanged")
		return
	}

	b.logger.Info().
		Int("from", b.lastSlide).
		Int("to", st.Slide).
		Str("event", "bridge.slide_change").
		Msg("slide changed")
	metrics.IncSlideChange()

	if st.Slide > 0 {
		b.process(ctx, st.Slide)
	}
	b.lastSlide = st.Slide
}

// process runs one fetch → extract → write cycle. Every failure is logged
// and drops the notification; the receive loop keeps going.
func (b *Bridge) process(ctx context.Context, id int) {
	logger := xlog.WithComponentFromContext(ctx, "bridge")

	doc, err := b.api.Slide(ctx, id)
	if err != nil {
		metrics.IncStageFailure("fetch")
		logger.Error().
			Err(err).
			Int("slide", id).
			Str("event", "slide.fetch_failed").
			Msg("slide fetch failed, dropping notification")
		return
	}

	fields, err := doc.Fields()
	if err != nil {
		metrics.IncStageFailure("extract")
		logger.Error().
			Err(err).
			Int("slide", id).
			Str("event", "slide.extract_failed").
			Msg("field extraction failed, dropping notification")
		return
	}

	if err := b.out.Write(fields); err != nil {
		metrics.IncStageFailure("write")
		logger.Error().
			Err(err).
			Int("slide", id).
			Str("event", "output.write_failed").
			Msg("output write failed, dropping notification")
		return
	}

	metrics.IncSlideWritten()
	logger.Info().
		Int("slide", id).
		Str("title", fields.Title).
		Str("event", "output.written").
		Msg("output files updated")
}
