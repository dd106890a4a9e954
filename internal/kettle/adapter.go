package kettle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/danmuck/kettle/internal/observability"
	"github.com/danmuck/kettle/internal/protocol/envelope"
	"github.com/danmuck/kettle/internal/protocol/frame"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// State is the adapter connection state.
type State int32

const (
	StateOpen State = iota
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Handlers holds the inbound handler slots. The four reference slots are
// required; Extra binds additional tags.
type Handlers struct {
	OnCreateGame     func(CreateGame) error
	OnConcede        func(playerID int) error
	OnSendOption     func(SendOption) error
	OnChooseEntities func(entities []int) error

	Extra map[string]Handler
}

func (h Handlers) Validate() error {
	if h.OnCreateGame == nil {
		return fmt.Errorf("%w: %s", ErrMissingHandler, TagCreateGame)
	}
	if h.OnConcede == nil {
		return fmt.Errorf("%w: %s", ErrMissingHandler, TagConcede)
	}
	if h.OnSendOption == nil {
		return fmt.Errorf("%w: %s", ErrMissingHandler, TagSendOption)
	}
	if h.OnChooseEntities == nil {
		return fmt.Errorf("%w: %s", ErrMissingHandler, TagChooseEntities)
	}
	for tag, fn := range h.Extra {
		switch tag {
		case TagCreateGame, TagConcede, TagSendOption, TagChooseEntities:
			return fmt.Errorf("%w: %s is a reference tag", ErrHandlerConflict, tag)
		case "", envelope.TypeKey:
			return fmt.Errorf("%w: invalid extra tag %q", ErrHandlerConflict, tag)
		}
		if fn == nil {
			return fmt.Errorf("%w: %s", ErrMissingHandler, tag)
		}
	}
	return nil
}

func (h Handlers) table() map[string]Handler {
	table := map[string]Handler{
		TagCreateGame:     Bind(h.OnCreateGame),
		TagConcede:        Bind(h.OnConcede),
		TagSendOption:     Bind(h.OnSendOption),
		TagChooseEntities: Bind(h.OnChooseEntities),
	}
	for tag, fn := range h.Extra {
		table[tag] = fn
	}
	return table
}

// AdapterOptions configures an Adapter.
type AdapterOptions struct {
	Limits frame.Limits
	// Sender overrides the sender built over the stream, letting a caller hand
	// the outbound side to its engine before the adapter exists.
	Sender *Sender
	Logger *zerolog.Logger
}

// Adapter owns one byte stream: it reads frames, dispatches their tagged
// messages and exposes the outbound side.
//
// HandleNextPacket is not reentrant. Send and SendBatch may be called from any
// goroutine.
type Adapter struct {
	stream   io.ReadWriter
	limits   frame.Limits
	dispatch *Dispatcher
	out      *Sender
	log      zerolog.Logger

	state     atomic.Int32
	errMu     sync.Mutex
	err       error
	closeOnce sync.Once
	closeErr  error
}

// NewAdapter validates h and binds it to stream. All four reference handler
// slots must be set.
func NewAdapter(stream io.ReadWriter, h Handlers, opts AdapterOptions) (*Adapter, error) {
	if stream == nil {
		return nil, errors.New("kettle: nil stream")
	}
	if err := h.Validate(); err != nil {
		return nil, err
	}
	if opts.Limits.MaxPayloadBytes == 0 {
		opts.Limits = frame.DefaultLimits()
	}
	logger := log.Logger
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	out := opts.Sender
	if out == nil {
		out = NewSender(stream, opts.Limits)
	}
	a := &Adapter{
		stream:   stream,
		limits:   opts.Limits,
		dispatch: NewDispatcher(h.table()).WithLogger(logger),
		out:      out.WithLogger(logger),
		log:      logger,
	}
	a.state.Store(int32(StateOpen))
	return a, nil
}

func (a *Adapter) State() State {
	return State(a.state.Load())
}

// Err returns the transport failure that closed the adapter, if any. A clean
// end of stream leaves it nil.
func (a *Adapter) Err() error {
	a.errMu.Lock()
	defer a.errMu.Unlock()
	return a.err
}

// HandleNextPacket reads one frame and dispatches every message in it.
//
// It returns false once the adapter is closed: the peer ended the stream, the
// transport failed, or the frame prefix was invalid (the latter also returns
// the error). Envelope, schema and handler errors return true with the error;
// the stream is still on a frame boundary and the caller decides whether to
// continue.
func (a *Adapter) HandleNextPacket() (bool, error) {
	if a.State() == StateClosed {
		return false, nil
	}

	payload, err := frame.ReadFrame(a.stream, a.limits)
	if err != nil {
		switch {
		case errors.Is(err, frame.ErrEndOfStream):
			a.log.Debug().Msg("kettle.Adapter.HandleNextPacket end of stream")
			a.markClosed(nil)
			return false, nil
		case errors.Is(err, frame.ErrTransportClosed):
			if a.State() == StateClosed {
				return false, nil
			}
			a.log.Warn().Err(err).Msg("kettle.Adapter.HandleNextPacket transport closed")
			a.markClosed(err)
			return false, nil
		default:
			a.log.Warn().Err(err).Msg("kettle.Adapter.HandleNextPacket invalid frame")
			a.markClosed(err)
			return false, err
		}
	}
	observability.RecordFrame(observability.DirectionIn, len(payload))
	a.log.Debug().
		Int("frame_len", len(payload)).
		Str("payload", string(payload)).
		Msg("kettle.Adapter.HandleNextPacket read frame")

	msgs, err := envelope.Decode(payload)
	if err != nil {
		a.log.Warn().Err(err).Msg("kettle.Adapter.HandleNextPacket malformed envelope")
		return true, err
	}
	if err := a.dispatch.DispatchAll(msgs); err != nil {
		return true, err
	}
	return true, nil
}

// Run calls HandleNextPacket until the adapter closes or a packet fails.
// Cancelling ctx closes the stream, which unblocks a pending read.
func (a *Adapter) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		_ = a.Close()
	})
	defer stop()

	for {
		ok, err := a.HandleNextPacket()
		if err != nil {
			return err
		}
		if !ok {
			return ctx.Err()
		}
	}
}

// Send writes m as its own frame. It fails with ErrClosed once the adapter is
// closed.
func (a *Adapter) Send(m Outbound) error {
	if a.State() == StateClosed {
		return ErrClosed
	}
	return a.out.Send(m)
}

func (a *Adapter) SendBatch(ms ...Outbound) error {
	if a.State() == StateClosed {
		return ErrClosed
	}
	return a.out.SendBatch(ms...)
}

func (a *Adapter) SendMessages(msgs ...envelope.TaggedMessage) error {
	if a.State() == StateClosed {
		return ErrClosed
	}
	return a.out.SendMessages(msgs...)
}

// Tags lists the inbound message tags this adapter has handlers for.
func (a *Adapter) Tags() []string {
	return a.dispatch.Tags()
}

// Close marks the adapter closed and closes the stream when it is an io.Closer.
func (a *Adapter) Close() error {
	a.markClosed(nil)
	a.closeOnce.Do(func() {
		if c, ok := a.stream.(io.Closer); ok {
			a.closeErr = c.Close()
		}
	})
	return a.closeErr
}

func (a *Adapter) markClosed(cause error) {
	if !a.state.CompareAndSwap(int32(StateOpen), int32(StateClosed)) {
		return
	}
	if cause != nil {
		a.errMu.Lock()
		a.err = cause
		a.errMu.Unlock()
	}
}
