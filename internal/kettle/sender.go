package kettle

import (
	"fmt"
	"io"

	"github.com/danmuck/kettle/internal/observability"
	"github.com/danmuck/kettle/internal/protocol/envelope"
	"github.com/danmuck/kettle/internal/protocol/frame"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Build wraps m in its tagged envelope shape.
func Build(m Outbound) (envelope.TaggedMessage, error) {
	if m == nil {
		return envelope.TaggedMessage{}, fmt.Errorf("%w: nil outbound message", envelope.ErrMalformedEnvelope)
	}
	return envelope.New(m.Tag(), m)
}

// BuildAll wraps ms in order.
func BuildAll(ms ...Outbound) ([]envelope.TaggedMessage, error) {
	out := make([]envelope.TaggedMessage, 0, len(ms))
	for i, m := range ms {
		msg, err := Build(m)
		if err != nil {
			return nil, fmt.Errorf("element[%d]: %w", i, err)
		}
		out = append(out, msg)
	}
	return out, nil
}

// Sender writes outbound envelopes. It is safe for concurrent use; each call
// produces exactly one frame.
type Sender struct {
	w   *frame.Writer
	log zerolog.Logger
}

func NewSender(w io.Writer, limits frame.Limits) *Sender {
	return &Sender{
		w:   frame.NewWriter(w, limits),
		log: log.Logger,
	}
}

// WithLogger returns a sender sharing s's writer that logs to l.
func (s *Sender) WithLogger(l zerolog.Logger) *Sender {
	return &Sender{w: s.w, log: l}
}

// Send writes m as a one-element envelope.
func (s *Sender) Send(m Outbound) error {
	return s.SendBatch(m)
}

// SendBatch writes ms as one envelope in one frame, preserving order.
// An empty batch writes nothing.
func (s *Sender) SendBatch(ms ...Outbound) error {
	msgs, err := BuildAll(ms...)
	if err != nil {
		return err
	}
	return s.SendMessages(msgs...)
}

// SendMessages writes pre-built tagged messages as one frame.
func (s *Sender) SendMessages(msgs ...envelope.TaggedMessage) error {
	if len(msgs) == 0 {
		return nil
	}
	payload, err := envelope.Encode(msgs)
	if err != nil {
		return err
	}
	if err := s.w.WriteFrame(payload); err != nil {
		for _, msg := range msgs {
			observability.RecordMessage(observability.DirectionOut, msg.Type, observability.ResultError)
		}
		return err
	}
	observability.RecordFrame(observability.DirectionOut, len(payload))
	for _, msg := range msgs {
		observability.RecordMessage(observability.DirectionOut, msg.Type, observability.ResultOK)
	}
	s.log.Debug().
		Int("frame_len", len(payload)).
		Strs("tags", envelope.Tags(msgs)).
		Msg("kettle.Sender.SendMessages wrote frame")
	return nil
}

// Frames returns the number of frames written by this sender.
func (s *Sender) Frames() uint64 {
	return s.w.Frames()
}
