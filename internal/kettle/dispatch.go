package kettle

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"

	"github.com/danmuck/kettle/internal/observability"
	"github.com/danmuck/kettle/internal/protocol/envelope"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Handler consumes the raw payload of one tagged message.
type Handler func(payload json.RawMessage) error

// Bind adapts a typed callback into a Handler. Payloads that do not decode
// into T, including JSON null, fail with a *SchemaMismatchError.
func Bind[T any](fn func(T) error) Handler {
	want := reflect.TypeFor[T]().String()
	return func(payload json.RawMessage) error {
		if trimmed := bytes.TrimSpace(payload); len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
			return &SchemaMismatchError{Want: want, Err: errors.New("payload is null")}
		}
		var v T
		if err := json.Unmarshal(payload, &v); err != nil {
			return &SchemaMismatchError{Want: want, Err: err}
		}
		return fn(v)
	}
}

// Dispatcher routes tagged messages to a fixed handler table.
type Dispatcher struct {
	table map[string]Handler
	log   zerolog.Logger
}

func NewDispatcher(table map[string]Handler) *Dispatcher {
	copied := make(map[string]Handler, len(table))
	for tag, h := range table {
		copied[tag] = h
	}
	return &Dispatcher{
		table: copied,
		log:   log.Logger,
	}
}

// WithLogger returns a dispatcher sharing d's table that logs to l.
func (d *Dispatcher) WithLogger(l zerolog.Logger) *Dispatcher {
	return &Dispatcher{table: d.table, log: l}
}

// Tags lists the registered tags in sorted order.
func (d *Dispatcher) Tags() []string {
	out := make([]string, 0, len(d.table))
	for tag := range d.table {
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}

// Dispatch invokes the handler registered for msg.Type on the calling
// goroutine. Unknown tags are logged and dropped.
func (d *Dispatcher) Dispatch(msg envelope.TaggedMessage) error {
	h, ok := d.table[msg.Type]
	if !ok || h == nil {
		d.log.Warn().
			Str("tag", msg.Type).
			RawJSON("payload", rawOrNull(msg.Payload)).
			Msg("kettle.Dispatcher.Dispatch unhandled packet")
		observability.RecordMessage(observability.DirectionIn, msg.Type, observability.ResultUnknown)
		return nil
	}

	d.log.Debug().Str("tag", msg.Type).Msg("kettle.Dispatcher.Dispatch received packet")
	if err := h(msg.Payload); err != nil {
		observability.RecordMessage(observability.DirectionIn, msg.Type, observability.ResultError)
		var mismatch *SchemaMismatchError
		if errors.As(err, &mismatch) && mismatch.Tag == "" {
			mismatch.Tag = msg.Type
			return mismatch
		}
		return fmt.Errorf("kettle: %s handler: %w", msg.Type, err)
	}
	observability.RecordMessage(observability.DirectionIn, msg.Type, observability.ResultOK)
	return nil
}

// DispatchAll dispatches msgs in order and stops at the first error.
func (d *Dispatcher) DispatchAll(msgs []envelope.TaggedMessage) error {
	for i, msg := range msgs {
		if err := d.Dispatch(msg); err != nil {
			return fmt.Errorf("element[%d]: %w", i, err)
		}
	}
	return nil
}

func rawOrNull(raw json.RawMessage) []byte {
	if len(raw) == 0 || !json.Valid(raw) {
		return []byte("null")
	}
	return raw
}
