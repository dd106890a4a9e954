package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
)

// PrefixLen is the size of the big-endian int32 length prefix.
const PrefixLen = 4

var (
	ErrEndOfStream     = fmt.Errorf("frame: end of stream: %w", io.EOF)
	ErrTransportClosed = errors.New("frame: transport closed")
	ErrNegativeLength  = errors.New("frame: negative length prefix")
	ErrPayloadTooLarge = errors.New("frame: payload too large")
)

// Limits constrains frame decode/encode memory use.
type Limits struct {
	MaxPayloadBytes int64
}

func DefaultLimits() Limits {
	return Limits{
		MaxPayloadBytes: 16 * 1024 * 1024,
	}
}

func (l Limits) max() int64 {
	if l.MaxPayloadBytes <= 0 || l.MaxPayloadBytes > math.MaxInt32 {
		return math.MaxInt32
	}
	return l.MaxPayloadBytes
}

// ReadFrame reads one length-prefixed payload from r.
//
// A stream that ends before the prefix or before the full payload yields
// ErrEndOfStream. Any other read failure is wrapped with ErrTransportClosed.
func ReadFrame(r io.Reader, limits Limits) ([]byte, error) {
	var prefix [PrefixLen]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return nil, readErr(err)
	}

	n := DecodeLength(prefix[:])
	if n < 0 {
		return nil, fmt.Errorf("%w: %d", ErrNegativeLength, n)
	}
	if int64(n) > limits.max() {
		return nil, fmt.Errorf("%w: %d > %d", ErrPayloadTooLarge, n, limits.max())
	}

	payload := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, readErr(err)
		}
	}
	return payload, nil
}

// WriteFrame writes the prefix and payload with a single Write call.
func WriteFrame(w io.Writer, payload []byte, limits Limits) error {
	buf, err := Encode(payload, limits)
	if err != nil {
		return err
	}
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("%w: %w", ErrTransportClosed, err)
	}
	return nil
}

// Encode returns payload prefixed with its big-endian int32 length.
func Encode(payload []byte, limits Limits) ([]byte, error) {
	if int64(len(payload)) > limits.max() {
		return nil, fmt.Errorf("%w: %d > %d", ErrPayloadTooLarge, len(payload), limits.max())
	}
	buf := make([]byte, PrefixLen+len(payload))
	EncodeLength(buf[:PrefixLen], int32(len(payload)))
	copy(buf[PrefixLen:], payload)
	return buf, nil
}

func EncodeLength(b []byte, n int32) {
	binary.BigEndian.PutUint32(b, uint32(n))
}

func DecodeLength(b []byte) int32 {
	return int32(binary.BigEndian.Uint32(b))
}

func readErr(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrEndOfStream
	}
	return fmt.Errorf("%w: %w", ErrTransportClosed, err)
}

// Writer serializes frame writes from concurrent goroutines onto one stream.
type Writer struct {
	mu     sync.Mutex
	w      io.Writer
	limits Limits
	frames uint64
}

func NewWriter(w io.Writer, limits Limits) *Writer {
	return &Writer{w: w, limits: limits}
}

func (fw *Writer) WriteFrame(payload []byte) error {
	buf, err := Encode(payload, fw.limits)
	if err != nil {
		return err
	}
	fw.mu.Lock()
	defer fw.mu.Unlock()
	if _, err := fw.w.Write(buf); err != nil {
		return fmt.Errorf("%w: %w", ErrTransportClosed, err)
	}
	fw.frames++
	return nil
}

// Frames returns the number of frames written so far.
func (fw *Writer) Frames() uint64 {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	return fw.frames
}
