package frame

import (
	"bytes"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"testing/iotest"
)

func TestReadWriteFrameRoundTrip(t *testing.T) {
	payload := []byte(`[{"Type":"Concede","Concede":7}]`)
	var buf bytes.Buffer
	if err := WriteFrame(&buf, payload, DefaultLimits()); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	if got := DecodeLength(buf.Bytes()[:PrefixLen]); int(got) != len(payload) {
		t.Fatalf("prefix mismatch: got=%d want=%d", got, len(payload))
	}
	out, err := ReadFrame(&buf, DefaultLimits())
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if !bytes.Equal(out, payload) {
		t.Fatalf("payload mismatch: %q", out)
	}
}

func TestEncodeIsBigEndian(t *testing.T) {
	out, err := Encode([]byte("abc"), DefaultLimits())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	want := []byte{0, 0, 0, 3, 'a', 'b', 'c'}
	if !bytes.Equal(out, want) {
		t.Fatalf("unexpected encoding: %v", out)
	}
}

func TestEncodeUsesByteLengthForMultibyteText(t *testing.T) {
	payload := []byte(`["Jaina Proudmoore ✦"]`)
	out, err := Encode(payload, DefaultLimits())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if int(DecodeLength(out)) != len(payload) {
		t.Fatalf("expected byte length %d, got %d", len(payload), DecodeLength(out))
	}
}

func TestReadFrameEmptyPayload(t *testing.T) {
	out, err := ReadFrame(bytes.NewReader([]byte{0, 0, 0, 0}), DefaultLimits())
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("expected empty payload, got %d bytes", len(out))
	}
}

func TestReadFrameOverPipe(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	payloads := [][]byte{[]byte("first"), {}, bytes.Repeat([]byte("x"), 70000)}
	go func() {
		for _, p := range payloads {
			if err := WriteFrame(client, p, DefaultLimits()); err != nil {
				return
			}
		}
		_ = client.Close()
	}()

	for i, want := range payloads {
		got, err := ReadFrame(server, DefaultLimits())
		if err != nil {
			t.Fatalf("read frame %d: %v", i, err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("frame %d mismatch: got %d bytes want %d", i, len(got), len(want))
		}
	}
	if _, err := ReadFrame(server, DefaultLimits()); !errors.Is(err, ErrEndOfStream) {
		t.Fatalf("expected ErrEndOfStream after close, got %v", err)
	}
}

func TestReadFrameOneByteChunks(t *testing.T) {
	payload := []byte(`[{"Type":"ChooseEntities","ChooseEntities":[3,5,9]}]`)
	encoded, err := Encode(payload, DefaultLimits())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := ReadFrame(iotest.OneByteReader(bytes.NewReader(encoded)), DefaultLimits())
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if !bytes.Equal(out, payload) {
		t.Fatalf("payload mismatch: %q", out)
	}
}

func TestReadFrameGracefulClose(t *testing.T) {
	encoded, err := Encode([]byte("payload"), DefaultLimits())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	cases := map[string][]byte{
		"empty":           {},
		"partial prefix":  encoded[:2],
		"prefix only":     encoded[:PrefixLen],
		"partial payload": encoded[:len(encoded)-3],
	}
	for name, in := range cases {
		_, err := ReadFrame(bytes.NewReader(in), DefaultLimits())
		if !errors.Is(err, ErrEndOfStream) {
			t.Fatalf("%s: expected ErrEndOfStream, got %v", name, err)
		}
		if !errors.Is(err, io.EOF) {
			t.Fatalf("%s: expected io.EOF in chain, got %v", name, err)
		}
	}
}

func TestReadFrameTransportError(t *testing.T) {
	boom := errors.New("connection reset")
	_, err := ReadFrame(iotest.ErrReader(boom), DefaultLimits())
	if !errors.Is(err, ErrTransportClosed) || !errors.Is(err, boom) {
		t.Fatalf("expected wrapped transport error, got %v", err)
	}
}

func TestReadFrameNegativeLength(t *testing.T) {
	_, err := ReadFrame(bytes.NewReader([]byte{0xff, 0xff, 0xff, 0xfe}), DefaultLimits())
	if !errors.Is(err, ErrNegativeLength) {
		t.Fatalf("expected ErrNegativeLength, got %v", err)
	}
}

func TestReadFrameTooLarge(t *testing.T) {
	var prefix [PrefixLen]byte
	EncodeLength(prefix[:], 1025)
	_, err := ReadFrame(bytes.NewReader(prefix[:]), Limits{MaxPayloadBytes: 1024})
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
}

func TestWriteFrameTooLarge(t *testing.T) {
	var buf bytes.Buffer
	err := WriteFrame(&buf, make([]byte, 11), Limits{MaxPayloadBytes: 10})
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("expected nothing written, got %d bytes", buf.Len())
	}
}

func TestWriterSerializesConcurrentFrames(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, DefaultLimits())

	const writers = 8
	const perWriter = 50
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			payload := bytes.Repeat([]byte{byte('a' + id)}, 100+id)
			for j := 0; j < perWriter; j++ {
				if err := w.WriteFrame(payload); err != nil {
					t.Errorf("write frame: %v", err)
					return
				}
			}
		}(i)
	}
	wg.Wait()

	if w.Frames() != writers*perWriter {
		t.Fatalf("unexpected frame count: %d", w.Frames())
	}
	r := bytes.NewReader(buf.Bytes())
	for n := 0; n < writers*perWriter; n++ {
		payload, err := ReadFrame(r, DefaultLimits())
		if err != nil {
			t.Fatalf("read frame %d: %v", n, err)
		}
		if len(payload) < 100 || !bytes.Equal(payload, bytes.Repeat(payload[:1], len(payload))) {
			t.Fatalf("frame %d interleaved", n)
		}
	}
}
