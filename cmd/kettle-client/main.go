package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/danmuck/kettle/internal/config"
	"github.com/danmuck/kettle/internal/observability"
	"github.com/danmuck/kettle/internal/protocol/envelope"
	"github.com/danmuck/kettle/internal/protocol/frame"
	"github.com/rs/zerolog/log"
	"github.com/xtaci/kcp-go/v5"
)

func main() {
	observability.InitLogger("kettle-client")

	addr := flag.String("addr", "127.0.0.1:1234", "server address")
	transport := flag.String("transport", config.TransportTCP, "transport: tcp | kcp")
	timeout := flag.Duration("timeout", 5*time.Second, "dial timeout (tcp only)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conn, err := dial(*transport, *addr, *timeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "kettle-client: %v\n", err)
		os.Exit(1)
	}
	log.Info().Str("addr", *addr).Str("transport", *transport).Msg("kettle-client connected")

	if err := session(ctx, conn, os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "kettle-client: %v\n", err)
		os.Exit(1)
	}
}

func dial(transport, addr string, timeout time.Duration) (net.Conn, error) {
	switch strings.ToLower(strings.TrimSpace(transport)) {
	case config.TransportKCP:
		sess, err := kcp.DialWithOptions(addr, nil, 0, 0)
		if err != nil {
			return nil, err
		}
		return sess, nil
	case config.TransportTCP, "":
		return net.DialTimeout("tcp", addr, timeout)
	default:
		return nil, fmt.Errorf("unknown transport %q", transport)
	}
}

// session sends one frame per input line and prints every received message
// until input ends, the server closes, or ctx is done.
func session(ctx context.Context, conn net.Conn, in io.Reader, out io.Writer) error {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})
	defer stop()
	out = &lockedWriter{w: out}

	recvErr := make(chan error, 1)
	go func() {
		recvErr <- receive(conn, out)
	}()

	limits := frame.DefaultLimits()
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), int(limits.MaxPayloadBytes))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		payload, err := parseLine(line)
		if err != nil {
			fmt.Fprintf(out, "! %v\n", err)
			continue
		}
		if err := frame.WriteFrame(conn, payload, limits); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	// Input is done; half-close so the server sees end of stream, then drain.
	if cw, ok := conn.(interface{ CloseWrite() error }); ok {
		_ = cw.CloseWrite()
	} else {
		_ = conn.Close()
	}
	err := <-recvErr
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func receive(r io.Reader, out io.Writer) error {
	for {
		payload, err := frame.ReadFrame(r, frame.DefaultLimits())
		if err != nil {
			if errors.Is(err, frame.ErrEndOfStream) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
				return nil
			}
			return err
		}
		msgs, err := envelope.Decode(payload)
		if err != nil {
			fmt.Fprintf(out, "! %v\n", err)
			continue
		}
		for _, msg := range msgs {
			fmt.Fprintf(out, "< %s %s\n", msg.Type, msg.Payload)
		}
	}
}

// parseLine accepts a raw envelope array, or "Tag payload" for a single
// message, e.g. `Concede 1` or `ChooseEntities [3,5,9]`.
func parseLine(line string) ([]byte, error) {
	if strings.HasPrefix(line, "[") {
		msgs, err := envelope.Decode([]byte(line))
		if err != nil {
			return nil, err
		}
		return envelope.Encode(msgs)
	}
	tag, rest, ok := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)
	if !ok || rest == "" {
		return nil, fmt.Errorf("expected `Tag payload`, got %q", line)
	}
	if !json.Valid([]byte(rest)) {
		return nil, fmt.Errorf("payload for %s is not valid JSON", tag)
	}
	msg, err := envelope.New(tag, json.RawMessage(rest))
	if err != nil {
		return nil, err
	}
	return envelope.Encode([]envelope.TaggedMessage{msg})
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
