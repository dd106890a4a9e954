package main

import (
	"bytes"
	"context"
	"net"
	"strings"
	"testing"

	"github.com/danmuck/kettle/internal/protocol/envelope"
	"github.com/danmuck/kettle/internal/protocol/frame"
)

func TestParseLine(t *testing.T) {
	cases := []struct {
		line string
		want string
	}{
		{`Concede 1`, `[{"Type":"Concede","Concede":1}]`},
		{`ChooseEntities [3, 5, 9]`, `[{"Type":"ChooseEntities","ChooseEntities":[3,5,9]}]`},
		{`[{"Type":"Concede","Concede":2,"extra":true}]`, `[{"Type":"Concede","Concede":2}]`},
	}
	for _, tc := range cases {
		got, err := parseLine(tc.line)
		if err != nil {
			t.Fatalf("parse %q: %v", tc.line, err)
		}
		if string(got) != tc.want {
			t.Fatalf("parse %q:\n got %s\nwant %s", tc.line, got, tc.want)
		}
	}

	for _, bad := range []string{`Concede`, `Concede {oops`, `[{"Type":1}]`, ` 1`} {
		if _, err := parseLine(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestSessionSendsAndPrintsReplies(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	received := make(chan []byte, 4)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			payload, err := frame.ReadFrame(conn, frame.DefaultLimits())
			if err != nil {
				close(received)
				return
			}
			received <- payload
			reply, _ := envelope.New("Options", []map[string]int{{"Type": 2}})
			body, _ := envelope.Encode([]envelope.TaggedMessage{reply})
			if err := frame.WriteFrame(conn, body, frame.DefaultLimits()); err != nil {
				return
			}
		}
	}()

	conn, err := dial("tcp", ln.Addr().String(), 0)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	in := strings.NewReader("# comment\nConcede 7\nnot json here\n")
	var out bytes.Buffer
	if err := session(context.Background(), conn, in, &out); err != nil {
		t.Fatalf("session: %v", err)
	}

	first, ok := <-received
	if !ok || string(first) != `[{"Type":"Concede","Concede":7}]` {
		t.Fatalf("unexpected frame at server: %s", first)
	}
	if _, ok := <-received; ok {
		t.Fatalf("invalid lines should not be sent")
	}
	if !strings.Contains(out.String(), `< Options [{"Type":2}]`) {
		t.Fatalf("missing reply in output:\n%s", out.String())
	}
	if !strings.Contains(out.String(), "! ") {
		t.Fatalf("expected parse error line in output:\n%s", out.String())
	}
}
