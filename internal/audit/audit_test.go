package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestDispatcherDeliversAndDrains(t *testing.T) {
	sink := NewChannelSink(16)
	d := NewDispatcher(Config{Enabled: true, BufferSize: 8}, sink)

	for i := 0; i < 5; i++ {
		d.Emit(context.Background(), Event{EventType: "login_success", Success: true})
	}
	d.Close()

	got := 0
	for {
		select {
		case <-sink.Events():
			got++
			continue
		default:
		}
		break
	}
	if got != 5 {
		t.Fatalf("expected 5 delivered events, got %d", got)
	}

	d.Emit(context.Background(), Event{EventType: "after_close"})
	if d.Dropped() != 0 {
		t.Fatalf("emit after close must be ignored, dropped=%d", d.Dropped())
	}
}

type blockingSink struct {
	release chan struct{}
}

func (b blockingSink) Emit(context.Context, Event) { <-b.release }

func TestDispatcherDropIfFullCounts(t *testing.T) {
	sink := blockingSink{release: make(chan struct{})}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)

	for i := 0; i < 10; i++ {
		d.Emit(context.Background(), Event{EventType: "x"})
	}
	if d.Dropped() == 0 {
		t.Fatal("expected drops when the buffer is full")
	}
	close(sink.release)
	d.Close()
}

func TestDisabledDispatcherIsNil(t *testing.T) {
	d := NewDispatcher(Config{Enabled: false}, NoOpSink{})
	if d != nil {
		t.Fatal("expected nil dispatcher when disabled")
	}
	d.Emit(context.Background(), Event{})
	d.Close()
}

func TestJSONWriterSinkWritesLines(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)
	sink.Emit(context.Background(), Event{Timestamp: time.Unix(0, 0).UTC(), EventType: "logout", UserID: "u1", Success: true})

	line := strings.TrimSpace(buf.String())
	var decoded Event
	if err := json.Unmarshal([]byte(line), &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.EventType != "logout" || decoded.UserID != "u1" {
		t.Fatalf("unexpected event: %+v", decoded)
	}
}

func TestSlogSinkLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	sink := NewSlogSink(logger)

	sink.Emit(context.Background(), Event{EventType: "login_failure", Success: false, Error: "invalid credentials", Metadata: map[string]string{"reason": "bad_password"}})
	out := buf.String()
	if !strings.Contains(out, `"level":"WARN"`) || !strings.Contains(out, `"reason":"bad_password"`) {
		t.Fatalf("unexpected log output: %s", out)
	}
}

func TestDispatcherBlockingEmitCountsCancelledContext(t *testing.T) {
	sink := blockingSink{release: make(chan struct{})}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1}, sink)

	// One event is held by the sink, the next fills the buffer.
	d.Emit(context.Background(), Event{EventType: "held"})
	deadline := time.Now().Add(time.Second)
	for !d.Emit(context.Background(), Event{EventType: "queued"}) {
		if time.Now().After(deadline) {
			t.Fatal("buffer never accepted an event")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if d.Emit(ctx, Event{EventType: "late"}) {
		t.Fatal("expected emit to give up when its context ends")
	}
	if d.Dropped() != 1 {
		t.Fatalf("dropped = %d, want 1", d.Dropped())
	}
	close(sink.release)
	d.Close()
}

type panicSink struct{}

func (panicSink) Emit(context.Context, Event) { panic("sink exploded") }

func TestDispatcherSurvivesPanickingSink(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	d := NewDispatcher(Config{Enabled: true, BufferSize: 4, Logger: logger}, panicSink{})

	d.Emit(context.Background(), Event{EventType: "login_success"})
	d.Emit(context.Background(), Event{EventType: "logout"})
	d.Close()

	if d.Dropped() != 2 {
		t.Fatalf("dropped = %d, want 2", d.Dropped())
	}
	if !strings.Contains(buf.String(), "audit sink panicked") {
		t.Fatalf("expected panic log, got %q", buf.String())
	}
}

func TestDispatcherLogsFirstDrop(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	sink := blockingSink{release: make(chan struct{})}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true, Logger: logger}, sink)

	for i := 0; i < 10; i++ {
		d.Emit(context.Background(), Event{EventType: "login_failure"})
	}
	close(sink.release)
	d.Close()

	if got := strings.Count(buf.String(), "audit event dropped"); got != 1 {
		t.Fatalf("expected exactly one drop warning, got %d in %q", got, buf.String())
	}
	if !strings.Contains(buf.String(), `"reason":"buffer full"`) {
		t.Fatalf("missing drop reason: %q", buf.String())
	}
}
