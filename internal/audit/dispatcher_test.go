package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestDispatcherDeliversInOrder(t *testing.T) {
	sink := NewChannelSink(8)
	d := NewDispatcher(Config{Enabled: true, BufferSize: 8}, sink)
	defer d.Close()

	for _, typ := range []string{TypeTokenIssued, TypeTokenRotated, TypeTokenReuse} {
		d.Emit(context.Background(), Event{
			Timestamp: time.Now().UTC(),
			EventType: typ,
			UserID:    "user-1",
		})
	}

	for _, want := range []string{TypeTokenIssued, TypeTokenRotated, TypeTokenReuse} {
		select {
		case got := <-sink.Events():
			if got.EventType != want {
				t.Fatalf("expected %s, got %s", want, got.EventType)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("event %s never delivered", want)
		}
	}
}

func TestDispatcherDisabledIsNil(t *testing.T) {
	d := NewDispatcher(Config{Enabled: false}, NoOpSink{})
	if d != nil {
		t.Fatal("disabled dispatcher must be nil")
	}

	// A nil dispatcher accepts every call.
	d.Emit(context.Background(), Event{EventType: TypeTokenReuse})
	d.Close()
	if d.Dropped() != 0 {
		t.Fatal("nil dispatcher reports zero drops")
	}
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	// An unread channel sink wedges the relay on its first event, so the
	// buffer fills and overflow is counted.
	sink := NewChannelSink(1)
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)

	deadline := time.After(2 * time.Second)
	for d.Dropped() == 0 {
		d.Emit(context.Background(), Event{EventType: TypeIPBlocked})
		select {
		case <-deadline:
			t.Fatal("dispatcher never reported a dropped event")
		default:
		}
	}
}

func TestDispatcherDrainsOnClose(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)
	d := NewDispatcher(Config{Enabled: true, BufferSize: 16}, sink)

	d.Emit(context.Background(), Event{EventType: TypeLogoutAll, UserID: "user-1"})
	d.Close()

	line := strings.TrimSpace(buf.String())
	if line == "" {
		t.Fatal("buffered event must be flushed before Close returns")
	}

	var event Event
	if err := json.Unmarshal([]byte(line), &event); err != nil {
		t.Fatalf("sink output is not one JSON event per line: %v", err)
	}
	if event.EventType != TypeLogoutAll || event.UserID != "user-1" {
		t.Fatalf("unexpected event %+v", event)
	}
}
