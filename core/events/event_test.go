package events

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

type bareEvent struct{}

func (bareEvent) EventType() string { return "bare" }

func TestRecorderRetainsLimit(t *testing.T) {
	rec := NewRecorder(2)
	rec.Emit(Record{Type: "a"})
	rec.Emit(Record{Type: "b"})
	rec.Emit(bareEvent{})

	got := rec.Types()
	if len(got) != 2 || got[0] != "b" || got[1] != "bare" {
		t.Fatalf("unexpected retained types: %v", got)
	}
}

func TestFanoutAndLogEmitter(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	rec := NewRecorder(0)
	Fanout{rec, nil, LogEmitter{Logger: logger}, NoopEmitter{}}.Emit(Record{
		Type:       "marketplace.offer.created",
		Attributes: map[string]string{"id": "7"},
	})

	if len(rec.Records()) != 1 {
		t.Fatalf("expected one recorded event")
	}
	out := buf.String()
	if !strings.Contains(out, "marketplace.offer.created") || !strings.Contains(out, "id=7") {
		t.Fatalf("unexpected log output: %s", out)
	}
}
