package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"callflex/internal/queue"
)

func TestPrintDeadLetters(t *testing.T) {
	item := json.RawMessage(`{"event_id":"evt_1","event_type":"invoice.paid","payload":{}}`)
	items := []queue.DeadLetterItem{
		{ID: "dl-1", Item: item, Error: errors.New("organization not found").Error(), Retries: 5, Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)},
		{ID: "dl-2", Item: json.RawMessage(`"garbage"`), Retries: 1},
	}

	var buf bytes.Buffer
	if err := printDeadLetters(&buf, 3, items); err != nil {
		t.Fatalf("print: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"pending: 3", "dead letters: 2", "invoice.paid/evt_1", "2026-01-02T03:04:05Z", "organization not found"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
	if !strings.Contains(out, "dl-2") {
		t.Fatalf("expected unparseable item to still be listed:\n%s", out)
	}
}

func TestPrintDeadLettersEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := printDeadLetters(&buf, 0, nil); err != nil {
		t.Fatalf("print: %v", err)
	}
	if strings.Contains(buf.String(), "ID") {
		t.Fatalf("expected no table header, got %q", buf.String())
	}
}
