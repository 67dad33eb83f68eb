package audit

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestSanitizeDetails(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{`swap failed, reverted`, `swap failed; reverted`},
		{`error "STF"`, `error 'STF'`},
		{`plain`, `plain`},
		{`a,b"c",d`, `a;b'c';d`},
	}
	for _, tc := range cases {
		if got := SanitizeDetails(tc.in); got != tc.want {
			t.Fatalf("SanitizeDetails(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestCSVSinkWritesHeaderOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.csv")

	sink, err := NewCSVSink(path)
	if err != nil {
		t.Fatalf("open sink: %v", err)
	}
	event := Event{
		Time:    time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		Block:   1234,
		Type:    TypeRebalance,
		Price:   2500.5,
		Tick:    -200311,
		Details: `range moved, new id "42"`,
	}
	if err := sink.Record(context.Background(), event); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// Reopen and append; the header must not repeat.
	sink, err = NewCSVSink(path)
	if err != nil {
		t.Fatalf("reopen sink: %v", err)
	}
	if err := sink.Record(context.Background(), event); err != nil {
		t.Fatalf("record again: %v", err)
	}
	sink.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header + 2 rows, got %d lines", len(lines))
	}
	if lines[0] != "Timestamp,Block,Type,Price,Tick,Details" {
		t.Fatalf("bad header: %s", lines[0])
	}
	if !strings.Contains(lines[1], "REBALANCE") {
		t.Fatalf("row missing type: %s", lines[1])
	}
	if strings.Contains(lines[1], `"`) {
		t.Fatalf("row contains unsanitized quote: %s", lines[1])
	}
	if strings.Count(lines[1], ",") != 5 {
		t.Fatalf("row has wrong field count: %s", lines[1])
	}
}
