package snapshot

import (
	"bufio"
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
)

func downHealth() *Health {
	h := NewHealth()
	h.SetHot(false)
	h.SetWarm(false)
	return h
}

// go test -v --run TestArchiveEngagesOnlyWhenBothTiersDown
func TestArchiveEngagesOnlyWhenBothTiersDown(t *testing.T) {
	health := NewHealth()
	a, err := NewArchiver(t.TempDir(), 16, health, zap.NewNop())
	if err != nil {
		t.Fatalf("NewArchiver: %v", err)
	}

	a.Archive("KEY", []byte("up"))
	health.SetHot(false)
	a.Archive("KEY", []byte("warm still up"))
	a.Close()

	if got := a.Written(); got != 0 {
		t.Fatalf("archive wrote %d records while an upper tier was up", got)
	}
}

// go test -v --run TestArchiveWritesHourlyLog
func TestArchiveWritesHourlyLog(t *testing.T) {
	dir := t.TempDir()
	a, err := NewArchiver(dir, 16, downHealth(), zap.NewNop())
	if err != nil {
		t.Fatalf("NewArchiver: %v", err)
	}
	now := time.Date(2025, 1, 2, 14, 5, 0, 0, time.UTC)
	a.now = func() time.Time { return now }

	payloads := [][]byte{[]byte(`{"seq":1}`), []byte(`{"seq":2}`), []byte(`{"seq":3}`)}
	for _, p := range payloads {
		a.Archive("NSE_EQ|INE001", p)
	}
	a.Close()

	if got := a.Written(); got != 3 {
		t.Fatalf("written = %d, want 3", got)
	}
	if got := a.Dropped(); got != 0 {
		t.Fatalf("dropped = %d, want 0", got)
	}

	path := filepath.Join(dir, "2025-01-02", "market_data_2025-01-02_14.log")
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open archive file: %v", err)
	}
	defer f.Close()

	var lines int
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec archiveRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			t.Fatalf("line %d is not valid JSON: %v", lines+1, err)
		}
		decoded, err := base64.StdEncoding.DecodeString(rec.Payload)
		if err != nil {
			t.Fatalf("line %d payload not base64: %v", lines+1, err)
		}
		if string(decoded) != string(payloads[lines]) {
			t.Fatalf("line %d payload = %s, want %s", lines+1, decoded, payloads[lines])
		}
		lines++
	}
	if lines != 3 {
		t.Fatalf("archive file has %d lines, want 3", lines)
	}
}

// go test -v --run TestArchiveQueueBound
func TestArchiveQueueBound(t *testing.T) {
	// Built by hand without the writer goroutine so the queue stays full.
	a := &Archiver{
		baseDir: t.TempDir(),
		health:  downHealth(),
		logger:  zap.NewNop(),
		now:     time.Now,
		queue:   make(chan archiveRecord, 2),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}

	for i := 0; i < 5; i++ {
		a.Archive("KEY", []byte("x"))
	}
	if got := a.Dropped(); got != 3 {
		t.Fatalf("dropped = %d, want 3", got)
	}

	// Once the writer starts, the queued records drain on Close.
	go a.run()
	a.Close()
	if got := a.Written(); got != 2 {
		t.Fatalf("written = %d, want 2", got)
	}
}

// go test -v --run TestArchiveAfterClose
func TestArchiveAfterClose(t *testing.T) {
	a, err := NewArchiver(t.TempDir(), 16, downHealth(), zap.NewNop())
	if err != nil {
		t.Fatalf("NewArchiver: %v", err)
	}
	a.Close()
	a.Close() // idempotent

	a.Archive("KEY", []byte("late"))
	if got := a.Dropped(); got != 1 {
		t.Fatalf("dropped after close = %d, want 1", got)
	}
}
