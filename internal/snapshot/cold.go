package snapshot

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Archiver is the last persistence resort: an append-only file archive
// that engages only while both the hot and warm tiers are down. Writes
// are queued to a single dedicated writer goroutine, so the caller never
// blocks and file appends never contend. The queue is bounded; when it
// overflows, records are dropped and counted loudly rather than growing
// memory without limit.
type Archiver struct {
	baseDir string
	health  *Health
	logger  *zap.Logger
	now     func() time.Time

	queue chan archiveRecord
	stop  chan struct{}
	done  chan struct{}

	closed    atomic.Bool
	closeOnce sync.Once

	written atomic.Int64
	dropped atomic.Int64
}

type archiveRecord struct {
	InstrumentKey string `json:"instrument_key"`
	Payload       string `json:"payload"` // base64
	ArchivedAt    int64  `json:"archived_at"`
}

func NewArchiver(baseDir string, queueSize int, health *Health, logger *zap.Logger) (*Archiver, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}
	if queueSize <= 0 {
		queueSize = 10000
	}

	a := &Archiver{
		baseDir: baseDir,
		health:  health,
		logger:  logger,
		now:     time.Now,
		queue:   make(chan archiveRecord, queueSize),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go a.run()
	return a, nil
}

// Archive queues the payload for the hourly log file. It is a no-op
// unless both upper tiers are currently down, and it never blocks or
// errors toward the caller.
func (a *Archiver) Archive(key string, payload []byte) {
	if a.health.HotUp() || a.health.WarmUp() {
		return
	}
	if a.closed.Load() {
		a.dropped.Add(1)
		return
	}

	rec := archiveRecord{
		InstrumentKey: key,
		Payload:       base64.StdEncoding.EncodeToString(payload),
		ArchivedAt:    a.now().UnixMilli(),
	}
	select {
	case a.queue <- rec:
	default:
		a.dropped.Add(1)
		a.logger.Error("archive queue full, dropping record",
			zap.String("instrument", key),
			zap.Int64("dropped_total", a.dropped.Load()))
	}
}

func (a *Archiver) run() {
	defer close(a.done)
	for {
		select {
		case rec := <-a.queue:
			a.write(rec)
		case <-a.stop:
			// Drain whatever intake queued before the stop.
			for {
				select {
				case rec := <-a.queue:
					a.write(rec)
				default:
					return
				}
			}
		}
	}
}

func (a *Archiver) write(rec archiveRecord) {
	if err := a.append(rec); err != nil {
		// Last resort failed too: log and drop.
		a.dropped.Add(1)
		a.logger.Error("failed to archive record",
			zap.String("instrument", rec.InstrumentKey),
			zap.Error(err))
		return
	}
	a.written.Add(1)
}

// append writes one NDJSON line to the current hour's file, creating
// the date directory and file lazily.
func (a *Archiver) append(rec archiveRecord) error {
	now := a.now()
	dateDir := filepath.Join(a.baseDir, now.Format("2006-01-02"))
	if err := os.MkdirAll(dateDir, 0755); err != nil {
		return fmt.Errorf("create date directory: %w", err)
	}

	name := fmt.Sprintf("market_data_%s.log", now.Format("2006-01-02_15"))
	f, err := os.OpenFile(filepath.Join(dateDir, name),
		os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open archive file: %w", err)
	}
	defer f.Close()

	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode archive record: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append archive record: %w", err)
	}
	return nil
}

// Tier binds the archiver into the cascade. No read path: the archive is
// an operational artifact, not part of automated recovery.
func (a *Archiver) Tier() Tier {
	return Tier{
		Name: "cold",
		Write: func(_ context.Context, key string, payload []byte, _ int64) error {
			a.Archive(key, payload)
			return nil
		},
		Healthy: func() bool { return !a.closed.Load() },
	}
}

// Close stops intake and drains pending writes.
func (a *Archiver) Close() {
	a.closeOnce.Do(func() {
		a.closed.Store(true)
		close(a.stop)
		<-a.done
	})
}

// Written returns the number of records appended to disk.
func (a *Archiver) Written() int64 { return a.written.Load() }

// Dropped returns the number of records lost to overflow or errors.
func (a *Archiver) Dropped() int64 { return a.dropped.Load() }
