package persistence

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/talgya/ai-town/internal/engine"
	"github.com/talgya/ai-town/internal/events"
)

const archiveHourLayout = "2006-01-02-15"

// EventArchive writes retired events as zstd-compressed JSONL, one file per
// simulated hour: <dir>/events-YYYY-MM-DD-HH.jsonl.zst.
type EventArchive struct {
	dir string

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

var _ engine.EventSink = (*EventArchive)(nil)

func NewEventArchive(dir string) *EventArchive {
	return &EventArchive{dir: dir}
}

// Archive appends events, rotating files by each event's timestamp.
func (a *EventArchive) Archive(_ context.Context, evs []events.Event) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, e := range evs {
		hour := e.Timestamp.UTC().Format(archiveHourLayout)
		if hour != a.curHour {
			if err := a.rotateLocked(hour); err != nil {
				return fmt.Errorf("rotate archive: %w", err)
			}
		}
		b, err := json.Marshal(e)
		if err != nil {
			return err
		}
		if _, err := a.w.Write(b); err != nil {
			return err
		}
		if err := a.w.WriteByte('\n'); err != nil {
			return err
		}
	}
	if a.w == nil {
		return nil
	}
	if err := a.w.Flush(); err != nil {
		return err
	}
	return a.enc.Flush()
}

// Close flushes and closes the current file.
func (a *EventArchive) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closeLocked()
}

// PathForHour returns the archive file for an hour in archiveHourLayout.
func (a *EventArchive) PathForHour(hour string) string {
	return filepath.Join(a.dir, fmt.Sprintf("events-%s.jsonl.zst", hour))
}

func (a *EventArchive) rotateLocked(hour string) error {
	if err := a.closeLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(a.PathForHour(hour), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	a.f = f
	a.enc = enc
	a.w = bufio.NewWriterSize(enc, 64*1024)
	a.curHour = hour
	return nil
}

func (a *EventArchive) closeLocked() error {
	var errs []error
	if a.w != nil {
		errs = append(errs, a.w.Flush())
	}
	if a.enc != nil {
		errs = append(errs, a.enc.Close())
		a.enc = nil
	}
	if a.f != nil {
		errs = append(errs, a.f.Close())
		a.f = nil
	}
	a.w = nil
	a.curHour = ""
	return errors.Join(errs...)
}

// ReadArchive decodes every event in one archive file.
func ReadArchive(path string) ([]events.Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	var out []events.Event
	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		var e events.Event
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		out = append(out, e)
	}
	return out, sc.Err()
}

// MultiSink fans retired events out to several sinks. All sinks are tried;
// their errors are joined.
type MultiSink []engine.EventSink

func (m MultiSink) Archive(ctx context.Context, evs []events.Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Archive(ctx, evs); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
