package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"climb/internal/engine"
)

// Journal appends every committed event as one JSON line to an hourly
// zstd-compressed file under dir.
type Journal struct {
	dir string
	log *log.Logger
	now func() time.Time

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func NewJournal(dir string, logger *log.Logger) *Journal {
	return &Journal{dir: dir, log: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Publish implements engine.Publisher. Write failures are logged; the game
// has already committed.
func (j *Journal) Publish(ev engine.Event) {
	if err := j.Write(ev); err != nil {
		j.log.Printf("journal: game=%s kind=%s: %v", ev.GameID, ev.Kind, err)
	}
}

func (j *Journal) Write(v any) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	hour := j.now().Format("2006-01-02-15")
	if hour != j.curHour {
		if err := j.rotateLocked(hour); err != nil {
			return err
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := j.w.Write(b); err != nil {
		return err
	}
	if err := j.w.WriteByte('\n'); err != nil {
		return err
	}
	if err := j.w.Flush(); err != nil {
		return err
	}
	// Each event ends a zstd block so the live file is readable.
	return j.enc.Flush()
}

func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.closeLocked()
}

func (j *Journal) rotateLocked(hour string) error {
	if err := j.closeLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(j.dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(j.pathForHour(hour), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	j.f = f
	j.enc = enc
	j.w = bufio.NewWriterSize(enc, 32*1024)
	j.curHour = hour
	return nil
}

func (j *Journal) closeLocked() error {
	var err error
	if j.w != nil {
		_ = j.w.Flush()
	}
	if j.enc != nil {
		err = j.enc.Close()
		j.enc = nil
	}
	if j.f != nil {
		_ = j.f.Close()
		j.f = nil
	}
	j.w = nil
	j.curHour = ""
	return err
}

func (j *Journal) pathForHour(hour string) string {
	return filepath.Join(j.dir, fmt.Sprintf("events-%s.jsonl.zst", hour))
}

// readJournal decodes every event line from a journal file. A file still
// being written ends in an unterminated frame; the events before that point
// are returned.
func readJournal(path string) ([]engine.Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("open zstd reader: %w", err)
	}
	defer dec.Close()

	var out []engine.Event
	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 4<<20)
	for sc.Scan() {
		var ev engine.Event
		if err := json.Unmarshal(sc.Bytes(), &ev); err != nil {
			return nil, fmt.Errorf("decode journal line: %w", err)
		}
		out = append(out, ev)
	}
	if err := sc.Err(); err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return out, err
	}
	return out, nil
}
