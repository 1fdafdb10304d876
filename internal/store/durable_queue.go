package store

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/digitalself/location-agent/internal/models"
	"github.com/rs/zerolog"
)

// PersistenceError reports a storage-layer failure (disk full, permissions).
// These are the only pipeline errors surfaced synchronously, since losing
// durability undermines the retry guarantee.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("durable queue %s failed: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// DurableQueueInterface defines the operations of the undelivered-sample spool.
type DurableQueueInterface interface {
	Append(record models.EventRecord) error
	DrainAll() ([]models.EventRecord, error)
	TruncateHead(n int) error
	Clear() error
	Size() int
}

// DurableQueue persists undelivered EventRecords across process restarts as a
// JSON-lines append log. Every append is synced to disk before returning, so
// an enqueued record survives a crash immediately after enqueue. A single
// mutex serializes appends against drain/clear.
type DurableQueue struct {
	path   string
	file   *os.File
	size   int
	logger zerolog.Logger
	mu     sync.Mutex
}

// NewDurableQueue opens (or creates) the spool file at path and counts the
// records already pending from a previous run.
func NewDurableQueue(path string, logger zerolog.Logger) (*DurableQueue, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, &PersistenceError{Op: "open", Err: err}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o600)
	if err != nil {
		return nil, &PersistenceError{Op: "open", Err: err}
	}

	q := &DurableQueue{
		path:   path,
		file:   f,
		logger: logger,
	}

	if err := q.repairTail(); err != nil {
		f.Close()
		return nil, err
	}

	pending, err := q.readAll()
	if err != nil {
		f.Close()
		return nil, err
	}
	q.size = len(pending)

	if q.size > 0 {
		logger.Info().Int("pending", q.size).Str("spool", path).Msg("Recovered undelivered records from spool")
	}

	return q, nil
}

// Append adds one record to the spool. The write is flushed to stable storage
// before Append returns.
func (q *DurableQueue) Append(record models.EventRecord) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	data, err := json.Marshal(record)
	if err != nil {
		return &PersistenceError{Op: "append", Err: err}
	}
	data = append(data, '\n')

	if _, err := q.file.Write(data); err != nil {
		return &PersistenceError{Op: "append", Err: err}
	}
	if err := q.file.Sync(); err != nil {
		return &PersistenceError{Op: "append", Err: err}
	}

	q.size++
	return nil
}

// DrainAll returns every record currently in the spool, in insertion order,
// without removing them.
func (q *DurableQueue) DrainAll() ([]models.EventRecord, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.readAll()
}

// TruncateHead removes the first n records from the spool, leaving any record
// appended after the caller's DrainAll in place. The remainder is rewritten to
// a temp file and renamed over the spool so a crash mid-truncate leaves either
// the old or the new contents, never a mix.
func (q *DurableQueue) TruncateHead(n int) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if n <= 0 {
		return nil
	}

	records, err := q.readAll()
	if err != nil {
		return err
	}

	if n >= len(records) {
		if err := q.file.Truncate(0); err != nil {
			return &PersistenceError{Op: "truncate", Err: err}
		}
		if err := q.file.Sync(); err != nil {
			return &PersistenceError{Op: "truncate", Err: err}
		}
		q.size = 0
		return nil
	}

	remainder := records[n:]
	var buf bytes.Buffer
	for _, record := range remainder {
		line, err := json.Marshal(record)
		if err != nil {
			return &PersistenceError{Op: "truncate", Err: err}
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}

	tmpPath := q.path + ".tmp"
	tmp, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return &PersistenceError{Op: "truncate", Err: err}
	}
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return &PersistenceError{Op: "truncate", Err: err}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return &PersistenceError{Op: "truncate", Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return &PersistenceError{Op: "truncate", Err: err}
	}
	if err := os.Rename(tmpPath, q.path); err != nil {
		os.Remove(tmpPath)
		return &PersistenceError{Op: "truncate", Err: err}
	}

	reopened, err := os.OpenFile(q.path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o600)
	if err != nil {
		return &PersistenceError{Op: "truncate", Err: err}
	}
	q.file.Close()
	q.file = reopened
	q.size = len(remainder)
	return nil
}

// Clear empties the spool unconditionally.
func (q *DurableQueue) Clear() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.file.Truncate(0); err != nil {
		return &PersistenceError{Op: "clear", Err: err}
	}
	if err := q.file.Sync(); err != nil {
		return &PersistenceError{Op: "clear", Err: err}
	}

	q.size = 0
	return nil
}

// Size returns the count of pending records.
func (q *DurableQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.size
}

// Close releases the spool file handle.
func (q *DurableQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.file.Close()
}

// repairTail terminates a torn final line left by a crash mid-append, so the
// next append starts on a fresh line instead of gluing onto the fragment.
func (q *DurableQueue) repairTail() error {
	info, err := q.file.Stat()
	if err != nil {
		return &PersistenceError{Op: "open", Err: err}
	}
	if info.Size() == 0 {
		return nil
	}

	tail := make([]byte, 1)
	if _, err := q.file.ReadAt(tail, info.Size()-1); err != nil {
		return &PersistenceError{Op: "open", Err: err}
	}
	if tail[0] == '\n' {
		return nil
	}

	q.logger.Warn().Str("spool", q.path).Msg("Spool ends mid-record, sealing torn line")
	if _, err := q.file.Write([]byte{'\n'}); err != nil {
		return &PersistenceError{Op: "open", Err: err}
	}
	if err := q.file.Sync(); err != nil {
		return &PersistenceError{Op: "open", Err: err}
	}
	return nil
}

// readAll parses the spool file. A torn final line (crash mid-write) is
// skipped with a warning rather than poisoning the whole spool. Caller must
// hold q.mu.
func (q *DurableQueue) readAll() ([]models.EventRecord, error) {
	data, err := os.ReadFile(q.path)
	if err != nil {
		return nil, &PersistenceError{Op: "read", Err: err}
	}

	var records []models.EventRecord
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var record models.EventRecord
		if err := json.Unmarshal(line, &record); err != nil {
			q.logger.Warn().Err(err).Msg("Skipping unparsable spool line")
			continue
		}
		records = append(records, record)
	}
	if err := scanner.Err(); err != nil {
		return nil, &PersistenceError{Op: "read", Err: err}
	}

	return records, nil
}
