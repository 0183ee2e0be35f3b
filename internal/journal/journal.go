package journal

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/glimte/combus-go/contracts"
)

// Event is a queue state transition recorded in the journal.
type Event string

const (
	EventSend    Event = "send"
	EventReceive Event = "receive"
	EventAck     Event = "ack"
	EventRetry   Event = "retry"
	EventDLQ     Event = "dlq"
)

// File names under the journal directory.
const (
	QueueFileName = "queue.jsonl"
	DLQFileName   = "dlq.jsonl"
)

// Record is one journal line: the transition, the envelope it applies to, and
// the error that caused it for retry and dlq events.
type Record struct {
	Event    Event               `json:"event"`
	Envelope *contracts.Envelope `json:"envelope"`
	Error    string              `json:"error,omitempty"`
}

// ReplayResult is the state rebuilt from a journal scan.
type ReplayResult struct {
	// Pending holds envelopes whose last recorded state is send or retry,
	// in first-recorded order.
	Pending []*contracts.Envelope

	// Inflight holds envelopes whose last recorded state is receive, handed
	// to a consumer and never acknowledged, in first-recorded order.
	Inflight []*contracts.Envelope

	// Skipped counts corrupt lines dropped during the scan.
	Skipped int
}

// Journal is an append-only, line-delimited log of queue state transitions
// under a directory: queue.jsonl carries every event and is replayed at
// startup, dlq.jsonl receives a permanent copy of dlq events for inspection
// and is never replayed.
//
// Every append is flushed to stable storage before it returns; callers must
// not consider the corresponding in-memory mutation committed until then.
type Journal struct {
	dir    string
	logger *slog.Logger

	mu        sync.Mutex
	queueFile *os.File
	dlqFile   *os.File
}

// Option configures a Journal.
type Option func(*Journal)

// WithLogger sets the logger used for replay warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(j *Journal) {
		j.logger = logger
	}
}

// Open creates the journal directory if needed and opens both files for
// appending.
func Open(dir string, opts ...Option) (*Journal, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	j := &Journal{
		dir:    dir,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(j)
	}

	queueFile, err := os.OpenFile(j.QueuePath(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open queue journal: %w", err)
	}
	dlqFile, err := os.OpenFile(j.DLQPath(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		queueFile.Close()
		return nil, fmt.Errorf("failed to open dead-letter journal: %w", err)
	}

	j.queueFile = queueFile
	j.dlqFile = dlqFile
	return j, nil
}

// QueuePath returns the path of the main journal file.
func (j *Journal) QueuePath() string {
	return filepath.Join(j.dir, QueueFileName)
}

// DLQPath returns the path of the dead-letter journal file.
func (j *Journal) DLQPath() string {
	return filepath.Join(j.dir, DLQFileName)
}

// Append durably records a state transition. DLQ events are written to both
// the main journal and the dead-letter journal. The record is synced to disk
// before Append returns.
//
// The dead-letter copy lands first: the main journal must never record an
// envelope as dead while the dead-letter file lost it. A dead-letter copy
// without a matching main record is harmless because dlq.jsonl is never
// replayed.
func (j *Journal) Append(event Event, env *contracts.Envelope, errMsg string) error {
	line, err := json.Marshal(Record{Event: event, Envelope: env, Error: errMsg})
	if err != nil {
		return fmt.Errorf("failed to encode journal record: %w", err)
	}
	line = append(line, '\n')

	j.mu.Lock()
	defer j.mu.Unlock()

	if event == EventDLQ {
		if err := writeAndSync(j.dlqFile, line); err != nil {
			return fmt.Errorf("failed to append dead-letter record: %w", err)
		}
	}
	if err := writeAndSync(j.queueFile, line); err != nil {
		return fmt.Errorf("failed to append %s record: %w", event, err)
	}
	return nil
}

func writeAndSync(f *os.File, line []byte) error {
	if _, err := f.Write(line); err != nil {
		return err
	}
	return f.Sync()
}

// Replay scans the main journal in written order and rebuilds queue state.
//
// Deduplication is last-write-wins per envelope id: an id can appear across
// send, receive, retry and terminal events over its lifetime, and only the
// final recorded state matters at restart. send and retry mark the envelope
// pending, receive marks it inflight, ack and dlq mark it done and exclude it
// from the result. Pending order follows the first record per id, so a
// duplicated send keeps its place while reflecting the last payload.
//
// Corrupt or malformed lines are skipped with a warning, never fatal: a crash
// mid-append must not invalidate the lines before it.
func (j *Journal) Replay() (*ReplayResult, error) {
	result := &ReplayResult{}

	f, err := os.Open(j.QueuePath())
	if err != nil {
		if os.IsNotExist(err) {
			return result, nil
		}
		return nil, fmt.Errorf("failed to open journal for replay: %w", err)
	}
	defer f.Close()

	type state int
	const (
		statePending state = iota
		stateInflight
		stateDone
	)

	states := make(map[string]state)
	envelopes := make(map[string]*contracts.Envelope)
	var order []string

	err = readLines(f, func(lineNo int, line []byte) {
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil || rec.Envelope == nil || rec.Envelope.ID == "" {
			j.logger.Warn("Skipping corrupt journal line", "file", j.QueuePath(), "line", lineNo)
			result.Skipped++
			return
		}

		env := rec.Envelope
		if env.Payload == nil {
			env.Payload = map[string]any{}
		}
		if env.Meta == nil {
			env.Meta = map[string]any{}
		}

		var next state
		switch rec.Event {
		case EventSend, EventRetry:
			next = statePending
		case EventReceive:
			next = stateInflight
		case EventAck, EventDLQ:
			next = stateDone
		default:
			j.logger.Warn("Skipping journal line with unknown event", "event", string(rec.Event), "line", lineNo)
			result.Skipped++
			return
		}

		if _, seen := states[env.ID]; !seen {
			order = append(order, env.ID)
		}
		envelopes[env.ID] = env
		states[env.ID] = next
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan journal: %w", err)
	}

	for _, id := range order {
		switch states[id] {
		case statePending:
			result.Pending = append(result.Pending, envelopes[id])
		case stateInflight:
			result.Inflight = append(result.Inflight, envelopes[id])
		}
	}

	return result, nil
}

// readLines calls fn for each non-empty line, numbering lines from 1. Unlike
// a Scanner it carries no line length limit: journal lines are as large as
// the payloads that were accepted for send, and a line too long to buffer in
// one token must not make replay fail.
func readLines(f *os.File, fn func(lineNo int, line []byte)) error {
	reader := bufio.NewReader(f)
	lineNo := 0
	for {
		line, err := reader.ReadBytes('\n')
		if len(bytes.TrimSpace(line)) > 0 {
			lineNo++
			fn(lineNo, bytes.TrimSpace(line))
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// ReadDeadLetters returns every record in the dead-letter journal, skipping
// corrupt lines. It reads the file independently of the append handles so it
// is safe to call on a directory no broker has open.
func (j *Journal) ReadDeadLetters() ([]Record, error) {
	return readRecords(j.DLQPath(), j.logger)
}

// ReadAll returns every record in the main journal, skipping corrupt lines.
func (j *Journal) ReadAll() ([]Record, error) {
	return readRecords(j.QueuePath(), j.logger)
}

func readRecords(path string, logger *slog.Logger) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open journal file: %w", err)
	}
	defer f.Close()

	var records []Record
	err = readLines(f, func(lineNo int, line []byte) {
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			logger.Warn("Skipping corrupt journal line", "file", path, "line", lineNo)
			return
		}
		records = append(records, rec)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan journal file: %w", err)
	}
	return records, nil
}

// Stats summarizes the main journal for inspection tooling.
type Stats struct {
	Records    map[Event]int
	Errors     int
	DeadLetter int
}

// Stats counts records per event in the main journal and entries in the
// dead-letter journal.
func (j *Journal) Stats() (*Stats, error) {
	records, err := j.ReadAll()
	if err != nil {
		return nil, err
	}
	deadLetters, err := j.ReadDeadLetters()
	if err != nil {
		return nil, err
	}

	stats := &Stats{Records: make(map[Event]int), DeadLetter: len(deadLetters)}
	for _, rec := range records {
		stats.Records[rec.Event]++
		if rec.Error != "" {
			stats.Errors++
		}
	}
	return stats, nil
}

// Close closes both journal files.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	var firstErr error
	if j.queueFile != nil {
		if err := j.queueFile.Close(); err != nil {
			firstErr = err
		}
		j.queueFile = nil
	}
	if j.dlqFile != nil {
		if err := j.dlqFile.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		j.dlqFile = nil
	}
	return firstErr
}
