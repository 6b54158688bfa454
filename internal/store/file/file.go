package file

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/s22625/nexusflow/internal/model"
	"github.com/s22625/nexusflow/internal/store"
)

// tailBytes is how much of the file end Append reads to find the newest id.
const tailBytes = 64 << 10

// FileStore implements store.Store as an append-only JSON Lines file.
// Appends hold an exclusive file lock, so several processes may share one
// history directory.
type FileStore struct {
	path   string
	mu     sync.Mutex
	lastID int64
}

// New opens (or creates) the history file inside dir.
func New(dir string) (*FileStore, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("invalid history path: %w", err)
	}
	if err := os.MkdirAll(absDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	s := &FileStore{path: filepath.Join(absDir, store.FileName)}
	recs, err := s.load()
	if err != nil {
		return nil, err
	}
	for _, rec := range recs {
		if rec.ID > s.lastID {
			s.lastID = rec.ID
		}
	}
	return s, nil
}

// Path returns the history file path
func (s *FileStore) Path() string {
	return s.path
}

// Append writes rec as one line and assigns the next id
func (s *FileStore) Append(ctx context.Context, rec *model.HistoryRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return fmt.Errorf("failed to open history file: %w", err)
	}
	defer f.Close()
	if err := lockFile(f); err != nil {
		return fmt.Errorf("failed to lock history file: %w", err)
	}
	defer unlockFile(f)

	tailID, torn, err := tailState(f)
	if err != nil {
		return err
	}

	next := *rec
	next.ID = max(tailID, s.lastID) + 1
	line, err := json.Marshal(&next)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}
	line = append(line, '\n')
	if torn {
		line = append([]byte{'\n'}, line...)
	}
	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("failed to append record: %w", err)
	}

	s.lastID = next.ID
	rec.ID = next.ID
	return nil
}

// tailState returns the newest id in the last tailBytes of f and whether the
// file ends mid-line (an interrupted write). Other processes append between
// our own writes, so the id is read back under the lock every time.
func tailState(f *os.File) (int64, bool, error) {
	info, err := f.Stat()
	if err != nil {
		return 0, false, fmt.Errorf("failed to stat history file: %w", err)
	}
	size := info.Size()
	if size == 0 {
		return 0, false, nil
	}
	n := min(size, tailBytes)
	buf := make([]byte, n)
	if _, err := f.ReadAt(buf, size-n); err != nil && err != io.EOF {
		return 0, false, fmt.Errorf("failed to read history file: %w", err)
	}
	torn := buf[n-1] != '\n'

	lines := bytes.Split(buf, []byte{'\n'})
	for i := len(lines) - 1; i >= 0; i-- {
		if i == 0 && n < size {
			break // cut off by the read window
		}
		var rec model.HistoryRecord
		if err := json.Unmarshal(lines[i], &rec); err == nil && rec.ID > 0 {
			return rec.ID, torn, nil
		}
	}
	return 0, torn, nil
}

// List reads the whole file and filters in memory
func (s *FileStore) List(ctx context.Context, filter *store.ListFilter) ([]*model.HistoryRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	recs, err := s.load()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	var out []*model.HistoryRecord
	for _, rec := range recs {
		if filter.Matches(rec) {
			out = append(out, rec)
		}
	}
	return store.SortNewestFirst(out, filter.LimitOf()), nil
}

// Close is a no-op; the file is opened per append
func (s *FileStore) Close() error {
	return nil
}

// load parses every well-formed line; torn or foreign lines are skipped
func (s *FileStore) load() ([]*model.HistoryRecord, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open history file: %w", err)
	}
	defer f.Close()

	var recs []*model.HistoryRecord
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec model.HistoryRecord
		if err := json.Unmarshal(line, &rec); err != nil || rec.ID <= 0 {
			continue
		}
		recs = append(recs, &rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read history file: %w", err)
	}
	return recs, nil
}
