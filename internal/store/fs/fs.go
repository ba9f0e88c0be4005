// Package fs implementa el backend file-backed del audit trail.
// Los registros se persisten en un log JSONL append-only y el estado de
// la cadena (last hash) en un archivo YAML aparte. Al abrir se
// reconstruye un índice in-memory desde el log; las lecturas nunca
// tocan disco.
package fs

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dropDatabas3/lextrail/internal/audit"
	"github.com/dropDatabas3/lextrail/internal/store/core"
)

const (
	recordsFile = "records.jsonl"
	stateFile   = "state.yaml"
	dirPerm     = 0o755
	filePerm    = 0o644
)

// chainState es el contenido de state.yaml.
type chainState struct {
	LastHash *string `yaml:"last_hash"`
}

// Storage es el backend file-backed.
type Storage struct {
	root string

	mu      sync.RWMutex
	records map[string]*audit.Record
	logF    *os.File

	hashMu   sync.RWMutex
	lastHash *string
}

// Open crea (si hace falta) el directorio de datos y reconstruye el
// índice desde el log existente.
func Open(root string) (*Storage, error) {
	if root == "" {
		return nil, fmt.Errorf("fs: %w: data dir is required", core.ErrInvalid)
	}
	if err := os.MkdirAll(root, dirPerm); err != nil {
		return nil, fmt.Errorf("fs: create data dir: %w", err)
	}

	s := &Storage{
		root:    root,
		records: make(map[string]*audit.Record),
	}
	if err := s.loadRecords(); err != nil {
		return nil, err
	}
	if err := s.loadState(); err != nil {
		return nil, err
	}

	logF, err := os.OpenFile(filepath.Join(root, recordsFile),
		os.O_CREATE|os.O_WRONLY|os.O_APPEND, filePerm)
	if err != nil {
		return nil, fmt.Errorf("fs: open records log: %w", err)
	}
	s.logF = logF
	return s, nil
}

func (s *Storage) loadRecords() error {
	f, err := os.Open(filepath.Join(s.root, recordsFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("fs: open records log: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		raw := sc.Bytes()
		if len(raw) == 0 {
			continue
		}
		var rec audit.Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			return fmt.Errorf("fs: corrupt record at line %d: %w", line, err)
		}
		// Re-writes del mismo id: la última entrada del log gana
		s.records[rec.ID] = &rec
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("fs: read records log: %w", err)
	}
	return nil
}

func (s *Storage) loadState() error {
	raw, err := os.ReadFile(filepath.Join(s.root, stateFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("fs: read state: %w", err)
	}
	var st chainState
	if err := yaml.Unmarshal(raw, &st); err != nil {
		return fmt.Errorf("fs: parse state: %w", err)
	}
	s.lastHash = st.LastHash
	return nil
}

func (s *Storage) Store(ctx context.Context, rec *audit.Record) error {
	if rec == nil || rec.ID == "" {
		return fmt.Errorf("fs: %w: record with id is required", core.ErrInvalid)
	}

	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("fs: marshal record %s: %w", rec.ID, err)
	}
	raw = append(raw, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.logF.Write(raw); err != nil {
		return fmt.Errorf("fs: append record %s: %w", rec.ID, err)
	}
	if err := s.logF.Sync(); err != nil {
		return fmt.Errorf("fs: sync records log: %w", err)
	}
	s.records[rec.ID] = rec.Clone()
	return nil
}

func (s *Storage) Get(ctx context.Context, id string) (*audit.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("fs: get %s: %w", id, core.ErrNotFound)
	}
	return rec.Clone(), nil
}

func (s *Storage) GetAll(ctx context.Context) ([]*audit.Record, error) {
	return s.collect(func(r *audit.Record) bool { return true }), nil
}

func (s *Storage) GetByStatute(ctx context.Context, statuteID string) ([]*audit.Record, error) {
	return s.collect(func(r *audit.Record) bool { return r.StatuteID == statuteID }), nil
}

func (s *Storage) GetBySubject(ctx context.Context, subjectID string) ([]*audit.Record, error) {
	return s.collect(func(r *audit.Record) bool { return r.SubjectID == subjectID }), nil
}

func (s *Storage) GetByTimeRange(ctx context.Context, start, end time.Time) ([]*audit.Record, error) {
	return s.collect(func(r *audit.Record) bool {
		return !r.Timestamp.Before(start) && !r.Timestamp.After(end)
	}), nil
}

func (s *Storage) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

func (s *Storage) LastHash(ctx context.Context) (*string, error) {
	s.hashMu.RLock()
	defer s.hashMu.RUnlock()
	if s.lastHash == nil {
		return nil, nil
	}
	h := *s.lastHash
	return &h, nil
}

// SetLastHash persiste el estado con write-to-temp + rename para que un
// crash a mitad de escritura nunca deje un state.yaml truncado.
func (s *Storage) SetLastHash(ctx context.Context, hash *string) error {
	s.hashMu.Lock()
	defer s.hashMu.Unlock()

	var st chainState
	if hash != nil {
		h := *hash
		st.LastHash = &h
	}
	raw, err := yaml.Marshal(&st)
	if err != nil {
		return fmt.Errorf("fs: marshal state: %w", err)
	}

	target := filepath.Join(s.root, stateFile)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, raw, filePerm); err != nil {
		return fmt.Errorf("fs: write state: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		return fmt.Errorf("fs: replace state: %w", err)
	}
	s.lastHash = st.LastHash
	return nil
}

func (s *Storage) Ping(ctx context.Context) error {
	if _, err := os.Stat(s.root); err != nil {
		return fmt.Errorf("fs: %w: %v", core.ErrStorage, err)
	}
	return nil
}

func (s *Storage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.logF == nil {
		return nil
	}
	err := s.logF.Close()
	s.logF = nil
	if err != nil {
		return fmt.Errorf("fs: close records log: %w", err)
	}
	return nil
}

func (s *Storage) collect(match func(*audit.Record) bool) []*audit.Record {
	s.mu.RLock()
	out := make([]*audit.Record, 0, len(s.records))
	for _, rec := range s.records {
		if match(rec) {
			out = append(out, rec.Clone())
		}
	}
	s.mu.RUnlock()

	audit.SortByTimestamp(out)
	return out
}
