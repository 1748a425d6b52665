package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	logx "tgintel/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.floods.jsonl            (append-only JSON Lines)
//   - <prefix>.scans.jsonl             (append-only JSON Lines)
//   - <prefix>.entities.snapshot.json  (periodic snapshot)
//   - <prefix>.entities.journal.jsonl  (append-only journal)
//
// The entity journal is periodically compacted into the snapshot.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	floodFile *os.File
	scanFile  *os.File

	entitySnapshotPath string
	entityJournalFile  *os.File
	entities           map[string]EntityRecord

	entityWrites int
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	floodPath := prefix + ".floods.jsonl"
	scanPath := prefix + ".scans.jsonl"
	snapPath := prefix + ".entities.snapshot.json"
	journalPath := prefix + ".entities.journal.jsonl"

	ff, err := os.OpenFile(floodPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	sf, err := os.OpenFile(scanPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		_ = ff.Close()
		return nil, err
	}

	// Load entities from snapshot + journal.
	entities := map[string]EntityRecord{}
	_ = loadEntitySnapshot(snapPath, entities)
	_ = replayEntityJournal(journalPath, entities)

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		_ = ff.Close()
		_ = sf.Close()
		return nil, err
	}

	return &fileStore{
		log:                log,
		floodFile:          ff,
		scanFile:           sf,
		entitySnapshotPath: snapPath,
		entityJournalFile:  jf,
		entities:           entities,
	}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var first error
	for _, f := range []**os.File{&s.floodFile, &s.scanFile, &s.entityJournalFile} {
		if *f != nil {
			if err := (*f).Close(); err != nil && first == nil {
				first = err
			}
			*f = nil
		}
	}
	return first
}

func (s *fileStore) PutEntity(ctx context.Context, rec EntityRecord) error {
	_ = ctx
	rec.Key = strings.TrimSpace(rec.Key)
	if rec.Key == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entityJournalFile == nil {
		return errors.New("entity journal closed")
	}
	if s.entities == nil {
		s.entities = map[string]EntityRecord{}
	}
	s.entities[rec.Key] = rec

	enc := json.NewEncoder(s.entityJournalFile)
	if err := enc.Encode(rec); err != nil {
		return err
	}
	s.entityWrites++
	if s.entityWrites%1000 == 0 {
		// Best-effort compact.
		if err := s.compactLocked(); err != nil {
			s.log.Debug("entity compact failed", logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) GetEntity(ctx context.Context, key string) (EntityRecord, bool, error) {
	_ = ctx
	key = strings.TrimSpace(key)
	if key == "" {
		return EntityRecord{}, false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.entities[key]
	return rec, ok, nil
}

func (s *fileStore) AppendFlood(ctx context.Context, ev FloodEvent) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.floodFile == nil {
		return errors.New("flood file closed")
	}
	return json.NewEncoder(s.floodFile).Encode(ev)
}

func (s *fileStore) RecordScan(ctx context.Context, rec ScanRecord) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scanFile == nil {
		return errors.New("scan file closed")
	}
	return json.NewEncoder(s.scanFile).Encode(rec)
}

func (s *fileStore) compactLocked() error {
	if s.entities == nil {
		return nil
	}
	tmp := s.entitySnapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(s.entities); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.entitySnapshotPath); err != nil {
		return err
	}
	// Truncate journal.
	if err := s.entityJournalFile.Truncate(0); err != nil {
		return err
	}
	_, err = s.entityJournalFile.Seek(0, 2)
	return err
}

func loadEntitySnapshot(path string, out map[string]EntityRecord) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var m map[string]EntityRecord
	if err := json.NewDecoder(f).Decode(&m); err != nil {
		return err
	}
	for k, v := range m {
		out[k] = v
	}
	return nil
}

func replayEntityJournal(path string, out map[string]EntityRecord) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	s := bufio.NewScanner(f)
	for s.Scan() {
		var r EntityRecord
		if err := json.Unmarshal(s.Bytes(), &r); err != nil {
			continue
		}
		if r.Key == "" {
			continue
		}
		out[r.Key] = r
	}
	return s.Err()
}
