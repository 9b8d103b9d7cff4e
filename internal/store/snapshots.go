package store

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/sweeney/tank-monitor/internal/logic"
)

// SnapshotLog is the append-only snapshot series. It keeps the retained
// tail in memory for detectors; the file is never rewritten.
type SnapshotLog struct {
	mu        sync.RWMutex
	path      string
	retention time.Duration
	recent    []logic.Snapshot
}

// OpenSnapshotLog loads the last retention's worth of snapshots from path.
// Lines that fail to decode (a torn final write) are skipped.
func OpenSnapshotLog(path string, retention time.Duration, now time.Time) (*SnapshotLog, error) {
	l := &SnapshotLog{path: path, retention: retention}

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return l, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open snapshot log: %w", err)
	}
	defer f.Close()

	cutoff := now.Add(-retention)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	var skipped int
	for scanner.Scan() {
		var s logic.Snapshot
		if err := json.Unmarshal(scanner.Bytes(), &s); err != nil {
			skipped++
			continue
		}
		if retention > 0 && s.Timestamp.Before(cutoff) {
			continue
		}
		if n := len(l.recent); n > 0 && !s.Timestamp.After(l.recent[n-1].Timestamp) {
			skipped++
			continue
		}
		l.recent = append(l.recent, s)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read snapshot log: %w", err)
	}
	if skipped > 0 {
		log.Printf("snapshot log: skipped %d unreadable or out-of-order lines", skipped)
	}
	return l, nil
}

// Append writes s to the log. Timestamps must be strictly increasing.
func (l *SnapshotLog) Append(s logic.Snapshot) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if n := len(l.recent); n > 0 && !s.Timestamp.After(l.recent[n-1].Timestamp) {
		return fmt.Errorf("snapshot %s not after %s", s.Timestamp.Format(time.RFC3339), l.recent[n-1].Timestamp.Format(time.RFC3339))
	}
	if err := appendLine(l.path, s); err != nil {
		return fmt.Errorf("append snapshot: %w", err)
	}

	l.recent = append(l.recent, s)
	if l.retention > 0 {
		cutoff := s.Timestamp.Add(-l.retention)
		i := 0
		for i < len(l.recent) && l.recent[i].Timestamp.Before(cutoff) {
			i++
		}
		if i > 0 {
			l.recent = append(l.recent[:0:0], l.recent[i:]...)
		}
	}
	return nil
}

// Recent returns the retained snapshots, oldest first. The slice is a copy.
func (l *SnapshotLog) Recent() []logic.Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]logic.Snapshot(nil), l.recent...)
}

// Latest returns the newest snapshot.
func (l *SnapshotLog) Latest() (logic.Snapshot, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.recent) == 0 {
		return logic.Snapshot{}, false
	}
	return l.recent[len(l.recent)-1], true
}

// appendLine writes one JSON line with O_APPEND and fsyncs it.
func appendLine(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
