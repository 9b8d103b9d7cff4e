package store

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sweeney/tank-monitor/internal/detect"
	"github.com/sweeney/tank-monitor/internal/logic"
)

var base = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

func TestDedupRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenStateDir(dir)
	if err != nil {
		t.Fatalf("OpenStateDir: %v", err)
	}

	empty, err := s.LoadDedup()
	if err != nil {
		t.Fatalf("LoadDedup on fresh dir: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("expected empty state, got %v", empty)
	}

	want := map[detect.Kind]time.Time{
		detect.KindStagnationRecovery: base,
		detect.KindBackflush:          base.Add(2 * time.Hour),
	}
	if err := s.SaveDedup(want); err != nil {
		t.Fatalf("SaveDedup: %v", err)
	}

	reopened, _ := OpenStateDir(dir)
	got, err := reopened.LoadDedup()
	if err != nil {
		t.Fatalf("LoadDedup: %v", err)
	}
	for k, v := range want {
		if !got[k].Equal(v) {
			t.Errorf("%s: got %v, want %v", k, got[k], v)
		}
	}
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	s, _ := OpenStateDir(dir)
	for i := 0; i < 3; i++ {
		if err := s.SaveRelay(logic.RelayState{Override: logic.StateOn, LastUpdated: base}); err != nil {
			t.Fatalf("SaveRelay: %v", err)
		}
	}
	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp-") {
			t.Errorf("leftover temp file %s", e.Name())
		}
	}
}

func TestRelayRoundTrip(t *testing.T) {
	s, _ := OpenStateDir(t.TempDir())

	_, ok, err := s.LoadRelay()
	if err != nil || ok {
		t.Fatalf("fresh LoadRelay: ok=%v err=%v", ok, err)
	}

	want := logic.RelayState{Bypass: logic.StateOff, Override: logic.StateOn, LastUpdated: base}
	if err := s.SaveRelay(want); err != nil {
		t.Fatalf("SaveRelay: %v", err)
	}
	got, ok, err := s.LoadRelay()
	if err != nil || !ok {
		t.Fatalf("LoadRelay: ok=%v err=%v", ok, err)
	}
	if got.Override != logic.StateOn || got.Bypass != logic.StateOff || !got.LastUpdated.Equal(base) {
		t.Errorf("got %+v", got)
	}
}

func TestCorruptStateFileIsError(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, relayFile), []byte("{not json"), 0o644)
	s, _ := OpenStateDir(dir)
	if _, _, err := s.LoadRelay(); err == nil {
		t.Error("expected decode error")
	}
}

func snap(ts time.Time, gallons float64) logic.Snapshot {
	return logic.Snapshot{Timestamp: ts, TankGallons: logic.Float64(gallons), Float: logic.FloatFull}
}

func TestSnapshotLogAppendAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshots.jsonl")
	l, err := OpenSnapshotLog(path, 0, base)
	if err != nil {
		t.Fatalf("OpenSnapshotLog: %v", err)
	}
	for i := 0; i < 4; i++ {
		if err := l.Append(snap(base.Add(time.Duration(i)*15*time.Minute), float64(1100+i))); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}

	reloaded, err := OpenSnapshotLog(path, 0, base.Add(time.Hour))
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	got := reloaded.Recent()
	if len(got) != 4 {
		t.Fatalf("reloaded %d snapshots, want 4", len(got))
	}
	if g, _ := got[3].Gallons(); g != 1103 {
		t.Errorf("last gallons: got %v", g)
	}
}

func TestSnapshotLogRejectsNonIncreasing(t *testing.T) {
	l, _ := OpenSnapshotLog(filepath.Join(t.TempDir(), "s.jsonl"), 0, base)
	if err := l.Append(snap(base, 1)); err != nil {
		t.Fatal(err)
	}
	if err := l.Append(snap(base, 2)); err == nil {
		t.Error("expected error for equal timestamp")
	}
	if err := l.Append(snap(base.Add(-time.Minute), 2)); err == nil {
		t.Error("expected error for earlier timestamp")
	}
	if len(l.Recent()) != 1 {
		t.Errorf("rejected snapshots must not be retained")
	}
}

func TestSnapshotLogNilGallonsPreserved(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.jsonl")
	l, _ := OpenSnapshotLog(path, 0, base)
	l.Append(logic.Snapshot{Timestamp: base})

	reloaded, _ := OpenSnapshotLog(path, 0, base)
	latest, ok := reloaded.Latest()
	if !ok {
		t.Fatal("expected a snapshot")
	}
	if latest.TankGallons != nil {
		t.Errorf("unknown gallons must reload as nil, got %v", *latest.TankGallons)
	}
}

func TestSnapshotLogRetention(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.jsonl")
	l, _ := OpenSnapshotLog(path, 0, base)
	for i := 0; i < 12; i++ {
		l.Append(snap(base.Add(time.Duration(i)*time.Hour), 1000))
	}

	now := base.Add(11 * time.Hour)
	reloaded, _ := OpenSnapshotLog(path, 3*time.Hour, now)
	got := reloaded.Recent()
	if len(got) != 4 {
		t.Fatalf("retained %d, want 4 (hours 8..11)", len(got))
	}
	if !got[0].Timestamp.Equal(base.Add(8 * time.Hour)) {
		t.Errorf("oldest retained: %v", got[0].Timestamp)
	}

	reloaded.Append(snap(base.Add(12*time.Hour), 1000))
	if got := reloaded.Recent(); !got[0].Timestamp.Equal(base.Add(9 * time.Hour)) {
		t.Errorf("append should trim oldest, got %v", got[0].Timestamp)
	}
}

func TestSnapshotLogSkipsTornLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.jsonl")
	l, _ := OpenSnapshotLog(path, 0, base)
	l.Append(snap(base, 1000))

	f, _ := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	f.WriteString(`{"timestamp":"2026-`)
	f.Close()

	reloaded, err := OpenSnapshotLog(path, 0, base)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if len(reloaded.Recent()) != 1 {
		t.Errorf("expected the torn line to be skipped")
	}
}

func TestEventLogAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	l := NewEventLog(path)
	l.Append(logic.Event{Timestamp: base, Type: logic.EventPressureHigh})
	l.Append(logic.Event{Timestamp: base.Add(time.Minute), Type: logic.EventPressureLow, Value: 12.5, Gallons: logic.Float64(1100)})

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	var recs []eventRecord
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r eventRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			t.Fatalf("decode: %v", err)
		}
		recs = append(recs, r)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d records", len(recs))
	}
	if recs[1].Event != "PRESSURE_LOW" || recs[1].Value != 12.5 || *recs[1].Gallons != 1100 {
		t.Errorf("record: %+v", recs[1])
	}
	if recs[0].Timestamp != "2026-06-01T00:00:00Z" {
		t.Errorf("timestamp: %s", recs[0].Timestamp)
	}
}
