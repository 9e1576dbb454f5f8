package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/vhibench/vhibench/internal/trace"
)

func mkCorpus(t *testing.T, repo string, versions int) string {
	t.Helper()
	dir := t.TempDir()
	repoDir := filepath.Join(dir, repo)
	if err := os.Mkdir(repoDir, 0o755); err != nil {
		t.Fatal(err)
	}
	for i := 1; i <= versions; i++ {
		if err := os.Mkdir(filepath.Join(repoDir, fmt.Sprintf("v%02d", i)), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

// fakeTrial behaves like the tool: it counts the active version directories
// it can see and writes a telemetry file into the work directory.
func fakeTrial(ctx context.Context, workDir, traceName string) (*trace.Record, error) {
	ents, err := os.ReadDir(workDir)
	if err != nil {
		return nil, err
	}
	active := 0
	for _, e := range ents {
		if e.IsDir() && !strings.HasPrefix(e.Name(), "ignore_") {
			active++
		}
	}
	rec := trace.Record{
		NoVersions:         active,
		AvgFilesPerVersion: 1,
		Stages: map[string]float64{
			trace.StageLoadVersions: 0.5,
			trace.StageInfer:        1.5,
			trace.StageSaving:       0.1,
			trace.StageTotal:        2.1,
		},
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(workDir, traceName), data, 0o644); err != nil {
		return nil, err
	}
	return &rec, nil
}

func TestSweep(t *testing.T) {
	corpusDir := mkCorpus(t, "demo", 5)
	s := &Sweeper{
		CorpusDir:     corpusDir,
		VersionCounts: []int{2, 4, 6},
		Runs:          2,
		trial:         fakeTrial,
	}

	records, err := s.Sweep(context.Background(), "demo")
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if len(records) != 4 {
		t.Fatalf("expected 4 records (2 counts x 2 runs), got %d", len(records))
	}
	wantCounts := []int{2, 2, 4, 4}
	wantRuns := []int{1, 2, 1, 2}
	for i, rec := range records {
		if rec.Name != "demo" {
			t.Errorf("record %d: name %q", i, rec.Name)
		}
		if rec.NoVersions != wantCounts[i] {
			t.Errorf("record %d: versions %d, want %d", i, rec.NoVersions, wantCounts[i])
		}
		if rec.Run != wantRuns[i] {
			t.Errorf("record %d: run %d, want %d", i, rec.Run, wantRuns[i])
		}
	}

	// The exhausted count must leave every version active under the
	// canonical name, with no scratch directories or telemetry files.
	corpusEnts, err := os.ReadDir(corpusDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(corpusEnts) != 1 || corpusEnts[0].Name() != "demo" {
		t.Fatalf("unexpected corpus contents: %v", corpusEnts)
	}
	repoEnts, err := os.ReadDir(filepath.Join(corpusDir, "demo"))
	if err != nil {
		t.Fatal(err)
	}
	active := 0
	for _, e := range repoEnts {
		if !e.IsDir() {
			t.Errorf("unexpected file in repository: %s", e.Name())
			continue
		}
		if !strings.HasPrefix(e.Name(), "ignore_") {
			active++
		}
	}
	if active != 5 {
		t.Errorf("expected all 5 versions active, got %d", active)
	}
}

func TestSweepTrialFailure(t *testing.T) {
	corpusDir := mkCorpus(t, "demo", 5)
	calls := 0
	s := &Sweeper{
		CorpusDir:     corpusDir,
		VersionCounts: []int{2},
		Runs:          5,
		trial: func(ctx context.Context, workDir, traceName string) (*trace.Record, error) {
			calls++
			if calls == 2 {
				// a crashing tool can leave a partial file behind
				os.WriteFile(filepath.Join(workDir, traceName), []byte("partial"), 0o644)
				return nil, fmt.Errorf("exit status 1")
			}
			return fakeTrial(ctx, workDir, traceName)
		},
	}

	records, err := s.Sweep(context.Background(), "demo")
	if err == nil {
		t.Fatal("expected error from failing trial")
	}
	if len(records) != 1 {
		t.Errorf("expected 1 record captured before the failure, got %d", len(records))
	}
	corpusEnts, readErr := os.ReadDir(corpusDir)
	if readErr != nil {
		t.Fatal(readErr)
	}
	if len(corpusEnts) != 1 || corpusEnts[0].Name() != "demo" {
		t.Errorf("expected only the canonical directory, got %v", corpusEnts)
	}
	if _, err := os.Stat(filepath.Join(corpusDir, "demo", trace.TempFileName)); !os.IsNotExist(err) {
		t.Error("expected transient telemetry to be removed")
	}
}

func TestSweepKeepTraces(t *testing.T) {
	corpusDir := mkCorpus(t, "demo", 3)
	tags := trace.Tags{ScannerOff: true}
	s := &Sweeper{
		CorpusDir:     corpusDir,
		VersionCounts: []int{2},
		Runs:          2,
		KeepTraces:    true,
		Tags:          tags,
		trial:         fakeTrial,
	}

	records, err := s.Sweep(context.Background(), "demo")
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	for run := 1; run <= 2; run++ {
		name := trace.SweepFileName(tags, 2, run)
		if _, err := os.Stat(filepath.Join(corpusDir, "demo", name)); err != nil {
			t.Errorf("expected kept trace %s: %v", name, err)
		}
	}
	if _, err := os.Stat(filepath.Join(corpusDir, "demo", trace.TempFileName)); !os.IsNotExist(err) {
		t.Error("unexpected transient telemetry file")
	}

	collected, err := trace.CollectSweeps(corpusDir, tags)
	if err != nil {
		t.Fatalf("CollectSweeps: %v", err)
	}
	if len(collected) != 2 {
		t.Errorf("expected to collect 2 kept traces, got %d", len(collected))
	}
}

func TestSweepScratchCollision(t *testing.T) {
	corpusDir := mkCorpus(t, "demo", 3)
	if err := os.Mkdir(filepath.Join(corpusDir, "demo__bench1"), 0o755); err != nil {
		t.Fatal(err)
	}
	s := &Sweeper{
		CorpusDir:     corpusDir,
		VersionCounts: []int{2},
		Runs:          1,
		trial:         fakeTrial,
	}

	records, err := s.Sweep(context.Background(), "demo")
	if err == nil {
		t.Fatal("expected error when scratch name is taken")
	}
	if len(records) != 0 {
		t.Errorf("expected no records, got %d", len(records))
	}
	if _, err := os.Stat(filepath.Join(corpusDir, "demo")); err != nil {
		t.Errorf("canonical directory should be untouched: %v", err)
	}
}

func TestRestore(t *testing.T) {
	corpusDir := t.TempDir()
	work := filepath.Join(corpusDir, "demo__bench3")
	if err := os.MkdirAll(filepath.Join(work, "v1"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(work, trace.TempFileName), []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(corpusDir, "other", "v1"), 0o755); err != nil {
		t.Fatal(err)
	}

	restored, err := Restore(corpusDir)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if len(restored) != 1 || restored[0] != "demo" {
		t.Errorf("restored: got %v, want [demo]", restored)
	}
	if _, err := os.Stat(filepath.Join(corpusDir, "demo", "v1")); err != nil {
		t.Errorf("expected restored repository: %v", err)
	}
	if _, err := os.Stat(filepath.Join(corpusDir, "demo", trace.TempFileName)); !os.IsNotExist(err) {
		t.Error("expected leftover transient telemetry to be removed")
	}
	if _, err := os.Stat(filepath.Join(corpusDir, "other", "v1")); err != nil {
		t.Errorf("unrelated repository should be untouched: %v", err)
	}
}
