//go:build integration

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/vhibench/vhibench/internal/config"
	"github.com/vhibench/vhibench/internal/report"
	"github.com/vhibench/vhibench/internal/result"
	"github.com/vhibench/vhibench/internal/runner"
)

// fakeTool is a shell script speaking the inference tool's contract: it
// counts the visible version directories and writes a fixed-timing telemetry
// file into the target directory.
const fakeTool = `#!/bin/sh
trace=""
dir=""
while [ $# -gt 0 ]; do
  case "$1" in
    infer|-d|--no-multithreading) ;;
    -p) shift; trace="$1" ;;
    *) dir="$1" ;;
  esac
  shift
done
versions=0
files=0
for v in "$dir"/*/; do
  case "$(basename "$v")" in ignore_*) continue ;; esac
  versions=$((versions + 1))
  files=$((files + $(find "$v" -type f | wc -l)))
done
avg=0
[ "$versions" -gt 0 ] && avg=$((files / versions))
cat > "$dir/$trace" <<EOF
{"no_versions": $versions, "avg_files_per_version": $avg,
 "load_versions_rt": 0.5, "infer_rt": 1.5, "saving_rt": 0.1, "total_rt": 2.1}
EOF
`

func writeFakeTool(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vhi-fake.sh")
	if err := os.WriteFile(path, []byte(fakeTool), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func mkCorpus(t *testing.T, repo string, versions, filesPerVersion int) string {
	t.Helper()
	corpusDir := t.TempDir()
	for i := 1; i <= versions; i++ {
		vdir := filepath.Join(corpusDir, repo, fmt.Sprintf("v%02d", i))
		if err := os.MkdirAll(vdir, 0o755); err != nil {
			t.Fatal(err)
		}
		for f := 0; f < filesPerVersion; f++ {
			name := filepath.Join(vdir, fmt.Sprintf("file%d.txt", f))
			if err := os.WriteFile(name, []byte("content"), 0o644); err != nil {
				t.Fatal(err)
			}
		}
	}
	return corpusDir
}

func TestEndToEndSweep(t *testing.T) {
	if os.Getenv("VHIBENCH_INTEGRATION") == "" {
		t.Skip("set VHIBENCH_INTEGRATION=1 to run integration tests")
	}

	corpusDir := mkCorpus(t, "demo", 5, 3)
	cfg := &config.Config{
		Tool:       config.Tool{Path: writeFakeTool(t)},
		Corpus:     config.Corpus{Dir: corpusDir},
		Sweep:      config.Sweep{VersionCounts: []int{2, 4, 6}, Runs: 2},
		ScannerOff: true,
	}

	sweeper := runner.NewSweeper(cfg, runner.ToolRunner(cfg))
	records, err := sweeper.Sweep(context.Background(), "demo")
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}

	// count 6 is unreachable with 5 versions: 2 counts x 2 runs
	if len(records) != 4 {
		t.Fatalf("expected 4 records, got %d", len(records))
	}
	wantVersions := []int{2, 2, 4, 4}
	for i, rec := range records {
		if rec.Name != "demo" {
			t.Errorf("record %d: name %q", i, rec.Name)
		}
		if rec.NoVersions != wantVersions[i] {
			t.Errorf("record %d: versions %d, want %d", i, rec.NoVersions, wantVersions[i])
		}
	}

	// corpus back under its canonical name with all versions active
	ents, err := os.ReadDir(corpusDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(ents) != 1 || ents[0].Name() != "demo" {
		t.Fatalf("unexpected corpus contents: %v", ents)
	}
	repoEnts, err := os.ReadDir(filepath.Join(corpusDir, "demo"))
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range repoEnts {
		if strings.HasPrefix(e.Name(), "ignore_") {
			t.Errorf("version left inactive after exhausted sweep: %s", e.Name())
		}
		if !e.IsDir() {
			t.Errorf("leftover file in repository: %s", e.Name())
		}
	}

	// records survive a storage round trip and aggregate to the scripted means
	runDir, err := result.CreateRunDir(t.TempDir())
	if err != nil {
		t.Fatalf("CreateRunDir: %v", err)
	}
	if err := result.WriteRecords(runDir, records); err != nil {
		t.Fatalf("WriteRecords: %v", err)
	}
	stored, err := result.ReadRecords(runDir)
	if err != nil {
		t.Fatalf("ReadRecords: %v", err)
	}
	table := report.TimeSeries(stored, report.DefaultStages)
	if len(table.Rows) != 2 {
		t.Fatalf("expected 2 summary rows, got %d", len(table.Rows))
	}
	for _, row := range table.Rows {
		want := 0.5
		if row["stage"] == "infer" {
			want = 1.5
		}
		for _, bucket := range []string{"2", "4"} {
			if row[bucket] != want {
				t.Errorf("stage %v bucket %s: got %v, want %v", row["stage"], bucket, row[bucket], want)
			}
		}
	}
}
