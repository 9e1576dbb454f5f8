// Package result lays out results directories: one timestamped directory
// per run holding the captured trace records and a run manifest.
package result

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/vhibench/vhibench/internal/trace"
)

// RunMeta summarizes one orchestrated run.
type RunMeta struct {
	StartedAt        time.Time `json:"started_at"`
	DurationS        int       `json:"duration_s"`
	CorpusDir        string    `json:"corpus_dir"`
	Repos            []string  `json:"repos"`
	VersionCounts    []int     `json:"version_counts"`
	Runs             int       `json:"runs"`
	KeepTraces       bool      `json:"keep_traces"`
	NoMultithreading bool      `json:"no_multithreading"`
	ScannerOff       bool      `json:"scanner_off"`
	Records          int       `json:"records"`
	Failures         []string  `json:"failures,omitempty"`
}

// CreateRunDir makes a timestamped directory under baseDir/runs and points
// the baseDir/latest symlink at it. The symlink is best effort; filesystems
// without symlink support still get the run directory.
func CreateRunDir(baseDir string) (string, error) {
	runsDir, err := filepath.Abs(filepath.Join(baseDir, "runs"))
	if err != nil {
		return "", fmt.Errorf("resolving run dir: %w", err)
	}
	if err := os.MkdirAll(runsDir, 0o755); err != nil {
		return "", fmt.Errorf("creating runs dir: %w", err)
	}
	// a second run started within the same second gets a numeric suffix
	stamp := time.Now().UTC().Format("2006-01-02T15-04-05")
	runDir := filepath.Join(runsDir, stamp)
	for n := 2; ; n++ {
		err := os.Mkdir(runDir, 0o755)
		if err == nil {
			break
		}
		if !os.IsExist(err) {
			return "", fmt.Errorf("creating run dir: %w", err)
		}
		runDir = fmt.Sprintf("%s_%d", filepath.Join(runsDir, stamp), n)
	}
	latest := filepath.Join(baseDir, "latest")
	os.Remove(latest)
	if err := os.Symlink(runDir, latest); err != nil {
		log.Printf("warning: creating latest symlink: %v", err)
	}
	return runDir, nil
}

// WriteRecords persists the flat record sequence for a run.
func WriteRecords(runDir string, records []trace.Record) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling records: %w", err)
	}
	return os.WriteFile(filepath.Join(runDir, "records.json"), data, 0o644)
}

// ReadRecords loads a run's record sequence.
func ReadRecords(runDir string) ([]trace.Record, error) {
	path := filepath.Join(runDir, "records.json")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var records []trace.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return records, nil
}

func WriteMeta(runDir string, meta *RunMeta) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling meta: %w", err)
	}
	return os.WriteFile(filepath.Join(runDir, "meta.json"), data, 0o644)
}

func ReadMeta(runDir string) (*RunMeta, error) {
	data, err := os.ReadFile(filepath.Join(runDir, "meta.json"))
	if err != nil {
		return nil, fmt.Errorf("reading meta: %w", err)
	}
	var meta RunMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("parsing meta: %w", err)
	}
	return &meta, nil
}

// ListRuns returns run directory names under baseDir/runs, oldest first.
func ListRuns(baseDir string) ([]string, error) {
	ents, err := os.ReadDir(filepath.Join(baseDir, "runs"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading runs: %w", err)
	}
	var runs []string
	for _, e := range ents {
		if e.IsDir() {
			runs = append(runs, e.Name())
		}
	}
	sort.Strings(runs)
	return runs, nil
}
