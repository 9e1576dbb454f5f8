package trace

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Stage names as they appear in the tool's telemetry (field "<stage>_rt").
const (
	StageLoadVersions = "load_versions"
	StageInfer        = "infer"
	StageSaving       = "saving"
	StageTotal        = "total"
)

// CoreStages are the stages every telemetry file must report, in display order.
var CoreStages = []string{StageLoadVersions, StageInfer, StageSaving, StageTotal}

// TempFileName is the telemetry filename used for transient traces that are
// deleted after each trial.
const TempFileName = "perf_trace_temp.json"

// Record is one trial's telemetry as emitted by the inference tool, plus the
// repository name and run index the orchestrator tags it with. Stage values
// are elapsed seconds.
type Record struct {
	Name               string
	Run                int
	NoVersions         int
	AvgFilesPerVersion float64
	Stages             map[string]float64
}

// Stage returns the elapsed seconds for a stage and whether it was reported.
func (r *Record) Stage(name string) (float64, bool) {
	v, ok := r.Stages[name]
	return v, ok
}

// MarshalJSON writes the flat wire form: no_versions, avg_files_per_version,
// one <stage>_rt field per stage, and name/run when tagged.
func (r Record) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(r.Stages)+4)
	if r.Name != "" {
		m["name"] = r.Name
	}
	if r.Run != 0 {
		m["run"] = r.Run
	}
	m["no_versions"] = r.NoVersions
	m["avg_files_per_version"] = r.AvgFilesPerVersion
	for stage, secs := range r.Stages {
		m[stage+"_rt"] = secs
	}
	return json.Marshal(m)
}

func (r *Record) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*r = Record{Stages: make(map[string]float64)}
	sawVersions := false
	for key, val := range raw {
		switch key {
		case "name":
			s, ok := val.(string)
			if !ok {
				return fmt.Errorf("field name: expected string, got %T", val)
			}
			r.Name = s
		case "run":
			f, ok := val.(float64)
			if !ok {
				return fmt.Errorf("field run: expected number, got %T", val)
			}
			r.Run = int(f)
		case "no_versions":
			f, ok := val.(float64)
			if !ok {
				return fmt.Errorf("field no_versions: expected number, got %T", val)
			}
			r.NoVersions = int(f)
			sawVersions = true
		case "avg_files_per_version":
			f, ok := val.(float64)
			if !ok {
				return fmt.Errorf("field avg_files_per_version: expected number, got %T", val)
			}
			r.AvgFilesPerVersion = f
		default:
			stage, isStage := strings.CutSuffix(key, "_rt")
			if !isStage || stage == "" {
				continue
			}
			f, ok := val.(float64)
			if !ok {
				return fmt.Errorf("stage %s: expected number, got %T", stage, val)
			}
			if f < 0 {
				return fmt.Errorf("stage %s: negative duration %v", stage, f)
			}
			r.Stages[stage] = f
		}
	}
	if !sawVersions {
		return fmt.Errorf("missing no_versions field")
	}
	return nil
}

// Read parses a telemetry file written by the tool. All core stages must be
// present; extra stages are kept.
func Read(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading telemetry %s: %w", path, err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parsing telemetry %s: %w", path, err)
	}
	for _, stage := range CoreStages {
		if _, ok := rec.Stages[stage]; !ok {
			return nil, fmt.Errorf("telemetry %s: missing stage %s", path, stage)
		}
	}
	return &rec, nil
}

// Tags describe the conditions a trace was captured under. They select the
// filename tags so traces from different conditions never mix.
type Tags struct {
	NoMultithreading bool
	ScannerOff       bool
}

func (t Tags) prefix() string {
	name := "perf_trace"
	if t.NoMultithreading {
		name += "_no_mt"
	}
	if t.ScannerOff {
		name += "_no_defender"
	}
	return name
}

// SweepFileName is the telemetry filename for a kept sweep trace, tagged with
// the active-version count and run index.
func SweepFileName(tags Tags, versions, run int) string {
	return fmt.Sprintf("%s_%d_versions_%d.json", tags.prefix(), versions, run)
}

// VariantFileName is the fixed per-repository telemetry filename for a
// comparison variant, e.g. "perf_trace_no_multithreading.json".
func VariantFileName(suffix string) string {
	return "perf_trace" + suffix + ".json"
}

// CollectVariant reads the fixed variant trace from every repository under
// corpusDir. Repositories without the file contribute nothing.
func CollectVariant(corpusDir, suffix string) ([]Record, error) {
	repos, err := repoDirs(corpusDir)
	if err != nil {
		return nil, err
	}
	var records []Record
	for _, repo := range repos {
		path := filepath.Join(corpusDir, repo, VariantFileName(suffix))
		if _, err := os.Stat(path); err != nil {
			continue
		}
		rec, err := Read(path)
		if err != nil {
			return nil, err
		}
		rec.Name = repo
		records = append(records, *rec)
	}
	return records, nil
}

// CollectSweeps gathers kept sweep traces matching tags from every repository
// under corpusDir. The run index is recovered from the filename.
func CollectSweeps(corpusDir string, tags Tags) ([]Record, error) {
	repos, err := repoDirs(corpusDir)
	if err != nil {
		return nil, err
	}
	pattern := regexp.MustCompile(`^` + regexp.QuoteMeta(tags.prefix()) + `_(\d+)_versions_(\d+)\.json$`)

	var records []Record
	for _, repo := range repos {
		repoDir := filepath.Join(corpusDir, repo)
		entries, err := os.ReadDir(repoDir)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", repoDir, err)
		}
		for _, ent := range entries {
			if ent.IsDir() {
				continue
			}
			m := pattern.FindStringSubmatch(ent.Name())
			if m == nil {
				continue
			}
			rec, err := Read(filepath.Join(repoDir, ent.Name()))
			if err != nil {
				return nil, err
			}
			rec.Name = repo
			rec.Run, _ = strconv.Atoi(m[2])
			records = append(records, *rec)
		}
	}
	return records, nil
}

func repoDirs(corpusDir string) ([]string, error) {
	entries, err := os.ReadDir(corpusDir)
	if err != nil {
		return nil, fmt.Errorf("reading corpus %s: %w", corpusDir, err)
	}
	var repos []string
	for _, ent := range entries {
		if ent.IsDir() {
			repos = append(repos, ent.Name())
		}
	}
	sort.Strings(repos)
	return repos, nil
}
