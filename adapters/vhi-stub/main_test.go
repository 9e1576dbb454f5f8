package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

// mkVersion creates a version directory with the given files and sizes.
func mkVersion(t *testing.T, repoDir, name string, files map[string]int) {
	t.Helper()
	dir := filepath.Join(repoDir, name)
	for rel, size := range files {
		path := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
}

func TestLoadVersionsSkipsMarkedAndFiles(t *testing.T) {
	repo := t.TempDir()
	mkVersion(t, repo, "v1", map[string]int{"a.txt": 10})
	mkVersion(t, repo, "v2", map[string]int{"a.txt": 10, "b.txt": 20})
	mkVersion(t, repo, "ignore_v3", map[string]int{"a.txt": 10})
	if err := os.WriteFile(filepath.Join(repo, "README"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	versions, err := loadVersions(repo)
	if err != nil {
		t.Fatalf("loadVersions: %v", err)
	}
	if len(versions) != 2 {
		t.Fatalf("expected 2 visible versions, got %d", len(versions))
	}
	if versions[0].Name != "v1" || versions[1].Name != "v2" {
		t.Errorf("unexpected order: %v", versions)
	}
	if versions[0].Files != 1 || versions[1].Files != 2 {
		t.Errorf("unexpected file counts: %+v", versions)
	}
}

func TestFingerprintDependsOnPathsAndSizes(t *testing.T) {
	repo := t.TempDir()
	mkVersion(t, repo, "a", map[string]int{"x.txt": 5})
	mkVersion(t, repo, "b", map[string]int{"x.txt": 5})
	mkVersion(t, repo, "c", map[string]int{"x.txt": 6})

	va, err := fingerprint(filepath.Join(repo, "a"))
	if err != nil {
		t.Fatal(err)
	}
	vb, err := fingerprint(filepath.Join(repo, "b"))
	if err != nil {
		t.Fatal(err)
	}
	vc, err := fingerprint(filepath.Join(repo, "c"))
	if err != nil {
		t.Fatal(err)
	}
	if va.Hash != vb.Hash {
		t.Error("identical trees should fingerprint identically")
	}
	if va.Hash == vc.Hash {
		t.Error("different sizes should change the fingerprint")
	}
}

func TestInferOrderStartsSmallAndIsDeterministic(t *testing.T) {
	versions := []Version{
		{Name: "big", Files: 9, Hash: 0xffff},
		{Name: "small", Files: 1, Hash: 0x000f},
		{Name: "mid", Files: 5, Hash: 0x00ff},
	}

	single := inferOrder(versions, false)
	multi := inferOrder(versions, true)

	if single[0].Name != "small" {
		t.Errorf("expected order to start at the smallest version, got %s", single[0].Name)
	}
	for i := range single {
		if single[i].Name != multi[i].Name {
			t.Fatalf("multithreaded order diverges at %d: %s vs %s", i, single[i].Name, multi[i].Name)
		}
	}
}

func TestInferOrderEmpty(t *testing.T) {
	if got := inferOrder(nil, true); got != nil {
		t.Errorf("expected nil order for no versions, got %v", got)
	}
}

func TestTelemetryFieldNames(t *testing.T) {
	data, err := json.Marshal(Telemetry{NoVersions: 3, AvgFilesPerVersion: 2.5, TotalRT: 1.25})
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatal(err)
	}
	for _, field := range []string{"no_versions", "avg_files_per_version", "load_versions_rt", "infer_rt", "saving_rt", "total_rt"} {
		if _, ok := m[field]; !ok {
			t.Errorf("missing telemetry field %s", field)
		}
	}
}

func TestRunInferWritesTrace(t *testing.T) {
	repo := t.TempDir()
	mkVersion(t, repo, "v1", map[string]int{"a.txt": 10})
	mkVersion(t, repo, "v2", map[string]int{"a.txt": 10, "b.txt": 4})
	mkVersion(t, repo, "ignore_v3", map[string]int{"a.txt": 10})

	if err := runInfer([]string{"-p", "perf_trace_temp.json", repo}); err != nil {
		t.Fatalf("runInfer: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(repo, "perf_trace_temp.json"))
	if err != nil {
		t.Fatalf("expected trace inside the target directory: %v", err)
	}
	var tel Telemetry
	if err := json.Unmarshal(data, &tel); err != nil {
		t.Fatal(err)
	}
	if tel.NoVersions != 2 {
		t.Errorf("no_versions: got %d, want 2", tel.NoVersions)
	}
	if tel.AvgFilesPerVersion != 1.5 {
		t.Errorf("avg_files_per_version: got %v, want 1.5", tel.AvgFilesPerVersion)
	}
	if tel.TotalRT < 0 {
		t.Errorf("negative total_rt %v", tel.TotalRT)
	}
}

func TestTracePath(t *testing.T) {
	if got := tracePath("/repo", "t.json"); got != filepath.Join("/repo", "t.json") {
		t.Errorf("relative trace path: got %s", got)
	}
	abs := filepath.Join(t.TempDir(), "t.json")
	if got := tracePath("/repo", abs); got != abs {
		t.Errorf("absolute trace path: got %s", got)
	}
}
