// Command vhi-stub stands in for the version-history-inference tool during
// dry runs and CI. It speaks the tool's command line (infer -d
// [--no-multithreading] -p <trace.json> <dir>) and writes a telemetry file in
// the same format, timing a cheap fingerprint-based ordering of the visible
// version directories.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"hash/fnv"
	"io"
	"io/fs"
	"log"
	"math/bits"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"
)

// ignoreMarker matches the harness's inactive-version prefix; marked
// directories are invisible to the tool.
const ignoreMarker = "ignore_"

// Version is one visible version directory, reduced to a fingerprint.
type Version struct {
	Name  string `json:"name"`
	Files int    `json:"files"`
	Hash  uint64 `json:"-"`
}

// Telemetry is the trace record the harness parses back.
type Telemetry struct {
	NoVersions         int     `json:"no_versions"`
	AvgFilesPerVersion float64 `json:"avg_files_per_version"`
	LoadVersionsRT     float64 `json:"load_versions_rt"`
	InferRT            float64 `json:"infer_rt"`
	SavingRT           float64 `json:"saving_rt"`
	TotalRT            float64 `json:"total_rt"`
}

// History is the inferred version ordering.
type History struct {
	Order []Version `json:"order"`
}

// loadVersions fingerprints every visible version directory under dir.
// Marked directories and plain files are skipped.
func loadVersions(dir string) ([]Version, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}
	var versions []Version
	for _, ent := range ents {
		if !ent.IsDir() || strings.HasPrefix(ent.Name(), ignoreMarker) {
			continue
		}
		v, err := fingerprint(filepath.Join(dir, ent.Name()))
		if err != nil {
			return nil, err
		}
		v.Name = ent.Name()
		versions = append(versions, v)
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i].Name < versions[j].Name })
	return versions, nil
}

// fingerprint hashes a version's file tree: relative paths and sizes, not
// contents, which is enough signal for the stub's ordering.
func fingerprint(versionDir string) (Version, error) {
	h := fnv.New64a()
	files := 0
	err := filepath.WalkDir(versionDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		files++
		rel, err := filepath.Rel(versionDir, path)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		fmt.Fprintf(h, "%s:%d\n", filepath.ToSlash(rel), info.Size())
		return nil
	})
	if err != nil {
		return Version{}, fmt.Errorf("fingerprinting %s: %w", versionDir, err)
	}
	return Version{Files: files, Hash: h.Sum64()}, nil
}

// distance scores how far apart two versions look: differing fingerprint
// bits plus the file-count gap.
func distance(a, b Version) int {
	d := bits.OnesCount64(a.Hash ^ b.Hash)
	if a.Files > b.Files {
		d += a.Files - b.Files
	} else {
		d += b.Files - a.Files
	}
	return d
}

// inferOrder chains versions greedily by nearest fingerprint, starting from
// the smallest version. The pairwise distance matrix is computed with one
// worker per CPU unless multithreading is disabled.
func inferOrder(versions []Version, multithreaded bool) []Version {
	n := len(versions)
	if n == 0 {
		return nil
	}

	dist := make([][]int, n)
	workers := 1
	if multithreaded {
		workers = runtime.NumCPU()
	}
	var wg sync.WaitGroup
	rows := make(chan int)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range rows {
				row := make([]int, n)
				for j := 0; j < n; j++ {
					row[j] = distance(versions[i], versions[j])
				}
				dist[i] = row
			}
		}()
	}
	for i := 0; i < n; i++ {
		rows <- i
	}
	close(rows)
	wg.Wait()

	start := 0
	for i := 1; i < n; i++ {
		if versions[i].Files < versions[start].Files {
			start = i
		}
	}

	order := []Version{versions[start]}
	used := make([]bool, n)
	used[start] = true
	cur := start
	for len(order) < n {
		next, best := -1, 0
		for j := 0; j < n; j++ {
			if used[j] {
				continue
			}
			if next == -1 || dist[cur][j] < best {
				next, best = j, dist[cur][j]
			}
		}
		used[next] = true
		order = append(order, versions[next])
		cur = next
	}
	return order
}

// saveHistory serializes the inferred ordering to w.
func saveHistory(w io.Writer, order []Version) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(History{Order: order})
}

// tracePath resolves the -p argument the way the real tool does: relative
// paths land inside the target directory.
func tracePath(dir, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}

func runInfer(args []string) error {
	fl := flag.NewFlagSet("infer", flag.ExitOnError)
	debug := fl.Bool("d", false, "debug output")
	noMT := fl.Bool("no-multithreading", false, "disable concurrent inference")
	perf := fl.String("p", "", "write a performance trace to this file")
	if err := fl.Parse(args); err != nil {
		return err
	}
	if fl.NArg() != 1 {
		return fmt.Errorf("expected exactly one target directory, got %d", fl.NArg())
	}
	dir := fl.Arg(0)

	started := time.Now()
	versions, err := loadVersions(dir)
	if err != nil {
		return err
	}
	loaded := time.Now()

	order := inferOrder(versions, !*noMT)
	inferred := time.Now()

	out := io.Discard
	if *debug {
		out = os.Stdout
	}
	if err := saveHistory(out, order); err != nil {
		return err
	}
	saved := time.Now()

	files := 0
	for _, v := range versions {
		files += v.Files
	}
	tel := Telemetry{
		NoVersions:     len(versions),
		LoadVersionsRT: loaded.Sub(started).Seconds(),
		InferRT:        inferred.Sub(loaded).Seconds(),
		SavingRT:       saved.Sub(inferred).Seconds(),
		TotalRT:        saved.Sub(started).Seconds(),
	}
	if len(versions) > 0 {
		tel.AvgFilesPerVersion = float64(files) / float64(len(versions))
	}
	if *perf != "" {
		data, err := json.MarshalIndent(tel, "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(tracePath(dir, *perf), data, 0o644); err != nil {
			return fmt.Errorf("writing trace: %w", err)
		}
	}
	return nil
}

func main() {
	log.SetFlags(0)
	if len(os.Args) < 2 || os.Args[1] != "infer" {
		log.Fatal("usage: vhi-stub infer [-d] [-no-multithreading] [-p trace.json] <dir>")
	}
	if err := runInfer(os.Args[2:]); err != nil {
		log.Fatal(err)
	}
}
