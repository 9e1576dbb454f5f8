// Package corpus manages benchmark corpora: repository directories whose
// version subdirectories are toggled in and out of the inference tool's view
// by renaming them behind a marker prefix.
package corpus

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Marker is the filename prefix that hides a version directory from the
// inference tool. Entries carrying it are inactive; stripping it brings them
// back.
const Marker = "ignore_"

// workTag joins a repository name and run index into the scratch name a
// repository is parked under while a trial runs, so repeated trials never
// share a cache key.
const workTag = "__bench"

// Entry is one immediate child of a repository directory.
type Entry struct {
	Name   string // canonical name, marker stripped
	Active bool   // true when the on-disk name carries no marker
	IsDir  bool
}

// FileName returns the entry's current on-disk name.
func (e Entry) FileName() string {
	if e.Active {
		return e.Name
	}
	return Marker + e.Name
}

// ReadEntries lists repoDir's immediate children sorted by canonical name.
// Two children that resolve to the same canonical name cannot be managed by
// renames and are reported as an error.
func ReadEntries(repoDir string) ([]Entry, error) {
	dirents, err := os.ReadDir(repoDir)
	if err != nil {
		return nil, fmt.Errorf("reading repository %s: %w", repoDir, err)
	}
	seen := make(map[string]string, len(dirents))
	entries := make([]Entry, 0, len(dirents))
	for _, d := range dirents {
		name := d.Name()
		canonical := strings.TrimPrefix(name, Marker)
		if canonical == "" {
			return nil, fmt.Errorf("repository %s: unusable entry name %q", repoDir, name)
		}
		if prev, dup := seen[canonical]; dup {
			return nil, fmt.Errorf("repository %s: %s and %s collide on name %s", repoDir, prev, name, canonical)
		}
		seen[canonical] = name
		entries = append(entries, Entry{
			Name:   canonical,
			Active: !strings.HasPrefix(name, Marker),
			IsDir:  d.IsDir(),
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

// Rename is one planned rename inside a repository directory.
type Rename struct {
	From string
	To   string
}

// PlanActiveCount plans the renames that leave exactly want version
// directories active, walking entries in canonical order and activating
// until the budget is spent. Marked non-directories are always normalized
// back to their canonical names. achieved reports whether exactly want
// directories ended up active; a repository with fewer version directories
// than want ends fully active with achieved false.
func PlanActiveCount(entries []Entry, want int) (plan []Rename, achieved bool) {
	active := 0
	for _, e := range entries {
		if !e.IsDir {
			if !e.Active {
				plan = append(plan, Rename{From: e.FileName(), To: e.Name})
			}
			continue
		}
		if active < want {
			if !e.Active {
				plan = append(plan, Rename{From: e.FileName(), To: e.Name})
			}
			active++
		} else if e.Active {
			plan = append(plan, Rename{From: e.Name, To: Marker + e.Name})
		}
	}
	return plan, active == want
}

// PlanActivateAll plans the renames that strip the marker from every entry.
func PlanActivateAll(entries []Entry) []Rename {
	var plan []Rename
	for _, e := range entries {
		if !e.Active {
			plan = append(plan, Rename{From: e.FileName(), To: e.Name})
		}
	}
	return plan
}

// Apply performs planned renames inside repoDir. An existing file at a
// target name aborts the plan before touching it; already-applied renames
// keep the repository consistent, so a failed plan can be replanned and
// retried.
func Apply(repoDir string, plan []Rename) error {
	for _, r := range plan {
		if err := renameNoClobber(filepath.Join(repoDir, r.From), filepath.Join(repoDir, r.To)); err != nil {
			return err
		}
	}
	return nil
}

// SetActiveCount renames version directories under repoDir so that exactly
// want are active and reports whether that count was reached.
func SetActiveCount(repoDir string, want int) (achieved bool, err error) {
	entries, err := ReadEntries(repoDir)
	if err != nil {
		return false, err
	}
	plan, achieved := PlanActiveCount(entries, want)
	if err := Apply(repoDir, plan); err != nil {
		return false, err
	}
	return achieved, nil
}

// ActivateAll strips the marker from every entry under repoDir.
func ActivateAll(repoDir string) error {
	entries, err := ReadEntries(repoDir)
	if err != nil {
		return err
	}
	return Apply(repoDir, PlanActivateAll(entries))
}

// CountVersions reports how many entries are version directories and how
// many of those are active.
func CountVersions(entries []Entry) (total, active int) {
	for _, e := range entries {
		if !e.IsDir {
			continue
		}
		total++
		if e.Active {
			active++
		}
	}
	return total, active
}

// Repos lists the repository directories under corpusDir, sorted by name.
// Scratch directories left behind by an interrupted trial are included;
// ParseWorkName tells them apart.
func Repos(corpusDir string) ([]string, error) {
	dirents, err := os.ReadDir(corpusDir)
	if err != nil {
		return nil, fmt.Errorf("reading corpus %s: %w", corpusDir, err)
	}
	var repos []string
	for _, d := range dirents {
		if d.IsDir() {
			repos = append(repos, d.Name())
		}
	}
	sort.Strings(repos)
	return repos, nil
}

// WorkName returns the scratch name a repository is parked under while the
// given run's trial executes.
func WorkName(name string, run int) string {
	return name + workTag + strconv.Itoa(run)
}

// ParseWorkName splits a scratch directory name back into the repository
// name and run index. ok is false for ordinary repository names.
func ParseWorkName(name string) (repo string, run int, ok bool) {
	i := strings.LastIndex(name, workTag)
	if i <= 0 {
		return "", 0, false
	}
	run, err := strconv.Atoi(name[i+len(workTag):])
	if err != nil || run < 1 {
		return "", 0, false
	}
	return name[:i], run, true
}

// RenameRepo renames one repository directory under corpusDir, refusing to
// overwrite an existing target.
func RenameRepo(corpusDir, from, to string) error {
	if from == to {
		return nil
	}
	return renameNoClobber(filepath.Join(corpusDir, from), filepath.Join(corpusDir, to))
}

func renameNoClobber(src, dst string) error {
	if _, err := os.Lstat(dst); err == nil {
		return fmt.Errorf("renaming %s: %s already exists", src, dst)
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("checking %s: %w", dst, err)
	}
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("renaming %s to %s: %w", src, dst, err)
	}
	return nil
}
