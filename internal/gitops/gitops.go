// Package gitops fetches corpus version directories from upstream git
// repositories.
package gitops

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/vhibench/vhibench/internal/corpus"
)

// CloneVersion makes a shallow clone of one ref into dest and strips the
// clone's git metadata, leaving a plain version directory.
func CloneVersion(repo, ref, dest string) error {
	cmd := exec.Command("git", "clone", "--branch", ref, "--depth", "1", repo, dest)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("git clone: %s: %w", out, err)
	}
	if err := os.RemoveAll(filepath.Join(dest, ".git")); err != nil {
		return fmt.Errorf("stripping git metadata: %w", err)
	}
	return nil
}

// FetchSource populates repoDir with one version directory per ref. Refs
// whose directory already exists, active or parked behind the inactive
// marker, are left alone.
func FetchSource(repoDir, repoURL string, refs []string) error {
	if err := os.MkdirAll(repoDir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", repoDir, err)
	}
	for _, ref := range refs {
		name := VersionDirName(ref)
		if _, err := os.Stat(filepath.Join(repoDir, name)); err == nil {
			continue
		}
		if _, err := os.Stat(filepath.Join(repoDir, corpus.Marker+name)); err == nil {
			continue
		}
		if err := CloneVersion(repoURL, ref, filepath.Join(repoDir, name)); err != nil {
			return fmt.Errorf("fetching %s: %w", ref, err)
		}
	}
	return nil
}

// VersionDirName maps a git ref to a version directory name.
func VersionDirName(ref string) string {
	return strings.ReplaceAll(ref, "/", "-")
}
