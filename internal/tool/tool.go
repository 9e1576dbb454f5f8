// Package tool invokes the external inference tool for a single trial and
// parses the telemetry file it writes.
package tool

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/vhibench/vhibench/internal/docker"
	"github.com/vhibench/vhibench/internal/trace"
)

// Runner invokes the inference tool against one repository directory. When
// Image is set the tool runs in a container with the repository mounted at
// the workspace path; otherwise Path is executed on the host.
type Runner struct {
	Path             string
	Image            string
	NoMultithreading bool
	Env              map[string]string
	EnvFile          string
	Timeout          time.Duration
	CPULimit         float64
	MemoryLimit      int64
}

// Args returns the tool command line for one trial: debug output on,
// multithreading optionally off, telemetry directed to traceName inside the
// target directory.
func (r *Runner) Args(traceName, target string) []string {
	args := []string{"infer", "-d"}
	if r.NoMultithreading {
		args = append(args, "--no-multithreading")
	}
	return append(args, "-p", traceName, target)
}

// Run executes one trial against workDir, waits for the tool to exit, and
// parses the telemetry it wrote to traceName inside workDir. A non-zero
// exit, a hit timeout, or unreadable telemetry all fail the trial. The
// telemetry file is left on disk; the caller owns its cleanup.
func (r *Runner) Run(ctx context.Context, workDir, traceName string) (*trace.Record, error) {
	abs, err := filepath.Abs(workDir)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", workDir, err)
	}
	if r.Image != "" {
		err = r.runContainer(ctx, abs, traceName)
	} else {
		err = r.runLocal(ctx, abs, traceName)
	}
	if err != nil {
		return nil, err
	}
	return trace.Read(filepath.Join(abs, traceName))
}

func (r *Runner) runLocal(ctx context.Context, workDir, traceName string) error {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, r.Path, r.Args(traceName, workDir)...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	env := os.Environ()
	if r.EnvFile != "" {
		fileVars, err := parseEnvFile(r.EnvFile)
		if err != nil {
			return fmt.Errorf("reading env file %s: %w", r.EnvFile, err)
		}
		env = append(env, fileVars...)
	}
	for k, v := range r.Env {
		env = append(env, k+"="+v)
	}
	cmd.Env = env

	err := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return fmt.Errorf("%s timed out after %s", r.Path, r.Timeout)
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("%s exited with status %d", r.Path, exitErr.ExitCode())
		}
		return fmt.Errorf("running %s: %w", r.Path, err)
	}
	return nil
}

func (r *Runner) runContainer(ctx context.Context, workDir, traceName string) error {
	env := make(map[string]string)
	if r.EnvFile != "" {
		fileVars, err := parseEnvFile(r.EnvFile)
		if err != nil {
			return fmt.Errorf("reading env file %s: %w", r.EnvFile, err)
		}
		for _, kv := range fileVars {
			k, v, _ := strings.Cut(kv, "=")
			env[k] = v
		}
	}
	for k, v := range r.Env {
		env[k] = v
	}

	result, err := docker.RunContainer(ctx, &docker.RunOpts{
		Image:       r.Image,
		Command:     append([]string{r.Path}, r.Args(traceName, docker.WorkspacePath)...),
		WorkDir:     workDir,
		Env:         env,
		Timeout:     r.Timeout,
		CPULimit:    r.CPULimit,
		MemoryLimit: r.MemoryLimit,
		UserID:      currentUser(),
	})
	if err != nil {
		return err
	}
	if result.TimedOut {
		return fmt.Errorf("%s timed out after %s", r.Image, r.Timeout)
	}
	if result.ExitCode != 0 {
		return fmt.Errorf("%s exited with status %d", r.Image, result.ExitCode)
	}
	return nil
}

// currentUser maps the host user into the container so telemetry written to
// the mounted repository stays writable on the host.
func currentUser() string {
	uid := os.Getuid()
	if uid < 0 {
		return ""
	}
	return strconv.Itoa(uid) + ":" + strconv.Itoa(os.Getgid())
}
