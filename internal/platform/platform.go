// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package platform hides OS-family differences behind one vocabulary: where
// an environment's interpreter and auxiliary executables live, how to spell
// its activation command, how to resolve a Python spec to a concrete
// interpreter, and how to run a subprocess with a deadline. Per spec.md
// §9 Design Notes, this is the only package allowed to branch on GOOS.
package platform

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/datawire/dlib/dexec"
	"github.com/datawire/dlib/dlog"

	"github.com/gestvenv/gestvenv/internal/gestvenverr"
)

// Status classifies how a subprocess call concluded.
type Status string

const (
	StatusCompleted    Status = "completed"
	StatusFailed       Status = "failed"
	StatusTimeout      Status = "timeout"
	StatusInternalError Status = "internal_error"
)

// CommandResult is the outcome of a Platform.Run call. It never signals
// failure by raising; non-zero exits are reported here.
type CommandResult struct {
	Stdout   string
	Stderr   string
	Combined string
	ExitCode int
	Duration time.Duration
	Status   Status
}

// Adapter is the Platform Adapter. It is stateless, synchronous, and safe
// for concurrent use from multiple goroutines.
type Adapter struct{}

// New returns a ready-to-use Adapter.
func New() *Adapter { return &Adapter{} }

// family identifies which OS family's filename conventions to use.
func family() string {
	if runtime.GOOS == "windows" {
		return "windows"
	}
	return "unix"
}

// binDir is the directory inside an environment that holds its executables.
func binDir() string {
	if family() == "windows" {
		return "Scripts"
	}
	return "bin"
}

func exeName(name string) string {
	if family() == "windows" && !strings.HasSuffix(strings.ToLower(name), ".exe") {
		return name + ".exe"
	}
	return name
}

// InterpreterPath returns the absolute path to the interpreter executable
// inside envPath. It fails with a NotFound error if the file is absent.
func (a *Adapter) InterpreterPath(envPath string) (string, error) {
	name := "python"
	if family() == "unix" {
		name = "python3"
	}
	p := filepath.Join(envPath, binDir(), exeName(name))
	if _, err := os.Stat(p); err != nil {
		if family() == "unix" {
			// Fall back to the generic "python" symlink some environments
			// ship instead of (or alongside) "python3".
			alt := filepath.Join(envPath, binDir(), "python")
			if _, altErr := os.Stat(alt); altErr == nil {
				return alt, nil
			}
		}
		return "", gestvenverr.Wrap(gestvenverr.NotFound, err, "interpreter not found in %q", envPath)
	}
	return p, nil
}

// InstallerPath returns the absolute path to an auxiliary executable (pip,
// uv, ...) inside envPath.
func (a *Adapter) InstallerPath(envPath, installerName string) (string, error) {
	p := filepath.Join(envPath, binDir(), exeName(installerName))
	if _, err := os.Stat(p); err != nil {
		return "", gestvenverr.Wrap(gestvenverr.NotFound, err, "%q not found in %q", installerName, envPath)
	}
	return p, nil
}

// ActivationCommand returns the shell snippet a caller must run in their own
// shell to activate envPath. This adapter never executes it.
func (a *Adapter) ActivationCommand(envPath string) string {
	if family() == "windows" {
		return filepath.Join(envPath, binDir(), "activate.bat")
	}
	return fmt.Sprintf("source %s", filepath.Join(envPath, binDir(), "activate"))
}

// resolveCandidates returns the ordered list of commands to try for a given
// Python version spec, per spec.md §4.1.
func resolveCandidates(spec string) []string {
	if filepath.IsAbs(spec) {
		return []string{spec}
	}
	switch spec {
	case "python":
		if family() == "windows" {
			return []string{"python.exe", "py"}
		}
		return []string{"python3", "python"}
	default:
		// "3.11" or "python3.11"
		ver := strings.TrimPrefix(spec, "python")
		candidates := make([]string, 0, 4)
		if family() == "windows" {
			candidates = append(candidates, "py -"+ver, "python"+ver+".exe", "python.exe")
		} else {
			candidates = append(candidates,
				"python"+ver,
				filepath.Join("/usr/local/bin", "python"+ver),
				filepath.Join("/usr/bin", "python"+ver),
			)
		}
		return candidates
	}
}

// ResolvePython resolves a version spec ("3.11", "python3.11", "python", or
// an absolute path) to the first working interpreter found.
func (a *Adapter) ResolvePython(ctx context.Context, spec string) (string, error) {
	for _, candidate := range resolveCandidates(spec) {
		fields := strings.Fields(candidate)
		if len(fields) == 0 {
			continue
		}
		exe, err := dexec.LookPath(fields[0])
		if err != nil {
			if filepath.IsAbs(fields[0]) {
				if _, statErr := os.Stat(fields[0]); statErr == nil {
					exe = fields[0]
				} else {
					continue
				}
			} else {
				continue
			}
		}
		args := append(append([]string(nil), fields[1:]...), "--version")
		res, err := a.Run(ctx, append([]string{exe}, args...), RunOptions{Timeout: 10 * time.Second})
		if err == nil && res.Status == StatusCompleted {
			return exe, nil
		}
	}
	return "", gestvenverr.New(gestvenverr.NotFound, "no working Python interpreter found for %q", spec)
}

// RunOptions configures a Run call.
type RunOptions struct {
	Cwd     string
	Env     []string
	Timeout time.Duration
	Stdin   []byte
}

// Run executes command[0] with command[1:] as arguments, honoring the
// timeout in opts. It never returns an error for a non-zero exit — that is
// reported via CommandResult.Status/ExitCode. It returns an error only for
// an empty command (gestvenverr.Validation) or when the child could not be
// spawned at all (gestvenverr.Backend / InternalError-equivalent).
func (a *Adapter) Run(ctx context.Context, command []string, opts RunOptions) (CommandResult, error) {
	if len(command) == 0 {
		return CommandResult{}, gestvenverr.New(gestvenverr.Validation, "empty command")
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	dlog.Debugf(ctx, "running: %s", strings.Join(command, " "))

	cmd := dexec.CommandContext(runCtx, command[0], command[1:]...)
	if opts.Cwd != "" {
		cmd.Dir = opts.Cwd
	}
	if opts.Env != nil {
		cmd.Env = opts.Env
	}
	if opts.Stdin != nil {
		cmd.Stdin = bytes.NewReader(opts.Stdin)
	}

	var stdout, stderr, combined bytes.Buffer
	cmd.Stdout = &multiWriter{&stdout, &combined}
	cmd.Stderr = &multiWriter{&stderr, &combined}

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	result := CommandResult{
		Stdout:   sanitizeUTF8(stdout.String()),
		Stderr:   sanitizeUTF8(stderr.String()),
		Combined: sanitizeUTF8(combined.String()),
		Duration: duration,
	}

	if err == nil {
		result.Status = StatusCompleted
		result.ExitCode = 0
		return result, nil
	}

	if runCtx.Err() == context.DeadlineExceeded {
		result.Status = StatusTimeout
		result.ExitCode = -1
		return result, nil
	}

	var exitErr *dexec.ExitError
	if errors.As(err, &exitErr) {
		result.Status = StatusFailed
		result.ExitCode = exitErr.ExitCode()
		return result, nil
	}

	result.Status = StatusInternalError
	return result, gestvenverr.Wrap(gestvenverr.Backend, err, "spawning %q", command[0])
}

type multiWriter struct {
	a, b *bytes.Buffer
}

func (w *multiWriter) Write(p []byte) (int, error) {
	w.a.Write(p) //nolint:errcheck // bytes.Buffer.Write never errors
	return w.b.Write(p)
}

// sanitizeUTF8 replaces invalid byte sequences, matching the "captures
// stdout/stderr as UTF-8 (replacing invalid bytes)" contract of spec.md §4.1.
func sanitizeUTF8(s string) string {
	return strings.ToValidUTF8(s, "�")
}

// FreeDiskBytes reports the free space available on the filesystem holding
// path.
func (a *Adapter) FreeDiskBytes(path string) (uint64, error) {
	return freeDiskBytes(path)
}

// DirectorySizeBytes walks path and sums the size of every regular file.
func (a *Adapter) DirectorySizeBytes(path string) (int64, error) {
	var total int64
	err := filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.Mode().IsRegular() {
			total += info.Size()
		}
		return nil
	})
	if err != nil {
		return 0, gestvenverr.Wrap(gestvenverr.NotFound, err, "measuring directory size of %q", path)
	}
	return total, nil
}

// Permissions describes what the current process can do with a path.
type Permissions struct {
	Read    bool
	Write   bool
	Execute bool
	Exists  bool
}

// CheckPermissions probes read/write/execute access to path.
func (a *Adapter) CheckPermissions(path string) Permissions {
	info, err := os.Stat(path)
	if err != nil {
		return Permissions{}
	}
	perm := Permissions{Exists: true}
	mode := info.Mode()
	perm.Read = mode.Perm()&0o400 != 0 || unixReadable(path)
	perm.Write = unixWritable(path) || (family() == "windows" && mode.Perm()&0o200 != 0)
	perm.Execute = mode.Perm()&0o100 != 0 || info.IsDir()
	return perm
}
