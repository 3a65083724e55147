// Package external drives the command-line tools around the phyloseq step:
// FastQC and MultiQC for read quality, and QIIME 2 for import, denoising,
// classification and tree building. Only the tools' exit status is
// consumed; their output is forwarded line by line to the logger.
package external

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrToolNotFound is returned when an executable cannot be resolved.
var ErrToolNotFound = errors.New("executable not found")

// Command is one tool invocation.
type Command struct {
	Name string
	Args []string
}

func (c Command) String() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

// ToolError reports a tool that could not be started or exited non-zero.
type ToolError struct {
	Command Command
	Err     error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("`%s`: %v", e.Command, e.Err)
}

func (e *ToolError) Unwrap() error { return e.Err }

// Runner executes commands.
type Runner struct {
	// TmpDir, if set, is created and handed to children as TMPDIR. The
	// parent's environment is left alone.
	TmpDir string

	Log *zap.Logger
}

func (r *Runner) log() *zap.Logger {
	if r.Log == nil {
		return zap.NewNop()
	}
	return r.Log
}

// LookPath resolves name on $PATH, or checks it directly when it contains a
// path separator.
func LookPath(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("%w: empty name", ErrToolNotFound)
	}

	p, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrToolNotFound, name, err)
	}
	return p, nil
}

// Run resolves c.Name, starts it and waits for it to exit. Every line the
// child writes is logged at info level, tagged with the stream it came from.
func (r *Runner) Run(ctx context.Context, c Command) error {
	path, err := LookPath(c.Name)
	if err != nil {
		return err
	}

	env := os.Environ()
	if r.TmpDir != "" {
		if err := os.MkdirAll(r.TmpDir, 0o755); err != nil {
			return fmt.Errorf("tmp dir: %w", err)
		}
		env = withEnv(env, "TMPDIR", r.TmpDir)
	}

	cmd := exec.CommandContext(ctx, path, c.Args...)
	cmd.Env = env

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return &ToolError{Command: c, Err: err}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return &ToolError{Command: c, Err: err}
	}

	log := r.log().With(zap.String("tool", c.Name))
	log.Info("running command", zap.String("command", c.String()))

	if err := cmd.Start(); err != nil {
		return &ToolError{Command: c, Err: err}
	}

	// Both pipes must be drained before Wait closes them.
	var g errgroup.Group
	g.Go(func() error { return forward(stdout, log.With(zap.String("stream", "stdout"))) })
	g.Go(func() error { return forward(stderr, log.With(zap.String("stream", "stderr"))) })
	readErr := g.Wait()

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &ToolError{Command: c, Err: err}
	}
	if readErr != nil {
		return &ToolError{Command: c, Err: readErr}
	}

	return nil
}

func forward(r io.Reader, log *zap.Logger) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if line == "" {
			continue
		}
		log.Info(line)
	}

	// Drain whatever is left so the child never blocks on a full pipe.
	if err := sc.Err(); err != nil {
		io.Copy(io.Discard, r)
		return err
	}
	return nil
}

func withEnv(env []string, key, value string) []string {
	out := make([]string, 0, len(env)+1)
	for _, kv := range env {
		if strings.HasPrefix(kv, key+"=") {
			continue
		}
		out = append(out, kv)
	}
	return append(out, key+"="+value)
}

// requireFiles reports the first path that does not exist.
func requireFiles(kind string, paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			return fmt.Errorf("%s %s: %w", kind, p, err)
		}
	}
	return nil
}
