package flightctlcli

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/tansive/flightctl-mcp/internal/common/apperrors"
	"github.com/tansive/flightctl-mcp/internal/console"
)

const loginOutputLimit = 512

// LoginArgs returns the arguments that log the CLI into h.Server.
func LoginArgs(h console.Handle) []string {
	args := []string{"login", h.Server, "--token", h.Token}
	if h.InsecureSkipVerify {
		args = append(args, "--insecure-skip-tls-verify")
	}
	if h.CAPath != "" {
		args = append(args, "--certificate-authority", h.CAPath)
	}
	return args
}

// ConsoleArgs returns the arguments that run command on the device console.
// The command is split on whitespace.
func ConsoleArgs(h console.Handle, command string) []string {
	args := []string{"console", "device/" + h.DeviceID}
	if h.InsecureSkipVerify {
		args = append(args, "--insecure-skip-tls-verify")
	}
	args = append(args, "--")
	return append(args, strings.Fields(command)...)
}

// Executor opens console channels by running the flightctl CLI. Each session
// gets its own HOME so the CLI never touches the user's client configuration.
type Executor struct {
	cliPath string
	tempDir string
	env     []string
	logger  zerolog.Logger
}

// ExecutorOption customizes an Executor.
type ExecutorOption func(*Executor)

// WithTempDir sets where session HOME directories are created.
func WithTempDir(dir string) ExecutorOption {
	return func(e *Executor) { e.tempDir = dir }
}

// WithEnv sets extra environment entries for the CLI.
func WithEnv(kv ...string) ExecutorOption {
	return func(e *Executor) { e.env = append(e.env, kv...) }
}

// WithExecutorLogger sets the logger.
func WithExecutorLogger(l zerolog.Logger) ExecutorOption {
	return func(e *Executor) { e.logger = l }
}

// NewExecutor returns an Executor running the CLI at cliPath.
func NewExecutor(cliPath string, opts ...ExecutorOption) *Executor {
	e := &Executor{
		cliPath: cliPath,
		logger:  log.Logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Dial logs the CLI in and starts the console process.
func (e *Executor) Dial(ctx context.Context, h console.Handle, command string) (console.Channel, error) {
	home, err := os.MkdirTemp(e.tempDir, "flightctl-console-")
	if err != nil {
		return nil, ErrStart.MsgErr("failed to create session home", err)
	}
	env := e.environ(home)

	login := exec.CommandContext(ctx, e.cliPath, LoginArgs(h)...)
	login.Dir = home
	login.Env = env
	if out, err := login.CombinedOutput(); err != nil {
		os.RemoveAll(home)
		return nil, ErrLogin.MsgErr("flightctl login: "+strings.TrimSpace(apperrors.Excerpt(out, loginOutputLimit)), err).
			With(apperrors.FieldDeviceID, h.DeviceID)
	}

	// the console process outlives ctx; its lifetime is bounded by Close
	cmd := exec.Command(e.cliPath, ConsoleArgs(h, command)...)
	cmd.Dir = home
	cmd.Env = env
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		os.RemoveAll(home)
		return nil, ErrStart.MsgErr("failed to get stdout pipe", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		os.RemoveAll(home)
		return nil, ErrStart.MsgErr("failed to get stderr pipe", err)
	}
	if err := cmd.Start(); err != nil {
		os.RemoveAll(home)
		return nil, ErrStart.MsgErr("failed to start console", err).With(apperrors.FieldDeviceID, h.DeviceID)
	}

	e.logger.Debug().
		Str("event", "console_process_started").
		Object("handle", h).
		Int("pid", cmd.Process.Pid).
		Msg("flightctl console started")

	return &process{cmd: cmd, stdout: stdout, stderr: stderr, home: home, closed: make(chan struct{})}, nil
}

func (e *Executor) environ(home string) []string {
	env := os.Environ()
	env = appendOrReplaceEnv(env, "HOME", home)
	env = appendOrReplaceEnv(env, "XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	for _, kv := range e.env {
		k, v, _ := strings.Cut(kv, "=")
		env = appendOrReplaceEnv(env, k, v)
	}
	return env
}

func appendOrReplaceEnv(env []string, key, value string) []string {
	prefix := key + "="
	for i, kv := range env {
		if strings.HasPrefix(kv, prefix) {
			env[i] = prefix + value
			return env
		}
	}
	return append(env, prefix+value)
}

// process is a running flightctl console.
type process struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr io.ReadCloser
	home   string

	closeOnce sync.Once
	closed    chan struct{}
}

// Stream fans stdout and stderr into w and waits for the process to exit.
func (p *process) Stream(w io.Writer) (int, error) {
	sw := &syncWriter{w: w}
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		io.Copy(sw, p.stdout)
	}()
	go func() {
		defer wg.Done()
		io.Copy(sw, p.stderr)
	}()
	wg.Wait()

	err := p.cmd.Wait()
	if err == nil {
		return 0, nil
	}
	select {
	case <-p.closed:
		return -1, ErrCLI.Msg("console process terminated")
	default:
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() >= 0 {
		return exitErr.ExitCode(), nil
	}
	return -1, ErrCLI.MsgErr("console process failed", err)
}

// Close kills the process and removes the session HOME.
func (p *process) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.closed)
		if p.cmd.Process != nil {
			if kerr := p.cmd.Process.Kill(); kerr != nil && !errors.Is(kerr, os.ErrProcessDone) {
				err = kerr
			}
		}
		p.stdout.Close()
		p.stderr.Close()
		if rerr := os.RemoveAll(p.home); rerr != nil && err == nil {
			err = rerr
		}
	})
	return err
}

type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(b []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(b)
}
