// Package julia runs the AllocationOpt.jl optimizer in a julia subprocess.
//
// The runtime is bootstrapped lazily: the first EnsureReady locates julia,
// provisions it if configured to, and installs the optimizer packages into a
// dedicated project environment. A successful bootstrap happens once per
// Runtime and is never undone. Optimizations exchange JSON with the
// subprocess and are serialized because they share that environment.
package julia

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/semiotic-ai/allocopt/internal/allocopt"
	"go.uber.org/zap"
)

//go:embed scripts/install.jl
var installScript string

//go:embed scripts/optimize.jl
var optimizeScript string

const (
	resultFileName = "result.json"
	stderrTailSize = 2048

	statusOK    = "ok"
	statusError = "error"
)

// Runtime is an allocopt.Engine backed by a julia subprocess.
type Runtime struct {
	logger *zap.Logger
	cfg    Config
	exec   Executor

	mu     sync.Mutex
	ready  bool
	binary string

	callMu sync.Mutex
}

// Option customizes a Runtime.
type Option func(*Runtime)

// WithExecutor replaces the os/exec based command runner.
func WithExecutor(e Executor) Option {
	return func(r *Runtime) {
		if e != nil {
			r.exec = e
		}
	}
}

// NewRuntime constructs a Runtime. Nothing is located or installed until
// the first EnsureReady.
func NewRuntime(logger *zap.Logger, cfg Config, opts ...Option) *Runtime {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Runtime{logger: logger, cfg: cfg.withDefaults(), exec: osExecutor{}}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var _ allocopt.Engine = (*Runtime)(nil)

// Ready reports whether the runtime has been bootstrapped.
func (r *Runtime) Ready() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ready
}

// EnsureReady bootstraps the runtime on first use. Failures are returned as
// *allocopt.EnvironmentError and the next call tries again.
func (r *Runtime) EnsureReady() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ready {
		return nil
	}

	start := time.Now()
	binary, err := r.locate()
	if err != nil {
		return &allocopt.EnvironmentError{Err: err}
	}

	if err := os.MkdirAll(r.cfg.ProjectDir, 0755); err != nil {
		return &allocopt.EnvironmentError{Err: fmt.Errorf("failed to create julia project directory %s: %w", r.cfg.ProjectDir, err)}
	}

	if !r.cfg.SkipInstall {
		r.logger.Info("installing optimizer packages",
			zap.String("op", "julia.EnsureReady"),
			zap.String("binary", binary),
			zap.String("project", r.cfg.ProjectDir),
			zap.Int("packages", len(r.cfg.Packages)),
		)
		args := append(r.baseArgs("-e", installScript), r.cfg.installArgs()...)
		_, stderr, err := r.exec.Run(binary, args, nil)
		if err != nil {
			return &allocopt.EnvironmentError{
				Err: fmt.Errorf("failed to install optimizer packages: %w: %s", err, tail(stderr)),
			}
		}
	}

	r.binary = binary
	r.ready = true
	r.logger.Info("julia runtime ready",
		zap.String("op", "julia.EnsureReady"),
		zap.String("binary", binary),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}

// locate finds the julia binary, running the provision command once if it
// is missing and one is configured.
func (r *Runtime) locate() (string, error) {
	binary, err := r.exec.LookPath(r.cfg.Binary)
	if err == nil {
		return binary, nil
	}
	if len(r.cfg.ProvisionCommand) == 0 {
		return "", fmt.Errorf("julia binary %q not found: %w", r.cfg.Binary, err)
	}

	r.logger.Warn("julia not found, provisioning",
		zap.String("op", "julia.EnsureReady"),
		zap.String("binary", r.cfg.Binary),
		zap.Strings("command", r.cfg.ProvisionCommand),
	)
	_, stderr, runErr := r.exec.Run(r.cfg.ProvisionCommand[0], r.cfg.ProvisionCommand[1:], nil)
	if runErr != nil {
		return "", fmt.Errorf("failed to provision julia with %q: %w: %s",
			strings.Join(r.cfg.ProvisionCommand, " "), runErr, tail(stderr))
	}

	binary, err = r.exec.LookPath(r.cfg.Binary)
	if err != nil {
		return "", fmt.Errorf("julia binary %q not found after provisioning: %w", r.cfg.Binary, err)
	}
	return binary, nil
}

func (r *Runtime) baseArgs(extra ...string) []string {
	args := []string{"--startup-file=no", "--project=" + r.cfg.ProjectDir}
	return append(args, extra...)
}

type envelope struct {
	Status     string                 `json:"status"`
	Message    string                 `json:"message"`
	Strategies []allocopt.RawStrategy `json:"strategies"`
}

// Optimize runs one optimization in a fresh julia process. EnsureReady
// must have succeeded first.
func (r *Runtime) Optimize(payload allocopt.Payload) (*allocopt.RawResult, error) {
	r.mu.Lock()
	ready, binary := r.ready, r.binary
	r.mu.Unlock()
	if !ready {
		return nil, &allocopt.EnvironmentError{Err: errors.New("julia runtime is not initialized")}
	}

	input, err := json.Marshal(payload)
	if err != nil {
		return nil, &allocopt.MarshalingError{Path: "payload", Err: err}
	}

	r.callMu.Lock()
	defer r.callMu.Unlock()

	workDir, err := os.MkdirTemp("", "allocopt-")
	if err != nil {
		return nil, &allocopt.EnvironmentError{Err: fmt.Errorf("failed to create work directory: %w", err)}
	}
	defer func() {
		if rmErr := os.RemoveAll(workDir); rmErr != nil {
			r.logger.Warn("failed to remove work directory",
				zap.String("op", "julia.Optimize"),
				zap.String("dir", workDir),
				zap.Error(rmErr),
			)
		}
	}()
	resultPath := filepath.Join(workDir, resultFileName)

	start := time.Now()
	_, stderr, runErr := r.exec.Run(binary, r.baseArgs("-e", optimizeScript, resultPath), input)
	r.logger.Debug("julia optimizer exited",
		zap.String("op", "julia.Optimize"),
		zap.Duration("duration", time.Since(start)),
		zap.Bool("failed", runErr != nil),
	)

	data, readErr := os.ReadFile(resultPath)
	if readErr != nil {
		if runErr == nil {
			return nil, &allocopt.MarshalingError{Err: fmt.Errorf("optimizer wrote no result: %w", readErr)}
		}
		var exitErr interface{ ExitCode() int }
		if errors.As(runErr, &exitErr) {
			return nil, &allocopt.OptimizationError{
				Message: fmt.Sprintf("julia exited with status %d: %s", exitErr.ExitCode(), tail(stderr)),
			}
		}
		return nil, &allocopt.EnvironmentError{Err: fmt.Errorf("failed to start julia: %w", runErr)}
	}

	return decodeEnvelope(data)
}

func decodeEnvelope(data []byte) (*allocopt.RawResult, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, &allocopt.MarshalingError{Err: fmt.Errorf("malformed optimizer output: %w", err)}
	}

	switch env.Status {
	case statusOK:
		return &allocopt.RawResult{Strategies: env.Strategies}, nil
	case statusError:
		return nil, &allocopt.OptimizationError{Message: env.Message}
	default:
		return nil, &allocopt.MarshalingError{Path: "status", Err: fmt.Errorf("unknown status %q", env.Status)}
	}
}

// tail keeps the end of a process's stderr, where julia prints the error.
func tail(stderr []byte) string {
	trimmed := bytes.TrimSpace(stderr)
	if len(trimmed) > stderrTailSize {
		trimmed = trimmed[len(trimmed)-stderrTailSize:]
	}
	return string(trimmed)
}
