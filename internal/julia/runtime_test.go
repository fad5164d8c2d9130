package julia

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/semiotic-ai/allocopt/internal/allocopt"
	"github.com/semiotic-ai/allocopt/pkg/constants"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const deploymentA = "QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG"

type exitError struct{ code int }

func (e *exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }
func (e *exitError) ExitCode() int { return e.code }

type runCall struct {
	name  string
	args  []string
	stdin []byte
}

type fakeExecutor struct {
	mu      sync.Mutex
	found   map[string]string
	calls   []runCall
	lookups int
	run     func(name string, args []string, stdin []byte) ([]byte, []byte, error)
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{found: map[string]string{"julia": "/opt/julia/bin/julia"}}
}

func (f *fakeExecutor) LookPath(file string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	if path, ok := f.found[file]; ok {
		return path, nil
	}
	return "", fmt.Errorf("exec: %q: executable file not found in $PATH", file)
}

func (f *fakeExecutor) Run(name string, args []string, stdin []byte) ([]byte, []byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, runCall{name: name, args: args, stdin: stdin})
	run := f.run
	f.mu.Unlock()
	if run == nil {
		return nil, nil, nil
	}
	return run(name, args, stdin)
}

func (f *fakeExecutor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// writeResult mimics the optimize script by writing to the path in its
// last argument.
func writeResult(t *testing.T, args []string, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(args[len(args)-1], []byte(body), 0600))
}

func newTestRuntime(t *testing.T, exec *fakeExecutor, mutate ...func(*Config)) *Runtime {
	t.Helper()
	cfg := Config{ProjectDir: filepath.Join(t.TempDir(), "env")}
	for _, m := range mutate {
		m(&cfg)
	}
	return NewRuntime(zaptest.NewLogger(t), cfg, WithExecutor(exec))
}

func testPayload() allocopt.Payload {
	return allocopt.Payload{
		ID:                      "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed",
		IndexerURL:              "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed",
		NetworkSubgraphEndpoint: "https://example.com/graphql",
		Whitelist:               []string{},
		Blacklist:               []string{},
		Pinnedlist:              []string{},
		Frozenlist:              []string{},
		AllocationLifetime:      28,
		Gas:                     "100",
		MinSignal:               "100",
		MaxAllocations:          10,
		Tau:                     0.2,
		NumReportedOptions:      1,
		OptMode:                 "optimal",
		Verbose:                 true,
	}
}

func TestEnsureReadyInstallsOnce(t *testing.T) {
	exec := newFakeExecutor()
	rt := newTestRuntime(t, exec)

	require.NoError(t, rt.EnsureReady())
	require.NoError(t, rt.EnsureReady())
	assert.True(t, rt.Ready())

	require.Equal(t, 1, exec.callCount(), "packages are installed once")
	call := exec.calls[0]
	assert.Equal(t, "/opt/julia/bin/julia", call.name)
	assert.Equal(t, "--startup-file=no", call.args[0])
	assert.Equal(t, "--project="+rt.cfg.ProjectDir, call.args[1])
	assert.Equal(t, "-e", call.args[2])
	assert.Equal(t, installScript, call.args[3])
	assert.Equal(t, []string{
		"SemioticOpt", constants.SemioticOptURL, constants.SemioticOptRev,
		"TheGraphData", constants.TheGraphDataURL, constants.TheGraphDataRev,
		"AllocationOpt", constants.AllocationOptURL, constants.AllocationOptRev,
		"JSON", "", "",
	}, call.args[4:])

	info, err := os.Stat(rt.cfg.ProjectDir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestEnsureReadyConcurrentCallsBootstrapOnce(t *testing.T) {
	exec := newFakeExecutor()
	exec.run = func(string, []string, []byte) ([]byte, []byte, error) {
		time.Sleep(10 * time.Millisecond)
		return nil, nil, nil
	}
	rt := newTestRuntime(t, exec)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, rt.EnsureReady())
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, exec.callCount())
}

func TestEnsureReadySkipInstall(t *testing.T) {
	exec := newFakeExecutor()
	rt := newTestRuntime(t, exec, func(c *Config) { c.SkipInstall = true })

	require.NoError(t, rt.EnsureReady())
	assert.Zero(t, exec.callCount())
}

func TestEnsureReadyMissingBinaryIsRetried(t *testing.T) {
	exec := newFakeExecutor()
	exec.found = map[string]string{}
	rt := newTestRuntime(t, exec)

	err := rt.EnsureReady()
	require.ErrorIs(t, err, allocopt.ErrEnvironmentUnavailable)
	assert.Contains(t, err.Error(), "not found")
	assert.False(t, rt.Ready())

	exec.mu.Lock()
	exec.found["julia"] = "/usr/local/bin/julia"
	exec.mu.Unlock()

	require.NoError(t, rt.EnsureReady())
	assert.True(t, rt.Ready())
}

func TestEnsureReadyProvisions(t *testing.T) {
	exec := newFakeExecutor()
	exec.found = map[string]string{}
	exec.run = func(name string, args []string, _ []byte) ([]byte, []byte, error) {
		if name == "juliaup" {
			exec.mu.Lock()
			exec.found["julia"] = "/home/indexer/.juliaup/bin/julia"
			exec.mu.Unlock()
		}
		return nil, nil, nil
	}
	rt := newTestRuntime(t, exec, func(c *Config) {
		c.ProvisionCommand = []string{"juliaup", "add", "release"}
	})

	require.NoError(t, rt.EnsureReady())
	require.Equal(t, 2, exec.callCount())
	assert.Equal(t, "juliaup", exec.calls[0].name)
	assert.Equal(t, []string{"add", "release"}, exec.calls[0].args)
	assert.Equal(t, "/home/indexer/.juliaup/bin/julia", exec.calls[1].name)
}

func TestEnsureReadyProvisionFailure(t *testing.T) {
	exec := newFakeExecutor()
	exec.found = map[string]string{}
	exec.run = func(string, []string, []byte) ([]byte, []byte, error) {
		return nil, []byte("network unreachable\n"), &exitError{code: 1}
	}
	rt := newTestRuntime(t, exec, func(c *Config) {
		c.ProvisionCommand = []string{"juliaup", "add", "release"}
	})

	err := rt.EnsureReady()
	require.ErrorIs(t, err, allocopt.ErrEnvironmentUnavailable)
	assert.Contains(t, err.Error(), "network unreachable")
}

func TestEnsureReadyInstallFailure(t *testing.T) {
	exec := newFakeExecutor()
	exec.run = func(string, []string, []byte) ([]byte, []byte, error) {
		return nil, []byte("ERROR: failed to clone from https://github.com/graphprotocol/allocation-optimizer.git"), &exitError{code: 1}
	}
	rt := newTestRuntime(t, exec)

	err := rt.EnsureReady()
	require.ErrorIs(t, err, allocopt.ErrEnvironmentUnavailable)
	assert.Contains(t, err.Error(), "failed to clone")
	assert.False(t, rt.Ready())
}

func TestOptimizeRequiresReady(t *testing.T) {
	rt := newTestRuntime(t, newFakeExecutor())
	_, err := rt.Optimize(testPayload())
	require.ErrorIs(t, err, allocopt.ErrEnvironmentUnavailable)
}

func TestOptimizeSuccess(t *testing.T) {
	exec := newFakeExecutor()
	rt := newTestRuntime(t, exec, func(c *Config) { c.SkipInstall = true })
	require.NoError(t, rt.EnsureReady())

	var received map[string]interface{}
	exec.run = func(name string, args []string, stdin []byte) ([]byte, []byte, error) {
		require.NoError(t, json.Unmarshal(stdin, &received))
		assert.Equal(t, optimizeScript, args[3])
		writeResult(t, args, `{"status":"ok","strategies":[{"allocations":[
			{"deploymentID":"`+deploymentA+`","allocationAmount":"1234.5"}]}]}`)
		return []byte("[ Info: Optimizing"), nil, nil
	}

	raw, err := rt.Optimize(testPayload())
	require.NoError(t, err)
	require.Len(t, raw.Strategies, 1)
	require.Len(t, raw.Strategies[0].Allocations, 1)
	assert.Equal(t, deploymentA, raw.Strategies[0].Allocations[0].DeploymentID)
	assert.JSONEq(t, `"1234.5"`, string(raw.Strategies[0].Allocations[0].Amount))

	assert.Equal(t, "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed", received["id"])
	assert.Equal(t, "100", received["gas"])
	assert.Equal(t, []interface{}{}, received["blacklist"])
	assert.Nil(t, received["readdir"])

	workDir := filepath.Dir(exec.calls[0].args[len(exec.calls[0].args)-1])
	_, statErr := os.Stat(workDir)
	assert.True(t, os.IsNotExist(statErr), "work directory is removed")
}

func TestOptimizeReportsOptimizerError(t *testing.T) {
	msg := "AssertionError: No stake available to allocate with the configured frozenlist and pinnedlist"
	exec := newFakeExecutor()
	rt := newTestRuntime(t, exec, func(c *Config) { c.SkipInstall = true })
	require.NoError(t, rt.EnsureReady())

	exec.run = func(_ string, args []string, _ []byte) ([]byte, []byte, error) {
		body, _ := json.Marshal(map[string]string{"status": "error", "message": msg})
		writeResult(t, args, string(body))
		return nil, nil, nil
	}

	_, err := rt.Optimize(testPayload())
	require.ErrorIs(t, err, allocopt.ErrOptimizationFailed)
	var optErr *allocopt.OptimizationError
	require.True(t, errors.As(err, &optErr))
	assert.Equal(t, msg, optErr.Message)
}

func TestOptimizeProcessFailures(t *testing.T) {
	tests := []struct {
		name    string
		run     func(t *testing.T, args []string) ([]byte, []byte, error)
		kind    error
		message string
	}{
		{
			name: "crash without result",
			run: func(*testing.T, []string) ([]byte, []byte, error) {
				return nil, []byte("ERROR: LoadError: UndefVarError: `optimize` not defined"), &exitError{code: 1}
			},
			kind:    allocopt.ErrOptimizationFailed,
			message: "UndefVarError",
		},
		{
			name: "cannot start",
			run: func(*testing.T, []string) ([]byte, []byte, error) {
				return nil, nil, errors.New("fork/exec /opt/julia/bin/julia: no such file or directory")
			},
			kind:    allocopt.ErrEnvironmentUnavailable,
			message: "no such file or directory",
		},
		{
			name: "exits cleanly without result",
			run: func(*testing.T, []string) ([]byte, []byte, error) {
				return nil, nil, nil
			},
			kind:    allocopt.ErrMarshaling,
			message: "no result",
		},
		{
			name: "malformed output",
			run: func(t *testing.T, args []string) ([]byte, []byte, error) {
				writeResult(t, args, `{"status":"ok","strategies":`)
				return nil, nil, nil
			},
			kind:    allocopt.ErrMarshaling,
			message: "malformed",
		},
		{
			name: "unknown status",
			run: func(t *testing.T, args []string) ([]byte, []byte, error) {
				writeResult(t, args, `{"status":"partial"}`)
				return nil, nil, nil
			},
			kind:    allocopt.ErrMarshaling,
			message: "partial",
		},
		{
			name: "result written despite non-zero exit",
			run: func(t *testing.T, args []string) ([]byte, []byte, error) {
				writeResult(t, args, `{"status":"error","message":"Tried to allocate more stake than is available by 12.5"}`)
				return nil, nil, &exitError{code: 1}
			},
			kind:    allocopt.ErrOptimizationFailed,
			message: "more stake than is available",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := newFakeExecutor()
			rt := newTestRuntime(t, exec, func(c *Config) { c.SkipInstall = true })
			require.NoError(t, rt.EnsureReady())

			exec.run = func(_ string, args []string, _ []byte) ([]byte, []byte, error) {
				return tt.run(t, args)
			}

			raw, err := rt.Optimize(testPayload())
			assert.Nil(t, raw)
			require.ErrorIs(t, err, tt.kind)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestOptimizeSerializesCalls(t *testing.T) {
	exec := newFakeExecutor()
	rt := newTestRuntime(t, exec, func(c *Config) { c.SkipInstall = true })
	require.NoError(t, rt.EnsureReady())

	var active, maxActive int32
	exec.run = func(_ string, args []string, _ []byte) ([]byte, []byte, error) {
		n := atomic.AddInt32(&active, 1)
		for {
			m := atomic.LoadInt32(&maxActive)
			if n <= m || atomic.CompareAndSwapInt32(&maxActive, m, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&active, -1)
		writeResult(t, args, `{"status":"ok","strategies":[{"allocations":[]}]}`)
		return nil, nil, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := rt.Optimize(testPayload())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), atomic.LoadInt32(&maxActive))
}

func TestRuntimeDrivesOptimizer(t *testing.T) {
	exec := newFakeExecutor()
	exec.run = func(_ string, args []string, _ []byte) ([]byte, []byte, error) {
		if args[3] != optimizeScript {
			return nil, nil, nil
		}
		writeResult(t, args, `{"status":"ok","strategies":[{"allocations":[
			{"deploymentID":"`+deploymentA+`","allocationAmount":1.5}]}]}`)
		return nil, nil, nil
	}
	rt := newTestRuntime(t, exec)

	opt, err := allocopt.NewOptimizer(zaptest.NewLogger(t), rt)
	require.NoError(t, err)

	result, err := opt.Allocate(allocopt.Request{
		IndexerAddress:          "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
		GasPerAllocation:        new(big.Int).Mul(big.NewInt(100), big.NewInt(1_000_000_000_000_000_000)),
		AllocationLifetime:      28,
		NetworkSubgraphEndpoint: "https://example.com/graphql",
	})
	require.NoError(t, err)
	assert.Equal(t, "1500000000000000000", result[deploymentA].String())
	assert.True(t, rt.Ready())
	assert.Equal(t, 2, exec.callCount(), "one install and one optimization")
}

func TestTail(t *testing.T) {
	assert.Equal(t, "boom", tail([]byte("  boom\n")))

	long := strings.Repeat("a", stderrTailSize) + "END"
	got := tail([]byte(long))
	assert.Len(t, got, stderrTailSize)
	assert.True(t, strings.HasSuffix(got, "END"))
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, constants.DefaultJuliaBinary, cfg.Binary)
	assert.NotEmpty(t, cfg.ProjectDir)
	assert.Equal(t, DefaultPackages(), cfg.Packages)

	custom := Config{Packages: []Package{}}.withDefaults()
	assert.Empty(t, custom.Packages, "an explicit empty package list is kept")
	assert.Empty(t, custom.installArgs())
}
