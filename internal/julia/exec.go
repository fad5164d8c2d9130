package julia

import (
	"bytes"
	"os/exec"
)

// Executor runs external commands. The default implementation wraps os/exec;
// tests substitute their own.
type Executor interface {
	LookPath(file string) (string, error)
	Run(name string, args []string, stdin []byte) (stdout, stderr []byte, err error)
}

type osExecutor struct{}

func (osExecutor) LookPath(file string) (string, error) {
	return exec.LookPath(file)
}

func (osExecutor) Run(name string, args []string, stdin []byte) ([]byte, []byte, error) {
	cmd := exec.Command(name, args...)
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}
