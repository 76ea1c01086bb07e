package backend

import (
	"bufio"
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/roach88/artdr/internal/catalog"
	"github.com/roach88/artdr/internal/params"
)

//go:embed driver.py
var driverSrc string

// exitUnavailable is the driver's exit status for a missing package.
const exitUnavailable = 3

// Exec runs a back-end through an external driver process.
type Exec struct {
	spec   catalog.Backend
	python string
	args   []string
	logger *zap.Logger

	mu     sync.Mutex
	probed bool
	probe  error
}

// NewExec creates an exec reducer for b.
func NewExec(b catalog.Backend, opts Options) *Exec {
	python := opts.Python
	if python == "" {
		python = "python3"
	}
	args := opts.Args
	if args == nil {
		args = []string{"-c", driverSrc}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exec{
		spec:   b,
		python: python,
		args:   args,
		logger: logger.With(zap.String("backend", b.Name)),
	}
}

func (e *Exec) Name() string { return e.spec.Name }

type request struct {
	Op      string        `json:"op"`
	Module  string        `json:"module"`
	Class   string        `json:"class"`
	Call    string        `json:"call"`
	Adapter string        `json:"adapter"`
	Kwargs  params.Params `json:"kwargs"`
	X       [][]float64   `json:"X,omitempty"`
}

type response struct {
	Points [][]float64 `json:"points"`
}

// Available runs the driver's probe once per process. A probe interrupted
// by context cancellation is not remembered.
func (e *Exec) Available(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.probed {
		return e.probe
	}

	_, err := e.run(ctx, e.newRequest("probe", nil, nil))
	if err != nil && !errors.Is(err, ErrUnavailable) {
		err = fmt.Errorf("%w: probe: %v", ErrUnavailable, err)
	}
	if ctx.Err() == nil {
		e.probed, e.probe = true, err
	}
	return err
}

// FitTransform sends X and the keyword arguments to the driver.
func (e *Exec) FitTransform(ctx context.Context, X [][]float64, p params.Params) ([][]float64, error) {
	if _, _, err := validateMatrix(X); err != nil {
		return nil, fmt.Errorf("%s: %w", e.spec.Name, err)
	}

	out, err := e.run(ctx, e.newRequest("run", X, p))
	if err != nil {
		return nil, err
	}

	var resp response
	if err := json.Unmarshal(out, &resp); err != nil {
		return nil, fmt.Errorf("%s: decode output: %w", e.spec.Name, err)
	}
	return resp.Points, nil
}

func (e *Exec) newRequest(op string, X [][]float64, p params.Params) request {
	if p == nil {
		p = params.Params{}
	}
	return request{
		Op:      op,
		Module:  e.spec.Module,
		Class:   e.spec.Class,
		Call:    e.spec.Call,
		Adapter: e.spec.Adapter,
		Kwargs:  p,
		X:       X,
	}
}

// run starts the driver, writes req to stdin and returns stdout. Exit
// status 3 and a missing interpreter map to ErrUnavailable.
func (e *Exec) run(ctx context.Context, req request) ([]byte, error) {
	in, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("%s: encode request: %w", e.spec.Name, err)
	}

	cmd := exec.CommandContext(ctx, e.python, e.args...)
	cmd.Stdin = bytes.NewReader(in)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	e.logStderr(req.Op, stderr.Bytes())

	if runErr == nil {
		return stdout.Bytes(), nil
	}
	if errors.Is(runErr, exec.ErrNotFound) || errors.Is(runErr, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, e.spec.Name, runErr)
	}
	if ctx.Err() != nil {
		return nil, fmt.Errorf("%s: %w", e.spec.Name, ctx.Err())
	}

	detail := lastLine(stderr.Bytes())
	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) && exitErr.ExitCode() == exitUnavailable {
		return nil, fmt.Errorf("%w: %s: %s", ErrUnavailable, e.spec.Name, detail)
	}
	if detail != "" {
		return nil, fmt.Errorf("%s: %v: %s", e.spec.Name, runErr, detail)
	}
	return nil, fmt.Errorf("%s: %w", e.spec.Name, runErr)
}

func (e *Exec) logStderr(op string, data []byte) {
	if len(data) == 0 {
		return
	}
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		e.logger.Debug("driver output", zap.String("op", op), zap.String("line", sc.Text()))
	}
}

func lastLine(data []byte) string {
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
