package executor

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"community-orchestrator/core/errors"
	"community-orchestrator/core/logging"
	"community-orchestrator/core/models"
)

// SummaryLimit bounds the captured converter output kept in error summaries.
const SummaryLimit = 2048

// ConvertResult is what a converter invocation left behind.
type ConvertResult struct {
	ExitCode int
	Output   string // tail of combined stdout and stderr
}

// Converter runs the external conversion and simulation of one archetype.
// It writes its artifacts under outputDir.
type Converter interface {
	Convert(ctx context.Context, input, outputDir string) (*ConvertResult, error)
}

// ConverterFunc adapts a function to the Converter interface.
type ConverterFunc func(ctx context.Context, input, outputDir string) (*ConvertResult, error)

// Convert calls f.
func (f ConverterFunc) Convert(ctx context.Context, input, outputDir string) (*ConvertResult, error) {
	return f(ctx, input, outputDir)
}

// ExpectedArtifact returns where the converter writes the hourly time series
// of input: <outputDir>/<stem>/run/results_timeseries.csv.
func ExpectedArtifact(outputDir, input string) string {
	stem := models.StemOf(filepath.Base(input))
	return filepath.Join(outputDir, stem, "run", "results_timeseries.csv")
}

// CommandConverter invokes an executable per archetype.
type CommandConverter struct {
	binary string
	args   []string
	logger *logging.Logger
}

// NewCommandConverter creates a converter running binary with an argument
// template in which {input} and {output} are substituted per call.
func NewCommandConverter(binary, argsTemplate string, logger *logging.Logger) *CommandConverter {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &CommandConverter{
		binary: binary,
		args:   strings.Fields(argsTemplate),
		logger: logger,
	}
}

// Args expands the argument template.
func (c *CommandConverter) Args(input, outputDir string) []string {
	r := strings.NewReplacer("{input}", input, "{output}", outputDir)
	out := make([]string, len(c.args))
	for i, a := range c.args {
		out[i] = r.Replace(a)
	}
	return out
}

// Convert runs the converter and waits for it. Context expiry kills the process.
func (c *CommandConverter) Convert(ctx context.Context, input, outputDir string) (*ConvertResult, error) {
	args := c.Args(input, outputDir)
	cmd := exec.CommandContext(ctx, c.binary, args...)
	cmd.Dir = filepath.Dir(input)
	cmd.WaitDelay = 5 * time.Second

	tail := newTailBuffer(SummaryLimit)
	cmd.Stdout = tail
	cmd.Stderr = tail

	c.logger.Debug("starting converter", "binary", c.binary, "args", args)
	err := cmd.Run()
	res := &ConvertResult{Output: tail.String()}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return res, errors.ErrJobTimeout
		}
		return res, ctxErr
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return res, fmt.Errorf("%w: %v", errors.ErrConverterFailed, err)
		}
		return res, fmt.Errorf("%w: start %s: %v", errors.ErrConverterFailed, c.binary, err)
	}
	return res, nil
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	buf   []byte
}

func newTailBuffer(limit int) *tailBuffer {
	return &tailBuffer{limit: limit}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.limit; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}
