package exec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	osexec "os/exec"
	"strings"
	"time"

	"github.com/dkeye/coderoom/internal/domain"
	"github.com/dkeye/coderoom/internal/metrics"
	"github.com/rs/zerolog/log"
)

const noOutput = "Code executed successfully (no output)"

// Result is what the client's output panel renders. ExecutionTime is in
// milliseconds.
type Result struct {
	Output        string  `json:"output"`
	Error         string  `json:"error,omitempty"`
	ExecutionTime float64 `json:"executionTime"`
}

// Runner runs snippets in a child interpreter under a wall-clock limit.
type Runner struct {
	timeout   time.Duration
	maxOutput int
	commands  map[domain.Language][]string
}

// DefaultCommands runs code passed as the last argument.
func DefaultCommands() map[domain.Language][]string {
	return map[domain.Language][]string{
		domain.LanguageJavaScript: {"node", "-e"},
		domain.LanguagePython:     {"python3", "-c"},
	}
}

func NewRunner(timeout time.Duration, maxOutput int, commands map[domain.Language][]string) *Runner {
	if commands == nil {
		commands = DefaultCommands()
	}
	return &Runner{timeout: timeout, maxOutput: maxOutput, commands: commands}
}

// Run executes code. Failures of the snippet itself are reported in the
// Result; the error is only for requests that could not be attempted.
func (r *Runner) Run(ctx context.Context, lang domain.Language, code string) (Result, error) {
	argv, ok := r.commands[lang]
	if !ok || len(argv) == 0 {
		return Result{}, fmt.Errorf("no interpreter for %q: %w", lang, domain.ErrValidation)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	stdout := &cappedBuffer{limit: r.maxOutput}
	stderr := &cappedBuffer{limit: r.maxOutput}
	args := append(append([]string(nil), argv[1:]...), code)
	cmd := osexec.CommandContext(ctx, argv[0], args...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = time.Second

	start := time.Now()
	err := cmd.Run()
	res := Result{ExecutionTime: float64(time.Since(start).Microseconds()) / 1000}
	out := strings.TrimRight(stdout.String(), "\n")

	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		res.Output = out
		res.Error = fmt.Sprintf("Execution timed out after %s", r.timeout)
		metrics.Executions.WithLabelValues(string(lang), "timeout").Inc()
	case err != nil:
		var exitErr *osexec.ExitError
		if !errors.As(err, &exitErr) {
			metrics.Executions.WithLabelValues(string(lang), "unavailable").Inc()
			log.Error().Err(err).Str("module", "exec").Str("language", string(lang)).Msg("interpreter start")
			return Result{}, fmt.Errorf("start %s: %w", argv[0], err)
		}
		res.Output = out
		res.Error = strings.TrimRight(stderr.String(), "\n")
		if res.Error == "" {
			res.Error = exitErr.Error()
		}
		metrics.Executions.WithLabelValues(string(lang), "error").Inc()
	default:
		res.Output = out
		if errOut := strings.TrimRight(stderr.String(), "\n"); errOut != "" {
			res.Error = errOut
		} else if res.Output == "" {
			res.Output = noOutput
		}
		metrics.Executions.WithLabelValues(string(lang), "ok").Inc()
	}

	log.Debug().Str("module", "exec").Str("language", string(lang)).Float64("ms", res.ExecutionTime).Msg("executed")
	return res, nil
}

// cappedBuffer keeps the first limit bytes and discards the rest. A
// non-positive limit keeps everything.
type cappedBuffer struct {
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	if b.limit <= 0 {
		return b.buf.Write(p)
	}
	room := b.limit - b.buf.Len()
	if room <= 0 {
		b.truncated = true
		return len(p), nil
	}
	if len(p) > room {
		b.buf.Write(p[:room])
		b.truncated = true
		return len(p), nil
	}
	return b.buf.Write(p)
}

func (b *cappedBuffer) String() string {
	if b.truncated {
		return b.buf.String() + "\n[output truncated]"
	}
	return b.buf.String()
}
