package exec

import (
	"context"
	"testing"
	"time"

	"github.com/dkeye/coderoom/internal/domain"
	"github.com/stretchr/testify/require"
)

func shRunner(timeout time.Duration, maxOutput int) *Runner {
	return NewRunner(timeout, maxOutput, map[domain.Language][]string{
		domain.LanguagePython: {"sh", "-c"},
	})
}

func TestRunner_CapturesOutput(t *testing.T) {
	res, err := shRunner(5*time.Second, 0).Run(context.Background(), domain.LanguagePython, "echo hello")
	require.NoError(t, err)
	require.Equal(t, "hello", res.Output)
	require.Empty(t, res.Error)
	require.GreaterOrEqual(t, res.ExecutionTime, 0.0)
}

func TestRunner_NoOutput(t *testing.T) {
	res, err := shRunner(5*time.Second, 0).Run(context.Background(), domain.LanguagePython, "true")
	require.NoError(t, err)
	require.Equal(t, noOutput, res.Output)
}

func TestRunner_ReportsFailure(t *testing.T) {
	res, err := shRunner(5*time.Second, 0).Run(context.Background(), domain.LanguagePython, "echo partial; echo boom >&2; exit 3")
	require.NoError(t, err)
	require.Equal(t, "partial", res.Output)
	require.Equal(t, "boom", res.Error)
}

func TestRunner_Timeout(t *testing.T) {
	res, err := shRunner(100*time.Millisecond, 0).Run(context.Background(), domain.LanguagePython, "sleep 5")
	require.NoError(t, err)
	require.Contains(t, res.Error, "timed out")
	require.Less(t, res.ExecutionTime, float64(4000))
}

func TestRunner_UnknownLanguage(t *testing.T) {
	_, err := shRunner(time.Second, 0).Run(context.Background(), domain.LanguageJavaScript, "1")
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestRunner_TruncatesOutput(t *testing.T) {
	res, err := shRunner(5*time.Second, 4).Run(context.Background(), domain.LanguagePython, "echo abcdefgh")
	require.NoError(t, err)
	require.Equal(t, "abcd\n[output truncated]", res.Output)
}
