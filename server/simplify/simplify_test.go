package simplify

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/plainmed/plainmed/config"
	"github.com/plainmed/plainmed/server/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teilomillet/gollm"
	"go.uber.org/zap/zaptest"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Limits.MaxReportChars = 100
	return cfg
}

func TestSimplifySuccess(t *testing.T) {
	reply := "What this report says\nYour hemoglobin is a bit low.\n\nKey findings\nMild anemia.\n\nWhat you can do next\nTalk to your doctor."

	var captured *gollm.Prompt
	mockLLM := mocks.NewMockLLM(func(ctx context.Context, prompt *gollm.Prompt) (string, error) {
		captured = prompt
		return reply, nil
	})

	s := NewSimplifier(mockLLM, testConfig(), nil, zaptest.NewLogger(t))
	result := s.Simplify(context.Background(), Request{
		Text:       "Hemoglobin: 10.2 g/dL (Low)",
		TargetLang: "en",
		Tone:       "friendly",
	})

	assert.Equal(t, reply, result.Simplified)
	assert.Equal(t, "What this report says Your hemoglobin is a bit low. Key findings", result.ShortSummary)
	assert.Equal(t, staticKeywords, result.Keywords)
	assert.False(t, result.Degraded())

	require.NotNil(t, captured)
	require.Len(t, captured.Messages, 2)
	assert.Equal(t, "system", captured.Messages[0].Role)
	assert.Equal(t, "user", captured.Messages[1].Role)
	assert.Contains(t, captured.Messages[1].Content, "Hemoglobin: 10.2 g/dL (Low)")
	assert.Contains(t, captured.Messages[1].Content, "Target language: en")
	assert.Contains(t, captured.Messages[1].Content, "Tone: friendly")
}

func TestSimplifyAppliesDefaults(t *testing.T) {
	var captured *gollm.Prompt
	mockLLM := mocks.NewMockLLM(func(ctx context.Context, prompt *gollm.Prompt) (string, error) {
		captured = prompt
		return "Simplified text.", nil
	})

	s := NewSimplifier(mockLLM, testConfig(), nil, zaptest.NewLogger(t))
	s.Simplify(context.Background(), Request{Text: "CBC within normal limits."})

	require.NotNil(t, captured)
	assert.Contains(t, captured.Messages[1].Content, "Target language: en")
	assert.Contains(t, captured.Messages[1].Content, "Tone: friendly")
}

func TestSimplifyTruncatesLongReports(t *testing.T) {
	var captured *gollm.Prompt
	mockLLM := mocks.NewMockLLM(func(ctx context.Context, prompt *gollm.Prompt) (string, error) {
		captured = prompt
		return "ok", nil
	})

	cfg := testConfig()
	s := NewSimplifier(mockLLM, cfg, nil, zaptest.NewLogger(t))

	long := strings.Repeat("a", 500)
	s.Simplify(context.Background(), Request{Text: long})

	require.NotNil(t, captured)
	expected := strings.Repeat("a", cfg.Limits.MaxReportChars) + TruncationMarker
	assert.Contains(t, captured.Messages[1].Content, expected)
	assert.NotContains(t, captured.Messages[1].Content, strings.Repeat("a", cfg.Limits.MaxReportChars+1))
}

func TestSimplifyDegradesOnError(t *testing.T) {
	mockLLM := mocks.NewMockLLM(func(ctx context.Context, prompt *gollm.Prompt) (string, error) {
		return "", fmt.Errorf("upstream unreachable")
	})

	s := NewSimplifier(mockLLM, testConfig(), nil, zaptest.NewLogger(t))
	result := s.Simplify(context.Background(), Request{Text: "Hemoglobin: 10.2 g/dL"})

	assert.True(t, result.Degraded())
	assert.NotEmpty(t, result.Simplified)
	assert.Empty(t, result.ShortSummary)
	assert.Empty(t, result.Keywords)
}

func TestSimplifyDegradesOnEmptyReply(t *testing.T) {
	mockLLM := mocks.NewMockLLM(func(ctx context.Context, prompt *gollm.Prompt) (string, error) {
		return "   \n  ", nil
	})

	s := NewSimplifier(mockLLM, testConfig(), nil, zaptest.NewLogger(t))
	result := s.Simplify(context.Background(), Request{Text: "report"})

	assert.True(t, result.Degraded())
	assert.Empty(t, result.Keywords)
}

func TestSimplifyBreakerShortCircuits(t *testing.T) {
	var calls atomic.Int32
	mockLLM := mocks.NewMockLLM(func(ctx context.Context, prompt *gollm.Prompt) (string, error) {
		calls.Add(1)
		return "", fmt.Errorf("upstream unreachable")
	})

	cfg := testConfig()
	cfg.LLM.Breaker.FailureThreshold = 2
	cfg.LLM.Breaker.ResetTimeout = time.Hour

	s := NewSimplifier(mockLLM, cfg, nil, zaptest.NewLogger(t))

	// Distinct texts so requests do not collapse into one flight.
	for i := 0; i < 2; i++ {
		result := s.Simplify(context.Background(), Request{Text: fmt.Sprintf("report %d", i)})
		assert.True(t, result.Degraded())
	}
	require.Equal(t, int32(2), calls.Load())

	// Breaker is open now; the service must not be called again.
	result := s.Simplify(context.Background(), Request{Text: "another report"})
	assert.True(t, result.Degraded())
	assert.Equal(t, int32(2), calls.Load())
}

func TestSimplifyDeduplicatesIdenticalRequests(t *testing.T) {
	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once

	mockLLM := mocks.NewMockLLM(func(ctx context.Context, prompt *gollm.Prompt) (string, error) {
		calls.Add(1)
		once.Do(func() { close(started) })
		<-release
		return "Simplified.", nil
	})

	s := NewSimplifier(mockLLM, testConfig(), nil, zaptest.NewLogger(t))
	req := Request{Text: "identical report"}

	var wg sync.WaitGroup
	results := make([]Result, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0] = s.Simplify(context.Background(), req)
	}()

	<-started
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[1] = s.Simplify(context.Background(), req)
	}()

	// Give the second request time to join the in-flight call.
	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load(), "identical concurrent requests should share one call")
	assert.Equal(t, results[0], results[1])
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name        string
		text        string
		maxChars    int
		expected    string
		isTruncated bool
	}{
		{"short text untouched", "hello", 10, "hello", false},
		{"exact length untouched", "hello", 5, "hello", false},
		{"long text cut with marker", "hello world", 5, "hello" + TruncationMarker, true},
		{"multibyte runes counted as characters", "ääääää", 3, "äää" + TruncationMarker, true},
		{"zero threshold disables truncation", "hello", 0, "hello", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, truncated := Truncate(tt.text, tt.maxChars)
			assert.Equal(t, tt.expected, got)
			assert.Equal(t, tt.isTruncated, truncated)
		})
	}
}

func TestShortSummary(t *testing.T) {
	tests := []struct {
		name     string
		reply    string
		expected string
	}{
		{
			name:     "first three non-empty lines",
			reply:    "line one\n\nline two\nline three\nline four",
			expected: "line one line two line three",
		},
		{
			name:     "fewer lines than limit",
			reply:    "only line",
			expected: "only line",
		},
		{
			name:     "whitespace lines skipped",
			reply:    "  \n\na\n   \nb",
			expected: "a b",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, shortSummary(tt.reply))
		})
	}
}
