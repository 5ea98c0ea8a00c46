// Package simplify turns raw medical report text into a patient-friendly
// rewrite by prompting an external text-generation service.
//
// The package owns the whole prompt/response contract: truncation of long
// reports, the fixed system instruction, the single outbound LLM call, and
// the degraded result returned when that call fails. Simplify never returns
// an error; downstream failures are swallowed into a degraded result and
// logged for operators.
package simplify

import (
	"context"
	"fmt"
	"strings"

	"github.com/plainmed/plainmed/config"
	"github.com/plainmed/plainmed/server/metrics"
	"github.com/sony/gobreaker"
	"github.com/teilomillet/gollm"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultTargetLang is used when a request does not name a language.
	DefaultTargetLang = "en"

	// DefaultTone is used when a request does not name a tone.
	DefaultTone = "friendly"

	// degradedMessage is the user-facing text returned when the
	// text-generation service fails.
	degradedMessage = "We couldn't simplify your report right now. Please try again in a few minutes."

	// summaryLines is how many lines of the reply form the short summary.
	summaryLines = 3
)

// errEmptyReply marks a technically successful call whose reply carried no
// usable text.
var errEmptyReply = fmt.Errorf("text-generation service returned an empty reply")

// staticKeywords is the fixed topical keyword set attached to successful
// results. The model is instructed to reply in plain text, so keywords are
// not parsed out of its output.
var staticKeywords = []string{"medical report", "doctor consultation", "healthy lifestyle", "lab results"}

// Request carries one simplification job. Validated at the HTTP boundary;
// immutable afterwards.
type Request struct {
	Text       string
	TargetLang string
	Tone       string
}

// Result is the structured outcome of a simplification. Keywords may be
// empty (degraded path); the response composer substitutes defaults.
type Result struct {
	Simplified   string
	ShortSummary string
	Keywords     []string
}

// Degraded reports whether the result came from the failure path.
func (r Result) Degraded() bool {
	return r.Simplified == degradedMessage
}

// Simplifier invokes the external text-generation service and shapes its
// reply. It holds the circuit breaker protecting the outbound call and a
// singleflight group so identical concurrent requests share one call.
type Simplifier struct {
	llm     gollm.LLM
	logger  *zap.Logger
	cfg     config.LLMConfig
	limits  config.LimitsConfig
	metrics *metrics.Metrics
	breaker *gobreaker.CircuitBreaker
	counter *TokenCounter
	group   singleflight.Group
}

// NewSimplifier creates a simplifier using the given LLM instance.
// The metrics instance may be nil in tests.
func NewSimplifier(llm gollm.LLM, cfg *config.Config, m *metrics.Metrics, logger *zap.Logger) *Simplifier {
	s := &Simplifier{
		llm:     llm,
		logger:  logger,
		cfg:     cfg.LLM,
		limits:  cfg.Limits,
		metrics: m,
	}

	s.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "text-generation",
		Timeout: cfg.LLM.Breaker.ResetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.LLM.Breaker.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	// Token counting is best effort; non-OpenAI model names have no
	// registered encoding.
	counter, err := NewTokenCounter(cfg.LLM.Model)
	if err != nil {
		logger.Warn("token counting disabled",
			zap.String("model", cfg.LLM.Model),
			zap.Error(err),
		)
	} else {
		s.counter = counter
	}

	return s
}

// Simplify rewrites report text into patient-friendly language.
//
// On any downstream failure (service unreachable, breaker open, empty
// reply) it returns a fixed degraded result instead of an error, and leaves
// a log entry plus a metric bump for operators. There is no in-request
// retry; retry policy belongs to the caller.
func (s *Simplifier) Simplify(ctx context.Context, req Request) Result {
	text, truncated := Truncate(req.Text, s.limits.MaxReportChars)

	lang := req.TargetLang
	if lang == "" {
		lang = DefaultTargetLang
	}
	tone := req.Tone
	if tone == "" {
		tone = DefaultTone
	}

	prompt := buildPrompt(text, lang, tone)

	if s.counter != nil {
		tokens := s.counter.Count(systemPrompt) + s.counter.Count(prompt.Messages[1].Content)
		if s.metrics != nil {
			s.metrics.PromptTokens.Observe(float64(tokens))
		}
		if s.cfg.MaxContextTokens > 0 && tokens > s.cfg.MaxContextTokens {
			s.logger.Warn("prompt may exceed model context window",
				zap.Int("estimated_tokens", tokens),
				zap.Int("max_context_tokens", s.cfg.MaxContextTokens),
			)
		}
	}

	s.logger.Debug("invoking text-generation service",
		zap.Int("report_chars", len(req.Text)),
		zap.Bool("truncated", truncated),
		zap.String("target_lang", lang),
		zap.String("tone", tone),
	)

	// Identical concurrent requests collapse into one outbound call.
	key := lang + "\x00" + tone + "\x00" + text
	v, err, shared := s.group.Do(key, func() (interface{}, error) {
		return s.breaker.Execute(func() (interface{}, error) {
			return s.llm.Generate(ctx, prompt)
		})
	})
	if err != nil {
		return s.degrade(err)
	}

	reply := strings.TrimSpace(v.(string))
	if reply == "" {
		return s.degrade(errEmptyReply)
	}

	if shared {
		s.logger.Debug("simplify request deduplicated")
	}

	return Result{
		Simplified:   reply,
		ShortSummary: shortSummary(reply),
		Keywords:     staticKeywords,
	}
}

func (s *Simplifier) degrade(err error) Result {
	s.logger.Error("text-generation service failed, returning degraded result",
		zap.Error(err),
	)
	if s.metrics != nil {
		s.metrics.UpstreamFailures.Inc()
	}
	return Result{
		Simplified:   degradedMessage,
		ShortSummary: "",
		Keywords:     nil,
	}
}

// shortSummary takes the first few non-empty lines of the reply.
func shortSummary(reply string) string {
	var lines []string
	for _, line := range strings.Split(reply, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lines = append(lines, line)
		if len(lines) == summaryLines {
			break
		}
	}
	return strings.Join(lines, " ")
}
