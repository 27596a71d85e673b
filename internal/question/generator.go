package question

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/classlive/platform/internal/errors"
	"github.com/classlive/platform/internal/observability/metrics"
	"github.com/classlive/platform/internal/resilience"
)

// maxContextChars bounds the transcript window sent per generation call.
const maxContextChars = 4000

// HTTPGenerator calls the question generation service over HTTP/JSON.
// Calls are retried with backoff and guarded by a circuit breaker so a
// flapping AI backend cannot stall the live session.
type HTTPGenerator struct {
	baseURL string
	client  *http.Client
	breaker *resilience.Breaker
	retry   resilience.RetryConfig
	metrics *metrics.Metrics
}

// NewHTTPGenerator creates a generator client for the given base URL.
func NewHTTPGenerator(baseURL string, timeout time.Duration) *HTTPGenerator {
	retry := resilience.GenerationRetryConfig()
	retry.IsRetryable = func(err error) bool {
		if err == resilience.ErrOpen {
			return false
		}
		return resilience.IsRetryable(err)
	}
	return &HTTPGenerator{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		breaker: resilience.NewBreaker(resilience.DefaultBreakerConfig()),
		retry:   retry,
		metrics: metrics.Default,
	}
}

type generateRequest struct {
	Context      string `json:"context"`
	QuestionType Type   `json:"question_type"`
}

type generateResponse struct {
	Question      string   `json:"question"`
	Options       []string `json:"options,omitempty"`
	CorrectAnswer string   `json:"correct_answer,omitempty"`
	Explanation   string   `json:"explanation,omitempty"`
}

// Generate requests one structured question for the given transcript window.
func (g *HTTPGenerator) Generate(ctx context.Context, contextText string, questionType Type) (Question, error) {
	if len(contextText) > maxContextChars {
		contextText = contextText[len(contextText)-maxContextChars:]
	}

	start := time.Now()
	var resp generateResponse
	err := resilience.Retry(ctx, g.retry, func() error {
		return g.breaker.Execute(func() error {
			return g.post(ctx, generateRequest{Context: contextText, QuestionType: questionType}, &resp)
		})
	})
	g.metrics.GenerationDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		g.metrics.GenerationErrors.Inc()
		return Question{}, err
	}

	if resp.Question == "" {
		g.metrics.GenerationErrors.Inc()
		return Question{}, errors.New(errors.CodeGenerationFailed, "generation service returned an empty question")
	}

	slog.Debug("question generated", "type", questionType, "context_chars", len(contextText))
	return Question{
		ID:            uuid.NewString(),
		Prompt:        resp.Question,
		Options:       resp.Options,
		CorrectAnswer: resp.CorrectAnswer,
		Explanation:   resp.Explanation,
		Type:          questionType,
		CreatedAt:     time.Now(),
	}, nil
}

func (g *HTTPGenerator) post(ctx context.Context, reqBody generateRequest, out *generateResponse) error {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return errors.Wrap(err, errors.CodeInvalidArgument, "marshal generate request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/questions/generate", bytes.NewReader(payload))
	if err != nil {
		return errors.Wrap(err, errors.CodeInvalidArgument, "build generate request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return errors.Wrap(err, errors.CodeGenerationFailed, "generation service unreachable")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return errors.Wrap(err, errors.CodeGenerationFailed, "read generate response")
	}

	switch {
	case resp.StatusCode >= 500:
		return errors.Newf(errors.CodeGenerationFailed, "generation service error: %s", resp.Status)
	case resp.StatusCode >= 400:
		// Client errors will not improve on retry
		return errors.Newf(errors.CodeInvalidArgument, "generation request rejected: %s", resp.Status)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return errors.Wrap(err, errors.CodeGenerationFailed, fmt.Sprintf("decode generate response (%d bytes)", len(body)))
	}
	return nil
}
