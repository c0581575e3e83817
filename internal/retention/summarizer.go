package retention

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/vigilops/vigil/internal/telemetry"
	"github.com/vigilops/vigil/internal/types"
)

const (
	summaryModel   = "claude-3-5-haiku-latest"
	maxRetries     = 3
	initialBackoff = 1 * time.Second
	maxElapsed     = 2 * time.Minute

	aiScope = "github.com/vigilops/vigil/ai"
)

// ErrNoAPIKey is returned when no Anthropic API key is configured.
var ErrNoAPIKey = errors.New("API key required")

// ClaudeSummarizer writes one-paragraph archival summaries through the
// Anthropic API.
type ClaudeSummarizer struct {
	client anthropic.Client
	model  anthropic.Model
}

// NewSummarizer creates the Claude-backed summarizer. Env vars take
// precedence over the explicit key, VIGIL_API_KEY first, then
// ANTHROPIC_API_KEY. With no key at all it returns ErrNoAPIKey; sweeps then
// archive without summaries.
func NewSummarizer(apiKey string) (*ClaudeSummarizer, error) {
	for _, env := range []string{"VIGIL_API_KEY", "ANTHROPIC_API_KEY"} {
		if v := os.Getenv(env); v != "" {
			apiKey = v
			break
		}
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%w: set VIGIL_API_KEY or ANTHROPIC_API_KEY", ErrNoAPIKey)
	}

	aiMetricsOnce.Do(initAIMetrics)

	return &ClaudeSummarizer{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  anthropic.Model(summaryModel),
	}, nil
}

// aiMetrics holds lazily-initialized OTel instruments for Anthropic calls.
var aiMetrics struct {
	inputTokens  metric.Int64Counter
	outputTokens metric.Int64Counter
	duration     metric.Float64Histogram
}

var aiMetricsOnce sync.Once

func initAIMetrics() {
	m := telemetry.Meter(aiScope)
	aiMetrics.inputTokens, _ = m.Int64Counter("vigil.ai.input_tokens",
		metric.WithDescription("Anthropic API input tokens consumed"),
		metric.WithUnit("{token}"),
	)
	aiMetrics.outputTokens, _ = m.Int64Counter("vigil.ai.output_tokens",
		metric.WithDescription("Anthropic API output tokens generated"),
		metric.WithUnit("{token}"),
	)
	aiMetrics.duration, _ = m.Float64Histogram("vigil.ai.request.duration",
		metric.WithDescription("Anthropic API request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
}

// Summarize produces the archival paragraph for one activity. Rate limits,
// server errors, and network timeouts are retried with exponential backoff
// up to a hard attempt cap; anything else fails immediately.
func (c *ClaudeSummarizer) Summarize(ctx context.Context, act *types.Activity) (string, error) {
	tracer := telemetry.Tracer(aiScope)
	ctx, span := tracer.Start(ctx, "anthropic.messages.new")
	defer span.End()
	span.SetAttributes(
		attribute.String("vigil.ai.model", string(c.model)),
		attribute.String("vigil.ai.operation", "archive_summary"),
	)

	params := anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: 1024,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(summaryPrompt(act))),
		},
	}

	var out string
	attempts := 0
	call := func() error {
		attempts++
		t0 := time.Now()
		message, err := c.client.Messages.New(ctx, params)
		ms := float64(time.Since(t0).Milliseconds())
		if err != nil {
			if !isRetryable(err) {
				return backoff.Permanent(err)
			}
			return err
		}

		modelAttr := attribute.String("vigil.ai.model", string(c.model))
		if aiMetrics.inputTokens != nil {
			aiMetrics.inputTokens.Add(ctx, message.Usage.InputTokens, metric.WithAttributes(modelAttr))
			aiMetrics.outputTokens.Add(ctx, message.Usage.OutputTokens, metric.WithAttributes(modelAttr))
			aiMetrics.duration.Record(ctx, ms, metric.WithAttributes(modelAttr))
		}
		span.SetAttributes(
			attribute.Int64("vigil.ai.input_tokens", message.Usage.InputTokens),
			attribute.Int64("vigil.ai.output_tokens", message.Usage.OutputTokens),
		)

		if len(message.Content) == 0 {
			return backoff.Permanent(fmt.Errorf("unexpected response format: no content blocks"))
		}
		content := message.Content[0]
		if content.Type != "text" {
			return backoff.Permanent(fmt.Errorf("unexpected response format: not a text block (type=%s)", content.Type))
		}
		out = content.Text
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = initialBackoff
	bo.MaxElapsedTime = maxElapsed
	err := backoff.Retry(call, backoff.WithContext(backoff.WithMaxRetries(bo, maxRetries), ctx))
	span.SetAttributes(attribute.Int("vigil.ai.attempts", attempts))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}

	return false
}

// summaryPrompt renders the request for one activity. Plain prose in,
// plain prose out.
func summaryPrompt(act *types.Activity) string {
	var b strings.Builder
	b.WriteString("Write a one-paragraph archival summary of this resolved security activity. ")
	b.WriteString("Plain prose, no headers, no bullet points.\n\n")
	fmt.Fprintf(&b, "Type: %s\n", act.Type)
	fmt.Fprintf(&b, "Priority: %s\n", act.Priority)
	fmt.Fprintf(&b, "Title: %s\n", act.Title)
	if act.Location != "" {
		fmt.Fprintf(&b, "Location: %s\n", act.Location)
	}
	fmt.Fprintf(&b, "Reported: %s\n", act.CreatedAt.Format(time.RFC3339))
	if act.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", act.Description)
	}
	if len(act.IncidentIDs) > 0 {
		fmt.Fprintf(&b, "Linked incidents: %d\n", len(act.IncidentIDs))
	}
	return b.String()
}
