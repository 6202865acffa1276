// Package llmclient wraps the Anthropic API behind a fallback-chain
// contract: an ordered list of model identifiers is tried in turn, each
// failure (rate limit, network error, empty output) advancing to the next
// with a fixed inter-attempt delay. This generalizes a single-model client
// into a chain while keeping its retry/backoff/otel-instrumentation shape
// intact.
package llmclient

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"sync"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/osgeo/wikiqa/internal/telemetry"
)

// ErrChainExhausted is returned when every model in the fallback chain has
// failed. Callers treat this as a retryable worker error.
var ErrChainExhausted = errors.New("llmclient: fallback chain exhausted")

// ErrEmptyOutput is a failure mode distinct from a transport error: the
// model replied with no usable text block.
var ErrEmptyOutput = errors.New("llmclient: model returned empty output")

const (
	maxRetriesPerModel  = 3
	initialBackoff      = 1 * time.Second
	interModelDelay     = 500 * time.Millisecond
)

// Client is a fallback-chain-aware Anthropic client.
type Client struct {
	anthropic anthropic.Client
	chain     []string
	timeout   time.Duration

	maxRetriesPerModel int
	initialBackoff     time.Duration
	interModelDelay    time.Duration
}

// New builds a Client from an API key, base URL override (empty uses the
// SDK default) and an ordered model chain. The chain must be non-empty.
func New(apiKey, baseURL string, chain []string, timeout time.Duration) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("llmclient: API key required")
	}
	if len(chain) == 0 {
		return nil, fmt.Errorf("llmclient: model chain must not be empty")
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	metricsOnce.Do(initMetrics)

	return &Client{
		anthropic:          anthropic.NewClient(opts...),
		chain:              chain,
		timeout:            timeout,
		maxRetriesPerModel: maxRetriesPerModel,
		initialBackoff:     initialBackoff,
		interModelDelay:    interModelDelay,
	}, nil
}

// Result carries the generated text and which model in the chain produced
// it, so callers (extension worker) can record model_used.
type Result struct {
	Text  string
	Model string
}

// Complete runs prompt through the fallback chain, returning the first
// model's successful response. maxTokens bounds the reply length.
func (c *Client) Complete(ctx context.Context, prompt string, maxTokens int64) (Result, error) {
	tracer := telemetry.Tracer("github.com/osgeo/wikiqa/llmclient")
	ctx, span := tracer.Start(ctx, "llm.complete")
	defer span.End()

	var lastErr error
	for i, model := range c.chain {
		if i > 0 {
			select {
			case <-time.After(c.interModelDelay):
			case <-ctx.Done():
				return Result{}, ctx.Err()
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		text, err := c.callWithRetry(callCtx, model, prompt, maxTokens, span)
		cancel()

		if err == nil {
			span.SetAttributes(attribute.String("llm.model_used", model))
			return Result{Text: text, Model: model}, nil
		}
		lastErr = err
	}

	span.RecordError(lastErr)
	span.SetStatus(codes.Error, "fallback chain exhausted")
	return Result{}, fmt.Errorf("%w: last error: %v", ErrChainExhausted, lastErr)
}

func (c *Client) callWithRetry(ctx context.Context, model, prompt string, maxTokens int64, span trace.Span) (string, error) {
	span.SetAttributes(attribute.String("llm.model", model))

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetriesPerModel; attempt++ {
		if attempt > 0 {
			backoff := c.initialBackoff * time.Duration(math.Pow(2, float64(attempt-1)))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		t0 := time.Now()
		message, err := c.anthropic.Messages.New(ctx, params)
		ms := float64(time.Since(t0).Milliseconds())

		if err == nil {
			modelAttr := attribute.String("llm.model", model)
			if metrics.inputTokens != nil {
				metrics.inputTokens.Add(ctx, message.Usage.InputTokens, metric.WithAttributes(modelAttr))
				metrics.outputTokens.Add(ctx, message.Usage.OutputTokens, metric.WithAttributes(modelAttr))
				metrics.duration.Record(ctx, ms, metric.WithAttributes(modelAttr))
			}

			if len(message.Content) == 0 {
				return "", ErrEmptyOutput
			}
			block := message.Content[0]
			if block.Type != "text" || block.Text == "" {
				return "", ErrEmptyOutput
			}
			return block.Text, nil
		}

		lastErr = err
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if !isRetryable(err) {
			return "", fmt.Errorf("non-retryable error from model %s: %w", model, err)
		}
		if metrics.retries != nil {
			metrics.retries.Add(ctx, 1, metric.WithAttributes(attribute.String("llm.model", model)))
		}
	}

	return "", fmt.Errorf("model %s failed after %d attempts: %w", model, c.maxRetriesPerModel+1, lastErr)
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

var metrics struct {
	inputTokens  metric.Int64Counter
	outputTokens metric.Int64Counter
	duration     metric.Float64Histogram
	retries      metric.Int64Counter
}

var metricsOnce sync.Once

func initMetrics() {
	m := telemetry.Meter("github.com/osgeo/wikiqa/llmclient")
	metrics.inputTokens, _ = m.Int64Counter("wikiqa.llm.input_tokens",
		metric.WithDescription("Anthropic API input tokens consumed"), metric.WithUnit("{token}"))
	metrics.outputTokens, _ = m.Int64Counter("wikiqa.llm.output_tokens",
		metric.WithDescription("Anthropic API output tokens generated"), metric.WithUnit("{token}"))
	metrics.duration, _ = m.Float64Histogram("wikiqa.llm.request.duration",
		metric.WithDescription("Anthropic API request duration"), metric.WithUnit("ms"))
	metrics.retries, _ = m.Int64Counter("wikiqa.llm.retries",
		metric.WithDescription("Anthropic API retry attempts"), metric.WithUnit("{retry}"))
}
