// Package clusterer implements the Topic Clusterer external adapter:
// given a keyword list, returns topic clusters with short marketing
// "hook" phrases, over a JSON-in/JSON-out contract backed by an LLM,
// per spec.md §4.5.
package clusterer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"trendaggr/internal/observability/metrics"
	"trendaggr/internal/resilience/circuitbreaker"
	"trendaggr/internal/resilience/retry"
	"trendaggr/internal/trend"
)

const apiName = "topic-clusterer"

// minKeywords is the spec.md §4.5 threshold below which the clusterer
// is never invoked.
const minKeywords = 5

var fencedCodeBlock = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

// Backend is satisfied by whichever LLM provider answers the two
// clusterer prompts. Kept narrow so Claude and OpenAI can share the
// surrounding circuit breaker/retry/JSON-normalization logic.
type Backend interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// RateLimitedBackend wraps a Backend with a token-bucket limiter on
// outbound LLM calls, the same golang.org/x/time/rate pattern the
// teacher's infra/notifier.RateLimiter applies to outbound
// notification APIs, here guarding the clusterer's own provider quota
// instead of a third-party webhook.
type RateLimitedBackend struct {
	backend Backend
	limiter *rate.Limiter
}

// NewRateLimitedBackend wraps backend with a limiter allowing
// requestsPerSecond sustained, up to burst requests immediately.
func NewRateLimitedBackend(backend Backend, requestsPerSecond float64, burst int) *RateLimitedBackend {
	return &RateLimitedBackend{
		backend: backend,
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
	}
}

func (b *RateLimitedBackend) Complete(ctx context.Context, prompt string) (string, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("topic clusterer: rate limiter: %w", err)
	}
	return b.backend.Complete(ctx, prompt)
}

// Clusterer orchestrates the cluster + hook-generation calls.
type Clusterer struct {
	backend        Backend
	enabled        bool
	hooksPerTopic  int
	retryCfg       retry.Config
	circuitBreaker *circuitbreaker.CircuitBreaker
}

// New constructs a Clusterer. enabled should reflect whether an LLM
// credential is configured; when false, Cluster always returns an
// empty result without calling the backend.
func New(backend Backend, enabled bool, hooksPerTopic int) *Clusterer {
	return &Clusterer{
		backend:        backend,
		enabled:        enabled,
		hooksPerTopic:  hooksPerTopic,
		retryCfg:       retry.AIAPIConfig(),
		circuitBreaker: circuitbreaker.New(circuitbreaker.ClaudeAPIConfig()),
	}
}

// Cluster groups keywords into topics and attaches hooks. Per
// spec.md §4.5, it is a no-op when fewer than minKeywords are given
// or the backend is disabled; clusterer failures are never fatal —
// callers receive an empty slice and a logged warning instead of an
// error propagating into a snapshot publish.
func (c *Clusterer) Cluster(ctx context.Context, keywords []string) []trend.Topic {
	if !c.enabled || len(keywords) < minKeywords {
		return nil
	}

	n := len(keywords) / 2
	if n > 5 {
		n = 5
	}
	if n < 1 {
		n = 1
	}

	raw, err := c.callWithResilience(ctx, buildClusterPrompt(keywords, n))
	if err != nil {
		slog.Warn("topic clusterer call failed", slog.Any("error", err))
		return nil
	}

	clusters, err := normalizeClusters(raw)
	if err != nil {
		slog.Warn("topic clusterer response parse failed", slog.Any("error", err))
		return nil
	}

	now := time.Now()
	topics := make([]trend.Topic, 0, len(clusters))
	for i, cl := range clusters {
		hooks := c.generateHooks(ctx, cl.Topic, cl.Keywords)
		topics = append(topics, trend.Topic{
			ID:        fmt.Sprintf("topic_%d", i+1),
			TopicName: cl.Topic,
			Keywords:  cl.Keywords,
			Hooks:     hooks,
			CreatedAt: now,
		})
	}
	return topics
}

func (c *Clusterer) generateHooks(ctx context.Context, topic string, keywords []string) []string {
	raw, err := c.callWithResilience(ctx, buildHookPrompt(topic, keywords, c.hooksPerTopic))
	if err != nil {
		slog.Warn("hook generation call failed", slog.String("topic", topic), slog.Any("error", err))
		return nil
	}
	return parseHooks(raw, c.hooksPerTopic)
}

func (c *Clusterer) callWithResilience(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	var result string
	err := retry.WithBackoff(ctx, c.retryCfg, func() error {
		cbResult, cbErr := c.circuitBreaker.Execute(func() (interface{}, error) {
			return c.backend.Complete(ctx, prompt)
		})
		if cbErr != nil {
			if errors.Is(cbErr, gobreaker.ErrOpenState) {
				slog.Warn("clusterer circuit breaker open", slog.String("service", apiName))
			}
			return cbErr
		}
		result = cbResult.(string)
		return nil
	})
	metrics.RecordClusterRequest(err == nil, time.Since(start))
	return result, err
}

func buildClusterPrompt(keywords []string, n int) string {
	return fmt.Sprintf(
		"Group the following keywords into exactly %d topic clusters. "+
			"Respond with a JSON array of objects shaped like "+
			`[{"topic": "...", "keywords": ["..."]}]. `+
			"Keywords: %s", n, strings.Join(keywords, ", "))
}

func buildHookPrompt(topic string, keywords []string, count int) string {
	return fmt.Sprintf(
		`Write %d short marketing "hook" phrases (one sentence each) for the topic %q `+
			`covering these keywords: %s. Respond as JSON: {"hooks": ["..."]}.`,
		count, topic, strings.Join(keywords, ", "))
}

// cluster is the normalized shape every response variant collapses
// into.
type cluster struct {
	Topic    string   `json:"topic"`
	Keywords []string `json:"keywords"`
}

// normalizeClusters accepts three response shapes per spec.md §4.5:
// a bare array, {"clusters": [...]}, or a map of topic -> keywords.
func normalizeClusters(raw string) ([]cluster, error) {
	stripped := stripFencedCode(raw)

	var asArray []cluster
	if err := json.Unmarshal([]byte(stripped), &asArray); err == nil && len(asArray) > 0 {
		return asArray, nil
	}

	var wrapped struct {
		Clusters []cluster `json:"clusters"`
	}
	if err := json.Unmarshal([]byte(stripped), &wrapped); err == nil && len(wrapped.Clusters) > 0 {
		return wrapped.Clusters, nil
	}

	var asMap map[string][]string
	if err := json.Unmarshal([]byte(stripped), &asMap); err == nil && len(asMap) > 0 {
		out := make([]cluster, 0, len(asMap))
		for topic, keywords := range asMap {
			out = append(out, cluster{Topic: topic, Keywords: keywords})
		}
		return out, nil
	}

	return nil, fmt.Errorf("clusterer: could not parse response in any known shape")
}

// parseHooks accepts {"hooks": [...]} or falls back to splitting the
// raw response by newline when the model didn't return valid JSON.
func parseHooks(raw string, want int) []string {
	stripped := stripFencedCode(raw)

	var wrapped struct {
		Hooks []string `json:"hooks"`
	}
	if err := json.Unmarshal([]byte(stripped), &wrapped); err == nil && len(wrapped.Hooks) > 0 {
		return truncate(wrapped.Hooks, want)
	}

	var asArray []string
	if err := json.Unmarshal([]byte(stripped), &asArray); err == nil && len(asArray) > 0 {
		return truncate(asArray, want)
	}

	lines := strings.Split(strings.TrimSpace(stripped), "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(strings.TrimLeft(line, "-*0123456789. "))
		if line != "" {
			out = append(out, line)
		}
	}
	return truncate(out, want)
}

func truncate(s []string, n int) []string {
	if n > 0 && len(s) > n {
		return s[:n]
	}
	return s
}

func stripFencedCode(raw string) string {
	if m := fencedCodeBlock.FindStringSubmatch(raw); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(raw)
}

// ClaudeBackend implements Backend over the Anthropic API, the
// default clusterer backend.
type ClaudeBackend struct {
	client anthropic.Client
	model  string
}

func NewClaudeBackend(apiKey, model string) *ClaudeBackend {
	return &ClaudeBackend{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

func (b *ClaudeBackend) Complete(ctx context.Context, prompt string) (string, error) {
	message, err := b.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(b.model),
		MaxTokens: 1024,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("claude clusterer backend: %w", err)
	}
	if len(message.Content) == 0 {
		return "", fmt.Errorf("claude clusterer backend: empty response")
	}
	textBlock, ok := message.Content[0].AsAny().(anthropic.TextBlock)
	if !ok {
		return "", fmt.Errorf("claude clusterer backend: unexpected response type")
	}
	return textBlock.Text, nil
}
