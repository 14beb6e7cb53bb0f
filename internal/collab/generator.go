package collab

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/cenkalti/backoff/v4"
)

// ErrNoGenerator is returned by AnthropicGenerator.Classify/Describe when no
// API key was configured, so callers (entity resolver ai mode, classifier
// generative fallback) can treat it as "capability absent" and fall back to
// leaving the entity/edge unmerged rather than failing the whole build.
var ErrNoGenerator = errors.New("collab: no generator configured")

// AnthropicGenerator is the Generator implementation backing ai-mode entity
// resolution and the classifier's generative fallback.
type AnthropicGenerator struct {
	client     anthropic.Client
	model      anthropic.Model
	maxRetries int
	configured bool
}

// NewAnthropicGenerator constructs a Generator. An empty apiKey yields a
// generator whose calls immediately return ErrNoGenerator — callers never
// need to special-case "no key" themselves.
func NewAnthropicGenerator(apiKey, model string, maxRetries int, opts ...option.RequestOption) *AnthropicGenerator {
	if apiKey == "" {
		return &AnthropicGenerator{}
	}
	reqOpts := append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	if maxRetries <= 0 {
		maxRetries = 2
	}
	return &AnthropicGenerator{
		client:     anthropic.NewClient(reqOpts...),
		model:      anthropic.Model(model),
		maxRetries: maxRetries,
		configured: true,
	}
}

// Classify sends prompt to the model and returns its raw text response.
// responseSchema is folded into the prompt as an instruction rather than
// enforced client-side; callers unmarshal the result themselves.
func (g *AnthropicGenerator) Classify(ctx context.Context, prompt, responseSchema string) (string, error) {
	if !g.configured {
		return "", ErrNoGenerator
	}
	full := prompt
	if responseSchema != "" {
		full = fmt.Sprintf("%s\n\nRespond with JSON matching this shape: %s", prompt, responseSchema)
	}
	return g.callWithRetry(ctx, full)
}

// Describe satisfies the Generator interface but captions nothing: it
// returns ErrNoGenerator when no client is configured and an "out of scope"
// error otherwise.
func (g *AnthropicGenerator) Describe(ctx context.Context, image []byte, prompt string) (string, error) {
	if !g.configured {
		return "", ErrNoGenerator
	}
	return "", fmt.Errorf("collab: image description is out of scope for this deployment")
}

// callWithRetry runs one Messages.New call, retrying retryable failures
// (timeouts, 429, 5xx) with exponential backoff capped at two doublings,
// matching the collaborator contract's "retried at most with exponential
// backoff, cap 2x doublings".
func (g *AnthropicGenerator) callWithRetry(ctx context.Context, prompt string) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     g.model,
		MaxTokens: 1024,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.Multiplier = 2
	bo.MaxInterval = 4 * bo.InitialInterval // at most two doublings
	bo.MaxElapsedTime = 0                   // bounded by WithMaxRetries below, not elapsed time

	var result string
	op := func() error {
		message, err := g.client.Messages.New(ctx, params)
		if err != nil {
			if !isRetryableGeneratorError(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		if len(message.Content) == 0 {
			return backoff.Permanent(fmt.Errorf("anthropic: empty response content"))
		}
		block := message.Content[0]
		if block.Type != "text" {
			return backoff.Permanent(fmt.Errorf("anthropic: unexpected content block type %q", block.Type))
		}
		result = block.Text
		return nil
	}

	retryable := backoff.WithMaxRetries(bo, uint64(g.maxRetries))
	if err := backoff.Retry(op, backoff.WithContext(retryable, ctx)); err != nil {
		return "", fmt.Errorf("anthropic classify: %w", err)
	}
	return result, nil
}

func isRetryableGeneratorError(err error) bool {
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
