// Package openai provides a backend.Provider over the OpenAI Chat
// Completions API. It performs single non-streaming completions and maps SDK
// errors to backend fault classes by HTTP status.
package openai

import (
	"context"
	"errors"
	"net"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/wjabrac/omndx/backend"
)

// Provider wraps the official OpenAI client behind the backend.Provider interface.
type Provider struct {
	client      openai.Client
	model       string
	temperature *float64
}

// New creates a Provider from validated backend settings.
func New(s backend.ProviderSettings) (*Provider, error) {
	if s.APIKey == "" {
		return nil, errors.New("openai: api key required")
	}
	clientOpts := []option.RequestOption{option.WithAPIKey(s.APIKey)}
	if s.Endpoint != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(s.Endpoint))
	}
	return &Provider{
		client:      openai.NewClient(clientOpts...),
		model:       s.ModelName,
		temperature: s.Temperature,
	}, nil
}

// Name implements backend.Provider.
func (p *Provider) Name() string { return "openai" }

// Complete implements backend.Provider with one chat completion request.
func (p *Provider) Complete(ctx context.Context, prompt string) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: p.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
	}
	if p.temperature != nil {
		params.Temperature = openai.Float(*p.temperature)
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", classify(err)
	}
	if len(resp.Choices) == 0 {
		return "", backend.NewTransientFault(errors.New("openai: response contained no choices"))
	}
	return resp.Choices[0].Message.Content, nil
}

// classify maps an SDK error to a backend fault. Context errors pass through
// so the invocation wrapper can tell cancellation from failure.
func classify(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if backend.ClassifyStatus(apiErr.StatusCode) == backend.FaultTransient {
			return backend.NewTransientFault(err)
		}
		return backend.NewFatalFault(err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return backend.NewTransientFault(err)
	}
	// Unknown failure shape, assume retryable.
	return backend.NewTransientFault(err)
}
