// Package anthropic provides a backend.Provider over the Anthropic Messages
// API. It performs single non-streaming completions and maps SDK errors to
// backend fault classes by HTTP status.
package anthropic

import (
	"context"
	"errors"
	"net"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/wjabrac/omndx/backend"
)

// defaultMaxTokens bounds a single completion; the Messages API requires an
// explicit value.
const defaultMaxTokens = 4096

// Provider wraps the official Anthropic client behind the backend.Provider interface.
type Provider struct {
	client      *anthropic.Client
	model       string
	temperature *float64
}

// New creates a Provider from validated backend settings.
func New(s backend.ProviderSettings) (*Provider, error) {
	if s.APIKey == "" {
		return nil, errors.New("anthropic: api key required")
	}
	clientOpts := []option.RequestOption{option.WithAPIKey(s.APIKey)}
	if s.Endpoint != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(s.Endpoint))
	}
	client := anthropic.NewClient(clientOpts...)
	return &Provider{
		client:      &client,
		model:       s.ModelName,
		temperature: s.Temperature,
	}, nil
}

// Name implements backend.Provider.
func (p *Provider) Name() string { return "anthropic" }

// Complete implements backend.Provider with one messages request.
func (p *Provider) Complete(ctx context.Context, prompt string) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: defaultMaxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if p.temperature != nil {
		params.Temperature = anthropic.Float(*p.temperature)
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return "", classify(err)
	}
	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.AsText().Text
		}
	}
	return text, nil
}

// classify maps an SDK error to a backend fault. Context errors pass through
// so the invocation wrapper can tell cancellation from failure.
func classify(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr *anthropic.Error
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
	return backend.NewTransientFault(err)
}
