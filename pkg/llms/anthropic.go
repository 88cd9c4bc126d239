// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package llms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/kadirpekel/aegis/pkg/config"
	"github.com/kadirpekel/aegis/pkg/httpclient"
)

const (
	defaultAnthropicBaseURL = "https://api.anthropic.com"
	anthropicAPIVersion     = "2023-06-01"
)

// AnthropicProvider speaks the Anthropic Messages wire format.
type AnthropicProvider struct {
	cfg        *config.LLMConfig
	httpClient *httpclient.Client
	baseURL    string
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	Temperature float64            `json:"temperature,omitempty"`
	MaxTokens   int                `json:"max_tokens"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// NewAnthropicProvider builds a Provider against the Anthropic Messages API.
func NewAnthropicProvider(cfg *config.LLMConfig) *AnthropicProvider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultAnthropicBaseURL
	}
	return &AnthropicProvider{
		cfg:     cfg,
		baseURL: baseURL,
		httpClient: httpclient.New(
			httpclient.WithMaxRetries(3),
		),
	}
}

func (p *AnthropicProvider) Model() string        { return p.cfg.Model }
func (p *AnthropicProvider) ProviderName() string { return "anthropic" }

func (p *AnthropicProvider) Invoke(ctx context.Context, systemPrompt, userPrompt string) (Result, error) {
	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}

	temp := 0.2
	if p.cfg.Temperature != nil {
		temp = *p.cfg.Temperature
	}
	maxTokens := p.cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 2048
	}

	reqBody := anthropicRequest{
		Model:  p.cfg.Model,
		System: systemPrompt,
		Messages: []anthropicMessage{
			{Role: "user", Content: userPrompt},
		},
		Temperature: temp,
		MaxTokens:   maxTokens,
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return Result{}, &ProviderError{Provider: "anthropic", Model: p.cfg.Model, Err: fmt.Errorf("marshal request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return Result{}, &ProviderError{Provider: "anthropic", Model: p.cfg.Model, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", p.cfg.APIKey)
	req.Header.Set("anthropic-version", anthropicAPIVersion)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return Result{}, &ProviderError{Provider: "anthropic", Model: p.cfg.Model, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, &ProviderError{Provider: "anthropic", Model: p.cfg.Model, Err: fmt.Errorf("read response: %w", err)}
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Result{}, &ProviderError{Provider: "anthropic", Model: p.cfg.Model, Err: fmt.Errorf("decode response: %w", err)}
	}
	if parsed.Error != nil {
		return Result{}, &ProviderError{Provider: "anthropic", Model: p.cfg.Model, Err: fmt.Errorf("api error: %s", parsed.Error.Message)}
	}

	var text string
	for _, block := range parsed.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	if text == "" {
		return Result{}, &ProviderError{Provider: "anthropic", Model: p.cfg.Model, Err: fmt.Errorf("no text content returned")}
	}

	return Result{
		Text:         text,
		InputTokens:  parsed.Usage.InputTokens,
		OutputTokens: parsed.Usage.OutputTokens,
	}, nil
}
