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

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAIProvider speaks the OpenAI chat-completions wire format.
type OpenAIProvider struct {
	cfg        *config.LLMConfig
	httpClient *httpclient.Client
	baseURL    string
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Temperature float64         `json:"temperature"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponse struct {
	Choices []struct {
		Message openAIMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// NewOpenAIProvider builds a Provider against the OpenAI chat-completions API.
func NewOpenAIProvider(cfg *config.LLMConfig) *OpenAIProvider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	return &OpenAIProvider{
		cfg:     cfg,
		baseURL: baseURL,
		httpClient: httpclient.New(
			httpclient.WithMaxRetries(3),
		),
	}
}

func (p *OpenAIProvider) Model() string        { return p.cfg.Model }
func (p *OpenAIProvider) ProviderName() string { return "openai" }

func (p *OpenAIProvider) Invoke(ctx context.Context, systemPrompt, userPrompt string) (Result, error) {
	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}

	temp := 0.2
	if p.cfg.Temperature != nil {
		temp = *p.cfg.Temperature
	}

	reqBody := openAIRequest{
		Model: p.cfg.Model,
		Messages: []openAIMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: temp,
		MaxTokens:   p.cfg.MaxTokens,
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return Result{}, &ProviderError{Provider: "openai", Model: p.cfg.Model, Err: fmt.Errorf("marshal request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return Result{}, &ProviderError{Provider: "openai", Model: p.cfg.Model, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return Result{}, &ProviderError{Provider: "openai", Model: p.cfg.Model, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, &ProviderError{Provider: "openai", Model: p.cfg.Model, Err: fmt.Errorf("read response: %w", err)}
	}

	var parsed openAIResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Result{}, &ProviderError{Provider: "openai", Model: p.cfg.Model, Err: fmt.Errorf("decode response: %w", err)}
	}
	if parsed.Error != nil {
		return Result{}, &ProviderError{Provider: "openai", Model: p.cfg.Model, Err: fmt.Errorf("api error: %s", parsed.Error.Message)}
	}
	if len(parsed.Choices) == 0 {
		return Result{}, &ProviderError{Provider: "openai", Model: p.cfg.Model, Err: fmt.Errorf("no choices returned")}
	}

	return Result{
		Text:         parsed.Choices[0].Message.Content,
		InputTokens:  parsed.Usage.PromptTokens,
		OutputTokens: parsed.Usage.CompletionTokens,
	}, nil
}
