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

const defaultOllamaBaseURL = "http://localhost:11434"

// OllamaProvider speaks Ollama's /api/generate wire format.
type OllamaProvider struct {
	cfg        *config.LLMConfig
	httpClient *httpclient.Client
	baseURL    string
}

type ollamaRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	System  string        `json:"system,omitempty"`
	Stream  bool          `json:"stream"`
	Options ollamaOptions `json:"options,omitempty"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaResponse struct {
	Response        string `json:"response"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
	Error           string `json:"error,omitempty"`
}

// NewOllamaProvider builds a Provider against a local or remote Ollama daemon.
func NewOllamaProvider(cfg *config.LLMConfig) *OllamaProvider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultOllamaBaseURL
	}
	return &OllamaProvider{
		cfg:     cfg,
		baseURL: baseURL,
		httpClient: httpclient.New(
			httpclient.WithMaxRetries(2),
		),
	}
}

func (p *OllamaProvider) Model() string        { return p.cfg.Model }
func (p *OllamaProvider) ProviderName() string { return "ollama" }

func (p *OllamaProvider) Invoke(ctx context.Context, systemPrompt, userPrompt string) (Result, error) {
	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}

	temp := 0.2
	if p.cfg.Temperature != nil {
		temp = *p.cfg.Temperature
	}

	reqBody := ollamaRequest{
		Model:  p.cfg.Model,
		Prompt: userPrompt,
		System: systemPrompt,
		Stream: false,
		Options: ollamaOptions{
			Temperature: temp,
			NumPredict:  p.cfg.MaxTokens,
		},
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return Result{}, &ProviderError{Provider: "ollama", Model: p.cfg.Model, Err: fmt.Errorf("marshal request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return Result{}, &ProviderError{Provider: "ollama", Model: p.cfg.Model, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return Result{}, &ProviderError{Provider: "ollama", Model: p.cfg.Model, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, &ProviderError{Provider: "ollama", Model: p.cfg.Model, Err: fmt.Errorf("read response: %w", err)}
	}

	var parsed ollamaResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Result{}, &ProviderError{Provider: "ollama", Model: p.cfg.Model, Err: fmt.Errorf("decode response: %w", err)}
	}
	if parsed.Error != "" {
		return Result{}, &ProviderError{Provider: "ollama", Model: p.cfg.Model, Err: fmt.Errorf("api error: %s", parsed.Error)}
	}

	return Result{
		Text:         parsed.Response,
		InputTokens:  parsed.PromptEvalCount,
		OutputTokens: parsed.EvalCount,
	}, nil
}
