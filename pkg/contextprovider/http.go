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

package contextprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/kadirpekel/aegis/pkg/config"
	"github.com/kadirpekel/aegis/pkg/httpclient"
)

// HTTPProvider calls an external retrieval plugin that returns
// pre-formatted document snippets, and folds them into formatTemplate.
// This is the "plugin-preformatted" shape: the plugin owns chunking,
// ranking and rendering, and this provider only orchestrates the call.
type HTTPProvider struct {
	cfg    *config.ContextProviderConfig
	client *httpclient.Client
}

// NewHTTPProvider builds a Provider that POSTs queries to cfg.Endpoint.
func NewHTTPProvider(cfg *config.ContextProviderConfig) *HTTPProvider {
	return &HTTPProvider{
		cfg:    cfg,
		client: httpclient.New(httpclient.WithMaxRetries(2)),
	}
}

type retrievalRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

type retrievalResponse struct {
	Documents []string `json:"documents"`
}

// GetContext implements Provider. formatTemplate is applied with a
// single "%s" substitution for the joined document text; an empty
// template falls back to the joined text verbatim.
func (p *HTTPProvider) GetContext(ctx context.Context, query, formatTemplate string) string {
	if p.cfg == nil || !p.cfg.Enabled {
		return NoDocumentsFound
	}

	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}

	body, err := json.Marshal(retrievalRequest{Query: query, TopK: p.cfg.TopK})
	if err != nil {
		return FormatError(err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return FormatError(err.Error())
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return FormatError(err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return FormatError(fmt.Sprintf("retrieval backend returned status %d", resp.StatusCode))
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return FormatError(err.Error())
	}

	var parsed retrievalResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return FormatError("malformed retrieval response")
	}
	if len(parsed.Documents) == 0 {
		return NoDocumentsFound
	}

	joined := strings.Join(parsed.Documents, "\n\n")
	if formatTemplate == "" {
		return joined
	}
	return fmt.Sprintf(formatTemplate, joined)
}
