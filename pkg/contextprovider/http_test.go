package contextprovider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kadirpekel/aegis/pkg/config"
	"github.com/stretchr/testify/assert"
)

func TestHTTPProvider_ReturnsJoinedFormattedDocuments(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(retrievalResponse{Documents: []string{"doc one", "doc two"}})
	}))
	defer srv.Close()

	p := NewHTTPProvider(&config.ContextProviderConfig{Enabled: true, Endpoint: srv.URL, TopK: 5})

	got := p.GetContext(context.Background(), "query", "Context:\n%s")

	assert.Equal(t, "Context:\ndoc one\n\ndoc two", got)
}

func TestHTTPProvider_NoDocumentsReturnsSentinel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(retrievalResponse{Documents: nil})
	}))
	defer srv.Close()

	p := NewHTTPProvider(&config.ContextProviderConfig{Enabled: true, Endpoint: srv.URL})

	assert.Equal(t, NoDocumentsFound, p.GetContext(context.Background(), "query", "%s"))
}

func TestHTTPProvider_BackendErrorReturnsSentinelError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := NewHTTPProvider(&config.ContextProviderConfig{Enabled: true, Endpoint: srv.URL})

	got := p.GetContext(context.Background(), "query", "%s")
	assert.Contains(t, got, "[RAG ERROR:")
}

func TestHTTPProvider_DisabledReturnsSentinel(t *testing.T) {
	p := NewHTTPProvider(&config.ContextProviderConfig{Enabled: false})
	assert.Equal(t, NoDocumentsFound, p.GetContext(context.Background(), "query", "%s"))
}
