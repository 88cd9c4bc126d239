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

// Command aegisd loads a config file, wires every port, and serves the
// orchestrator's ProcessPrompt/GetAuditResult operations over a thin
// JSON/HTTP surface.
//
// Usage:
//
//	aegisd -config config.yaml
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kadirpekel/aegis/pkg/config"
	"github.com/kadirpekel/aegis/pkg/contextprovider"
	"github.com/kadirpekel/aegis/pkg/ledger"
	"github.com/kadirpekel/aegis/pkg/llms"
	"github.com/kadirpekel/aegis/pkg/logger"
	"github.com/kadirpekel/aegis/pkg/observability"
	"github.com/kadirpekel/aegis/pkg/orchestrator"
	"github.com/kadirpekel/aegis/pkg/persistence"
	"github.com/kadirpekel/aegis/pkg/persona"
	"github.com/kadirpekel/aegis/pkg/quota"
)

const (
	logLevelEnvVar  = "LOG_LEVEL"
	logFileEnvVar   = "LOG_FILE"
	logFormatEnvVar = "LOG_FORMAT"
)

func main() {
	configPath := flag.String("config", "aegis.yaml", "path to the orchestrator config file")
	personaPath := flag.String("personas", "personas.yaml", "path to the persona/governance definitions file")
	addr := flag.String("addr", ":8090", "address the JSON poll surface listens on")
	flag.Parse()

	cleanup, err := initLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "aegisd: failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	if cleanup != nil {
		defer cleanup()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("aegisd: shutting down")
		cancel()
	}()

	core, loaderCleanup, err := wire(ctx, *configPath, *personaPath)
	if err != nil {
		slog.Error("aegisd: wiring failed", "error", err)
		os.Exit(1)
	}
	defer loaderCleanup()
	defer func() {
		if err := core.Close(); err != nil {
			slog.Error("aegisd: orchestrator close failed", "error", err)
		}
	}()

	srv := &http.Server{
		Addr:    *addr,
		Handler: newHandler(core),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("aegisd: http shutdown", "error", err)
		}
	}()

	slog.Info("aegisd: listening", "addr", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("aegisd: server error", "error", err)
		os.Exit(1)
	}
}

// initLogger applies the env-vars/default cascade for logger setup;
// there are no CLI flags for logging since aegisd has no subcommand CLI.
func initLogger() (func(), error) {
	levelStr := os.Getenv(logLevelEnvVar)
	if levelStr == "" {
		levelStr = "info"
	}
	level, err := logger.ParseLevel(levelStr)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", logLevelEnvVar, err)
	}

	format := os.Getenv(logFormatEnvVar)
	if format == "" {
		format = "simple"
	}

	logFile := os.Getenv(logFileEnvVar)
	output := os.Stderr
	var cleanup func()
	if logFile != "" {
		file, fileCleanup, err := logger.OpenLogFile(logFile)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", logFileEnvVar, err)
		}
		output = file
		cleanup = fileCleanup
	}

	logger.Init(level, output, format)
	return cleanup, nil
}

// wire loads configuration and constructs every port the orchestrator
// needs, returning the assembled Core and a cleanup func that stops the
// quota scheduler and closes the config loader/watcher.
func wire(ctx context.Context, configPath, personaPath string) (*orchestrator.Core, func(), error) {
	cfg, loader, err := config.LoadConfigFile(ctx, configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config %s: %w", configPath, err)
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		loader.Close()
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}

	var store persistence.Store
	switch cfg.Persistence.Driver {
	case "sqlite":
		store, err = persistence.OpenSQLiteStore(cfg.Persistence.DSN)
		if err != nil {
			loader.Close()
			return nil, nil, fmt.Errorf("open sqlite store: %w", err)
		}
	default:
		store = persistence.NewMemoryStore()
	}

	personas, err := persona.NewFileSource(personaPath)
	if err != nil {
		loader.Close()
		return nil, nil, fmt.Errorf("load personas %s: %w", personaPath, err)
	}

	ledgerWriter, err := ledger.NewWriter("ledger")
	if err != nil {
		loader.Close()
		return nil, nil, fmt.Errorf("open ledger writer: %w", err)
	}

	var ctxProvider contextprovider.Provider = contextprovider.NewDisabled()
	if cfg.ContextProvider.Enabled {
		ctxProvider = contextprovider.NewHTTPProvider(&cfg.ContextProvider)
	}

	obs, err := observability.NewManager(ctx, &observability.Config{})
	if err != nil {
		loader.Close()
		return nil, nil, fmt.Errorf("init observability: %w", err)
	}

	scheduler, err := quota.NewScheduler(slog.Default())
	if err != nil {
		loader.Close()
		return nil, nil, fmt.Errorf("start quota scheduler: %w", err)
	}

	llmRegistry := llms.NewRegistry(cfg)

	core, err := orchestrator.NewCore(cfg, store, llmRegistry, ctxProvider, ledgerWriter, personas, obs, slog.Default())
	if err != nil {
		scheduler.Stop()
		loader.Close()
		return nil, nil, fmt.Errorf("construct orchestrator core: %w", err)
	}

	cleanup := func() {
		scheduler.Stop()
		if err := loader.Close(); err != nil {
			slog.Error("aegisd: config loader close", "error", err)
		}
	}
	return core, cleanup, nil
}

// promptRequest is the JSON body for POST /v1/prompts.
type promptRequest struct {
	UserID         string `json:"userId"`
	ConversationID string `json:"conversationId"`
	Prompt         string `json:"prompt"`
	Agent          string `json:"agent"`
}

func newHandler(core *orchestrator.Core) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc("/v1/prompts", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req promptRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
			return
		}

		result, err := core.ProcessPrompt(r.Context(), req.UserID, req.ConversationID, req.Prompt, req.Agent)
		if err != nil {
			slog.Error("aegisd: process prompt failed", "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, result)
	})

	mux.HandleFunc("/v1/audits/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		messageID := r.URL.Path[len("/v1/audits/"):]
		if messageID == "" {
			http.Error(w, "messageId is required", http.StatusBadRequest)
			return
		}

		result, err := core.GetAuditResult(r.Context(), messageID)
		if err != nil {
			slog.Error("aegisd: get audit result failed", "messageId", messageID, "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, result)
	})

	return mux
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("aegisd: write json response", "error", err)
	}
}
