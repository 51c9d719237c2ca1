// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package main

import (
	"context"
	"errors"
	"fmt"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/teradata-labs/easel/internal/log"
	"github.com/teradata-labs/easel/pkg/agent"
	"github.com/teradata-labs/easel/pkg/hub"
	"github.com/teradata-labs/easel/pkg/llm"
	"github.com/teradata-labs/easel/pkg/llm/factory"
	"github.com/teradata-labs/easel/pkg/palette"
	"github.com/teradata-labs/easel/pkg/palette/builtin"
	"github.com/teradata-labs/easel/pkg/server"
	"github.com/teradata-labs/easel/pkg/workflow"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Easel websocket server",
	Long: `Start the Easel server.

The server will:
- Initialize the agent with the configured LLM provider
- Register the built-in canvas tools
- Accept websocket connections on /ws and report health on /healthz

Press Ctrl+C to gracefully shutdown.`,
	Run: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// buildLogger creates the process logger from the logging config.
func buildLogger(cfg LoggingConfig) (*zap.Logger, error) {
	zapConfig := zap.NewProductionConfig()

	logLevel := zap.InfoLevel
	if cfg.Level != "" {
		if err := logLevel.UnmarshalText([]byte(cfg.Level)); err != nil {
			stdlog.Printf("Invalid log level %q, using INFO: %v", cfg.Level, err)
		}
	}
	zapConfig.Level = zap.NewAtomicLevelAt(logLevel)

	if cfg.Format == "text" {
		zapConfig.Encoding = "console"
		zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	if cfg.File != "" {
		zapConfig.OutputPaths = []string{cfg.File}
		zapConfig.ErrorOutputPaths = []string{cfg.File}
	}

	return zapConfig.Build(zap.AddStacktrace(zap.ErrorLevel))
}

func runServe(cmd *cobra.Command, args []string) {
	if err := config.Validate(); err != nil {
		stdlog.Fatalf("Configuration validation failed: %v", err)
	}

	logger, err := buildLogger(config.Logging)
	if err != nil {
		stdlog.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()
	log.SetLogger(logger)
	zap.ReplaceGlobals(logger)

	logger.Info("Starting Easel server", zap.String("version", rootCmd.Version))

	configFileUsed := viper.ConfigFileUsed()
	if configFileUsed != "" {
		logger.Info("Config file loaded", zap.String("path", configFileUsed))
	} else {
		logger.Info("No config file found, using defaults + environment variables",
			zap.String("searched", "./easeld.yaml, /etc/easel/easeld.yaml"))
	}

	// Tool registry with built-in canvas tools against an in-process board.
	registry := palette.NewRegistry()
	if err := builtin.RegisterCanvasTools(registry, builtin.NewMemoryCanvas()); err != nil {
		logger.Fatal("Failed to register canvas tools", zap.Error(err))
	}

	providerFactory := factory.New(factory.Config{
		DefaultProvider:        config.LLM.Provider,
		DefaultModel:           config.LLM.Model,
		AnthropicAPIKey:        config.LLM.AnthropicAPIKey,
		AnthropicModel:         config.LLM.AnthropicModel,
		BedrockRegion:          config.LLM.BedrockRegion,
		BedrockAccessKeyID:     config.LLM.BedrockAccessKeyID,
		BedrockSecretAccessKey: config.LLM.BedrockSecretAccessKey,
		BedrockSessionToken:    config.LLM.BedrockSessionToken,
		BedrockProfile:         config.LLM.BedrockProfile,
		BedrockModelID:         config.LLM.BedrockModelID,
		OllamaEndpoint:         config.LLM.OllamaEndpoint,
		OllamaModel:            config.LLM.OllamaModel,
		OllamaToolMode:         config.LLM.OllamaToolMode,
		OpenAIAPIKey:           config.LLM.OpenAIAPIKey,
		OpenAIModel:            config.LLM.OpenAIModel,
		MaxTokens:              config.LLM.MaxTokens,
		Temperature:            config.LLM.Temperature,
		Timeout:                config.LLM.Timeout,
		MaxIterations:          config.Agent.MaxIterations,
		RateLimiter: llm.RateLimiterConfig{
			Enabled:           config.LLM.RateLimitEnabled,
			RequestsPerSecond: config.LLM.RateLimitRequestsPerSecond,
		},
		Retry: llm.RetryConfig{
			Enabled:    config.LLM.RetryEnabled,
			MaxRetries: config.LLM.RetryMaxRetries,
		},
	})

	client, err := providerFactory.CreateClient(config.LLM.Provider, config.LLM.Model, registry)
	if err != nil {
		logger.Fatal("Failed to create LLM client", zap.Error(err))
	}
	logger.Info("LLM provider ready",
		zap.String("provider", client.Provider().Name()),
		zap.String("model", client.Provider().Model()),
		zap.Int("max_iterations", config.Agent.MaxIterations))

	if config.Agent.Preflight {
		if err := server.ValidateProvider(context.Background(), client); err != nil {
			logger.Fatal("Provider preflight failed", zap.Error(err))
		}
		logger.Info("Provider preflight succeeded")
	}

	h := hub.New(hub.Options{QueueSize: config.Hub.QueueSize})
	h.Start()

	var agentOpts []agent.Option
	if config.Agent.PromptTemplate != "" {
		agentOpts = append(agentOpts, agent.WithPromptTemplate(config.Agent.PromptTemplate))
	}
	ag := agent.New(client, agentOpts...)

	wf := workflow.New(ag, h, workflow.WithRepository(workflow.NewMemoryRepository()))

	mux := http.NewServeMux()
	mux.Handle("/ws", server.NewWSHandler(h, wf, config.Server.AllowedOrigins))
	mux.HandleFunc("/healthz", server.HealthHandler(h))

	addr := fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		sigch := make(chan os.Signal, 1)
		signal.Notify(sigch, os.Interrupt, syscall.SIGTERM)
		<-sigch
		logger.Info("Shutting down gracefully... (press Ctrl+C again to force)")

		go func() {
			<-sigch
			logger.Warn("Force shutdown requested")
			os.Exit(1)
		}()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(ctx); err != nil {
			logger.Warn("Error stopping HTTP server", zap.Error(err))
		} else {
			logger.Info("HTTP server stopped")
		}

		// Drains pending per-connection queues before returning.
		h.Close()
		logger.Info("Connection hub closed")
	}()

	logger.Info("Listening",
		zap.String("addr", addr),
		zap.String("ws_endpoint", fmt.Sprintf("ws://%s/ws", addr)),
		zap.String("health_endpoint", fmt.Sprintf("http://%s/healthz", addr)))

	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("Failed to serve", zap.Error(err))
	}
	logger.Info("Shutdown complete")
}
