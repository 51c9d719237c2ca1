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
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/teradata-labs/easel/internal/version"
)

var (
	cfgFile string
	config  *Config
)

var rootCmd = &cobra.Command{
	Use:   "easeld",
	Short: "Easel collaborative canvas assistant server",
	Long: `Easel is the streaming assistant engine for collaborative canvases.

It exposes a websocket endpoint where canvas clients send chat turns and
receive streamed text deltas, progress narration, and tool-driven board
mutations from the configured LLM provider.`,
	Version: version.Get(),
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./easeld.yaml, /etc/easel/easeld.yaml)")

	rootCmd.PersistentFlags().String("host", "", "server bind host")
	rootCmd.PersistentFlags().Int("port", 0, "server bind port")
	rootCmd.PersistentFlags().StringSlice("allowed-origins", nil, "allowed websocket origins (empty allows all)")

	rootCmd.PersistentFlags().String("llm-provider", "", "LLM provider (anthropic, openai, ollama, bedrock)")
	rootCmd.PersistentFlags().String("llm-model", "", "model override for the configured provider")
	rootCmd.PersistentFlags().String("anthropic-key", "", "Anthropic API key")
	rootCmd.PersistentFlags().String("openai-key", "", "OpenAI API key")
	rootCmd.PersistentFlags().String("ollama-endpoint", "", "Ollama endpoint URL")
	rootCmd.PersistentFlags().Float64("temperature", 0, "sampling temperature")
	rootCmd.PersistentFlags().Int("max-tokens", 0, "maximum tokens per model response")
	rootCmd.PersistentFlags().Int("max-iterations", 0, "maximum tool-call round-trips per turn")

	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "", "log format (text, json)")

	_ = viper.BindPFlag("server.host", rootCmd.PersistentFlags().Lookup("host"))
	_ = viper.BindPFlag("server.port", rootCmd.PersistentFlags().Lookup("port"))
	_ = viper.BindPFlag("server.allowed_origins", rootCmd.PersistentFlags().Lookup("allowed-origins"))
	_ = viper.BindPFlag("llm.provider", rootCmd.PersistentFlags().Lookup("llm-provider"))
	_ = viper.BindPFlag("llm.model", rootCmd.PersistentFlags().Lookup("llm-model"))
	_ = viper.BindPFlag("llm.anthropic_api_key", rootCmd.PersistentFlags().Lookup("anthropic-key"))
	_ = viper.BindPFlag("llm.openai_api_key", rootCmd.PersistentFlags().Lookup("openai-key"))
	_ = viper.BindPFlag("llm.ollama_endpoint", rootCmd.PersistentFlags().Lookup("ollama-endpoint"))
	_ = viper.BindPFlag("llm.temperature", rootCmd.PersistentFlags().Lookup("temperature"))
	_ = viper.BindPFlag("llm.max_tokens", rootCmd.PersistentFlags().Lookup("max-tokens"))
	_ = viper.BindPFlag("agent.max_iterations", rootCmd.PersistentFlags().Lookup("max-iterations"))
	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

func initConfig() {
	cfg, err := LoadConfig(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	config = cfg
}
