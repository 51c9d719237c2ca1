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
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage easeld configuration",
}

var configExampleCmd = &cobra.Command{
	Use:   "example",
	Short: "Print an example configuration file",
	Long:  "Print a commented example easeld.yaml to stdout. Redirect it to create a starting config.",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Print(GenerateExampleConfig())
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the resolved configuration",
	Long:  "Load configuration from flags, file, and environment, then check it for errors without starting the server.",
	Run: func(cmd *cobra.Command, args []string) {
		if err := config.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "Configuration invalid: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Configuration OK (provider=%s, listen=%s:%d)\n",
			config.LLM.Provider, config.Server.Host, config.Server.Port)
	},
}

func init() {
	configCmd.AddCommand(configExampleCmd)
	configCmd.AddCommand(configValidateCmd)
	rootCmd.AddCommand(configCmd)
}
