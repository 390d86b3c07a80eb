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

	"github.com/teradata-labs/loomgate/internal/version"
)

var cfgFile string

// rootCmd represents the base command.
var rootCmd = &cobra.Command{
	Use:     "loomgate",
	Short:   "Loomgate - multi-tenant LLM gateway and MCP tool aggregator",
	Long:    `Loomgate fronts OpenAI, Anthropic, Google, and AWS Bedrock behind a single OpenAI/Anthropic-compatible surface, and aggregates tools from many MCP servers behind a single search/execute pair, enforcing per-client and per-group token rate limits throughout.`,
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
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "loomgate.toml", "path to the gateway configuration file")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
}
