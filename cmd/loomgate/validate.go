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
	"go.uber.org/zap"

	"github.com/teradata-labs/loomgate/pkg/gwconfig"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the gateway configuration file without starting the server",
	Long: `Loads the file named by --config, runs every invariant check from the
configuration validator (downstream presence, protocol endpoint uniqueness,
rate-limit/identification coupling, group reference coverage), and prints
any non-fatal warnings (e.g. a model/group rate limit that falls back to
a less specific level of the precedence tree).`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	loader := gwconfig.NewLoader(zap.NewNop())
	cfg, err := loader.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading %s: %w", cfgFile, err)
	}

	result, err := gwconfig.Validate(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration invalid: %v\n", err)
		os.Exit(1)
	}

	for _, w := range result.Warnings {
		fmt.Fprintf(cmd.OutOrStdout(), "warning: %s\n", w)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: configuration valid\n", cfgFile)
	return nil
}
