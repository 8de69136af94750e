/**
 * Copyright 2025 ByteDance Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     https://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/cloudwego/promptchain/internal/chainfile"
	"github.com/cloudwego/promptchain/internal/config"
	"github.com/cloudwego/promptchain/internal/utils"
	"github.com/cloudwego/promptchain/llm"
	"github.com/cloudwego/promptchain/llm/log"
	"github.com/cloudwego/promptchain/llm/mcp"
	"github.com/cloudwego/promptchain/version"
	"github.com/spf13/cobra"
)

var (
	cfgFile   string
	chainsDir string
	verbose   bool

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "promptchain",
	Short: "Run sequential LLM prompt chains",
	Long: `promptchain runs chains of prompts against language models. Each step
renders its prompt with the chain input, the previous step's answer is appended
to the next step's prompt, and the last answer is printed.

Chains are YAML files; see 'promptchain list' for the ones in the chains dir.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" {
			return nil
		}
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return err
		}
		log.SetLogLevel(log.ParseLevel(cfg.LogLevel))
		if verbose {
			log.SetLogLevel(log.DebugLevel)
		}
		if cmd.Flags().Changed("chains") {
			cfg.ChainsDir = chainsDir
		}
		if cfg.File != "" {
			log.Debug("using config %s", cfg.File)
		}
		return nil
	},
}

var runCmd = &cobra.Command{
	Use:   "run [chain]",
	Short: "Run a chain by name, or the chain file given with -f",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		pairs, _ := cmd.Flags().GetStringArray("var")
		inputFile, _ := cmd.Flags().GetString("input")
		history, _ := cmd.Flags().GetBool("history")

		def, err := resolveChain(file, args)
		if err != nil {
			return err
		}
		vars, err := loadInput(inputFile, pairs)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		pool := llm.NewPool(ctx, cfg.Model)
		out, run, err := def.Run(ctx, pool.Get, vars)
		if history && run != nil {
			if js, jerr := utils.MarshalJSONIndent(run); jerr == nil {
				fmt.Fprintln(os.Stderr, js)
			}
		}
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, out)
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the chains in the chains dir",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		reg := chainfile.NewRegistry(cfg.ChainsDir)
		if err := reg.Load(); err != nil {
			return err
		}
		for _, def := range reg.List() {
			fmt.Fprintf(os.Stdout, "%-24s %d steps  %s\n", def.Name, len(def.Steps), def.Description)
			for _, v := range def.Variables {
				flag := ""
				if v.Required {
					flag = " (required)"
				}
				fmt.Fprintf(os.Stdout, "    %s%s  %s\n", v.Name, flag, v.Description)
			}
		}
		return nil
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the chains in the chains dir as MCP tools over stdio",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		watch, _ := cmd.Flags().GetBool("watch")

		reg := chainfile.NewRegistry(cfg.ChainsDir)
		if err := reg.Load(); err != nil {
			return err
		}
		pool := llm.NewPool(context.Background(), cfg.Model)
		svr := mcp.NewServer(mcp.ServerOptions{
			ServerName:    "promptchain",
			ServerVersion: version.Version,
			Verbose:       verbose,
			Registry:      reg,
			Backends:      pool.Get,
			Watch:         watch,
		})
		if err := svr.ServeStdio(); err != nil {
			return utils.WrapError(err, "run MCP server")
		}
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version of promptchain",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(os.Stdout, "%s\n", version.Version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./promptchain.yaml, then the user config dir)")
	rootCmd.PersistentFlags().StringVar(&chainsDir, "chains", "", "directory of chain files (overrides chains_dir)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Verbose mode.")

	runCmd.Flags().StringP("file", "f", "", "chain file to run")
	runCmd.Flags().StringArray("var", nil, "chain variable as key=value, repeatable")
	runCmd.Flags().String("input", "", "JSON file with chain variables; --var values override it")
	runCmd.Flags().Bool("history", false, "print the run history as JSON to stderr")

	mcpCmd.Flags().Bool("watch", false, "reload chains when files in the chains dir change")

	rootCmd.AddCommand(runCmd, listCmd, mcpCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Error("%v", err)
		_ = log.Sync()
		os.Exit(1)
	}
}

func resolveChain(file string, args []string) (*chainfile.Definition, error) {
	switch {
	case file != "" && len(args) > 0:
		return nil, fmt.Errorf("give either a chain name or -f, not both")
	case file != "":
		return chainfile.ParseFile(file)
	case len(args) == 1:
		reg := chainfile.NewRegistry(cfg.ChainsDir)
		if err := reg.Load(); err != nil {
			return nil, err
		}
		def, ok := reg.Get(args[0])
		if !ok {
			return nil, fmt.Errorf("chain %q not found in %s", args[0], cfg.ChainsDir)
		}
		return def, nil
	}
	return nil, fmt.Errorf("a chain name or -f is required")
}

// loadInput merges the JSON object in inputFile with key=value pairs.
func loadInput(inputFile string, pairs []string) (map[string]any, error) {
	vars := map[string]any{}
	if inputFile != "" {
		data, err := os.ReadFile(inputFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read input %s: %w", inputFile, err)
		}
		if err := utils.UnmarshalJSON(data, &vars); err != nil {
			return nil, utils.WrapError(err, "parse input %s", inputFile)
		}
		if vars == nil {
			vars = map[string]any{}
		}
	}
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --var %q, want key=value", p)
		}
		vars[k] = v
	}
	return vars, nil
}
