package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ekjot25/Audio-Analysis/config"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration utilities",
	}

	configCmd.AddCommand(newConfigValidateCommand(ctx))
	configCmd.AddCommand(newConfigInitCommand())

	return configCmd
}

func newConfigInitCommand() *cobra.Command {
	var overwrite bool

	cmd := &cobra.Command{
		Use:         "init [path]",
		Short:       "Write the default configuration as YAML",
		Args:        cobra.MaximumNArgs(1),
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			target := config.SearchPaths()[0]
			if len(args) == 1 && strings.TrimSpace(args[0]) != "" {
				target = strings.TrimSpace(args[0])
			}

			if !overwrite {
				if _, err := os.Stat(target); err == nil {
					return fmt.Errorf("config file already exists at %s (use --overwrite to replace it)", target)
				} else if !os.IsNotExist(err) {
					return fmt.Errorf("check config path: %w", err)
				}
			}

			if err := config.Write(target, config.Default()); err != nil {
				return fmt.Errorf("write config: %w", err)
			}
			abs, err := filepath.Abs(target)
			if err != nil {
				abs = target
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote default configuration to %s\n", abs)
			return nil
		},
	}

	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Overwrite existing configuration if present")
	return cmd
}

func newConfigValidateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Load and check the configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			source := cfg.File
			if source == "" {
				source = "built-in defaults"
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Configuration valid (%s)\n", source)
			fmt.Fprintf(out, "k=%d seed=%d chunk=%gs n_mfcc=%d outputs=%s\n",
				cfg.Clustering.K, cfg.Clustering.Seed, cfg.Features.ChunkSeconds, cfg.Features.NMfcc, cfg.Paths.Outputs)
			return nil
		},
	}
}
