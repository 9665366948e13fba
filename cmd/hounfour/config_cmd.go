package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect hounfour's merged configuration",
	}
	cmd.AddCommand(newConfigPrintEffectiveCommand())
	return cmd
}

func newConfigPrintEffectiveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "print-effective",
		Short: "Print the fully-merged config (defaults + file + env + flags) with secrets redacted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			out, err := cfg.EffectiveYAML()
			if err != nil {
				return fmt.Errorf("failed to render effective config: %w", err)
			}
			fmt.Print(string(out))
			return nil
		},
	}
}
