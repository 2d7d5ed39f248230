package main

import (
	"encoding/json"
	"fmt"
	"runtime"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/BaSui01/charis/config"
	"github.com/BaSui01/charis/internal/credentials"
	"github.com/BaSui01/charis/internal/history"
	"github.com/BaSui01/charis/internal/presets"
)

// =============================================================================
// 📜 history
// =============================================================================

func newHistoryCmd(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:     "history",
		Aliases: []string{"hist"},
		Short:   "Print the execution history",
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := a.state()
			if err != nil {
				return err
			}
			entries, err := history.NewStore(db.DB(), a.logger).List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(a.stdout, "No history available yet.")
				return nil
			}
			for i, e := range entries {
				line, err := json.Marshal(e)
				if err != nil {
					return err
				}
				fmt.Fprintf(a.stdout, "#%d %s\n", i+1, line)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Show only the most recent N entries (0 = all)")
	return cmd
}

// =============================================================================
// 🎛️ presets
// =============================================================================

func newPresetsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "presets <path>",
		Short: "Inspect prompt presets from YAML files",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			p, err := presets.Load(args[0])
			if err != nil {
				return err
			}
			data, err := json.MarshalIndent(p, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(a.stdout, color.CyanString(string(data)))
			return nil
		},
	}
}

// =============================================================================
// ⚙️ config
// =============================================================================

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage Charis configuration",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "init",
			Short: "Create a configuration file with the current values",
			Args:  cobra.NoArgs,
			RunE: func(*cobra.Command, []string) error {
				if err := a.cfg.Save(a.configPath); err != nil {
					return err
				}
				a.printOK("wrote configuration to %s", color.CyanString(a.configPath))
				return nil
			},
		},
		&cobra.Command{
			Use:   "show",
			Short: "Print the current configuration",
			Args:  cobra.NoArgs,
			RunE: func(*cobra.Command, []string) error {
				data, err := yaml.Marshal(a.cfg)
				if err != nil {
					return err
				}
				_, err = a.stdout.Write(data)
				return err
			},
		},
		&cobra.Command{
			Use:   "set <field> <value>",
			Short: "Update a configuration field (dotted yaml name, e.g. retry.attempts)",
			Args:  cobra.ExactArgs(2),
			RunE: func(_ *cobra.Command, args []string) error {
				if err := a.cfg.Set(args[0], args[1]); err != nil {
					return err
				}
				if err := a.cfg.Save(a.configPath); err != nil {
					return err
				}
				a.printOK("updated %s.", args[0])
				return nil
			},
			ValidArgsFunction: func(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
				if len(args) == 0 {
					return config.Keys(), cobra.ShellCompDirectiveNoFileComp
				}
				return nil, cobra.ShellCompDirectiveNoFileComp
			},
		},
		&cobra.Command{
			Use:   "set-key <name> <value>",
			Short: "Store an API key in the local credential store",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				name := credentials.NormalizeName(args[0])
				db, err := a.state()
				if err != nil {
					return err
				}
				if err := credentials.NewStore(db.DB(), a.logger).Set(cmd.Context(), name, args[1]); err != nil {
					return err
				}
				a.printOK("stored API key for %s", name)
				return nil
			},
		},
		&cobra.Command{
			Use:   "path",
			Short: "Print the configuration file path",
			Args:  cobra.NoArgs,
			RunE: func(*cobra.Command, []string) error {
				fmt.Fprintln(a.stdout, a.configPath)
				return nil
			},
		},
	)
	return cmd
}

// =============================================================================
// 📦 version
// =============================================================================

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(*cobra.Command, []string) {
			fmt.Fprintf(a.stdout, "charis %s\n", Version)
			fmt.Fprintf(a.stdout, "  Build Time: %s\n", BuildTime)
			fmt.Fprintf(a.stdout, "  Git Commit: %s\n", GitCommit)
			fmt.Fprintf(a.stdout, "  Go:         %s\n", runtime.Version())
		},
	}
}
