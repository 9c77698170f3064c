package config

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/withu/internal/conf"
	"github.com/tphakala/withu/internal/errors"
)

// Command creates the config command group. skipSetup is the annotation key
// the root command checks before loading settings.
func Command(settings *conf.Settings, skipSetup string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}

	cmd.AddCommand(initCommand(skipSetup), showCommand(settings))
	return cmd
}

func initCommand(skipSetup string) *cobra.Command {
	var (
		path  string
		force bool
	)

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Write a config file with the default settings",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipSetup: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if !force {
				if _, err := os.Stat(path); err == nil {
					return errors.Newf("%s already exists, use --force to overwrite", path).
						Component("cmd").
						Category(errors.CategoryValidation).
						Build()
				}
			}
			if err := conf.SaveYAMLConfig(path, conf.Defaults()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote default configuration to %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringVarP(&path, "path", "o", "config.yaml", "Destination file")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	return cmd
}

func showCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if settings.ConfigFile != "" {
				fmt.Fprintf(out, "# loaded from %s\n", settings.ConfigFile)
			} else {
				fmt.Fprintln(out, "# no config file found, showing defaults and environment overrides")
			}
			enc := yaml.NewEncoder(out)
			enc.SetIndent(2)
			if err := enc.Encode(settings); err != nil {
				return err
			}
			return enc.Close()
		},
	}
}
