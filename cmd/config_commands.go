package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/spreads/client/internal/config"
	apperrors "github.com/spreads/client/internal/errors"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Server configuration and the local config file",
	}
	cmd.AddCommand(newConfigShowCommand(ctx))
	cmd.AddCommand(newConfigSetCommand(ctx))
	cmd.AddCommand(newConfigInitCommand(ctx))
	return cmd
}

func newConfigShowCommand(ctx *commandContext) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the server's global configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			cfg, err := client.GetConfig(cmd.Context())
			if err != nil {
				return err
			}
			switch format {
			case "json":
				return writeJSON(cmd, cfg)
			case "yaml":
				return writeYAML(cmd, cfg)
			default:
				return fmt.Errorf("unknown format %q (want json or yaml)", format)
			}
		},
	}

	cmd.Flags().StringVarP(&format, "format", "o", "yaml", "Output format: json or yaml")
	return cmd
}

func newConfigSetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "set key=value...",
		Short: "Change top-level keys of the server's global configuration",
		Long: "Values are read as JSON when they parse (numbers, true/false, objects), " +
			"otherwise as plain strings.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			changes, err := parseAssignments(args)
			if err != nil {
				return err
			}
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			cfg, err := client.GetConfig(cmd.Context())
			if err != nil {
				return err
			}
			for k, v := range changes {
				cfg[k] = v
			}
			if _, err := client.SaveConfig(cmd.Context(), cfg); err != nil {
				return err
			}

			keys := make([]string, 0, len(changes))
			for k := range changes {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			fmt.Fprintf(cmd.OutOrStdout(), "Updated %s\n", strings.Join(keys, ", "))
			return nil
		},
	}
}

// parseAssignments turns key=value arguments into a map.
func parseAssignments(args []string) (map[string]any, error) {
	out := make(map[string]any, len(args))
	fields := make(map[string]string)
	for _, arg := range args {
		key, raw, ok := strings.Cut(arg, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			fields[arg] = "expected key=value"
			continue
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			v = raw
		}
		out[key] = v
	}
	if len(fields) > 0 {
		return nil, apperrors.ValidationFailed(fields)
	}
	return out, nil
}

func newConfigInitCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:         "init",
		Short:       "Write a starter client config file",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		Args:        cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := strings.TrimSpace(ctx.configFlag)
			if path == "" {
				p, err := config.DefaultConfigPath()
				if err != nil {
					return err
				}
				path = p
			}
			server := config.DefaultServer
			if ctx.serverFlag != "" {
				server = ctx.serverFlag
			}
			if err := config.WriteDefault(path, server); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Config file at %s\n", path)
			return nil
		},
	}
}
