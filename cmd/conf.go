package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/flanksource/clicky"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/flanksource/pgtoolkit/pkg/conf"
)

func newConfCmd() *cobra.Command {
	var path string
	var format string

	cmd := &cobra.Command{
		Use:   "conf",
		Short: "Work with postgresql.conf files",
	}
	cmd.PersistentFlags().StringVarP(&path, "file", "f", "", "postgresql.conf path ('-' for stdin)")
	cmd.PersistentFlags().StringVarP(&format, "output", "o", "yaml", "Output format (yaml or json)")

	confPath := func() string {
		if path != "" {
			return path
		}
		return settings.ConfFile
	}

	showCmd := &cobra.Command{
		Use:   "show [name...]",
		Short: "Print effective settings, includes resolved",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := conf.ParseFile(confPath())
			if err != nil {
				return err
			}
			values := cfg.AsMap()
			if len(args) > 0 {
				filtered := map[string]conf.Value{}
				for _, name := range args {
					v, ok := values[name]
					if !ok {
						return fmt.Errorf("unknown setting '%s'", name)
					}
					filtered[name] = v
				}
				values = filtered
			}
			return printValues(values, format)
		},
	}

	getCmd := &cobra.Command{
		Use:   "get <name>",
		Short: "Print one setting in its file form",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := conf.ParseFile(confPath())
			if err != nil {
				return err
			}
			entry, ok := cfg.Entry(args[0])
			if !ok || entry.Commented {
				return fmt.Errorf("setting '%s' is not set", args[0])
			}
			fmt.Println(entry.Value.Serialize())
			return nil
		},
	}

	setCmd := &cobra.Command{
		Use:   "set <name=value>...",
		Short: "Set settings and rewrite the file in place",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := conf.ParseFile(confPath())
			if err != nil {
				return err
			}
			for _, arg := range args {
				name, raw, found := strings.Cut(arg, "=")
				if !found {
					return fmt.Errorf("expected name=value, got '%s'", arg)
				}
				value, err := conf.ParseValue(raw)
				if err != nil {
					return err
				}
				if err := cfg.Set(name, value); err != nil {
					return err
				}
			}
			if err := cfg.Save(); err != nil {
				return err
			}
			clicky.Infof("✅ Updated %s", confPath())
			return nil
		},
	}

	cmd.AddCommand(showCmd, getCmd, setCmd)
	return cmd
}

func printValues(values map[string]conf.Value, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(values)
	case "yaml":
		enc := yaml.NewEncoder(os.Stdout)
		defer enc.Close()
		return enc.Encode(values)
	default:
		return fmt.Errorf("unknown output format '%s'", format)
	}
}
