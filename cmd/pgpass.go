package main

import (
	"fmt"
	"os"

	"github.com/flanksource/clicky"
	"github.com/spf13/cobra"

	"github.com/flanksource/pgtoolkit/pkg/pgpass"
)

func newPgpassCmd() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "pgpass",
		Short: "Work with .pgpass password files",
	}
	cmd.PersistentFlags().StringVarP(&path, "file", "f", "", ".pgpass path ('-' for stdin)")

	passPath := func() string {
		if path != "" {
			return path
		}
		return settings.PassFile
	}

	sortCmd := &cobra.Command{
		Use:   "sort",
		Short: "Reorder entries from most to least precise",
		RunE: func(cmd *cobra.Command, args []string) error {
			p := passPath()
			if p == "-" {
				f, err := pgpass.ParseFile(p)
				if err != nil {
					return err
				}
				f.Sort()
				_, err = f.WriteTo(os.Stdout)
				return err
			}
			return pgpass.Edit(p, func(f *pgpass.File) error {
				f.Sort()
				return nil
			})
		},
	}

	addCmd := &cobra.Command{
		Use:   "add <hostname:port:database:username:password>",
		Short: "Add or update a password entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entry, err := pgpass.ParseEntry(args[0])
			if err != nil {
				return err
			}
			if err := pgpass.Edit(passPath(), func(f *pgpass.File) error {
				f.Upsert(entry)
				f.Sort()
				return nil
			}); err != nil {
				return err
			}
			clicky.Infof("✅ Updated %s", passPath())
			return nil
		},
	}

	var attrs map[string]string
	removeCmd := &cobra.Command{
		Use:   "remove",
		Short: "Remove entries matching the given attributes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return pgpass.Edit(passPath(), func(f *pgpass.File) error {
				changed, err := f.RemoveMatching(attrs)
				if err != nil {
					return err
				}
				if !changed {
					return fmt.Errorf("no entry matches %v", attrs)
				}
				return nil
			})
		},
	}
	removeCmd.Flags().StringToStringVarP(&attrs, "match", "m", nil, "Attributes to match (e.g. hostname=db1,port=5432)")

	cmd.AddCommand(sortCmd, addCmd, removeCmd)
	return cmd
}
