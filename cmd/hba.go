package main

import (
	"fmt"
	"os"

	"github.com/flanksource/clicky"
	"github.com/spf13/cobra"

	"github.com/flanksource/pgtoolkit/pkg/hba"
)

func newHbaCmd() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "hba",
		Short: "Work with pg_hba.conf files",
	}
	cmd.PersistentFlags().StringVarP(&path, "file", "f", "", "pg_hba.conf path ('-' for stdin)")

	hbaPath := func() string {
		if path != "" {
			return path
		}
		return settings.HbaFile
	}

	renderCmd := &cobra.Command{
		Use:   "render",
		Short: "Print the file with records re-aligned to standard columns",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := hba.ParseFile(hbaPath())
			if err != nil {
				return err
			}
			_, err = f.WriteTo(os.Stdout)
			return err
		},
	}

	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Validate the file, reporting the first bad line",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := hba.ParseFile(hbaPath())
			if err != nil {
				return err
			}
			clicky.Infof("✅ %d records OK", len(f.Records()))
			return nil
		},
	}

	var attrs map[string]string
	removeCmd := &cobra.Command{
		Use:   "remove",
		Short: "Remove records matching the given attributes",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := hba.ParseFile(hbaPath())
			if err != nil {
				return err
			}
			changed, err := f.RemoveMatching(attrs)
			if err != nil {
				return err
			}
			if !changed {
				return fmt.Errorf("no record matches %v", attrs)
			}
			if err := f.Save(); err != nil {
				return err
			}
			clicky.Infof("✅ Updated %s", hbaPath())
			return nil
		},
	}
	removeCmd.Flags().StringToStringVarP(&attrs, "match", "m", nil, "Attributes to match (e.g. user=alice,database=app)")

	cmd.AddCommand(renderCmd, checkCmd, removeCmd)
	return cmd
}
