package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/flanksource/pgtoolkit/pkg/service"
)

func newServiceCmd() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "service",
		Short: "Work with pg_service.conf connection service files",
	}
	cmd.PersistentFlags().StringVarP(&path, "file", "f", "", "pg_service.conf path (default: discovered like libpq)")

	servicePath := func() (string, error) {
		if path != "" {
			return path, nil
		}
		if settings.ServiceFile != "" {
			if _, err := os.Stat(settings.ServiceFile); err == nil {
				return settings.ServiceFile, nil
			}
		}
		return service.Find()
	}

	showCmd := &cobra.Command{
		Use:   "show [name]",
		Short: "Print all services, or one service's parameters",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := servicePath()
			if err != nil {
				return err
			}
			f, err := service.ParseFile(p)
			if err != nil {
				return err
			}
			if len(args) == 0 {
				_, err := f.WriteTo(os.Stdout)
				return err
			}
			s, ok := f.Get(args[0])
			if !ok {
				return fmt.Errorf("unknown service '%s'", args[0])
			}
			for _, param := range s.Parameters {
				fmt.Printf("%s=%s\n", param.Name, param.Value)
			}
			return nil
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List service names",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := servicePath()
			if err != nil {
				return err
			}
			f, err := service.ParseFile(p)
			if err != nil {
				return err
			}
			for _, name := range f.SortedNames() {
				fmt.Println(name)
			}
			return nil
		},
	}

	cmd.AddCommand(showCmd, listCmd)
	return cmd
}
