package main

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// Settings are the tool-wide defaults: which files the subcommands
// operate on when no path is given on the command line.
type Settings struct {
	ConfFile    string `koanf:"conf_file"`
	HbaFile     string `koanf:"hba_file"`
	PassFile    string `koanf:"pass_file"`
	ServiceFile string `koanf:"service_file"`
}

var defaultSettings = []byte(`
conf_file: /etc/postgresql/postgresql.conf
hba_file: /etc/postgresql/pg_hba.conf
pass_file: ~/.pgpass
service_file: ~/.pg_service.conf
`)

// LoadSettings layers defaults, PGTOOLKIT_ environment variables and an
// optional YAML settings file, later sources overriding earlier ones.
func LoadSettings(settingsFile string) (*Settings, error) {
	k := koanf.New(".")

	if err := k.Load(rawbytes.Provider(defaultSettings), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load default settings: %w", err)
	}

	if err := k.Load(env.Provider("PGTOOLKIT_", ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, "PGTOOLKIT_"))
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if settingsFile != "" {
		if err := k.Load(file.Provider(settingsFile), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load settings file %s: %w", settingsFile, err)
		}
	}

	var s Settings
	if err := k.Unmarshal("", &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal settings: %w", err)
	}
	return &s, nil
}
