// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package compiler

import (
	"encoding"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/gomlx/npucompiler/pkg/compiler/layoutprop"
	"github.com/gomlx/npucompiler/pkg/support/fsutil"
	"github.com/gomlx/npucompiler/pkg/support/xslices"
	"github.com/pkg/errors"
)

// SettingsEnv is the name of the environment variable with the default settings, in the format accepted by
// ParseSettings. E.g.: NPUC_LAYOUT_SETTINGS="precision_mode=force_fp16;max_elements=1_000_000".
const SettingsEnv = "NPUC_LAYOUT_SETTINGS"

// Config of the compilation.
type Config struct {
	// Layout configures the layout propagation pass.
	Layout layoutprop.Config

	// Strict makes branch failures and weight rollbacks of the layout propagation fail the compilation.
	Strict bool
}

// DefaultConfig returns the default configuration, updated with the settings in the environment variable
// SettingsEnv, if set.
//
// It returns an error if the settings in the environment variable can't be parsed.
func DefaultConfig() (Config, error) {
	cfg := Config{Layout: layoutprop.DefaultConfig()}
	if settings, found := os.LookupEnv(SettingsEnv); found {
		if err := ParseSettings(&cfg, settings); err != nil {
			return cfg, errors.WithMessagef(err, "parsing $%s", SettingsEnv)
		}
	}
	return cfg, nil
}

// settingsFields maps the setting names to the configuration fields they set.
func settingsFields(cfg *Config) map[string]any {
	return map[string]any{
		"precision_mode":     &cfg.Layout.PrecisionMode,
		"max_elements":       &cfg.Layout.MaxElements,
		"reconcile_reverse":  &cfg.Layout.ReconcileReverse,
		"weight_propagation": &cfg.Layout.WeightPropagation,
		"strict":             &cfg.Strict,
	}
}

// SettingsNames returns the names of the settings accepted by ParseSettings, sorted.
func SettingsNames() []string {
	return xslices.SortedKeys(settingsFields(&Config{}))
}

// ParseSettings updates cfg from settings, typically the contents of a flag set by the user.
// The settings are a list separated by ";": e.g.: "precision_mode=force_fp16;max_elements=1_000_000".
//
// The value is parsed according to the type of the configuration field: for integers "_" is removed, so
// large numbers can be entered using it as a separator, like in Go; booleans are "true" or "false"; enums
// (like the precision mode) take their names.
//
// A setting "file:<path>" reads settings from the file, one or more per line. Empty lines and lines starting
// with "#" are ignored.
//
// It returns an error if a setting is unknown or the parsing failed. The settings before the failing one
// are kept in cfg.
func ParseSettings(cfg *Config, settings string) error {
	for _, setting := range strings.Split(settings, ";") {
		if err := parseSetting(cfg, strings.TrimSpace(setting)); err != nil {
			return err
		}
	}
	return nil
}

func parseSetting(cfg *Config, setting string) error {
	if setting == "" {
		return nil
	}
	if filePath, found := strings.CutPrefix(setting, "file:"); found {
		filePath, err := fsutil.ReplaceTildeInDir(filePath)
		if err != nil {
			return err
		}
		contents, err := os.ReadFile(filePath)
		if err != nil {
			return errors.Wrapf(err, "failed to read settings from file %q", filePath)
		}
		for _, line := range strings.Split(string(contents), "\n") {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			if err := ParseSettings(cfg, line); err != nil {
				return errors.WithMessagef(err, "in file %q", filePath)
			}
		}
		return nil
	}

	name, valueStr, found := strings.Cut(setting, "=")
	if !found {
		return errors.Errorf("can't parse setting %q: each setting requires the format \"<name>=<value>\"", setting)
	}
	name = strings.TrimSpace(name)
	valueStr = strings.TrimSpace(valueStr)
	field, found := settingsFields(cfg)[name]
	if !found {
		return errors.Errorf("unknown setting %q, valid settings are %q", name, SettingsNames())
	}

	var err error
	switch v := field.(type) {
	case *int:
		err = json.Unmarshal([]byte(strings.ReplaceAll(valueStr, "_", "")), v)
	case *bool:
		err = json.Unmarshal([]byte(valueStr), v)
	case encoding.TextUnmarshaler:
		err = v.UnmarshalText([]byte(valueStr))
	default:
		err = errors.Errorf("setting of type %T not supported", field)
	}
	if err != nil {
		return errors.Wrapf(err, "failed to parse value %q of setting %q", valueStr, name)
	}
	return nil
}

// Settings returns the configuration in the format accepted by ParseSettings, sorted by name.
func Settings(cfg Config) string {
	fields := settingsFields(&cfg)
	parts := xslices.Map(xslices.SortedKeys(fields), func(name string) string {
		var value any
		switch v := fields[name].(type) {
		case *int:
			value = *v
		case *bool:
			value = *v
		case fmt.Stringer:
			value = v.String()
		}
		return fmt.Sprintf("%s=%v", name, value)
	})
	return strings.Join(parts, ";")
}
