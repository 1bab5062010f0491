// Package config builds the logger and decodes configuration sections.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Decode unmarshals the section at key onto target. Fields the section does
// not mention keep the values target already holds, so callers pass a
// struct pre-filled with their defaults. A missing section is not an error.
func Decode(v *viper.Viper, key string, target any) error {
	if !v.IsSet(key) {
		return nil
	}
	if err := v.UnmarshalKey(key, target); err != nil {
		return fmt.Errorf("decode %s config: %w", key, err)
	}
	return nil
}

// StringList reads a list setting that may come from a YAML sequence or a
// comma-separated environment variable. Blank entries are dropped.
func StringList(v *viper.Viper, key string) []string {
	var out []string
	for _, item := range v.GetStringSlice(key) {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
