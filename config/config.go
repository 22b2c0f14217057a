// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package config

import (
	"fmt"
	"reflect"
	"strings"
	"unicode/utf8"

	"github.com/spf13/viper"
)

// Config aggregates configuration for the split command.
type Config struct {
	Input  InputConfig  `mapstructure:"input"`
	Shard  ShardConfig  `mapstructure:"shard"`
	Output OutputConfig `mapstructure:"output"`
	Upload UploadConfig `mapstructure:"upload"`
}

// InputConfig describes how input files are parsed.
type InputConfig struct {
	Delimiter  string `mapstructure:"delimiter"`
	Header     bool   `mapstructure:"header"`
	LazyQuotes bool   `mapstructure:"lazy_quotes"`
}

// ShardConfig selects the shard key and the split thresholds.
type ShardConfig struct {
	// Column is a zero-based index or a header name.
	Column    string `mapstructure:"column"`
	Fallback  string `mapstructure:"fallback"`
	Buckets   int    `mapstructure:"buckets"`
	Lowercase bool   `mapstructure:"lowercase"`

	// SplitRows and SplitSize are zero or empty to disable that threshold.
	// SplitSize accepts human sizes such as "64MiB".
	SplitRows int64  `mapstructure:"split_rows"`
	SplitSize string `mapstructure:"split_size"`
}

// OutputConfig controls where and how shard files are written.
type OutputConfig struct {
	Dir string `mapstructure:"dir"`

	// Layout is "flat" ({key}-{seq}.csv) or "hive" (column=key/part-NNNN.csv).
	// Template, when set, overrides Layout.
	Layout   string `mapstructure:"layout"`
	Template string `mapstructure:"template"`

	Compression string `mapstructure:"compression"`
	Delimiter   string `mapstructure:"delimiter"`
	CRLF        bool   `mapstructure:"crlf"`
	Sync        bool   `mapstructure:"sync"`

	// Manifest, when set, is a YAML file listing every finished file.
	Manifest string `mapstructure:"manifest"`
}

// UploadConfig publishes finished files to object storage. Uploads are off
// when Target is empty.
type UploadConfig struct {
	Target         string `mapstructure:"target"`
	Region         string `mapstructure:"region"`
	Endpoint       string `mapstructure:"endpoint"`
	Role           string `mapstructure:"role"`
	PathStyle      bool   `mapstructure:"path_style"`
	InsecureTLS    bool   `mapstructure:"insecure_tls"`
	StorageAccount string `mapstructure:"storage_account"`
	Concurrency    int    `mapstructure:"concurrency"`
	DeleteLocal    bool   `mapstructure:"delete_local"`
	IncludeAborted bool   `mapstructure:"include_aborted"`
}

// DefaultConfig returns the settings used when nothing overrides them.
func DefaultConfig() Config {
	return Config{
		Input: InputConfig{
			Delimiter: ",",
			Header:    true,
		},
		Shard: ShardConfig{
			Column:   "0",
			Fallback: "unknown",
		},
		Output: OutputConfig{
			Dir:         ".",
			Layout:      "flat",
			Compression: "none",
		},
		Upload: UploadConfig{
			Concurrency: 4,
		},
	}
}

// Load reads configuration from files and environment variables.
// Environment variables use the prefix "SHARDCSV" and the dot character
// in keys is replaced by an underscore. For example, "shard.split_rows"
// becomes "SHARDCSV_SHARD_SPLIT_ROWS".
func Load() (*Config, error) {
	return LoadWith(viper.New())
}

// LoadWith is Load on a caller-supplied viper, typically one with command
// line flags already bound to it.
func LoadWith(v *viper.Viper) (*Config, error) {
	cfg := DefaultConfig()

	v.SetConfigName("config")
	v.AddConfigPath(".")
	v.SetEnvPrefix("SHARDCSV")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvs(v, &cfg)
	_ = v.ReadInConfig()

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings that can be checked without touching files.
func (c *Config) Validate() error {
	if _, err := ParseDelimiter(c.Input.Delimiter); err != nil {
		return fmt.Errorf("input.delimiter: %w", err)
	}
	if c.Output.Delimiter != "" {
		if _, err := ParseDelimiter(c.Output.Delimiter); err != nil {
			return fmt.Errorf("output.delimiter: %w", err)
		}
	}
	if c.Shard.SplitRows < 0 {
		return fmt.Errorf("shard.split_rows must not be negative")
	}
	if c.Shard.Buckets < 0 {
		return fmt.Errorf("shard.buckets must not be negative")
	}
	switch c.Output.Layout {
	case "flat", "hive":
	default:
		return fmt.Errorf("output.layout must be flat or hive, got %q", c.Output.Layout)
	}
	if c.Upload.DeleteLocal && c.Upload.Target == "" {
		return fmt.Errorf("upload.delete_local requires upload.target")
	}
	return nil
}

// OutputDelimiter is the output delimiter, defaulting to the input's.
func (c *Config) OutputDelimiter() rune {
	d := c.Output.Delimiter
	if d == "" {
		d = c.Input.Delimiter
	}
	r, _ := ParseDelimiter(d)
	return r
}

// ParseDelimiter accepts a single character or one of the names "tab",
// "comma", "pipe" and "semicolon". A literal "\t" is also accepted.
func ParseDelimiter(s string) (rune, error) {
	switch strings.ToLower(s) {
	case "tab", `\t`:
		return '\t', nil
	case "comma":
		return ',', nil
	case "pipe":
		return '|', nil
	case "semicolon":
		return ';', nil
	}
	if utf8.RuneCountInString(s) != 1 {
		return 0, fmt.Errorf("delimiter must be a single character, got %q", s)
	}
	r, _ := utf8.DecodeRuneInString(s)
	switch r {
	case '"', '\r', '\n', utf8.RuneError:
		return 0, fmt.Errorf("invalid delimiter %q", s)
	}
	return r, nil
}

// bindEnvs registers all keys within cfg so that viper will look up
// corresponding environment variables when unmarshalling.
func bindEnvs(v *viper.Viper, cfg any, parts ...string) {
	val := reflect.ValueOf(cfg)
	typ := reflect.TypeOf(cfg)
	if typ.Kind() == reflect.Ptr {
		val = val.Elem()
		typ = typ.Elem()
	}
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		tag := f.Tag.Get("mapstructure")
		if tag == "" {
			tag = strings.ToLower(f.Name)
		}
		key := append(parts, tag)
		if f.Type.Kind() == reflect.Struct {
			bindEnvs(v, val.Field(i).Interface(), key...)
			continue
		}
		_ = v.BindEnv(strings.Join(key, "."))
	}
}
