package internal

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/viper"

	"github.com/tuannm99/novapage/internal/bufferpool"
	"github.com/tuannm99/novapage/internal/column"
	"github.com/tuannm99/novapage/internal/record"
	"github.com/tuannm99/novapage/internal/storage"
)

const (
	SinkMemory = "memory"
	SinkCSV    = "csv"
	SinkPebble = "pebble"
)

var ErrInvalidConfig = errors.New("config: invalid")

type ColumnConfig struct {
	Name            string `mapstructure:"name"`
	Type            string `mapstructure:"type"`
	TimestampFormat string `mapstructure:"timestamp_format"`
	Timezone        string `mapstructure:"timezone"`
}

type NovaPageConfig struct {
	AppName string `mapstructure:"app_name"`

	Page struct {
		Size        int `mapstructure:"size"`
		PoolBuffers int `mapstructure:"pool_buffers"`
	} `mapstructure:"page"`

	Builder struct {
		DefaultTimezone        string                         `mapstructure:"default_timezone"`
		DefaultTimestampFormat string                         `mapstructure:"default_timestamp_format"`
		ColumnOptions          map[string]column.ColumnOption `mapstructure:"column_options"`
	} `mapstructure:"builder"`

	Schema []ColumnConfig `mapstructure:"schema"`

	Sink struct {
		Kind      string `mapstructure:"kind"`
		PebbleDir string `mapstructure:"pebble_dir"`
		CSVHeader bool   `mapstructure:"csv_header"`
	} `mapstructure:"sink"`

	Log struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"log"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app_name", "novapage")
	v.SetDefault("page.size", storage.PageSize)
	v.SetDefault("page.pool_buffers", bufferpool.DefaultCapacity)
	v.SetDefault("builder.default_timezone", column.DefaultTimezone)
	v.SetDefault("builder.default_timestamp_format", column.DefaultTimestampFormat)
	v.SetDefault("sink.kind", SinkMemory)
	v.SetDefault("sink.pebble_dir", "./data")
	v.SetDefault("sink.csv_header", true)
	v.SetDefault("log.level", "info")
}

// DefaultConfig is the configuration used when no file is given.
func DefaultConfig() *NovaPageConfig {
	v := viper.New()
	setDefaults(v)
	var cfg NovaPageConfig
	// defaults alone always decode
	_ = v.Unmarshal(&cfg)
	return &cfg
}

func LoadConfig(path string) (*NovaPageConfig, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg NovaPageConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *NovaPageConfig) Validate() error {
	if c.Page.Size <= 0 || c.Page.Size > storage.MaxPageSize {
		return fmt.Errorf("%w: page.size %d", ErrInvalidConfig, c.Page.Size)
	}
	if c.Page.PoolBuffers < 0 {
		return fmt.Errorf("%w: page.pool_buffers %d", ErrInvalidConfig, c.Page.PoolBuffers)
	}
	kinds := c.SinkKinds()
	if len(kinds) == 0 {
		return fmt.Errorf("%w: sink.kind is empty", ErrInvalidConfig)
	}
	for _, k := range kinds {
		switch k {
		case SinkMemory, SinkCSV, SinkPebble:
		default:
			return fmt.Errorf("%w: sink.kind %q", ErrInvalidConfig, k)
		}
	}
	if _, err := c.LogLevel(); err != nil {
		return err
	}
	return nil
}

// SinkKinds splits sink.kind, which may name several sinks separated by
// commas, e.g. "pebble,csv".
func (c *NovaPageConfig) SinkKinds() []string {
	var kinds []string
	for _, k := range strings.Split(c.Sink.Kind, ",") {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

// BuildSchema turns the schema list into a record.Schema.
func (c *NovaPageConfig) BuildSchema() (*record.Schema, error) {
	if len(c.Schema) == 0 {
		return nil, fmt.Errorf("%w: empty schema", ErrInvalidConfig)
	}
	specs := make([]record.ColumnSpec, len(c.Schema))
	for i, col := range c.Schema {
		t, err := record.ParseColumnType(col.Type)
		if err != nil {
			return nil, fmt.Errorf("schema column %q: %w", col.Name, err)
		}
		specs[i] = record.ColumnSpec{Name: col.Name, Type: t}
	}
	return record.NewSchema(specs...)
}

// ColumnOptions merges builder.column_options with the options given on
// schema entries; the latter win. Viper lowercases map keys, so
// column_options entries are matched to schema names case-insensitively.
func (c *NovaPageConfig) ColumnOptions() column.Options {
	opts := column.Options{
		DefaultTimezone:        c.Builder.DefaultTimezone,
		DefaultTimestampFormat: c.Builder.DefaultTimestampFormat,
		ColumnOptions:          map[string]column.ColumnOption{},
	}
	for key, o := range c.Builder.ColumnOptions {
		name := key
		for _, col := range c.Schema {
			if strings.EqualFold(col.Name, key) {
				name = col.Name
				break
			}
		}
		opts.ColumnOptions[name] = o
	}
	for _, col := range c.Schema {
		if col.TimestampFormat == "" && col.Timezone == "" {
			continue
		}
		o := opts.ColumnOptions[col.Name]
		if col.TimestampFormat != "" {
			o.TimestampFormat = col.TimestampFormat
		}
		if col.Timezone != "" {
			o.Timezone = col.Timezone
		}
		opts.ColumnOptions[col.Name] = o
	}
	return opts
}

// Allocator returns a fixed pool when page.pool_buffers is positive and a
// heap allocator otherwise.
func (c *NovaPageConfig) Allocator() storage.Allocator {
	if c.Page.PoolBuffers > 0 {
		return bufferpool.NewPool(c.Page.Size, c.Page.PoolBuffers)
	}
	return storage.HeapAllocator{Size: c.Page.Size}
}

func (c *NovaPageConfig) LogLevel() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("%w: log.level %q", ErrInvalidConfig, c.Log.Level)
	}
	return l, nil
}
