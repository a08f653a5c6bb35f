package column

import (
	"fmt"
	"time"

	"github.com/itchyny/timefmt-go"
)

const (
	DefaultTimezone        = "UTC"
	DefaultTimestampFormat = "%Y-%m-%d %H:%M:%S.%f"
)

// ColumnOption overrides timestamp handling for a single column.
type ColumnOption struct {
	TimestampFormat string `mapstructure:"timestamp_format"`
	Timezone        string `mapstructure:"timezone"`
}

// Options configures how setters convert between strings and timestamps.
type Options struct {
	DefaultTimezone        string                  `mapstructure:"default_timezone"`
	DefaultTimestampFormat string                  `mapstructure:"default_timestamp_format"`
	ColumnOptions          map[string]ColumnOption `mapstructure:"column_options"`
}

// TimeFormat is a strftime layout bound to a location.
type TimeFormat struct {
	Layout   string
	Location *time.Location
}

func (f TimeFormat) Format(t time.Time) string {
	return timefmt.Format(t.In(f.Location), f.Layout)
}

// Parse reads s with the strftime layout and falls back to RFC 3339.
func (f TimeFormat) Parse(s string) (time.Time, error) {
	t, err := timefmt.ParseInLocation(s, f.Layout, f.Location)
	if err == nil {
		return t, nil
	}
	if t2, err2 := time.Parse(time.RFC3339Nano, s); err2 == nil {
		return t2, nil
	}
	return time.Time{}, err
}

// TimeFormatFor resolves the layout and zone for the named column.
func (o Options) TimeFormatFor(column string) (TimeFormat, error) {
	layout := o.DefaultTimestampFormat
	if layout == "" {
		layout = DefaultTimestampFormat
	}
	zone := o.DefaultTimezone
	if zone == "" {
		zone = DefaultTimezone
	}
	if co, ok := o.ColumnOptions[column]; ok {
		if co.TimestampFormat != "" {
			layout = co.TimestampFormat
		}
		if co.Timezone != "" {
			zone = co.Timezone
		}
	}

	loc, err := time.LoadLocation(zone)
	if err != nil {
		return TimeFormat{}, fmt.Errorf("column: timezone %q for %q: %w", zone, column, err)
	}
	return TimeFormat{Layout: layout, Location: loc}, nil
}
