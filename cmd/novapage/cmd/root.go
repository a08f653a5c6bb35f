package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tuannm99/novapage/internal"
	"github.com/tuannm99/novapage/internal/record"
)

type app struct {
	cfgPath    string
	schemaFlag string
	sinkFlag   string

	cfg *internal.NovaPageConfig
	log *slog.Logger
}

func NewRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "novapage",
		Short: "NovaPage - schema-typed record paging",
		Long: `NovaPage encodes schema-typed records into fixed-size binary pages
and hands them to a sink (memory, csv or a pebble spool).`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd.ErrOrStderr())
		},
	}

	root.PersistentFlags().StringVarP(&a.cfgPath, "config", "c", "", "YAML config file")
	root.PersistentFlags().StringVar(&a.schemaFlag, "schema", "", `Schema override, e.g. "id:long,name:string"`)
	root.PersistentFlags().StringVar(&a.sinkFlag, "sink", "", "Sink override: memory, csv or pebble")

	root.AddCommand(newEncodeCmd(a), newDumpCmd(a))
	return root
}

func (a *app) load(logOut io.Writer) error {
	cfg := internal.DefaultConfig()
	if a.cfgPath != "" {
		loaded, err := internal.LoadConfig(a.cfgPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if a.sinkFlag != "" {
		cfg.Sink.Kind = a.sinkFlag
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	level, err := cfg.LogLevel()
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.log = slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: level})).
		With("app", cfg.AppName)
	return nil
}

// schema prefers the --schema flag over the config file.
func (a *app) schema() (*record.Schema, error) {
	if a.schemaFlag == "" {
		return a.cfg.BuildSchema()
	}
	return parseSchema(a.schemaFlag)
}

func parseSchema(s string) (*record.Schema, error) {
	var specs []record.ColumnSpec
	for _, part := range strings.Split(s, ",") {
		name, typ, ok := strings.Cut(strings.TrimSpace(part), ":")
		if !ok || name == "" {
			return nil, fmt.Errorf("schema entry %q: want name:type", part)
		}
		t, err := record.ParseColumnType(typ)
		if err != nil {
			return nil, fmt.Errorf("schema entry %q: %w", part, err)
		}
		specs = append(specs, record.ColumnSpec{Name: name, Type: t})
	}
	return record.NewSchema(specs...)
}
