package cmd

import (
	"fmt"

	"github.com/davecgh/go-spew/spew"
	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/tuannm99/novapage/internal/pagereader"
	"github.com/tuannm99/novapage/internal/sink"
)

func newDumpCmd(a *app) *cobra.Command {
	var raw bool
	c := &cobra.Command{
		Use:   "dump <stream-id>",
		Short: "Print a stream spooled into the pebble store",
		Long: `Reads every page of a stream from sink.pebble_dir and prints its
records as CSV. With --raw, prints page headers, a hex preview of each
record and the decoded values.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stream, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("stream id: %w", err)
			}
			schema, err := a.schema()
			if err != nil {
				return err
			}

			store, err := sink.OpenPebble(a.cfg.Sink.PebbleDir)
			if err != nil {
				return err
			}
			defer store.Close()

			pages, complete, err := store.ReadStream(stream)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if raw {
				r := pagereader.New(schema)
				for _, p := range pages {
					if err := p.Debug(out); err != nil {
						return err
					}
					recs, err := r.ReadAll(p)
					if err != nil {
						return err
					}
					spew.Fdump(out, recs)
				}
			} else {
				w, err := sink.NewCSV(out, schema, a.cfg.ColumnOptions(), a.cfg.Sink.CSVHeader)
				if err != nil {
					return err
				}
				for _, p := range pages {
					if err := w.Accept(p); err != nil {
						return err
					}
				}
				if err := w.Complete(); err != nil {
					return err
				}
			}

			status := color.New(color.FgGreen).SprintFunc()
			state := "complete"
			if !complete {
				status = color.New(color.FgYellow).SprintFunc()
				state = "incomplete"
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "%d pages, stream %s\n", len(pages), status(state))
			return nil
		},
	}
	c.Flags().BoolVar(&raw, "raw", false, "Print page layout and spew the decoded records")
	return c
}
