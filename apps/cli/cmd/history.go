package cmd

import (
	"errors"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/abdul-hamid-achik/requester/packages/history"
	"github.com/abdul-hamid-achik/requester/packages/output"
	"github.com/spf13/cobra"
)

// DefaultHistoryPath is used when neither --db nor historyPath is set
const DefaultHistoryPath = "requester-history.db"

type historyOptions struct {
	db     string
	limit  int
	format string
	keep   int
}

func newHistoryCmd(g *globalOptions) *cobra.Command {
	o := &historyOptions{}
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List, show and prune saved exchanges",
		Long: `Exchanges sent with --history are stored in a local SQLite database.

Examples:
  requester history list --limit 10
  requester history show 1b4e28ba-2fa1-11d2-883f-0016d3cca427 --format yaml
  requester history prune --keep 100`,
	}
	cmd.PersistentFlags().StringVar(&o.db, "db", "", "History database (default from config historyPath, then "+DefaultHistoryPath+")")

	list := &cobra.Command{
		Use:   "list",
		Short: "List saved exchanges, newest first",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := o.open(g)
			if err != nil {
				return err
			}
			defer store.Close()

			entries, err := store.List(cmd.Context(), o.limit)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No saved exchanges")
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tTIME\tMETHOD\tSTATUS\tDURATION\tURL")
			for _, e := range entries {
				status := "-"
				if e.StatusCode > 0 {
					status = strconv.Itoa(e.StatusCode)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%dms\t%s\n",
					e.ID,
					e.CreatedAt.Local().Format("2006-01-02 15:04:05"),
					e.Method,
					status,
					e.Duration.Milliseconds(),
					e.URL,
				)
			}
			return tw.Flush()
		},
	}
	list.Flags().IntVarP(&o.limit, "limit", "n", 20, "Show at most this many exchanges, 0 for all")

	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Print the dump of a saved exchange",
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := output.ParseFormat(o.format)
			if err != nil {
				return usageError(err)
			}

			store, err := o.open(g)
			if err != nil {
				return err
			}
			defer store.Close()

			entry, err := store.Get(cmd.Context(), args[0])
			if errors.Is(err, history.ErrNotFound) {
				return usageError(fmt.Errorf("no saved exchange with id %s", args[0]))
			}
			if err != nil {
				return err
			}
			return output.WriteDump(cmd.OutOrStdout(), entry.Dump, format)
		},
	}
	show.Flags().StringVarP(&o.format, "format", "o", "json", "Dump format: json, yaml")

	prune := &cobra.Command{
		Use:   "prune",
		Short: "Delete all but the newest saved exchanges",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			if o.keep < 0 {
				return usageError(errors.New("--keep must not be negative"))
			}
			store, err := o.open(g)
			if err != nil {
				return err
			}
			defer store.Close()

			removed, err := store.Prune(cmd.Context(), o.keep)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d exchanges\n", removed)
			return nil
		},
	}
	prune.Flags().IntVar(&o.keep, "keep", 100, "Number of newest exchanges to keep")

	cmd.AddCommand(list, show, prune)
	return cmd
}

func (o *historyOptions) open(g *globalOptions) (*history.Store, error) {
	path := o.db
	if path == "" {
		path = g.cfg.HistoryPath
	}
	if path == "" {
		path = DefaultHistoryPath
	}
	store, err := history.Open(path)
	if err != nil {
		return nil, &ExitError{Code: ExitConfigError, Err: err}
	}
	return store, nil
}
