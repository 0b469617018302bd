package commands

import (
	"errors"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"atbb-scraper/storage"
)

func historyCmd() *cobra.Command {
	var (
		limit int
		shots bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent runs from the run history store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := storage.Open(cfg)
			if errors.Is(err, storage.ErrDisabled) {
				return errors.New("run history is disabled (DB_DRIVER=none)")
			}
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.RecentRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}

			t := table.NewWriter()
			t.SetStyle(table.StyleRounded)
			t.SetOutputMirror(cmd.OutOrStdout())
			t.AppendHeader(table.Row{"Started", "Status", "Keyword", "Images", "ID"})
			for _, r := range runs {
				t.AppendRow(table.Row{
					r.StartedAt.Local().Format("2006-01-02 15:04"),
					r.Status,
					r.Keyword,
					fmt.Sprintf("%d/%d", r.Captured, r.Expected),
					r.ID,
				})
				if !shots {
					continue
				}
				list, err := store.Shots(cmd.Context(), r.ID)
				if err != nil {
					return err
				}
				for _, s := range list {
					state := s.Path
					if !s.OK() {
						state = "error: " + s.Err
					}
					t.AppendRow(table.Row{"", "", fmt.Sprintf("#%d", s.Index), state, ""})
				}
				t.AppendSeparator()
			}
			t.Render()
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to show")
	cmd.Flags().BoolVar(&shots, "shots", false, "also list each run's screenshots")
	return cmd
}
