package main

import (
	"fmt"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"yogabot/internal/config"
	"yogabot/internal/history"
)

func historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect recorded dispatch outcomes",
	}

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List the most recent dispatches",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, s, err := openHistory()
			if err != nil {
				return err
			}
			defer s.Close()

			entries, err := s.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TIME\tCHANNEL\tCHAT\tINTENT\tTAG\tLATENCY\tRESULT")
			for _, e := range entries {
				result := fmt.Sprintf("ok (%d chars)", e.ReplyLen)
				if e.ErrorKind != "" {
					result = e.ErrorKind + ": " + e.Error
				} else if e.Intent == "voice" && !e.Recognized {
					result = "not recognised"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					e.CreatedAt.Format(time.DateTime), e.Channel, e.ChatID, e.Intent, e.Tag,
					e.Latency.Round(time.Millisecond), result)
			}
			return tw.Flush()
		},
	}
	list.Flags().IntVarP(&limit, "limit", "n", 20, "number of entries to show")

	var olderThan time.Duration
	prune := &cobra.Command{
		Use:   "prune",
		Short: "Delete entries older than --older-than (default: history.retentionDays)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, s, err := openHistory()
			if err != nil {
				return err
			}
			defer s.Close()
			if olderThan <= 0 {
				olderThan = time.Duration(cfg.History.RetentionDays) * 24 * time.Hour
			}
			if olderThan <= 0 {
				return fmt.Errorf("no retention configured; pass --older-than")
			}
			n, err := s.Prune(cmd.Context(), olderThan)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d entries older than %s\n", n, olderThan)
			return nil
		},
	}
	prune.Flags().DurationVar(&olderThan, "older-than", 0, "age cutoff, e.g. 720h")

	var output string
	backup := &cobra.Command{
		Use:   "backup",
		Short: "Write a consistent copy of the history database",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, s, err := openHistory()
			if err != nil {
				return err
			}
			defer s.Close()
			if output == "" {
				output = filepath.Join(filepath.Dir(cfg.History.DBPath), "backups",
					fmt.Sprintf("history-%s.db", time.Now().Format("20060102-150405")))
			}
			if err := s.Backup(cmd.Context(), output); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Backup created: %s\n", output)
			return nil
		},
	}
	backup.Flags().StringVarP(&output, "output", "o", "", "output file (default: backups/history-<timestamp>.db next to the database)")

	cmd.AddCommand(list, prune, backup)
	return cmd
}

func openHistory() (*config.Config, *history.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if !cfg.History.Enabled {
		return nil, nil, fmt.Errorf("history is disabled (set history.enabled to true)")
	}
	s, err := history.Open(cfg.History.DBPath, logger)
	if err != nil {
		return nil, nil, err
	}
	return cfg, s, nil
}
