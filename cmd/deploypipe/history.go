package main

import (
	"context"
	"errors"
	"fmt"

	"deploypipe/internal/event"
	"deploypipe/internal/history"
	"deploypipe/pkg/fileutil"

	"github.com/spf13/cobra"
)

var (
	historyDBPath string
	historyRepo   string
	historyLimit  int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recorded deployment results",
	Long:  `Query the SQLite history database for recent deployment results of one repository.`,
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().StringVar(&historyDBPath, "db", getEnvOrDefault("DEPLOYPIPE_DB_PATH", ""), "Path to SQLite history database")
	historyCmd.Flags().StringVar(&historyRepo, "repo", "", "Repository name")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 10, "Maximum number of results to show")
	historyCmd.MarkFlagRequired("repo")
}

func runHistory(cmd *cobra.Command, args []string) error {
	if historyDBPath == "" {
		return fmt.Errorf("history database path is required (--db or DEPLOYPIPE_DB_PATH)")
	}
	if !fileutil.FileExists(historyDBPath) {
		return fmt.Errorf("history database not found: %s", historyDBPath)
	}

	hist, err := history.Open(historyDBPath)
	if err != nil {
		return fmt.Errorf("failed to open history database: %w", err)
	}
	defer hist.Close()

	records, err := hist.Recent(context.Background(), historyRepo, historyLimit)
	if err != nil {
		if errors.Is(err, history.ErrNotFound) {
			fmt.Printf("No deployment results recorded for %s\n", historyRepo)
			return nil
		}
		return fmt.Errorf("failed to query history: %w", err)
	}

	if len(records) == 0 {
		fmt.Printf("No deployment results recorded for %s\n", historyRepo)
		return nil
	}

	for _, rec := range records {
		status := "FAILED"
		if rec.Success {
			status = "OK"
		}
		fmt.Printf("%s  %-6s  %s@%s  %.1fs  %s\n",
			rec.CreatedAt.Format("2006-01-02 15:04:05"),
			status,
			rec.Branch,
			event.ShortCommit(rec.Commit),
			rec.DurationSeconds,
			rec.Message)
	}

	return nil
}
