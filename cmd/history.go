// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/teleostat/pkg/config"
	"github.com/Thermoquad/teleostat/pkg/history"
	"github.com/Thermoquad/teleostat/pkg/teleinfo"
)

var (
	historyLimit   int
	historyVerbose bool
	historyKeep    int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect the recorded frame history",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the most recent recorded frames",
	RunE:  runHistoryList,
}

var historyPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete all but the newest frames",
	RunE:  runHistoryPrune,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyListCmd, historyPruneCmd)

	historyListCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of frames")
	historyListCmd.Flags().BoolVarP(&historyVerbose, "verbose", "v", false, "Print every group")
	historyPruneCmd.Flags().IntVar(&historyKeep, "keep", 0, "Frames to keep (defaults to the configured value)")
}

func openHistory(cmd *cobra.Command) (*config.Config, *history.Store, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	if cfg.History.Path == "" {
		return nil, nil, errors.New("history is disabled (history.path is empty)")
	}
	store, err := history.Open(cfg.History.Path)
	if err != nil {
		return nil, nil, err
	}
	return cfg, store, nil
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	_, store, err := openHistory(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	total, err := store.Count()
	if err != nil {
		return err
	}
	records, err := store.Recent(historyLimit)
	if err != nil {
		return err
	}

	fmt.Printf("%d of %d frames\n\n", len(records), total)
	for _, r := range records {
		if historyVerbose {
			fmt.Print(teleinfo.FormatFrame(r.Frame))
			continue
		}
		fmt.Printf("%6d  %s  %-5s %6d VA\n", r.ID, r.Frame.TimestampISO8601(), r.PTEC, r.PAPP)
	}
	return nil
}

func runHistoryPrune(cmd *cobra.Command, args []string) error {
	cfg, store, err := openHistory(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	keep := cfg.History.Keep
	if historyKeep > 0 {
		keep = historyKeep
	}
	n, err := store.Prune(keep)
	if err != nil {
		return err
	}
	fmt.Printf("Deleted %d frames, kept the newest %d\n", n, keep)
	return nil
}
