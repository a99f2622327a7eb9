package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/bobbyrathoree/macscope/internal/config"
)

func newScanOnceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scan-once",
		Short: "Run a single scan pass and print the resulting process table as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScanOnce()
		},
	}
}

func runScanOnce() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	comps, err := buildComponents(cfg)
	if err != nil {
		return err
	}
	defer comps.log.Sync()

	comps.engine.ScanOnce(context.Background())
	snap := comps.store.Snapshot()

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(snap.Processes)
}
