package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"unremark/internal/cache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or reset the result cache",
}

var cachePathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the cache file location",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintln(cmd.OutOrStdout(), cfg.Cache.Path)
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Forget every cached result",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store := cache.Load(cfg.Cache.Path, cfg.Cache.MaxEntries)
		n := store.Len()
		store.Clear()
		if err := store.Save(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %d cached file(s)\n", n)
		return nil
	},
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache size",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store := cache.Load(cfg.Cache.Path, cfg.Cache.MaxEntries)
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Path:    %s\n", store.Path())
		fmt.Fprintf(out, "Entries: %d (max %d)\n", store.Len(), cfg.Cache.MaxEntries)
		if info, err := os.Stat(store.Path()); err == nil {
			fmt.Fprintf(out, "Size:    %d bytes\n", info.Size())
		}
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cachePathCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cacheStatsCmd)
}
