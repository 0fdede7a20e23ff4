package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/Faultbox/midgard-globe/internal/engine/planet"
	"github.com/Faultbox/midgard-globe/internal/engine/provider"
	"github.com/Faultbox/midgard-globe/internal/logger"
	"github.com/Faultbox/midgard-globe/pkg/formats"
)

var (
	fetchURL string
	fetchOut string
)

var fetchCmd = &cobra.Command{
	Use:   "fetch <zoom> <x> <y>",
	Short: "Download one elevation tile and print its range",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		var xyz [3]int
		for i, a := range args {
			v, err := strconv.Atoi(a)
			if err != nil {
				return fmt.Errorf("tile coordinate %q: %w", a, err)
			}
			xyz[i] = v
		}
		tile := provider.Tile{Zoom: xyz[0], X: xyz[1], Y: xyz[2]}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if fetchURL != "" {
			cfg.Terrain.URL = fetchURL
		}
		opts, err := planet.OptionsFromConfig(cfg)
		if err != nil {
			return err
		}
		if opts.HTTP.URL == "" {
			return fmt.Errorf("no terrain url configured")
		}

		f := provider.NewHTTPFetcher(opts.HTTP, logger.Named("http"))
		ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Terrain.Timeout)
		defer cancel()

		g, err := f.Fetch(ctx, tile)
		if err != nil {
			return fmt.Errorf("fetching %s from %s: %w", tile, f.URL(tile), err)
		}
		lo, hi := g.MinMax()
		fmt.Printf("tile     %s\n", tile)
		fmt.Printf("url      %s\n", f.URL(tile))
		fmt.Printf("samples  %d x %d\n", g.Size, g.Size)
		fmt.Printf("height   %.1f .. %.1f m\n", lo, hi)

		if fetchOut != "" {
			data := formats.EncodeDDM(g)
			if err := os.WriteFile(fetchOut, data, 0644); err != nil {
				return err
			}
			fmt.Printf("written  %s (%s)\n", fetchOut, humanize.Bytes(uint64(len(data))))
		}
		return nil
	},
}

func init() {
	fetchCmd.Flags().StringVar(&fetchURL, "url", "", "Tile URL template, overrides the config")
	fetchCmd.Flags().StringVarP(&fetchOut, "out", "o", "", "Write the tile as DDM to this file")
	rootCmd.AddCommand(fetchCmd)
}
