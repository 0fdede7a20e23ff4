package main

import (
	"fmt"
	"math/bits"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/Faultbox/midgard-globe/internal/engine/terrain"
)

var tablesMaxGrid int

var tablesCmd = &cobra.Command{
	Use:   "tables",
	Short: "Print index table sizes per grid size",
	Long: `Builds the center and skirt index tables up to --max-grid and prints,
for each grid size, the strip length of a fully matched segment and of a
segment whose neighbors are all one step coarser.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if tablesMaxGrid < 1 || bits.OnesCount(uint(tablesMaxGrid)) != 1 {
			return fmt.Errorf("--max-grid %d is not a power of two", tablesMaxGrid)
		}
		tables := terrain.Build(bits.Len(uint(tablesMaxGrid)) - 1)

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "GRID\tCENTER\tSKIRTS\tSTRIP\tTRIANGLES\tCOARSE STRIP\tSIZE")
		var total uint64
		for gs := 1; gs <= tables.MaxGridSize(); gs *= 2 {
			center, err := tables.Center(gs)
			if err != nil {
				return err
			}
			strip, err := tables.SegmentIndexes(gs, gs, gs, gs, gs)
			if err != nil {
				return err
			}
			coarse := max(gs/2, 1)
			coarseStrip, err := tables.SegmentIndexes(gs, coarse, coarse, coarse, coarse)
			if err != nil {
				return err
			}

			var skirts int
			for _, side := range []terrain.Side{terrain.North, terrain.West, terrain.South, terrain.East} {
				for nd := 1; nd <= gs; nd *= 2 {
					s, err := tables.Skirt(side, gs, nd)
					if err != nil {
						return err
					}
					skirts += len(s)
				}
			}

			size := uint64(len(center)+skirts) * 4
			total += size
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n", gs,
				humanize.Comma(int64(len(center))),
				humanize.Comma(int64(skirts)),
				humanize.Comma(int64(len(strip))),
				humanize.Comma(int64(len(terrain.Triangles(strip)))),
				humanize.Comma(int64(len(coarseStrip))),
				humanize.IBytes(size))
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Printf("total %s\n", humanize.IBytes(total))
		return nil
	},
}

func init() {
	tablesCmd.Flags().IntVar(&tablesMaxGrid, "max-grid", 64, "Largest grid size to build")
	rootCmd.AddCommand(tablesCmd)
}
