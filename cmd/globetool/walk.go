package main

import (
	"context"
	"errors"
	"fmt"
	gomath "math"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/Faultbox/midgard-globe/internal/engine/camera"
	enginedebug "github.com/Faultbox/midgard-globe/internal/engine/debug"
	"github.com/Faultbox/midgard-globe/internal/engine/normalmap"
	"github.com/Faultbox/midgard-globe/internal/engine/planet"
	"github.com/Faultbox/midgard-globe/internal/logger"
	"github.com/Faultbox/midgard-globe/pkg/geo"
)

var walkFlags struct {
	lon, lat   float64
	from, to   float64
	steps      int
	settle     time.Duration
	offline    bool
	cache      string
	normalSize int
	dump       string
}

var walkCmd = &cobra.Command{
	Use:   "walk",
	Short: "Descend toward a point without a window and report LOD stats",
	Long: `Moves a camera from --from to --to meters above lon/lat in --steps
geometric steps. At every step frames run until the terrain and normal map
pipeline is idle or --settle expires, then one row of counters is printed.
Normal maps are built on the CPU.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		f := walkFlags
		if f.steps < 1 || f.from <= 0 || f.to <= 0 {
			return errors.New("need --steps >= 1 and positive heights")
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if f.offline {
			cfg.Terrain.URL = ""
		}
		if f.cache != "" {
			cfg.Cache.Path = f.cache
		}
		opts, err := planet.OptionsFromConfig(cfg)
		if err != nil {
			return err
		}
		opts.NormalMapSize = f.normalSize

		p, err := planet.New(opts, logger.Named("planet"))
		if err != nil {
			return err
		}
		defer p.Close()

		cam := camera.New(geo.WGS84, f.lon, f.lat, f.from)
		cam.FovY = cfg.Camera.FovY * gomath.Pi / 180
		cam.MaxHeight = gomath.Max(cam.MaxHeight, f.from)
		cam.SetViewport(cfg.Graphics.Width, cfg.Graphics.Height)

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', tabwriter.AlignRight)
		fmt.Fprintln(w, "STEP\tHEIGHT\tFRAMES\tNODES\tRENDERED\tZOOM\tLOADED\tEMPTY\tDROPPED\tNORMALS\tIDLE\t")

		ratio := 1.0
		if f.steps > 1 {
			ratio = gomath.Pow(f.to/f.from, 1/float64(f.steps-1))
		}
		for i := 0; i < f.steps; i++ {
			cam.Height = f.from * gomath.Pow(ratio, float64(i))
			cam.Update()

			frames, idle := settleFrames(cmd.Context(), p, cam, f.settle)
			st := p.Stats()
			fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%d\t%d\t%d\t%d\t%d\t%d\t%v\t\n",
				i, humanize.SIWithDigits(cam.Height, 1, "m"), frames,
				humanize.Comma(int64(st.Tree.Nodes)), st.Tree.Rendered, st.Tree.MaxZoom,
				st.Provider.Loaded, st.Provider.Empty, st.Provider.Dropped,
				st.NormalMaps.Built, idle)
			if err := cmd.Context().Err(); err != nil {
				break
			}
		}
		if err := w.Flush(); err != nil {
			return err
		}
		if f.dump != "" {
			n, err := dumpNormalMaps(p, f.dump)
			if err != nil {
				return err
			}
			fmt.Printf("%d normal maps written to %s\n", n, f.dump)
		}
		return nil
	},
}

// dumpNormalMaps writes the own normal map of every rendered segment.
func dumpNormalMaps(p *planet.Planet, dir string) (int, error) {
	c := enginedebug.NewCapture(dir, "")
	n := 0
	for _, node := range p.Rendered() {
		seg := node.Segment()
		tex, bias := seg.NormalMap()
		img, ok := tex.(*normalmap.Image)
		if !ok || bias[2] != 1 {
			continue
		}
		k := seg.Key()
		name := fmt.Sprintf("%s_%d_%d_%d.png", k.Group, k.Zoom, k.X, k.Y)
		if _, err := c.Save(name, img.NRGBA); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// settleFrames runs frames until the pipeline is idle after a frame or the
// budget runs out.
func settleFrames(ctx context.Context, p *planet.Planet, cam *camera.GlobeCamera, budget time.Duration) (int, bool) {
	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	frames := 0
	for {
		p.Frame(cam)
		frames++
		if p.Idle() {
			return frames, true
		}
		if err := p.Wait(ctx); err != nil {
			return frames, false
		}
	}
}

func init() {
	fl := walkCmd.Flags()
	fl.Float64Var(&walkFlags.lon, "lon", 10, "Target longitude")
	fl.Float64Var(&walkFlags.lat, "lat", 46, "Target latitude")
	fl.Float64Var(&walkFlags.from, "from", 2e7, "Start height in meters")
	fl.Float64Var(&walkFlags.to, "to", 2e3, "End height in meters")
	fl.IntVar(&walkFlags.steps, "steps", 12, "Number of heights")
	fl.DurationVar(&walkFlags.settle, "settle", 20*time.Second, "Time budget per step")
	fl.BoolVar(&walkFlags.offline, "offline", false, "Use the plain ellipsoid")
	fl.StringVar(&walkFlags.cache, "cache", "", "Persistent tile cache file")
	fl.IntVar(&walkFlags.normalSize, "normal-size", 64, "Normal map size")
	fl.StringVar(&walkFlags.dump, "dump", "", "Write the final normal maps as PNG files to this directory")
	rootCmd.AddCommand(walkCmd)
}
