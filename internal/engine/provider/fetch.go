package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jellydator/ttlcache/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/Faultbox/midgard-globe/pkg/formats"
)

// Fetch errors.
var (
	ErrNotFound  = errors.New("tile not found")
	ErrBadStatus = errors.New("unexpected http status")
)

// Tile addresses one elevation tile in the slippy scheme.
type Tile struct {
	Zoom, X, Y int
}

// String returns z/x/y.
func (t Tile) String() string {
	return fmt.Sprintf("%d/%d/%d", t.Zoom, t.X, t.Y)
}

// Fetcher loads and decodes one tile. Implementations must be safe for
// concurrent use. A nil grid with a nil error means the tile has no data.
type Fetcher interface {
	Fetch(ctx context.Context, t Tile) (*formats.Grid, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, t Tile) (*formats.Grid, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, t Tile) (*formats.Grid, error) {
	return f(ctx, t)
}

// HTTPOptions configures an HTTPFetcher.
type HTTPOptions struct {
	// URL is a template with {z}/{zoom}, {x}/{tilex}, {y}/{tiley} and an
	// optional {s} subdomain placeholder.
	URL        string
	Subdomains []string
	Format     formats.Format
	Client     *http.Client
	// Rewrite, when set, may replace the URL built for a tile.
	Rewrite func(t Tile, url string) string
	// FailureTTL is how long a failed tile is answered from memory.
	FailureTTL time.Duration
}

// HTTPFetcher downloads tiles over HTTP. Concurrent requests for the same
// URL share one download, and failures are remembered for FailureTTL.
type HTTPFetcher struct {
	opts     HTTPOptions
	client   *http.Client
	group    singleflight.Group
	failures *ttlcache.Cache[Tile, error]
	next     atomic.Uint32
	log      *zap.Logger
}

// NewHTTPFetcher creates a fetcher.
func NewHTTPFetcher(opts HTTPOptions, log *zap.Logger) *HTTPFetcher {
	if log == nil {
		log = zap.NewNop()
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.Format == "" {
		opts.Format = formats.FormatDDM
	}
	if opts.FailureTTL <= 0 {
		opts.FailureTTL = time.Minute
	}
	return &HTTPFetcher{
		opts:   opts,
		client: client,
		failures: ttlcache.New[Tile, error](
			ttlcache.WithTTL[Tile, error](opts.FailureTTL),
			ttlcache.WithDisableTouchOnHit[Tile, error](),
		),
		log: log,
	}
}

// URL expands the template for a tile.
func (f *HTTPFetcher) URL(t Tile) string {
	z, x, y := strconv.Itoa(t.Zoom), strconv.Itoa(t.X), strconv.Itoa(t.Y)
	pairs := []string{
		"{z}", z, "{zoom}", z,
		"{x}", x, "{tilex}", x,
		"{y}", y, "{tiley}", y,
	}
	if n := len(f.opts.Subdomains); n > 0 {
		i := int(f.next.Add(1)-1) % n
		pairs = append(pairs, "{s}", f.opts.Subdomains[i])
	}
	u := strings.NewReplacer(pairs...).Replace(f.opts.URL)
	if f.opts.Rewrite != nil {
		u = f.opts.Rewrite(t, u)
	}
	return u
}

// Fetch downloads and decodes a tile.
func (f *HTTPFetcher) Fetch(ctx context.Context, t Tile) (*formats.Grid, error) {
	if item := f.failures.Get(t); item != nil {
		return nil, item.Value()
	}

	v, err, _ := f.group.Do(t.String(), func() (any, error) {
		return f.download(ctx, t)
	})
	if err != nil {
		// A shared download runs under the first caller's context, so its
		// cancellation can reach callers whose own context is still live.
		if ctx.Err() == nil && !canceled(err) {
			f.failures.Set(t, err, ttlcache.DefaultTTL)
		}
		return nil, err
	}
	return v.(*formats.Grid), nil
}

func (f *HTTPFetcher) download(ctx context.Context, t Tile) (*formats.Grid, error) {
	u := f.URL(t)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", t, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, t)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: %s for %s", ErrBadStatus, resp.Status, t)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", t, err)
	}
	f.log.Debug("tile downloaded",
		zap.Stringer("tile", t),
		zap.String("size", humanize.Bytes(uint64(len(data)))))

	g, err := formats.Decode(f.opts.Format, data)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", t, err)
	}
	return g, nil
}

func canceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// Forget clears remembered failures.
func (f *HTTPFetcher) Forget() {
	f.failures.DeleteAll()
}
