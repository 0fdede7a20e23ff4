package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Faultbox/midgard-globe/pkg/formats"
)

func TestHTTPFetcherURL(t *testing.T) {
	f := NewHTTPFetcher(HTTPOptions{
		URL:        "https://{s}.example.com/{z}/{tilex}/{y}.ddm?zoom={zoom}&x={x}&row={tiley}",
		Subdomains: []string{"a", "b"},
	}, nil)

	tile := Tile{Zoom: 7, X: 65, Y: 40}
	want := []string{
		"https://a.example.com/7/65/40.ddm?zoom=7&x=65&row=40",
		"https://b.example.com/7/65/40.ddm?zoom=7&x=65&row=40",
		"https://a.example.com/7/65/40.ddm?zoom=7&x=65&row=40",
	}
	for i, w := range want {
		if got := f.URL(tile); got != w {
			t.Errorf("URL #%d = %q, want %q", i, got, w)
		}
	}
}

func TestHTTPFetcherRewrite(t *testing.T) {
	f := NewHTTPFetcher(HTTPOptions{
		URL: "https://example.com/{z}/{x}/{y}",
		Rewrite: func(t Tile, url string) string {
			return url + "?token=abc"
		},
	}, nil)
	if got, want := f.URL(Tile{Zoom: 1, X: 0, Y: 1}), "https://example.com/1/0/1?token=abc"; got != want {
		t.Errorf("URL = %q, want %q", got, want)
	}
}

func TestHTTPFetcherFetch(t *testing.T) {
	var hits atomic.Int32
	payload := formats.EncodeDDM(&formats.Grid{Size: 3, Heights: []float32{1, 2, 3, 4, 5, 6, 7, 8, 9}})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		switch r.URL.Path {
		case "/5/1/2.ddm":
			w.Write(payload)
		case "/5/1/3.ddm":
			http.Error(w, "boom", http.StatusInternalServerError)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := NewHTTPFetcher(HTTPOptions{URL: srv.URL + "/{z}/{x}/{y}.ddm", FailureTTL: time.Hour}, nil)
	ctx := context.Background()

	g, err := f.Fetch(ctx, Tile{Zoom: 5, X: 1, Y: 2})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if g.Size != 3 || g.Heights[8] != 9 {
		t.Errorf("decoded grid = %+v", g)
	}

	if _, err := f.Fetch(ctx, Tile{Zoom: 5, X: 1, Y: 3}); !errors.Is(err, ErrBadStatus) {
		t.Errorf("500 error = %v, want ErrBadStatus", err)
	}

	missing := Tile{Zoom: 5, X: 9, Y: 9}
	if _, err := f.Fetch(ctx, missing); !errors.Is(err, ErrNotFound) {
		t.Fatalf("404 error = %v, want ErrNotFound", err)
	}
	before := hits.Load()
	if _, err := f.Fetch(ctx, missing); !errors.Is(err, ErrNotFound) {
		t.Errorf("remembered error = %v, want ErrNotFound", err)
	}
	if hits.Load() != before {
		t.Error("failed tile fetched again within the failure TTL")
	}

	f.Forget()
	f.Fetch(ctx, missing)
	if hits.Load() != before+1 {
		t.Error("Forget did not clear remembered failures")
	}
}

func TestHTTPFetcherDecodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte{1, 2, 3})
	}))
	defer srv.Close()

	f := NewHTTPFetcher(HTTPOptions{URL: srv.URL + "/{z}/{x}/{y}"}, nil)
	if _, err := f.Fetch(context.Background(), Tile{}); !errors.Is(err, formats.ErrShortPayload) {
		t.Errorf("error = %v, want ErrShortPayload", err)
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestHTTPFetcherDoesNotRememberCancellation(t *testing.T) {
	for _, cause := range []error{context.Canceled, context.DeadlineExceeded} {
		t.Run(cause.Error(), func(t *testing.T) {
			var trips atomic.Int32
			client := &http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
				trips.Add(1)
				return nil, cause
			})}
			f := NewHTTPFetcher(HTTPOptions{URL: "http://tiles.invalid/{z}/{x}/{y}", Client: client, FailureTTL: time.Hour}, nil)

			// The caller's own context stays live while the download reports
			// a cancellation, as when it joined another caller's request.
			tile := Tile{Zoom: 4, X: 3, Y: 2}
			for i := 0; i < 2; i++ {
				if _, err := f.Fetch(context.Background(), tile); !errors.Is(err, cause) {
					t.Fatalf("Fetch #%d error = %v, want %v", i, err, cause)
				}
			}
			if trips.Load() != 2 {
				t.Errorf("downloads = %d, want 2: cancellation was remembered as a failure", trips.Load())
			}
		})
	}
}

// countingFetcher returns a grid whose samples equal the tile's X.
type countingFetcher struct {
	calls atomic.Int32
	err   error
}

func (f *countingFetcher) Fetch(ctx context.Context, t Tile) (*formats.Grid, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	h := float32(t.X)
	return &formats.Grid{Size: 2, Heights: []float32{h, h, h, h}}, nil
}

func TestMemoryCache(t *testing.T) {
	next := &countingFetcher{}
	c, err := NewMemoryCache(next, 2)
	if err != nil {
		t.Fatalf("NewMemoryCache: %v", err)
	}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := c.Fetch(ctx, Tile{Zoom: 3, X: 1}); err != nil {
			t.Fatalf("Fetch: %v", err)
		}
	}
	if next.calls.Load() != 1 {
		t.Errorf("next called %d times, want 1", next.calls.Load())
	}

	c.Fetch(ctx, Tile{Zoom: 3, X: 2})
	c.Fetch(ctx, Tile{Zoom: 3, X: 3})
	if c.Len() != 2 {
		t.Errorf("Len = %d, want 2", c.Len())
	}
	c.Fetch(ctx, Tile{Zoom: 3, X: 1})
	if next.calls.Load() != 4 {
		t.Errorf("evicted tile not fetched again: %d calls", next.calls.Load())
	}
}

func TestMemoryCacheSkipsErrors(t *testing.T) {
	next := &countingFetcher{err: ErrNotFound}
	c, _ := NewMemoryCache(next, 4)
	c.Fetch(context.Background(), Tile{})
	if c.Len() != 0 {
		t.Error("failure cached")
	}
}

func TestBoltCache(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tiles.db")
	ctx := context.Background()
	tile := Tile{Zoom: 4, X: 7, Y: 2}

	next := &countingFetcher{}
	c, err := OpenBoltCache(path, next, nil)
	if err != nil {
		t.Fatalf("OpenBoltCache: %v", err)
	}
	if _, err := c.Fetch(ctx, tile); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if c.Len() != 1 {
		t.Errorf("Len = %d, want 1", c.Len())
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	offline := &countingFetcher{err: errors.New("offline")}
	c, err = OpenBoltCache(path, offline, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer c.Close()

	g, err := c.Fetch(ctx, tile)
	if err != nil {
		t.Fatalf("cached Fetch: %v", err)
	}
	if g.Size != 2 || g.Heights[0] != 7 {
		t.Errorf("cached grid = %+v", g)
	}
	if offline.calls.Load() != 0 {
		t.Error("cached tile fetched from next")
	}

	if _, err := c.Fetch(ctx, Tile{Zoom: 4}); err == nil {
		t.Error("uncached tile with failing next returned no error")
	}
}
