package assets

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/afero"

	"stridebeat/internal/player"
)

func newTestCache(fs afero.Fs, client *http.Client) *Cache {
	return &Cache{Fs: fs, Dir: "/cache", Client: client}
}

func TestResolve_LocalPath(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "/music/track.mp3", []byte("ID3"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	c := newTestCache(fs, nil)

	got, err := c.Resolve(context.Background(), "/music/track.mp3")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != "/music/track.mp3" {
		t.Fatalf("got %q", got)
	}
}

func TestResolve_MissingLocalPathWrapsErrLoad(t *testing.T) {
	c := newTestCache(afero.NewMemMapFs(), nil)

	_, err := c.Resolve(context.Background(), "/music/missing.mp3")
	if !errors.Is(err, player.ErrLoad) {
		t.Fatalf("err = %v, want ErrLoad", err)
	}

	_, err = c.Resolve(context.Background(), "")
	if !errors.Is(err, player.ErrLoad) {
		t.Fatalf("empty ref err = %v, want ErrLoad", err)
	}
}

func TestResolve_DownloadsOnceAndReuses(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte("audio-bytes"))
	}))
	defer srv.Close()

	fs := afero.NewMemMapFs()
	c := newTestCache(fs, srv.Client())
	ref := srv.URL + "/tracks/Run.MP3"

	first, err := c.Resolve(context.Background(), ref)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if filepath.Dir(first) != "/cache" || filepath.Ext(first) != ".mp3" {
		t.Fatalf("unexpected cache path %q", first)
	}

	data, err := afero.ReadFile(fs, first)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "audio-bytes" {
		t.Fatalf("cached data = %q", data)
	}

	second, err := c.Resolve(context.Background(), ref)
	if err != nil {
		t.Fatalf("second Resolve: %v", err)
	}
	if second != first {
		t.Fatalf("second path %q != first %q", second, first)
	}
	if n := hits.Load(); n != 1 {
		t.Fatalf("server hit %d times, want 1", n)
	}
}

func TestResolve_HTTPErrorLeavesNoCacheFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	fs := afero.NewMemMapFs()
	c := newTestCache(fs, srv.Client())
	ref := srv.URL + "/missing.ogg"

	if _, err := c.Resolve(context.Background(), ref); !errors.Is(err, player.ErrLoad) {
		t.Fatalf("err = %v, want ErrLoad", err)
	}
	if ok, _ := afero.Exists(fs, c.CachePath(ref)); ok {
		t.Fatalf("cache file created for failed download")
	}
}

func TestResolve_CanceledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("x"))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := newTestCache(afero.NewMemMapFs(), srv.Client())
	if _, err := c.Resolve(ctx, srv.URL+"/a.mp3"); !errors.Is(err, player.ErrLoad) {
		t.Fatalf("err = %v, want ErrLoad", err)
	}
}

func TestResolve_PassThroughSkipsLocalChecks(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	fs := afero.NewMemMapFs()
	c := newTestCache(fs, srv.Client())
	c.PassThrough = true

	for _, ref := range []string{"/agent/music/track.mp3", srv.URL + "/a.mp3"} {
		got, err := c.Resolve(context.Background(), ref)
		if err != nil {
			t.Fatalf("Resolve(%q): %v", ref, err)
		}
		if got != ref {
			t.Fatalf("Resolve(%q) = %q, want unchanged", ref, got)
		}
	}
	if n := hits.Load(); n != 0 {
		t.Fatalf("server hit %d times, want 0", n)
	}
	if ok, _ := afero.DirExists(fs, "/cache"); ok {
		t.Fatalf("cache dir created")
	}

	if _, err := c.Resolve(context.Background(), ""); !errors.Is(err, player.ErrLoad) {
		t.Fatalf("empty ref err = %v, want ErrLoad", err)
	}
}

func TestResolve_StalledDownloadTimesOut(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1024")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("partial"))
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	client := srv.Client()
	client.Timeout = 100 * time.Millisecond

	fs := afero.NewMemMapFs()
	c := newTestCache(fs, client)
	ref := srv.URL + "/stall.mp3"

	start := time.Now()
	_, err := c.Resolve(context.Background(), ref)
	if !errors.Is(err, player.ErrLoad) {
		t.Fatalf("err = %v, want ErrLoad", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("Resolve took %v", elapsed)
	}
	if ok, _ := afero.Exists(fs, c.CachePath(ref)); ok {
		t.Fatalf("cache file created for stalled download")
	}
	if ok, _ := afero.Exists(fs, c.CachePath(ref)+".part"); ok {
		t.Fatalf("partial file left behind")
	}
}

func TestNew_ClientHasTimeout(t *testing.T) {
	c := New(t.TempDir(), nil)
	if c.Client == nil || c.Client.Timeout != DownloadTimeout {
		t.Fatalf("client = %+v, want timeout %v", c.Client, DownloadTimeout)
	}
}

func TestCachePath_StableAndDistinct(t *testing.T) {
	c := newTestCache(afero.NewMemMapFs(), nil)
	a := c.CachePath("https://example.com/a.mp3")
	if a != c.CachePath("https://example.com/a.mp3") {
		t.Fatalf("cache path not stable")
	}
	if a == c.CachePath("https://example.com/b.mp3") {
		t.Fatalf("distinct refs share a cache path")
	}
}
