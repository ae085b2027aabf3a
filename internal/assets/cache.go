// Package assets resolves track references to local files, downloading and
// caching remote tracks before a session starts.
package assets

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"

	"stridebeat/internal/player"
)

// DownloadTimeout bounds a whole track download, body included.
const DownloadTimeout = 2 * time.Minute

// Cache resolves track references.
//
// Local paths are returned as-is once they are known to exist. http(s) URLs
// are downloaded into Dir on first use and reused afterwards. Every failure
// wraps player.ErrLoad so callers degrade to "no music".
type Cache struct {
	Fs     afero.Fs
	Dir    string
	Client *http.Client
	Logger *slog.Logger

	// PassThrough returns every non-empty reference unchanged. Set it when
	// the player runs on another host: local paths and cache files here mean
	// nothing there, and the agent fetches URLs itself.
	PassThrough bool
}

// New creates a Cache on the OS filesystem.
func New(dir string, logger *slog.Logger) *Cache {
	return &Cache{
		Fs:     afero.NewOsFs(),
		Dir:    dir,
		Client: &http.Client{Timeout: DownloadTimeout},
		Logger: logger,
	}
}

// Resolve returns a local path for ref.
func (c *Cache) Resolve(ctx context.Context, ref string) (string, error) {
	if ref == "" {
		return "", fmt.Errorf("%w: empty track reference", player.ErrLoad)
	}
	if c.PassThrough {
		return ref, nil
	}

	u, err := url.Parse(ref)
	if err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		return c.fetch(ctx, u)
	}

	exists, err := afero.Exists(c.Fs, ref)
	if err != nil {
		return "", errors.Join(player.ErrLoad, fmt.Errorf("stat %s: %w", ref, err))
	}
	if !exists {
		return "", fmt.Errorf("%w: track not found: %s", player.ErrLoad, ref)
	}
	return ref, nil
}

// CachePath is where a remote reference is stored.
func (c *Cache) CachePath(ref string) string {
	sum := sha256.Sum256([]byte(ref))
	name := hex.EncodeToString(sum[:])

	// Keep the extension so players can sniff the container.
	if u, err := url.Parse(ref); err == nil {
		if ext := path.Ext(u.Path); ext != "" && len(ext) <= 6 {
			name += strings.ToLower(ext)
		}
	}
	return filepath.Join(c.Dir, name)
}

func (c *Cache) fetch(ctx context.Context, u *url.URL) (string, error) {
	ref := u.String()
	dst := c.CachePath(ref)

	if ok, _ := afero.Exists(c.Fs, dst); ok {
		c.logger().Debug("track cache hit", "url", ref, "path", dst)
		return dst, nil
	}

	if err := c.Fs.MkdirAll(c.Dir, 0o755); err != nil {
		return "", errors.Join(player.ErrLoad, fmt.Errorf("create cache dir: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return "", errors.Join(player.ErrLoad, fmt.Errorf("build request: %w", err))
	}

	client := c.Client
	if client == nil {
		client = &http.Client{Timeout: DownloadTimeout}
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", errors.Join(player.ErrLoad, fmt.Errorf("download %s: %w", ref, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: download %s: status %d", player.ErrLoad, ref, resp.StatusCode)
	}

	// Write to a temp name first so a partial download is never reused.
	tmp := dst + ".part"
	f, err := c.Fs.Create(tmp)
	if err != nil {
		return "", errors.Join(player.ErrLoad, fmt.Errorf("create %s: %w", tmp, err))
	}
	n, copyErr := io.Copy(f, resp.Body)
	closeErr := f.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		_ = c.Fs.Remove(tmp)
		return "", errors.Join(player.ErrLoad, fmt.Errorf("write %s: %w", tmp, err))
	}

	if err := c.Fs.Rename(tmp, dst); err != nil {
		_ = c.Fs.Remove(tmp)
		return "", errors.Join(player.ErrLoad, fmt.Errorf("rename %s: %w", tmp, err))
	}

	c.logger().Info("track cached", "url", ref, "path", dst, "bytes", n)
	return dst, nil
}

func (c *Cache) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return c.Logger
}
