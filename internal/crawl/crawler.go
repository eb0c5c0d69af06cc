// Package crawl walks same-host links breadth-first from a seed URL.
package crawl

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

// PageFn fetches one URL and returns the absolute links discovered on the
// page. Implementations report per-page failures through their own channels;
// a returned error stops link expansion for that page only.
type PageFn func(ctx context.Context, pageURL string, depth int) ([]string, error)

// Config holds default crawl bounds, used when a call passes none.
type Config struct {
	MaxDepth int
	MaxPages int
}

// Crawler performs a bounded breadth-first traversal restricted to the seed
// URL's host.
type Crawler struct {
	cfg    Config
	logger *zap.Logger
}

// New returns a Crawler. Non-positive bounds fall back to depth 1 and a
// 25-page cap.
func New(cfg Config, logger *zap.Logger) *Crawler {
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = 1
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 25
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Crawler{cfg: cfg, logger: logger}
}

type queued struct {
	url   string
	depth int
}

// Crawl visits the seed and every same-host page reachable within the depth
// and page caps, calling fn once per unique URL. Non-positive bounds fall
// back to the configured defaults.
func (c *Crawler) Crawl(ctx context.Context, seedURL string, maxDepth, maxPages int, fn PageFn) error {
	if maxDepth <= 0 {
		maxDepth = c.cfg.MaxDepth
	}
	if maxPages <= 0 {
		maxPages = c.cfg.MaxPages
	}

	seed, err := url.Parse(seedURL)
	if err != nil || seed.Hostname() == "" {
		return fmt.Errorf("invalid seed url %q", seedURL)
	}
	host := strings.ToLower(seed.Hostname())

	visited := map[string]struct{}{}
	queue := []queued{{url: seedURL, depth: 0}}
	pages := 0

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}

		item := queue[0]
		queue = queue[1:]

		key := normalize(item.url)
		if _, seen := visited[key]; seen {
			continue
		}
		visited[key] = struct{}{}

		if pages >= maxPages {
			c.logger.Debug("crawl page cap reached", zap.Int("max_pages", maxPages))
			return nil
		}
		pages++

		links, err := fn(ctx, item.url, item.depth)
		if err != nil {
			c.logger.Debug("page visit failed, skipping link expansion",
				zap.String("url", item.url), zap.Error(err))
			continue
		}

		if item.depth >= maxDepth {
			continue
		}
		for _, link := range links {
			u, err := url.Parse(link)
			if err != nil || !strings.EqualFold(u.Hostname(), host) {
				continue
			}
			if _, seen := visited[normalize(link)]; seen {
				continue
			}
			queue = append(queue, queued{url: link, depth: item.depth + 1})
		}
	}
	return nil
}

// normalize strips fragments and trailing slashes so near-duplicate URLs
// count once.
func normalize(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	u.Fragment = ""
	s := u.String()
	return strings.TrimSuffix(s, "/")
}
