package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/blackbox-ai/scrape-agent/internal/telemetry"
)

// Topics for lifecycle events emitted by the service.
const (
	TopicAgentCreated = "agent.created"
	TopicAgentUpdated = "agent.updated"
	TopicAgentDeleted = "agent.deleted"
)

// ErrLLMNotConfigured is returned when an AI answer is requested but no
// chat-completions backend is configured.
var ErrLLMNotConfigured = errors.New("llm backend is not configured")

// CrawlFn walks same-host links from a seed, calling visit once per page.
// The visit callback returns the links discovered on the page. Non-positive
// bounds mean the crawler's defaults.
type CrawlFn func(ctx context.Context, seedURL string, maxDepth, maxPages int, visit func(ctx context.Context, pageURL string, depth int) ([]string, error)) error

// CrawlOptions carries per-request crawl bounds.
type CrawlOptions struct {
	MaxDepth int
	MaxPages int
}

// ServiceConfig tunes the scrape pipeline.
type ServiceConfig struct {
	// Concurrency bounds parallel page fetches within one request.
	Concurrency int
	// UserAgent is sent on every outbound fetch.
	UserAgent string
	// RespectRobots honors robots.txt on plain HTTP fetches.
	RespectRobots bool
	// ExtraHeaders are sent with every outbound fetch.
	ExtraHeaders http.Header
	// ArchiveRaw stores fetched HTML in the blob store when true.
	ArchiveRaw bool
}

// ServiceDeps carries the collaborators the service orchestrates. Blob,
// Publisher and Completer may be nil; the matching features degrade
// gracefully.
type ServiceDeps struct {
	Fetcher   Fetcher
	Headless  Fetcher
	Detector  HeadlessDetector
	Limiter   Limiter
	Extract   ExtractFuncs
	Crawl     CrawlFn
	Store     AgentStore
	Blob      BlobStore
	Publisher Publisher
	Completer Completer
	Relevance RelevanceFuncs
	Prompts   PromptFuncs
	Hasher    Hasher
	Clock     Clock
	IDs       IDGenerator
	Logger    *zap.Logger
}

// ExtractFuncs decouples the service from the HTML extraction package.
type ExtractFuncs struct {
	Page  func(pageURL string, body []byte) (PageContent, error)
	Links func(pageURL string, body []byte) ([]string, error)
}

// RelevanceFuncs decouples the service from the relevance package.
type RelevanceFuncs struct {
	FilterPages func(pages []PageContent, query string) ([]PageContent, bool)
	Sentences   func(text, query string) []string
	PageText    func(page PageContent) string
}

// PromptFuncs decouples the service from prompt construction.
type PromptFuncs struct {
	BuildPagesPrompt func(query string, pages []PageContent) string
	Unhelpful        func(answer string) bool
}

// Service implements the scrape, crawl, agent and ask operations.
type Service struct {
	cfg    ServiceConfig
	deps   ServiceDeps
	logger *zap.Logger
}

// NewService validates the required collaborators and returns a Service.
func NewService(cfg ServiceConfig, deps ServiceDeps) (*Service, error) {
	if deps.Fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if deps.Detector == nil {
		return nil, fmt.Errorf("headless detector is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("agent store is required")
	}
	if deps.Extract.Page == nil || deps.Extract.Links == nil {
		return nil, fmt.Errorf("extract functions are required")
	}
	if deps.Clock == nil {
		return nil, fmt.Errorf("clock is required")
	}
	if deps.IDs == nil {
		return nil, fmt.Errorf("id generator is required")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{cfg: cfg, deps: deps, logger: logger}, nil
}

// ScrapePages fetches every URL concurrently and returns pages plus per-URL
// errors. One bad URL never fails the batch.
func (s *Service) ScrapePages(ctx context.Context, urls []string, mode Mode) ScrapeResult {
	telemetry.IncActiveScrapes()
	defer telemetry.DecActiveScrapes()

	var (
		mu     sync.Mutex
		result ScrapeResult
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for _, rawURL := range urls {
		rawURL := rawURL
		g.Go(func() error {
			page, err := s.fetchPage(gctx, rawURL, mode)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Errors = append(result.Errors, PageError{URL: rawURL, Error: err.Error()})
				return nil
			}
			result.Pages = append(result.Pages, page)
			return nil
		})
	}
	// Workers only report per-URL errors, so this cannot fail.
	_ = g.Wait()
	return result
}

// CrawlPages scrapes each seed URL and follows same-host links within the
// depth and page bounds.
func (s *Service) CrawlPages(ctx context.Context, seeds []string, mode Mode, opts CrawlOptions) ScrapeResult {
	if s.deps.Crawl == nil {
		return s.ScrapePages(ctx, seeds, mode)
	}

	telemetry.IncActiveScrapes()
	defer telemetry.DecActiveScrapes()

	var (
		mu     sync.Mutex
		result ScrapeResult
	)

	visit := func(ctx context.Context, pageURL string, _ int) ([]string, error) {
		page, links, err := s.fetchPageWithLinks(ctx, pageURL, mode)
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			result.Errors = append(result.Errors, PageError{URL: pageURL, Error: err.Error()})
			return nil, err
		}
		result.Pages = append(result.Pages, page)
		return links, nil
	}

	for _, seed := range seeds {
		if err := s.deps.Crawl(ctx, seed, opts.MaxDepth, opts.MaxPages, visit); err != nil {
			mu.Lock()
			result.Errors = append(result.Errors, PageError{URL: seed, Error: err.Error()})
			mu.Unlock()
		}
	}
	return result
}

// fetchPage runs the limiter, probe, promotion and extraction pipeline for a
// single URL.
func (s *Service) fetchPage(ctx context.Context, rawURL string, mode Mode) (PageContent, error) {
	page, _, err := s.fetchPageWithLinks(ctx, rawURL, mode)
	return page, err
}

func (s *Service) fetchPageWithLinks(ctx context.Context, rawURL string, mode Mode) (PageContent, []string, error) {
	if _, err := url.ParseRequestURI(rawURL); err != nil {
		return PageContent{}, nil, fmt.Errorf("invalid url: %w", err)
	}

	if s.deps.Limiter != nil {
		if err := s.deps.Limiter.Wait(ctx, rawURL); err != nil {
			return PageContent{}, nil, err
		}
	}

	req := FetchRequest{URL: rawURL, Headers: s.cfg.ExtraHeaders, RespectRobots: s.cfg.RespectRobots}
	resp, err := s.deps.Fetcher.Fetch(ctx, req)
	promoted := false
	switch {
	case err != nil:
		if s.deps.Headless == nil {
			return PageContent{}, nil, err
		}
		s.logger.Debug("plain fetch failed, promoting to headless",
			zap.String("url", rawURL), zap.Error(err))
		promoted = true
	case s.deps.Headless != nil && s.deps.Detector.ShouldPromote(resp):
		s.logger.Debug("promoting to headless", zap.String("url", rawURL))
		promoted = true
	}
	if promoted {
		headlessResp, headlessErr := s.deps.Headless.Fetch(ctx, req)
		if headlessErr != nil {
			if err != nil {
				return PageContent{}, nil, fmt.Errorf("fetch failed: %w (headless: %v)", err, headlessErr)
			}
			// Keep the probe response when the headless retry fails.
			s.logger.Warn("headless fetch failed, using plain response",
				zap.String("url", rawURL), zap.Error(headlessErr))
		} else {
			resp = headlessResp
		}
	}

	telemetry.ObserveScrape(rawURL, strconv.Itoa(resp.StatusCode), len(resp.Body))

	page, err := s.deps.Extract.Page(rawURL, resp.Body)
	if err != nil {
		return PageContent{}, nil, fmt.Errorf("extract content: %w", err)
	}
	page.StatusCode = resp.StatusCode
	page.UsedHeadless = resp.UsedHeadless
	page.FetchedAt = s.deps.Clock.Now()
	page.DurationMs = resp.Duration.Milliseconds()

	if mode == ModeRaw {
		page.Sections = nil
		page.RawHTML = string(resp.Body)
	}

	if s.cfg.ArchiveRaw && s.deps.Blob != nil && s.deps.Hasher != nil && len(resp.Body) > 0 {
		if uri, archiveErr := s.archive(ctx, rawURL, resp.Body); archiveErr != nil {
			s.logger.Warn("failed to archive raw html",
				zap.String("url", rawURL), zap.Error(archiveErr))
		} else {
			page.BlobURI = uri
		}
	}

	links, err := s.deps.Extract.Links(rawURL, resp.Body)
	if err != nil {
		links = nil
	}
	return page, links, nil
}

// archive stores the raw HTML under <host>/<sha>.html and returns the URI.
func (s *Service) archive(ctx context.Context, rawURL string, body []byte) (string, error) {
	digest, err := s.deps.Hasher.Hash(body)
	if err != nil {
		return "", fmt.Errorf("hash body: %w", err)
	}
	path := fmt.Sprintf("%s/%s.html", telemetry.SanitizeSite(rawURL), digest)
	return s.deps.Blob.PutObject(ctx, path, "text/html; charset=utf-8", body)
}

// Answer resolves a query against scraped pages. It prefers the
// chat-completions backend and falls back to extractive sentence matching
// when the backend is unavailable or the reply is unusable.
func (s *Service) Answer(ctx context.Context, query string, pages []PageContent) Answer {
	relevant := pages
	if s.deps.Relevance.FilterPages != nil {
		filtered, matched := s.deps.Relevance.FilterPages(pages, query)
		if matched {
			relevant = filtered
		}
	}
	if len(relevant) == 0 {
		return Answer{Text: "No relevant content found for the query.", AIUsed: false}
	}

	if s.deps.Completer != nil && s.deps.Prompts.BuildPagesPrompt != nil {
		prompt := s.deps.Prompts.BuildPagesPrompt(query, relevant)
		reply, err := s.deps.Completer.Complete(ctx, prompt)
		switch {
		case err != nil:
			telemetry.ObserveLLMRequest("error")
			s.logger.Warn("chat completion failed, falling back to extraction", zap.Error(err))
		case s.deps.Prompts.Unhelpful != nil && s.deps.Prompts.Unhelpful(reply):
			telemetry.ObserveLLMRequest("unhelpful")
			s.logger.Debug("chat completion reply judged unhelpful")
		default:
			telemetry.ObserveLLMRequest("ok")
			return Answer{Text: strings.TrimSpace(reply), AIUsed: true}
		}
	}

	return s.extractiveAnswer(query, relevant)
}

// extractiveAnswer picks sentences containing query tokens from the pages.
func (s *Service) extractiveAnswer(query string, pages []PageContent) Answer {
	if s.deps.Relevance.Sentences == nil || s.deps.Relevance.PageText == nil {
		return Answer{Text: "No relevant content found for the query.", AIUsed: false}
	}
	var picked []string
	for _, page := range pages {
		picked = append(picked, s.deps.Relevance.Sentences(s.deps.Relevance.PageText(page), query)...)
		if len(picked) >= 5 {
			picked = picked[:5]
			break
		}
	}
	if len(picked) == 0 {
		return Answer{Text: "No relevant content found for the query.", AIUsed: false}
	}
	return Answer{Text: strings.Join(picked, " "), AIUsed: false}
}

// AnswerWithAI is like Answer but fails when no backend is configured
// instead of falling back.
func (s *Service) AnswerWithAI(ctx context.Context, query string, pages []PageContent) (Answer, error) {
	if s.deps.Completer == nil {
		return Answer{}, ErrLLMNotConfigured
	}
	return s.Answer(ctx, query, pages), nil
}

// CreateAgent scrapes the URLs and persists the result under a fresh UUID.
func (s *Service) CreateAgent(ctx context.Context, name string, urls []string, crawl bool, mode Mode, opts CrawlOptions) (Agent, error) {
	id, err := s.deps.IDs.NewID()
	if err != nil {
		return Agent{}, fmt.Errorf("generate agent id: %w", err)
	}

	result := s.scrapeOrCrawl(ctx, urls, crawl, mode, opts)
	now := s.deps.Clock.Now()
	agent := Agent{
		ID:        id,
		Name:      name,
		URLs:      urls,
		Pages:     result.Pages,
		Errors:    result.Errors,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.deps.Store.Create(ctx, agent); err != nil {
		return Agent{}, err
	}
	s.publish(ctx, TopicAgentCreated, AgentSummary{ID: agent.ID, Name: agent.Name, URLs: agent.URLs})
	s.logger.Info("agent created",
		zap.String("agent_id", agent.ID),
		zap.Int("pages", len(agent.Pages)),
		zap.Int("errors", len(agent.Errors)))
	return agent, nil
}

// GetAgent loads an agent document.
func (s *Service) GetAgent(ctx context.Context, id string) (Agent, error) {
	return s.deps.Store.Get(ctx, id)
}

// ListAgents returns summaries of all stored agents.
func (s *Service) ListAgents(ctx context.Context) ([]AgentSummary, error) {
	return s.deps.Store.List(ctx)
}

// UpdateAgent merges new URLs into an existing agent and re-scrapes the full
// set.
func (s *Service) UpdateAgent(ctx context.Context, id string, urls []string, crawl bool, mode Mode, opts CrawlOptions) (Agent, error) {
	agent, err := s.deps.Store.Get(ctx, id)
	if err != nil {
		return Agent{}, err
	}

	merged := mergeURLs(agent.URLs, urls)
	result := s.scrapeOrCrawl(ctx, merged, crawl, mode, opts)
	agent.URLs = merged
	agent.Pages = result.Pages
	agent.Errors = result.Errors
	agent.UpdatedAt = s.deps.Clock.Now()

	if err := s.deps.Store.Update(ctx, agent); err != nil {
		return Agent{}, err
	}
	s.publish(ctx, TopicAgentUpdated, AgentSummary{ID: agent.ID, Name: agent.Name, URLs: agent.URLs})
	return agent, nil
}

// DeleteAgent removes an agent document.
func (s *Service) DeleteAgent(ctx context.Context, id string) error {
	if err := s.deps.Store.Delete(ctx, id); err != nil {
		return err
	}
	s.publish(ctx, TopicAgentDeleted, map[string]string{"agent_id": id})
	return nil
}

// AskAgent answers a query against an agent's stored pages.
func (s *Service) AskAgent(ctx context.Context, id, query string) (Answer, error) {
	agent, err := s.deps.Store.Get(ctx, id)
	if err != nil {
		return Answer{}, err
	}
	return s.Answer(ctx, query, agent.Pages), nil
}

func (s *Service) scrapeOrCrawl(ctx context.Context, urls []string, crawl bool, mode Mode, opts CrawlOptions) ScrapeResult {
	if crawl {
		return s.CrawlPages(ctx, urls, mode, opts)
	}
	return s.ScrapePages(ctx, urls, mode)
}

func (s *Service) publish(ctx context.Context, topic string, payload any) {
	if s.deps.Publisher == nil {
		return
	}
	if _, err := s.deps.Publisher.Publish(ctx, topic, payload); err != nil {
		s.logger.Warn("failed to publish event", zap.String("topic", topic), zap.Error(err))
	}
}

func mergeURLs(existing, incoming []string) []string {
	seen := make(map[string]struct{}, len(existing)+len(incoming))
	merged := make([]string, 0, len(existing)+len(incoming))
	for _, u := range existing {
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		merged = append(merged, u)
	}
	for _, u := range incoming {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		merged = append(merged, u)
	}
	return merged
}
