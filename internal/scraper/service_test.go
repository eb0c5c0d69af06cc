package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	mu        sync.Mutex
	responses map[string]FetchResponse
	errs      map[string]error
	calls     []string
	headers   []http.Header
}

func (f *fakeFetcher) Fetch(_ context.Context, req FetchRequest) (FetchResponse, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req.URL)
	f.headers = append(f.headers, req.Headers)
	f.mu.Unlock()
	if err, ok := f.errs[req.URL]; ok {
		return FetchResponse{}, err
	}
	if resp, ok := f.responses[req.URL]; ok {
		return resp, nil
	}
	return FetchResponse{URL: req.URL, StatusCode: 200, Body: []byte("<html>default</html>")}, nil
}

type fakeDetector struct{ promote bool }

func (d fakeDetector) ShouldPromote(FetchResponse) bool { return d.promote }

type fakeStore struct {
	mu     sync.Mutex
	agents map[string]Agent
}

func newFakeStore() *fakeStore {
	return &fakeStore{agents: map[string]Agent{}}
}

func (s *fakeStore) Create(_ context.Context, agent Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.agents[agent.ID]; ok {
		return ErrAgentExists
	}
	s.agents[agent.ID] = agent
	return nil
}

func (s *fakeStore) Get(_ context.Context, id string) (Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	agent, ok := s.agents[id]
	if !ok {
		return Agent{}, ErrAgentNotFound
	}
	return agent, nil
}

func (s *fakeStore) List(context.Context) ([]AgentSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []AgentSummary
	for _, a := range s.agents {
		out = append(out, AgentSummary{ID: a.ID, Name: a.Name, URLs: a.URLs})
	}
	return out, nil
}

func (s *fakeStore) Update(_ context.Context, agent Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.agents[agent.ID]; !ok {
		return ErrAgentNotFound
	}
	s.agents[agent.ID] = agent
	return nil
}

func (s *fakeStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.agents[id]; !ok {
		return ErrAgentNotFound
	}
	delete(s.agents, id)
	return nil
}

type fakePublisher struct {
	mu     sync.Mutex
	topics []string
}

func (p *fakePublisher) Publish(_ context.Context, topic string, _ any) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	return "id", nil
}

type fakeCompleter struct {
	reply string
	err   error
}

func (c fakeCompleter) Complete(context.Context, string) (string, error) {
	return c.reply, c.err
}

type fakeBlob struct {
	mu    sync.Mutex
	paths []string
}

func (b *fakeBlob) PutObject(_ context.Context, path, _ string, _ []byte) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.paths = append(b.paths, path)
	return "memory://" + path, nil
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (g *seqIDs) NewID() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("id-%d", g.n), nil
}

type fakeHasher struct{}

func (fakeHasher) Hash(data []byte) (string, error) {
	return fmt.Sprintf("h%d", len(data)), nil
}

func stubExtract() ExtractFuncs {
	return ExtractFuncs{
		Page: func(pageURL string, body []byte) (PageContent, error) {
			return PageContent{
				URL:   pageURL,
				Title: "Page " + pageURL,
				Sections: []Section{
					{Paragraphs: []string{string(body)}},
				},
			}, nil
		},
		Links: func(string, []byte) ([]string, error) { return nil, nil },
	}
}

func stubRelevance() RelevanceFuncs {
	return RelevanceFuncs{
		FilterPages: func(pages []PageContent, query string) ([]PageContent, bool) {
			return pages, len(pages) > 0
		},
		Sentences: func(text, _ string) []string {
			if text == "" {
				return nil
			}
			return []string{text}
		},
		PageText: func(page PageContent) string { return page.Title },
	}
}

func stubPrompts() PromptFuncs {
	return PromptFuncs{
		BuildPagesPrompt: func(query string, _ []PageContent) string { return "Q: " + query },
		Unhelpful: func(answer string) bool {
			return len(answer) < 15 || strings.Contains(strings.ToLower(answer), "no information")
		},
	}
}

type serviceOption func(*ServiceConfig, *ServiceDeps)

func newTestService(t *testing.T, opts ...serviceOption) (*Service, *fakeStore, *fakePublisher) {
	t.Helper()
	store := newFakeStore()
	pub := &fakePublisher{}
	cfg := ServiceConfig{Concurrency: 2}
	deps := ServiceDeps{
		Fetcher:   &fakeFetcher{},
		Detector:  fakeDetector{},
		Extract:   stubExtract(),
		Store:     store,
		Publisher: pub,
		Relevance: stubRelevance(),
		Prompts:   stubPrompts(),
		Hasher:    fakeHasher{},
		Clock:     fixedClock{now: time.Unix(1700000000, 0).UTC()},
		IDs:       &seqIDs{},
	}
	for _, opt := range opts {
		opt(&cfg, &deps)
	}
	svc, err := NewService(cfg, deps)
	require.NoError(t, err)
	return svc, store, pub
}

func TestScrapePages_CollectsPagesAndErrors(t *testing.T) {
	t.Parallel()

	svc, _, _ := newTestService(t, func(_ *ServiceConfig, deps *ServiceDeps) {
		deps.Fetcher = &fakeFetcher{
			responses: map[string]FetchResponse{
				"https://good.test/": {URL: "https://good.test/", StatusCode: 200, Body: []byte("ok body")},
			},
			errs: map[string]error{
				"https://bad.test/": errors.New("connection refused"),
			},
		}
	})

	result := svc.ScrapePages(context.Background(), []string{"https://good.test/", "https://bad.test/"}, ModeBeautify)
	require.Len(t, result.Pages, 1)
	require.Equal(t, "https://good.test/", result.Pages[0].URL)
	require.Equal(t, 200, result.Pages[0].StatusCode)
	require.Len(t, result.Errors, 1)
	require.Equal(t, "https://bad.test/", result.Errors[0].URL)
	require.Contains(t, result.Errors[0].Error, "connection refused")
}

func TestScrapePages_SendsExtraHeaders(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{}
	svc, _, _ := newTestService(t, func(cfg *ServiceConfig, deps *ServiceDeps) {
		cfg.ExtraHeaders = http.Header{"X-Api-Client": {"internal"}}
		deps.Fetcher = fetcher
	})

	result := svc.ScrapePages(context.Background(), []string{"https://good.test/"}, ModeBeautify)
	require.Empty(t, result.Errors)
	require.Len(t, fetcher.headers, 1)
	require.Equal(t, "internal", fetcher.headers[0].Get("X-Api-Client"))
}

func TestScrapePages_InvalidURL(t *testing.T) {
	t.Parallel()

	svc, _, _ := newTestService(t)
	result := svc.ScrapePages(context.Background(), []string{"not a url"}, ModeBeautify)
	require.Empty(t, result.Pages)
	require.Len(t, result.Errors, 1)
}

func TestScrapePages_RawModeKeepsHTML(t *testing.T) {
	t.Parallel()

	svc, _, _ := newTestService(t, func(_ *ServiceConfig, deps *ServiceDeps) {
		deps.Fetcher = &fakeFetcher{
			responses: map[string]FetchResponse{
				"https://good.test/": {URL: "https://good.test/", StatusCode: 200, Body: []byte("<html>raw</html>")},
			},
		}
	})

	result := svc.ScrapePages(context.Background(), []string{"https://good.test/"}, ModeRaw)
	require.Len(t, result.Pages, 1)
	require.Equal(t, "<html>raw</html>", result.Pages[0].RawHTML)
	require.Empty(t, result.Pages[0].Sections)
}

func TestScrapePages_PromotesToHeadless(t *testing.T) {
	t.Parallel()

	headless := &fakeFetcher{
		responses: map[string]FetchResponse{
			"https://spa.test/": {URL: "https://spa.test/", StatusCode: 200, Body: []byte("rendered"), UsedHeadless: true},
		},
	}
	svc, _, _ := newTestService(t, func(_ *ServiceConfig, deps *ServiceDeps) {
		deps.Detector = fakeDetector{promote: true}
		deps.Headless = headless
	})

	result := svc.ScrapePages(context.Background(), []string{"https://spa.test/"}, ModeBeautify)
	require.Len(t, result.Pages, 1)
	require.True(t, result.Pages[0].UsedHeadless)
	require.Equal(t, []string{"https://spa.test/"}, headless.calls)
}

func TestScrapePages_HeadlessFailureFallsBackToProbe(t *testing.T) {
	t.Parallel()

	svc, _, _ := newTestService(t, func(_ *ServiceConfig, deps *ServiceDeps) {
		deps.Detector = fakeDetector{promote: true}
		deps.Headless = &fakeFetcher{
			errs: map[string]error{"https://spa.test/": errors.New("chrome crashed")},
		}
		deps.Fetcher = &fakeFetcher{
			responses: map[string]FetchResponse{
				"https://spa.test/": {URL: "https://spa.test/", StatusCode: 200, Body: []byte("probe body")},
			},
		}
	})

	result := svc.ScrapePages(context.Background(), []string{"https://spa.test/"}, ModeBeautify)
	require.Len(t, result.Pages, 1)
	require.False(t, result.Pages[0].UsedHeadless)
	require.Empty(t, result.Errors)
}

func TestScrapePages_ArchivesRawHTML(t *testing.T) {
	t.Parallel()

	blob := &fakeBlob{}
	svc, _, _ := newTestService(t, func(cfg *ServiceConfig, deps *ServiceDeps) {
		cfg.ArchiveRaw = true
		deps.Blob = blob
	})

	result := svc.ScrapePages(context.Background(), []string{"https://good.test/"}, ModeBeautify)
	require.Len(t, result.Pages, 1)
	require.NotEmpty(t, result.Pages[0].BlobURI)
	require.Len(t, blob.paths, 1)
	require.Contains(t, blob.paths[0], "good.test/")
}

func TestCrawlPages_UsesCrawlFn(t *testing.T) {
	t.Parallel()

	svc, _, _ := newTestService(t, func(_ *ServiceConfig, deps *ServiceDeps) {
		deps.Crawl = func(ctx context.Context, seed string, _, _ int, visit func(context.Context, string, int) ([]string, error)) error {
			if _, err := visit(ctx, seed, 0); err != nil {
				return err
			}
			_, err := visit(ctx, seed+"child", 1)
			return err
		}
	})

	result := svc.CrawlPages(context.Background(), []string{"https://site.test/"}, ModeBeautify, CrawlOptions{})
	require.Len(t, result.Pages, 2)
}

func TestAnswer_UsesCompleter(t *testing.T) {
	t.Parallel()

	svc, _, _ := newTestService(t, func(_ *ServiceConfig, deps *ServiceDeps) {
		deps.Completer = fakeCompleter{reply: "Widgets cost ten dollars each."}
	})

	answer := svc.Answer(context.Background(), "price?", []PageContent{{Title: "Pricing"}})
	require.True(t, answer.AIUsed)
	require.Equal(t, "Widgets cost ten dollars each.", answer.Text)
}

func TestAnswer_UnhelpfulReplyFallsBack(t *testing.T) {
	t.Parallel()

	svc, _, _ := newTestService(t, func(_ *ServiceConfig, deps *ServiceDeps) {
		deps.Completer = fakeCompleter{reply: "no information"}
	})

	answer := svc.Answer(context.Background(), "price?", []PageContent{{Title: "Pricing details for widgets"}})
	require.False(t, answer.AIUsed)
	require.Contains(t, answer.Text, "Pricing details for widgets")
}

func TestAnswer_CompleterErrorFallsBack(t *testing.T) {
	t.Parallel()

	svc, _, _ := newTestService(t, func(_ *ServiceConfig, deps *ServiceDeps) {
		deps.Completer = fakeCompleter{err: errors.New("backend down")}
	})

	answer := svc.Answer(context.Background(), "price?", []PageContent{{Title: "Pricing details for widgets"}})
	require.False(t, answer.AIUsed)
	require.NotEmpty(t, answer.Text)
}

func TestAnswer_NoPages(t *testing.T) {
	t.Parallel()

	svc, _, _ := newTestService(t)
	answer := svc.Answer(context.Background(), "price?", nil)
	require.False(t, answer.AIUsed)
	require.Contains(t, answer.Text, "No relevant content")
}

func TestAnswerWithAI_RequiresCompleter(t *testing.T) {
	t.Parallel()

	svc, _, _ := newTestService(t)
	_, err := svc.AnswerWithAI(context.Background(), "price?", []PageContent{{Title: "Pricing"}})
	require.ErrorIs(t, err, ErrLLMNotConfigured)
}

func TestCreateAgent_StoresAndPublishes(t *testing.T) {
	t.Parallel()

	svc, store, pub := newTestService(t)
	agent, err := svc.CreateAgent(context.Background(), "widgets", []string{"https://good.test/"}, false, ModeBeautify, CrawlOptions{})
	require.NoError(t, err)
	require.Equal(t, "id-1", agent.ID)
	require.Equal(t, "widgets", agent.Name)
	require.Len(t, agent.Pages, 1)

	stored, err := store.Get(context.Background(), "id-1")
	require.NoError(t, err)
	require.Equal(t, agent.Name, stored.Name)
	require.Equal(t, []string{TopicAgentCreated}, pub.topics)
}

func TestUpdateAgent_MergesURLs(t *testing.T) {
	t.Parallel()

	svc, _, pub := newTestService(t)
	agent, err := svc.CreateAgent(context.Background(), "widgets", []string{"https://a.test/"}, false, ModeBeautify, CrawlOptions{})
	require.NoError(t, err)

	updated, err := svc.UpdateAgent(context.Background(), agent.ID,
		[]string{"https://a.test/", "https://b.test/", " "}, false, ModeBeautify, CrawlOptions{})
	require.NoError(t, err)
	require.Equal(t, []string{"https://a.test/", "https://b.test/"}, updated.URLs)
	require.Len(t, updated.Pages, 2)
	require.Equal(t, []string{TopicAgentCreated, TopicAgentUpdated}, pub.topics)
}

func TestUpdateAgent_NotFound(t *testing.T) {
	t.Parallel()

	svc, _, _ := newTestService(t)
	_, err := svc.UpdateAgent(context.Background(), "missing", nil, false, ModeBeautify, CrawlOptions{})
	require.ErrorIs(t, err, ErrAgentNotFound)
}

func TestAskAgent_AnswersFromStoredPages(t *testing.T) {
	t.Parallel()

	svc, _, _ := newTestService(t, func(_ *ServiceConfig, deps *ServiceDeps) {
		deps.Completer = fakeCompleter{reply: "The stored pages say ten dollars."}
	})
	agent, err := svc.CreateAgent(context.Background(), "widgets", []string{"https://good.test/"}, false, ModeBeautify, CrawlOptions{})
	require.NoError(t, err)

	answer, err := svc.AskAgent(context.Background(), agent.ID, "price?")
	require.NoError(t, err)
	require.True(t, answer.AIUsed)
}

func TestDeleteAgent_Publishes(t *testing.T) {
	t.Parallel()

	svc, store, pub := newTestService(t)
	agent, err := svc.CreateAgent(context.Background(), "widgets", []string{"https://good.test/"}, false, ModeBeautify, CrawlOptions{})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteAgent(context.Background(), agent.ID))
	_, err = store.Get(context.Background(), agent.ID)
	require.ErrorIs(t, err, ErrAgentNotFound)
	require.Equal(t, []string{TopicAgentCreated, TopicAgentDeleted}, pub.topics)
}

func TestParseMode(t *testing.T) {
	t.Parallel()

	mode, err := ParseMode("")
	require.NoError(t, err)
	require.Equal(t, ModeBeautify, mode)

	mode, err = ParseMode("raw")
	require.NoError(t, err)
	require.Equal(t, ModeRaw, mode)

	_, err = ParseMode("fancy")
	require.Error(t, err)
}
