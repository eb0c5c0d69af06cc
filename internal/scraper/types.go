// Package scraper defines core types shared across subsystems.
package scraper

import (
	"fmt"
	"net/http"
	"time"
)

// Mode selects how scraped content is returned to the caller.
type Mode string

// Scrape modes accepted by the API.
const (
	ModeRaw      Mode = "raw"
	ModeBeautify Mode = "beautify"
	ModeAI       Mode = "ai"
)

// ParseMode validates a mode string from the API.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeRaw, ModeBeautify, ModeAI:
		return Mode(s), nil
	case "":
		return ModeBeautify, nil
	default:
		return "", fmt.Errorf("invalid mode %q (valid: raw, beautify, ai)", s)
	}
}

// Section is one extracted block of page content.
type Section struct {
	Heading    string   `json:"heading,omitempty"`
	Paragraphs []string `json:"paragraphs,omitempty"`
	Images     []string `json:"images,omitempty"`
	Links      []string `json:"links,omitempty"`
}

// PageContent is the structured result for a single fetched page.
type PageContent struct {
	URL          string    `json:"url"`
	Title        string    `json:"title,omitempty"`
	Description  string    `json:"description,omitempty"`
	Sections     []Section `json:"sections,omitempty"`
	RawHTML      string    `json:"raw_html,omitempty"`
	StatusCode   int       `json:"status_code"`
	UsedHeadless bool      `json:"used_headless"`
	FetchedAt    time.Time `json:"fetched_at"`
	DurationMs   int64     `json:"duration_ms"`
	BlobURI      string    `json:"blob_uri,omitempty"`
}

// PageError records a per-URL failure without failing the whole batch.
type PageError struct {
	URL   string `json:"url"`
	Error string `json:"error"`
}

// ScrapeResult bundles pages and per-URL errors for a scrape or crawl.
type ScrapeResult struct {
	Pages  []PageContent `json:"pages"`
	Errors []PageError   `json:"errors,omitempty"`
}

// Answer is the outcome of an AI query over scraped content.
type Answer struct {
	Text   string `json:"answer"`
	AIUsed bool   `json:"ai_used"`
}

// Agent is a named collection of scraped content keyed by UUID.
type Agent struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	URLs      []string      `json:"urls"`
	Pages     []PageContent `json:"pages"`
	Errors    []PageError   `json:"errors,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// AgentSummary is the listing view of an Agent.
type AgentSummary struct {
	ID   string   `json:"agent_id"`
	Name string   `json:"agent_name"`
	URLs []string `json:"urls"`
}

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	URL           string
	Headers       http.Header
	RespectRobots bool
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL          string
	StatusCode   int
	Headers      http.Header
	Body         []byte
	Duration     time.Duration
	UsedHeadless bool
}
