package scraper

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors shared by AgentStore implementations.
var (
	ErrAgentNotFound = errors.New("agent not found")
	ErrAgentExists   = errors.New("agent already exists")
)

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// HeadlessDetector decides whether a headless fetch is warranted.
type HeadlessDetector interface {
	ShouldPromote(probe FetchResponse) bool
}

// AgentStore persists agent documents.
type AgentStore interface {
	Create(ctx context.Context, agent Agent) error
	Get(ctx context.Context, id string) (Agent, error)
	List(ctx context.Context) ([]AgentSummary, error)
	Update(ctx context.Context, agent Agent) error
	Delete(ctx context.Context, id string) error
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Completer answers a prompt via a chat-completions backend.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Limiter throttles fetches per domain.
type Limiter interface {
	Wait(ctx context.Context, url string) error
}

// Hasher computes digests for blob keys.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces agent IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
