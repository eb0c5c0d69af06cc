// Package memory provides an in-memory agent store for development/testing.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/blackbox-ai/scrape-agent/internal/scraper"
)

// Store keeps agent documents in a map.
type Store struct {
	mu     sync.RWMutex
	agents map[string]scraper.Agent
}

// New constructs a Store.
func New() *Store {
	return &Store{agents: make(map[string]scraper.Agent)}
}

// Create stores a new agent document.
func (s *Store) Create(_ context.Context, agent scraper.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.agents[agent.ID]; exists {
		return scraper.ErrAgentExists
	}
	s.agents[agent.ID] = agent
	return nil
}

// Get fetches an agent by ID.
func (s *Store) Get(_ context.Context, id string) (scraper.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	agent, ok := s.agents[id]
	if !ok {
		return scraper.Agent{}, scraper.ErrAgentNotFound
	}
	return agent, nil
}

// List returns summaries for all stored agents, ordered by ID.
func (s *Store) List(_ context.Context) ([]scraper.AgentSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	summaries := make([]scraper.AgentSummary, 0, len(s.agents))
	for _, agent := range s.agents {
		summaries = append(summaries, scraper.AgentSummary{
			ID:   agent.ID,
			Name: agent.Name,
			URLs: agent.URLs,
		})
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].ID < summaries[j].ID })
	return summaries, nil
}

// Update replaces an existing agent document.
func (s *Store) Update(_ context.Context, agent scraper.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.agents[agent.ID]; !ok {
		return scraper.ErrAgentNotFound
	}
	s.agents[agent.ID] = agent
	return nil
}

// Delete removes an agent by ID.
func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.agents[id]; !ok {
		return scraper.ErrAgentNotFound
	}
	delete(s.agents, id)
	return nil
}
