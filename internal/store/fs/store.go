// Package fs persists agent documents as JSON files on the local filesystem.
package fs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/blackbox-ai/scrape-agent/internal/scraper"
)

// Config captures the parameters for the filesystem store.
type Config struct {
	// DataDir is the directory where agent documents are written.
	DataDir string `mapstructure:"data_dir"`
}

// Store writes one JSON document per agent under DataDir.
type Store struct {
	dataDir string
	logger  *zap.Logger
}

// New creates the data directory if needed and verifies it is writable.
func New(cfg Config, logger *zap.Logger) (*Store, error) {
	if strings.TrimSpace(cfg.DataDir) == "" {
		return nil, fmt.Errorf("data directory is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	info, err := os.Stat(cfg.DataDir)
	switch {
	case err == nil:
		if !info.IsDir() {
			return nil, fmt.Errorf("data directory path is not a directory")
		}
	case os.IsNotExist(err):
		if mkErr := os.MkdirAll(cfg.DataDir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("create data directory: %w", mkErr)
		}
	default:
		return nil, fmt.Errorf("stat data directory: %w", err)
	}

	testFile := filepath.Join(cfg.DataDir, ".writable_test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return nil, fmt.Errorf("data directory is not writable: %w", err)
	}
	if err := os.Remove(testFile); err != nil {
		return nil, fmt.Errorf("clean up test file: %w", err)
	}

	return &Store{dataDir: cfg.DataDir, logger: logger}, nil
}

// Create writes a new agent document; fails if the ID already exists.
func (s *Store) Create(_ context.Context, agent scraper.Agent) error {
	path, err := s.agentPath(agent.ID)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil {
		return scraper.ErrAgentExists
	}
	return s.write(path, agent)
}

// Get loads an agent document by ID.
func (s *Store) Get(_ context.Context, id string) (scraper.Agent, error) {
	path, err := s.agentPath(id)
	if err != nil {
		return scraper.Agent{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return scraper.Agent{}, scraper.ErrAgentNotFound
		}
		return scraper.Agent{}, fmt.Errorf("read agent file: %w", err)
	}
	var agent scraper.Agent
	if err := json.Unmarshal(data, &agent); err != nil {
		return scraper.Agent{}, fmt.Errorf("decode agent file: %w", err)
	}
	return agent, nil
}

// List scans the data directory and returns agent summaries. Files that
// fail to decode are skipped with a warning, matching a directory that may
// accumulate partial writes.
func (s *Store) List(ctx context.Context) ([]scraper.AgentSummary, error) {
	entries, err := os.ReadDir(s.dataDir)
	if err != nil {
		return nil, fmt.Errorf("read data directory: %w", err)
	}

	var summaries []scraper.AgentSummary
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		id := strings.TrimSuffix(entry.Name(), ".json")
		agent, err := s.Get(ctx, id)
		if err != nil {
			s.logger.Warn("skipping unreadable agent file",
				zap.String("file", entry.Name()), zap.Error(err))
			continue
		}
		summaries = append(summaries, scraper.AgentSummary{
			ID:   agent.ID,
			Name: agent.Name,
			URLs: agent.URLs,
		})
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].ID < summaries[j].ID })
	return summaries, nil
}

// Update overwrites an existing agent document.
func (s *Store) Update(_ context.Context, agent scraper.Agent) error {
	path, err := s.agentPath(agent.ID)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return scraper.ErrAgentNotFound
		}
		return fmt.Errorf("stat agent file: %w", err)
	}
	return s.write(path, agent)
}

// Delete removes an agent document.
func (s *Store) Delete(_ context.Context, id string) error {
	path, err := s.agentPath(id)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return scraper.ErrAgentNotFound
		}
		return fmt.Errorf("delete agent file: %w", err)
	}
	return nil
}

func (s *Store) write(path string, agent scraper.Agent) error {
	data, err := json.MarshalIndent(agent, "", "  ")
	if err != nil {
		return fmt.Errorf("encode agent: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write agent file: %w", err)
	}
	return nil
}

// agentPath validates the ID and rejects anything that would escape DataDir.
func (s *Store) agentPath(id string) (string, error) {
	if strings.TrimSpace(id) == "" {
		return "", fmt.Errorf("agent id is required")
	}
	fullPath := filepath.Join(s.dataDir, id+".json")
	cleanBase := filepath.Clean(s.dataDir)
	cleanFull := filepath.Clean(fullPath)
	if !strings.HasPrefix(cleanFull, cleanBase+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal detected")
	}
	return fullPath, nil
}
