package fs

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/blackbox-ai/scrape-agent/internal/scraper"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(Config{DataDir: t.TempDir()}, nil)
	require.NoError(t, err)
	return store
}

func TestNew_RequiresDataDir(t *testing.T) {
	t.Parallel()

	_, err := New(Config{}, nil)
	require.Error(t, err)
}

func TestNew_CreatesMissingDirectory(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "nested", "agents")
	_, err := New(Config{DataDir: dir}, nil)
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	require.True(t, info.IsDir())
}

func TestStore_CRUD(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newTestStore(t)
	agent := scraper.Agent{
		ID:   "agent-1",
		Name: "widgets",
		URLs: []string{"https://widgets.test/"},
		Pages: []scraper.PageContent{
			{URL: "https://widgets.test/", Title: "Widgets"},
		},
	}

	require.NoError(t, store.Create(ctx, agent))
	require.ErrorIs(t, store.Create(ctx, agent), scraper.ErrAgentExists)

	got, err := store.Get(ctx, "agent-1")
	require.NoError(t, err)
	require.Equal(t, agent.Name, got.Name)
	require.Equal(t, agent.Pages[0].Title, got.Pages[0].Title)

	agent.Name = "widgets-v2"
	require.NoError(t, store.Update(ctx, agent))
	got, err = store.Get(ctx, "agent-1")
	require.NoError(t, err)
	require.Equal(t, "widgets-v2", got.Name)

	require.NoError(t, store.Delete(ctx, "agent-1"))
	_, err = store.Get(ctx, "agent-1")
	require.ErrorIs(t, err, scraper.ErrAgentNotFound)
	require.ErrorIs(t, store.Update(ctx, agent), scraper.ErrAgentNotFound)
	require.ErrorIs(t, store.Delete(ctx, "agent-1"), scraper.ErrAgentNotFound)
}

func TestStore_ListSkipsUnreadableFiles(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()
	store, err := New(Config{DataDir: dir}, nil)
	require.NoError(t, err)

	require.NoError(t, store.Create(ctx, scraper.Agent{ID: "good", Name: "good"}))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte("{not json"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignore me"), 0o600))

	summaries, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	require.Equal(t, "good", summaries[0].ID)
}

func TestStore_RejectsPathTraversal(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.Get(ctx, "../escape")
	require.Error(t, err)
	require.Contains(t, err.Error(), "path traversal")
}
