package detector

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/blackbox-ai/scrape-agent/internal/scraper"
)

func TestHeuristic_ShouldPromote_EmptyBody(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(100)
	require.True(t, h.ShouldPromote(scraper.FetchResponse{StatusCode: 200}))
}

func TestHeuristic_ShouldPromote_SPAMarker(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(100)
	resp := scraper.FetchResponse{
		StatusCode: 200,
		Body:       []byte(`<html><body><div id="__next"></div></body></html>`),
	}
	require.True(t, h.ShouldPromote(resp))
}

func TestHeuristic_ShouldPromote_ScriptDensity(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(1000)
	resp := scraper.FetchResponse{
		StatusCode: 200,
		Body:       []byte(`<html><script>var a=1;var b=2;var c=3;</script><p>t</p></html>`),
	}
	require.True(t, h.ShouldPromote(resp))
}

func TestHeuristic_ShouldPromote_StaticPage(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(100)
	resp := scraper.FetchResponse{
		StatusCode: 200,
		Body:       []byte("<html><body>" + strings.Repeat("<p>plain content</p>", 50) + "</body></html>"),
	}
	require.False(t, h.ShouldPromote(resp))
}

func TestHeuristic_ShouldPromote_Non200(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(100)
	resp := scraper.FetchResponse{StatusCode: 404, Body: []byte("not found")}
	require.False(t, h.ShouldPromote(resp))
}
