// Package relevance selects scraped content that matches a user query.
package relevance

import (
	"regexp"
	"strings"

	"github.com/blackbox-ai/scrape-agent/internal/scraper"
)

var stopWords = map[string]struct{}{}

func init() {
	for _, w := range []string{
		"a", "an", "the", "and", "or", "is", "are", "was", "were", "be", "been", "being",
		"have", "has", "had", "do", "does", "did", "can", "could", "will", "would",
		"shall", "should", "may", "might", "must", "it's", "don't", "i'm", "you're",
		"he's", "she's", "we're", "they're", "isn't", "aren't", "wasn't", "weren't",
		"haven't", "hasn't", "hadn't", "doesn't", "didn't", "can't", "couldn't",
		"won't", "wouldn't", "shan't", "shouldn't", "mayn't", "mightn't", "mustn't",
		"you", "i", "he", "she", "it", "we", "they", "this", "that", "these", "those",
		"my", "your", "his", "her", "its", "our", "their", "here", "there", "what",
		"where", "when", "why", "how", "who", "whom", "whose", "with", "without",
		"to", "from", "up", "down", "in", "out", "on", "off", "over", "under", "again",
		"further", "then", "once", "of",
		"all", "any", "both", "each", "few", "many", "more", "most", "some", "such",
		"no", "nor", "not", "only", "own", "same", "so", "than", "too", "very", "s",
		"t", "m", "d", "ll", "re", "ve", "y",
	} {
		stopWords[w] = struct{}{}
	}
}

var (
	wordPattern     = regexp.MustCompile(`\b\w+\b`)
	sentencePattern = regexp.MustCompile(`(?:[.!?])\s+`)
)

// QueryTokens extracts lowercase non-stop-word tokens from a query.
func QueryTokens(query string) []string {
	var tokens []string
	for _, raw := range wordPattern.FindAllString(strings.ToLower(query), -1) {
		if _, stop := stopWords[raw]; !stop {
			tokens = append(tokens, raw)
		}
	}
	return tokens
}

// FilterPages returns the pages whose text matches at least one meaningful
// query token on a word boundary, and whether any such match occurred.
func FilterPages(pages []scraper.PageContent, query string) ([]scraper.PageContent, bool) {
	tokens := QueryTokens(query)
	if len(pages) == 0 || len(tokens) == 0 {
		return nil, false
	}

	var relevant []scraper.PageContent
	matched := false
	for _, page := range pages {
		text := strings.ToLower(PageText(page))
		for _, token := range tokens {
			if matchesToken(text, token) {
				relevant = append(relevant, page)
				matched = true
				break
			}
		}
	}
	return relevant, matched
}

// Sentences splits text into sentences and keeps those containing a
// meaningful query token.
func Sentences(text, query string) []string {
	tokens := QueryTokens(query)
	if text == "" || len(tokens) == 0 {
		return nil
	}

	var relevant []string
	for _, sentence := range sentencePattern.Split(text, -1) {
		sentence = strings.TrimSpace(sentence)
		if sentence == "" {
			continue
		}
		lower := strings.ToLower(sentence)
		for _, token := range tokens {
			if matchesToken(lower, token) {
				relevant = append(relevant, sentence)
				break
			}
		}
	}
	return relevant
}

// PageText flattens a page's headings and paragraphs into one searchable blob.
func PageText(page scraper.PageContent) string {
	var b strings.Builder
	if page.Title != "" {
		b.WriteString(page.Title)
		b.WriteString(" ")
	}
	for _, section := range page.Sections {
		if section.Heading != "" {
			b.WriteString(section.Heading)
			b.WriteString(" ")
		}
		for _, p := range section.Paragraphs {
			b.WriteString(p)
			b.WriteString(" ")
		}
	}
	return strings.TrimSpace(b.String())
}

func matchesToken(lowerText, token string) bool {
	pattern, err := regexp.Compile(`\b` + regexp.QuoteMeta(token) + `\b`)
	if err != nil {
		return false
	}
	return pattern.MatchString(lowerText)
}
