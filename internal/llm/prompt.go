package llm

import (
	"fmt"
	"strings"

	"github.com/blackbox-ai/scrape-agent/internal/scraper"
)

const (
	// Answers shorter than this are treated as non-answers.
	minHelpfulRunes = 15

	promptInstructions = `As a knowledgeable agent, please provide a direct and conversational answer to the user's question based *only* on the provided website content below.
Do not mention that you are using the provided information.
If the answer is not found in the text, state that you cannot provide a helpful response based on the available information.`
)

var unhelpfulPhrases = []string{
	"sorry, i am unable",
	"cannot provide a helpful response",
	"no information available",
	"based on the text provided",
	"information is not available",
}

// BuildPagesPrompt renders a question plus page-structured context.
func BuildPagesPrompt(query string, pages []scraper.PageContent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\nUser question: %q\n\nWebsite content:\n", promptInstructions, query)
	for _, page := range pages {
		fmt.Fprintf(&b, "\n--- Content from %s ---\n", page.URL)
		for _, section := range page.Sections {
			if section.Heading != "" {
				fmt.Fprintf(&b, "Heading: %s\n", section.Heading)
			}
			for _, p := range section.Paragraphs {
				b.WriteString(p)
				b.WriteString("\n")
			}
		}
		b.WriteString("--- End of Content ---\n")
	}
	return b.String()
}

// BuildTextPrompt renders a question plus pre-selected context sentences.
func BuildTextPrompt(query, context string) string {
	return fmt.Sprintf("%s\nUser question: %q\n\nWebsite content:\n\"\"\"\n%s\n\"\"\"\n\nAnswer:",
		promptInstructions, query, context)
}

// Unhelpful reports whether an answer is empty, too short, or a known refusal.
func Unhelpful(answer string) bool {
	trimmed := strings.TrimSpace(answer)
	if len([]rune(trimmed)) < minHelpfulRunes {
		return true
	}
	lower := strings.ToLower(trimmed)
	for _, phrase := range unhelpfulPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}
