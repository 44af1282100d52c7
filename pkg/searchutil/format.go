package searchutil

import (
	"fmt"
	"strings"

	"github.com/mikeboe/research-loop/pkg/types"
)

const sectionRule = "================================================================================"

// FormatFindings renders the findings of a run as a plain-text report:
// the final knowledge first, then the questions of each iteration, then every
// finding with its sources, then all sources of the run.
func FormatFindings(findings []types.Finding, knowledge string, history types.QuestionHistory) string {
	var b strings.Builder

	section(&b, "FINAL ANSWER")
	if strings.TrimSpace(knowledge) == "" {
		b.WriteString("(no accumulated knowledge)\n")
	} else {
		b.WriteString(strings.TrimSpace(knowledge))
		b.WriteString("\n")
	}

	section(&b, "SEARCH QUESTIONS BY ITERATION")
	if len(history) == 0 {
		b.WriteString("(no questions)\n")
	}
	for _, it := range history.Iterations() {
		fmt.Fprintf(&b, "\nIteration %d:\n", it+1)
		for _, q := range history[it] {
			fmt.Fprintf(&b, "  - %s\n", q)
		}
	}

	section(&b, "DETAILED FINDINGS")
	if len(findings) == 0 {
		b.WriteString("(no findings)\n")
	}
	var allLinks []string
	seen := make(map[string]bool)
	for _, f := range findings {
		fmt.Fprintf(&b, "\n--- %s ---\n", f.Phase)
		if f.Question != "" {
			fmt.Fprintf(&b, "Question: %s\n\n", f.Question)
		}
		b.WriteString(strings.TrimSpace(f.Content))
		b.WriteString("\n")

		links := ExtractLinks(f.SearchResults)
		if len(links) > 0 {
			b.WriteString("\nSources:\n")
			b.WriteString(FormatLinks(links))
			b.WriteString("\n")
		}
		for _, l := range links {
			if !seen[l] {
				seen[l] = true
				allLinks = append(allLinks, l)
			}
		}
	}

	section(&b, "ALL SOURCES")
	if len(allLinks) == 0 {
		b.WriteString("(no sources)\n")
	} else {
		b.WriteString(FormatLinks(allLinks))
		b.WriteString("\n")
	}

	return b.String()
}

func section(b *strings.Builder, title string) {
	if b.Len() > 0 {
		b.WriteString("\n")
	}
	b.WriteString(sectionRule)
	b.WriteString("\n")
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(sectionRule)
	b.WriteString("\n")
}
