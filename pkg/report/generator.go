// Package report turns the findings of a research run into a structured
// markdown report, researching every section of the report on its own.
package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"

	"github.com/mikeboe/research-loop/pkg/research"
	"github.com/mikeboe/research-loop/pkg/searchutil"
)

const (
	DefaultSearchesPerSection = 2
	DefaultSectionIterations  = 2

	structureSampleChars = 1000
	previousContentChars = 1000
)

// Model is the part of llms.Model the generator needs.
type Model interface {
	GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error)
}

// Researcher runs a research loop for a query.
type Researcher interface {
	Run(ctx context.Context, query string) (*research.Result, error)
}

// ResearcherFactory returns a fresh researcher limited to the given number of iterations.
type ResearcherFactory func(iterations int) Researcher

type Subsection struct {
	Name    string `json:"name"`
	Purpose string `json:"purpose"`
}

type Section struct {
	Name        string       `json:"name"`
	Subsections []Subsection `json:"subsections"`
}

// SectionResearch holds the findings gathered for one section.
type SectionResearch struct {
	Section  string             `json:"section"`
	Findings []research.Finding `json:"findings"`
}

type Metadata struct {
	GeneratedAt        time.Time `json:"generated_at"`
	InitialSources     int       `json:"initial_sources"`
	SectionsResearched int       `json:"sections_researched"`
	SearchesPerSection int       `json:"searches_per_section"`
	Query              string    `json:"query"`
	Structure          []Section `json:"structure,omitempty"`
	Status             string    `json:"status,omitempty"`
	Error              string    `json:"error,omitempty"`
}

type Report struct {
	Content  string   `json:"content"`
	Metadata Metadata `json:"metadata"`
}

// Failed reports whether the report is an error report.
func (r *Report) Failed() bool {
	return r.Metadata.Status == "failed"
}

// Markdown returns the content followed by a metadata footer.
func (r *Report) Markdown() string {
	var b strings.Builder
	b.WriteString(r.Content)
	b.WriteString("\n\n---\n\n")
	b.WriteString("## Report Metadata\n")
	fmt.Fprintf(&b, "- Generated at: %s\n", r.Metadata.GeneratedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "- Initial sources: %d\n", r.Metadata.InitialSources)
	fmt.Fprintf(&b, "- Sections researched: %d\n", r.Metadata.SectionsResearched)
	fmt.Fprintf(&b, "- Searches per section: %d\n", r.Metadata.SearchesPerSection)
	fmt.Fprintf(&b, "- Query: %s\n", r.Metadata.Query)
	return b.String()
}

type Generator struct {
	LLM                Model
	NewResearcher      ResearcherFactory
	SearchesPerSection int
	SectionIterations  int
	Logger             *slog.Logger
	Now                func() time.Time
}

func NewGenerator(llm Model, newResearcher ResearcherFactory, searchesPerSection int) *Generator {
	if searchesPerSection <= 0 {
		searchesPerSection = DefaultSearchesPerSection
	}
	return &Generator{
		LLM:                llm,
		NewResearcher:      newResearcher,
		SearchesPerSection: searchesPerSection,
		SectionIterations:  DefaultSectionIterations,
		Logger:             slog.Default(),
		Now:                time.Now,
	}
}

// Generate builds the report. Failures never surface as an error: they are
// logged and an error report is returned instead.
func (g *Generator) Generate(ctx context.Context, findings []research.Finding, query string) *Report {
	rep, err := g.generate(ctx, findings, query)
	if err != nil {
		g.Logger.Error("Error generating report", "query", query, "error", err)
		return g.errorReport(query, err)
	}
	return rep
}

func (g *Generator) generate(ctx context.Context, findings []research.Finding, query string) (*Report, error) {
	structure, err := g.determineStructure(ctx, findings, query)
	if err != nil {
		return nil, err
	}
	if len(structure) == 0 {
		return nil, errors.New("model returned no report structure")
	}

	sectionResearch, err := g.researchSections(ctx, structure, query)
	if err != nil {
		return nil, err
	}

	sections, err := g.generateSections(ctx, findings, sectionResearch, structure, query)
	if err != nil {
		return nil, err
	}

	return &Report{
		Content: FormatReport(sections, structure, sectionResearch),
		Metadata: Metadata{
			GeneratedAt:        g.Now(),
			InitialSources:     len(findings),
			SectionsResearched: len(sectionResearch),
			SearchesPerSection: g.SearchesPerSection,
			Query:              query,
			Structure:          structure,
			Status:             "complete",
		},
	}, nil
}

func (g *Generator) invoke(ctx context.Context, prompt string) (string, error) {
	resp, err := g.LLM.GenerateContent(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("llm returned no choices")
	}
	return searchutil.RemoveThinkTags(resp.Choices[0].Content), nil
}

func (g *Generator) determineStructure(ctx context.Context, findings []research.Finding, query string) ([]Section, error) {
	sample := []rune(combineFindings(findings))
	if len(sample) > structureSampleChars {
		sample = sample[:structureSampleChars]
	}

	prompt := fmt.Sprintf(`Analyze this research content about: %s

Content Summary:
%s... [truncated]

Determine the most appropriate report structure by:
1. Analyzing the type of content (technical, business, academic, etc.)
2. Identifying main themes and logical groupings
3. Considering the depth and breadth of the research

Return a table of contents structure in this exact format:
STRUCTURE
1. [Section Name]
   - [Subsection] | [purpose]
2. [Section Name]
   - [Subsection] | [purpose]
...
END_STRUCTURE

Make the structure specific to the content, not generic.
Each subsection must include its purpose after the | symbol.`, query, string(sample))

	response, err := g.invoke(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("failed to determine report structure: %w", err)
	}
	structure := ParseStructure(response)
	g.Logger.Info("Determined report structure", "sections", len(structure))
	return structure, nil
}

// ParseStructure reads the STRUCTURE block of a model response. Numbered lines
// open a section; "- name | purpose" lines add a subsection to the open one.
// Subsection lines without exactly one "|" are ignored.
func ParseStructure(response string) []Section {
	var structure []Section
	for _, raw := range strings.Split(response, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || line == "STRUCTURE" || line == "END_STRUCTURE" {
			continue
		}

		if line[0] >= '1' && line[0] <= '9' {
			_, name, ok := strings.Cut(line, ".")
			if !ok {
				continue
			}
			structure = append(structure, Section{Name: cleanName(name)})
			continue
		}

		if strings.HasPrefix(line, "-") && len(structure) > 0 {
			parts := strings.Split(strings.Trim(line, "- "), "|")
			if len(parts) != 2 {
				continue
			}
			current := &structure[len(structure)-1]
			current.Subsections = append(current.Subsections, Subsection{
				Name:    cleanName(parts[0]),
				Purpose: strings.TrimSpace(parts[1]),
			})
		}
	}
	return structure
}

func cleanName(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "*")
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")
	return strings.TrimSpace(s)
}

func (g *Generator) researchSections(ctx context.Context, structure []Section, query string) ([]SectionResearch, error) {
	out := make([]SectionResearch, 0, len(structure))

	for _, section := range structure {
		var subs []string
		for _, sub := range section.Subsections {
			subs = append(subs, fmt.Sprintf("- %s | %s", sub.Name, sub.Purpose))
		}
		prompt := fmt.Sprintf(`For a report section titled "%s" about %s,
generate %d specific research questions.
The section covers:
%s

Return only the questions, one per line, starting with %s`,
			section.Name, query, g.SearchesPerSection, strings.Join(subs, "\n"), research.QuestionMarker)

		response, err := g.invoke(ctx, prompt)
		if err != nil {
			return nil, fmt.Errorf("failed to generate questions for section %q: %w", section.Name, err)
		}

		var sectionFindings []research.Finding
		for _, question := range research.ParseQuestions(response, g.SearchesPerSection) {
			g.Logger.Info("Researching section question", "section", section.Name, "question", question)
			res, err := g.NewResearcher(g.SectionIterations).Run(ctx, question+" "+query)
			if err != nil {
				return nil, fmt.Errorf("section research failed for %q: %w", section.Name, err)
			}
			if res != nil {
				sectionFindings = append(sectionFindings, res.Findings...)
			}
		}
		out = append(out, SectionResearch{Section: section.Name, Findings: sectionFindings})
	}
	return out, nil
}

func (g *Generator) generateSections(ctx context.Context, initial []research.Finding, sectionResearch []SectionResearch, structure []Section, query string) (map[string]string, error) {
	sections := make(map[string]string, len(structure))
	general := combineFindings(initial)

	var accumulated strings.Builder
	previous := func() string {
		if accumulated.Len() == 0 {
			return "None yet"
		}
		r := []rune(accumulated.String())
		if len(r) > previousContentChars {
			r = r[:previousContentChars]
		}
		return string(r)
	}

	for i, section := range structure {
		specific := combineFindings(sectionResearch[i].Findings)
		var parts []string

		if len(section.Subsections) == 0 {
			prompt := fmt.Sprintf(`Research Query: %s

Section: %s

Previous Content: %s

General Research:
%s

Generate comprehensive content for this section that:
1. Addresses the section's main topic
2. Integrates available research
3. Maintains flow with previous content
4. Uses appropriate formatting`, query, section.Name, previous(), general)

			response, err := g.invoke(ctx, prompt)
			if err != nil {
				return nil, fmt.Errorf("failed to write section %q: %w", section.Name, err)
			}
			parts = append(parts, response)
			accumulated.WriteString("\n" + response)
		}

		for _, sub := range section.Subsections {
			prompt := fmt.Sprintf(`Research Query: %s
Section: %s
Subsection: %s
Purpose: %s
Previous Content: %s
General Research:
%s
Section-Specific Research:
%s
Generate content that:
1. Fulfills the stated purpose
2. Integrates both general and section-specific research
3. Cites specific sources when possible
4. Builds upon previous content
5. Uses appropriate formatting`, query, section.Name, sub.Name, sub.Purpose, previous(), general, specific)

			response, err := g.invoke(ctx, prompt)
			if err != nil {
				return nil, fmt.Errorf("failed to write subsection %q: %w", sub.Name, err)
			}
			parts = append(parts, fmt.Sprintf("### %s\n\n%s\n", sub.Name, response))
			accumulated.WriteString("\n" + response)
		}

		sections[section.Name] = strings.Join(parts, "\n")
	}
	return sections, nil
}

// FormatReport assembles the table of contents, the research summary and the
// section texts. A markdown header is printed only the first time it occurs.
func FormatReport(sections map[string]string, structure []Section, sectionResearch []SectionResearch) string {
	seen := make(map[string]bool)

	toc := []string{"# Table of Contents\n"}
	for i, section := range structure {
		toc = append(toc, fmt.Sprintf("%d. **%s**", i+1, section.Name))
		for _, sub := range section.Subsections {
			toc = append(toc, fmt.Sprintf("   - %s | _%s_", sub.Name, sub.Purpose))
		}
	}

	parts := []string{strings.Join(toc, "\n"), ""}

	summaryHeader := "# Research Summary"
	seen[summaryHeader] = true
	parts = append(parts, summaryHeader)
	for _, sr := range sectionResearch {
		header := "## Research for " + sr.Section
		if seen[header] {
			continue
		}
		seen[header] = true
		parts = append(parts, "\n"+header, fmt.Sprintf("Number of focused searches: %d", len(sr.Findings)))
	}
	parts = append(parts, "\n---\n")

	for _, section := range structure {
		header := "# " + section.Name
		if seen[header] {
			continue
		}
		seen[header] = true
		parts = append(parts, header)

		content, ok := sections[section.Name]
		if !ok {
			continue
		}
		var kept []string
		for _, line := range strings.Split(content, "\n") {
			trimmed := strings.TrimSpace(line)
			if strings.HasPrefix(trimmed, "#") {
				if seen[trimmed] {
					continue
				}
				seen[trimmed] = true
			}
			kept = append(kept, line)
		}
		parts = append(parts, strings.Join(kept, "\n"), "")
	}

	return strings.Join(parts, "\n\n")
}

func combineFindings(findings []research.Finding) string {
	contents := make([]string, 0, len(findings))
	for _, f := range findings {
		contents = append(contents, f.Content)
	}
	return strings.Join(contents, "\n\n")
}

func (g *Generator) errorReport(query string, err error) *Report {
	return &Report{
		Content: fmt.Sprintf("=== ERROR REPORT ===\nQuery: %s\nError: %s", query, err),
		Metadata: Metadata{
			GeneratedAt: g.Now(),
			Query:       query,
			Status:      "failed",
			Error:       err.Error(),
		},
	}
}
