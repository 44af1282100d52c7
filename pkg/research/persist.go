package research

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/mikeboe/research-loop/pkg/searchutil"
)

const maxSafeQueryLen = 50

// SafeFilename derives a file-system safe name from a query: letters, digits,
// spaces, hyphens and underscores are kept, the result is cut to 50 characters,
// spaces become underscores and everything is lowercased.
func SafeFilename(query string) string {
	kept := make([]rune, 0, len(query))
	for _, r := range query {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' || r == '-' || r == '_' {
			kept = append(kept, r)
		}
	}
	if len(kept) > maxSafeQueryLen {
		kept = kept[:maxSafeQueryLen]
	}
	return strings.ToLower(strings.ReplaceAll(string(kept), " ", "_"))
}

// Persister writes the formatted findings of a run to its output directory.
type Persister struct {
	Dir string
}

func NewPersister(dir string) *Persister {
	if dir == "" {
		dir = DefaultOutputDir
	}
	return &Persister{Dir: dir}
}

// Path is the file Save writes for query.
func (p *Persister) Path(query string) string {
	return filepath.Join(p.Dir, fmt.Sprintf("formatted_output_%s.txt", SafeFilename(query)))
}

// Save formats the findings and overwrites the query's output file.
func (p *Persister) Save(findings []Finding, knowledge, query string, history QuestionHistory) (string, string, error) {
	formatted := searchutil.FormatFindings(findings, knowledge, history)

	if err := os.MkdirAll(p.Dir, 0755); err != nil {
		return "", "", fmt.Errorf("failed to create output directory %s: %w", p.Dir, err)
	}

	path := p.Path(query)
	if err := os.WriteFile(path, []byte(formatted), 0644); err != nil {
		return "", "", fmt.Errorf("failed to write findings to %s: %w", path, err)
	}
	return formatted, path, nil
}
