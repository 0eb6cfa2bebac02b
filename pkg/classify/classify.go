// Package classify labels request text with an ordered list of rules.
package classify

import (
	"strings"
	"unicode"

	"github.com/pario-ai/tollgate/pkg/config"
	"github.com/pario-ai/tollgate/pkg/models"
)

// Features are the measurements every rule reads. They are computed once per
// request from the trimmed text.
type Features struct {
	Trimmed       string
	Runes         int
	Letters       int
	Words         []string
	QuestionMarks int
	ListItems     int
}

// AlphaRatio is the share of letters among all runes of the trimmed text.
func (f Features) AlphaRatio() float64 {
	if f.Runes == 0 {
		return 0
	}
	return float64(f.Letters) / float64(f.Runes)
}

// Rule maps a predicate to a label. Rules are evaluated in order and the
// first match wins.
type Rule struct {
	Name  string
	Label models.Classification
	Match func(Features) bool
}

// Verdict is a label together with the rule that produced it.
type Verdict struct {
	Label models.Classification
	Rule  string
}

// Classifier assigns labels with precedence
// EMPTY > GARBAGE > EXTREMELY_LONG > COMPLEX > SIMPLE.
type Classifier struct {
	rules []Rule
}

// New builds a Classifier from the configured thresholds.
func New(cfg config.ClassifierConfig) *Classifier {
	markers := make([]string, 0, len(cfg.ComplexMarkers))
	for _, m := range cfg.ComplexMarkers {
		if m = strings.ToLower(strings.TrimSpace(m)); m != "" {
			markers = append(markers, m)
		}
	}

	rules := []Rule{
		{Name: "empty", Label: models.ClassEmpty, Match: func(f Features) bool {
			return f.Runes == 0
		}},
		{Name: "low alpha ratio", Label: models.ClassGarbage, Match: func(f Features) bool {
			return f.AlphaRatio() < cfg.MinAlphaRatio
		}},
		{Name: "too short", Label: models.ClassGarbage, Match: func(f Features) bool {
			return f.Runes < cfg.MinLength
		}},
		{Name: "no words", Label: models.ClassGarbage, Match: func(f Features) bool {
			for _, w := range f.Words {
				if countLetters(w) >= cfg.MinWordLength {
					return false
				}
			}
			return true
		}},
		{Name: "character ceiling", Label: models.ClassExtremelyLong, Match: func(f Features) bool {
			return f.Runes > cfg.MaxChars
		}},
		{Name: "token ceiling", Label: models.ClassExtremelyLong, Match: func(f Features) bool {
			return int(float64(len(f.Words))*cfg.TokenMultiplier) > cfg.MaxTokens
		}},
		{Name: "word count", Label: models.ClassComplex, Match: func(f Features) bool {
			return len(f.Words) > cfg.SimpleMaxWords
		}},
		{Name: "reasoning marker", Label: models.ClassComplex, Match: func(f Features) bool {
			lower := strings.ToLower(f.Trimmed)
			for _, m := range markers {
				if strings.Contains(lower, m) {
					return true
				}
			}
			return false
		}},
		{Name: "multiple questions", Label: models.ClassComplex, Match: func(f Features) bool {
			return f.QuestionMarks > cfg.MaxQuestionMarks
		}},
		{Name: "enumerated list", Label: models.ClassComplex, Match: func(f Features) bool {
			return cfg.MinListItems > 0 && f.ListItems >= cfg.MinListItems
		}},
		{Name: "default", Label: models.ClassSimple, Match: func(Features) bool {
			return true
		}},
	}
	return &Classifier{rules: rules}
}

// Classify returns the label for text.
func (c *Classifier) Classify(text string) models.Classification {
	return c.Explain(text).Label
}

// Explain returns the label for text and the name of the rule that chose it.
func (c *Classifier) Explain(text string) Verdict {
	f := Measure(text)
	for _, r := range c.rules {
		if r.Match(f) {
			return Verdict{Label: r.Label, Rule: r.Name}
		}
	}
	return Verdict{Label: models.ClassSimple, Rule: "default"}
}

// Rules returns a copy of the rule list in evaluation order.
func (c *Classifier) Rules() []Rule {
	out := make([]Rule, len(c.rules))
	copy(out, c.rules)
	return out
}

// Measure computes the features of text.
func Measure(text string) Features {
	trimmed := strings.TrimSpace(text)
	f := Features{
		Trimmed: trimmed,
		Words:   strings.Fields(trimmed),
	}
	for _, r := range trimmed {
		f.Runes++
		if unicode.IsLetter(r) {
			f.Letters++
		}
		if r == '?' {
			f.QuestionMarks++
		}
	}
	for _, line := range strings.Split(trimmed, "\n") {
		if isListItem(strings.TrimSpace(line)) {
			f.ListItems++
		}
	}
	return f
}

func countLetters(s string) int {
	n := 0
	for _, r := range s {
		if unicode.IsLetter(r) {
			n++
		}
	}
	return n
}

// isListItem matches "- x", "* x", "1. x" and "1) x".
func isListItem(line string) bool {
	if strings.HasPrefix(line, "- ") || strings.HasPrefix(line, "* ") {
		return true
	}
	i := 0
	for i < len(line) && line[i] >= '0' && line[i] <= '9' {
		i++
	}
	if i == 0 || i+1 >= len(line) {
		return false
	}
	return (line[i] == '.' || line[i] == ')') && line[i+1] == ' '
}
