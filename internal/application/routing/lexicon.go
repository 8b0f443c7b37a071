package routing

import (
	"regexp"
	"strings"

	"github.com/tutorhub/tutor-hub/config"
	"github.com/tutorhub/tutor-hub/internal/domain/session"
)

// Lexicon is the compiled keyword vocabulary of the subject catalog.
// It is immutable after construction and safe for concurrent use.
type Lexicon struct {
	stress   []*regexp.Regexp
	subjects []subjectPatterns
	moods    []moodPatterns
	urgency  []urgencyPatterns
}

type subjectPatterns struct {
	name     string
	topics   []string
	keywords []keywordPattern
}

type keywordPattern struct {
	word string
	re   *regexp.Regexp
}

type moodPatterns struct {
	mood     session.Mood
	patterns []*regexp.Regexp
}

type urgencyPatterns struct {
	urgency  session.Urgency
	patterns []*regexp.Regexp
}

// Mood and urgency precedence when several lexicons match.
var (
	moodOrder    = []session.Mood{session.MoodFrustrated, session.MoodConfused, session.MoodExcited}
	urgencyOrder = []session.Urgency{session.UrgencyHigh, session.UrgencyMedium}
)

// NewLexicon compiles the catalog keywords into word-bounded patterns.
// A keyword ending in "*" is a stem: "overwhelm*" also matches
// "overwhelming" and "overwhelmed".
func NewLexicon(c *config.Catalog) *Lexicon {
	l := &Lexicon{stress: compileAll(c.StressKeywords)}

	for _, s := range c.Subjects {
		sp := subjectPatterns{name: s.Name, topics: s.Topics}
		for _, kw := range s.Keywords {
			if re := compileKeyword(kw); re != nil {
				sp.keywords = append(sp.keywords, keywordPattern{word: strings.ToLower(kw), re: re})
			}
		}
		l.subjects = append(l.subjects, sp)
	}
	for _, m := range moodOrder {
		if kws := c.MoodKeywords[string(m)]; len(kws) > 0 {
			l.moods = append(l.moods, moodPatterns{mood: m, patterns: compileAll(kws)})
		}
	}
	for _, u := range urgencyOrder {
		if kws := c.UrgencyKeywords[string(u)]; len(kws) > 0 {
			l.urgency = append(l.urgency, urgencyPatterns{urgency: u, patterns: compileAll(kws)})
		}
	}
	return l
}

func compileKeyword(kw string) *regexp.Regexp {
	kw = strings.TrimSpace(kw)
	if kw == "" {
		return nil
	}
	tail := `\b`
	if stem, ok := strings.CutSuffix(kw, "*"); ok {
		kw, tail = strings.TrimSpace(stem), `\w*`
		if kw == "" {
			return nil
		}
	}
	// Collapse inner whitespace so "solve  for x" still matches "solve for x".
	parts := strings.Fields(strings.ToLower(normalizeQuotes(kw)))
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(p)
	}
	re, err := regexp.Compile(`(?i)\b` + strings.Join(parts, `\s+`) + tail)
	if err != nil {
		return nil
	}
	return re
}

func compileAll(keywords []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(keywords))
	for _, kw := range keywords {
		if re := compileKeyword(kw); re != nil {
			out = append(out, re)
		}
	}
	return out
}

var quoteReplacer = strings.NewReplacer("\u2019", "'", "\u2018", "'", "\u02bc", "'")

// normalizeQuotes folds typographic apostrophes into ASCII so "can’t"
// matches the "can't" keyword.
func normalizeQuotes(text string) string {
	return quoteReplacer.Replace(text)
}

func anyMatch(text string, patterns []*regexp.Regexp) bool {
	text = normalizeQuotes(text)
	for _, re := range patterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// IsStressed reports whether text contains a stress or overwhelm term.
func (l *Lexicon) IsStressed(text string) bool {
	return anyMatch(text, l.stress)
}

// Mood returns the lexical mood, MoodStressed taking precedence.
func (l *Lexicon) Mood(text string) session.Mood {
	if l.IsStressed(text) {
		return session.MoodStressed
	}
	for _, m := range l.moods {
		if anyMatch(text, m.patterns) {
			return m.mood
		}
	}
	return session.MoodNeutral
}

// Urgency returns the lexical urgency, defaulting to low.
func (l *Lexicon) Urgency(text string) session.Urgency {
	for _, u := range l.urgency {
		if anyMatch(text, u.patterns) {
			return u.urgency
		}
	}
	return session.UrgencyLow
}

// LexicalMatch is the best-scoring subject for a message.
type LexicalMatch struct {
	Subject string
	Score   int
	Matched []string
	Topic   string
}

// Match scores each subject by the number of distinct keywords present.
// Ties go to the subject listed first in the catalog.
func (l *Lexicon) Match(text string) (LexicalMatch, bool) {
	text = normalizeQuotes(text)
	var best LexicalMatch
	for _, s := range l.subjects {
		var matched []string
		for _, kw := range s.keywords {
			if kw.re.MatchString(text) {
				matched = append(matched, strings.TrimSuffix(kw.word, "*"))
			}
		}
		if len(matched) > best.Score {
			best = LexicalMatch{Subject: s.name, Score: len(matched), Matched: matched, Topic: topicFor(s.topics, matched)}
		}
	}
	return best, best.Score > 0
}

// topicFor picks the first catalog topic mentioning a matched keyword.
// "Algebra (linear equations, quadratics)" is reported as "Algebra".
func topicFor(topics, matched []string) string {
	for _, t := range topics {
		lt := strings.ToLower(t)
		for _, kw := range matched {
			if strings.Contains(lt, kw) {
				name, _, _ := strings.Cut(t, " (")
				return strings.TrimSpace(name)
			}
		}
	}
	return ""
}
