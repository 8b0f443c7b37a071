// Package routing decides which tutor answers a student's message.
//
// The policy is evaluated in order and the first matching rule wins:
// stress, declared subject, lexical vocabulary, model classification,
// then the general tutor. Routing never fails: classification problems
// are logged and downgraded to the general tutor.
package routing

import (
	"context"
	"strconv"
	"strings"
	"unicode"

	"github.com/tutorhub/tutor-hub/config"
	"github.com/tutorhub/tutor-hub/internal/domain/profile"
	"github.com/tutorhub/tutor-hub/internal/domain/session"
	"github.com/tutorhub/tutor-hub/internal/domain/shared"
	"github.com/tutorhub/tutor-hub/pkg/logger"
)

// Source records which rule produced a Selection.
type Source string

const (
	SourceStress   Source = "stress"
	SourceDeclared Source = "declared"
	SourceLexical  Source = "lexical"
	SourceModel    Source = "model"
	SourceFallback Source = "fallback"
)

// DefaultHistoryLimit caps the history passed to routing and handlers.
const DefaultHistoryLimit = 10

// RouteInput is everything the router looks at.
type RouteInput struct {
	Message         string
	DeclaredSubject string
	Profile         profile.Snapshot
	// Most recent messages of the session, newest last.
	History []*session.ChatMessage
}

// Selection is the routing decision plus advisory classification metadata.
type Selection struct {
	Tag     session.HandlerTag
	Subject string
	session.Classification
	Source Source
	// Set when the input could not be routed normally.
	Note string
}

// Classifier is the model-backed classification stage.
type Classifier interface {
	Classify(ctx context.Context, message string, history []*session.ChatMessage) (ModelClassification, error)
}

// FeatureGate reports per-student feature switches.
type FeatureGate interface {
	IsEnabled(name, studentID string) bool
}

// Router is stateless apart from its immutable lexicon and is safe for concurrent use.
type Router struct {
	catalog      *config.Catalog
	lexicon      *Lexicon
	classifier   Classifier
	flags        FeatureGate
	historyLimit int
	log          *logger.Logger
}

// Option configures a Router.
type Option func(*Router)

// WithClassifier enables the model stage.
func WithClassifier(c Classifier) Option {
	return func(r *Router) { r.classifier = c }
}

// WithFeatureGate gates the model stage per student.
func WithFeatureGate(f FeatureGate) Option {
	return func(r *Router) { r.flags = f }
}

func WithHistoryLimit(n int) Option {
	return func(r *Router) {
		if n > 0 {
			r.historyLimit = n
		}
	}
}

func WithLogger(l *logger.Logger) Option {
	return func(r *Router) { r.log = l }
}

// NewRouter builds a router over the subject catalog.
func NewRouter(catalog *config.Catalog, opts ...Option) *Router {
	r := &Router{
		catalog:      catalog,
		lexicon:      NewLexicon(catalog),
		historyLimit: DefaultHistoryLimit,
		log:          logger.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Lexicon exposes the compiled vocabulary.
func (r *Router) Lexicon() *Lexicon { return r.lexicon }

// HistoryLimit is the number of recent messages routing and handlers consider.
func (r *Router) HistoryLimit() int { return r.historyLimit }

// Route selects a handler for the message.
func (r *Router) Route(ctx context.Context, in RouteInput) Selection {
	msg := strings.TrimSpace(in.Message)
	if msg == "" {
		return Selection{
			Tag:            session.TagGeneral,
			Subject:        GeneralSubject,
			Classification: session.Classification{Mood: session.MoodNeutral, Urgency: session.UrgencyLow},
			Source:         SourceFallback,
			Note:           "empty message",
		}
	}
	history := tail(in.History, r.historyLimit)

	base := session.Classification{
		Mood:       r.lexicon.Mood(msg),
		Urgency:    r.lexicon.Urgency(msg),
		Difficulty: DifficultyForGrade(in.Profile.GradeLevel),
	}
	declared := string(shared.NormalizeSubject(in.DeclaredSubject))
	if !r.catalog.Has(declared) {
		declared = ""
	}
	match, matched := r.lexicon.Match(msg)

	// 1. stress beats everything, including a declared subject
	if base.Mood == session.MoodStressed {
		subject := declared
		if subject == "" && matched {
			subject = match.Subject
		}
		return r.support(base, subject, SourceStress)
	}

	// 2. declared subject
	if declared != "" {
		if matched && match.Subject == declared {
			base.Topic = match.Topic
		}
		return subjectSelection(declared, base, SourceDeclared)
	}

	// 3. lexical vocabulary
	if matched {
		base.Topic = match.Topic
		return subjectSelection(match.Subject, base, SourceLexical)
	}

	// 4. model classification
	if r.classifier != nil && r.modelEnabled(in.Profile.StudentID) {
		mc, err := r.classifier.Classify(ctx, msg, history)
		if err != nil {
			r.log.Warn("classification failed, using general tutor",
				logger.Component("router"),
				logger.StudentID(in.Profile.StudentID),
				logger.Err(shared.WrapError("routing", "Classify", shared.ErrClassificationFailure, "model classification failed", err)),
			)
			return generalSelection(base, SourceFallback)
		}
		merged := merge(base, mc)
		if merged.Mood == session.MoodStressed {
			return r.support(merged, "", SourceStress)
		}
		if mc.Subject != GeneralSubject {
			return subjectSelection(mc.Subject, merged, SourceModel)
		}
		return generalSelection(merged, SourceModel)
	}

	// 5. general
	return generalSelection(base, SourceFallback)
}

func (r *Router) modelEnabled(studentID string) bool {
	if r.flags == nil {
		return true
	}
	return r.flags.IsEnabled(config.FeatureModelClassifier, studentID)
}

func (r *Router) support(c session.Classification, subject string, src Source) Selection {
	c.Mood = session.MoodStressed
	return Selection{Tag: session.TagSupport, Subject: subject, Classification: c, Source: src}
}

func subjectSelection(subject string, c session.Classification, src Source) Selection {
	return Selection{Tag: session.SubjectTag(subject), Subject: subject, Classification: c, Source: src}
}

func generalSelection(c session.Classification, src Source) Selection {
	return Selection{Tag: session.TagGeneral, Subject: GeneralSubject, Classification: c, Source: src}
}

// merge prefers lexical signals that carry information and fills the rest
// from the model.
func merge(base session.Classification, mc ModelClassification) session.Classification {
	out := base
	out.Topic = mc.Topic
	if mc.Difficulty != "" {
		out.Difficulty = mc.Difficulty
	}
	if out.Urgency == session.UrgencyLow && mc.Urgency != "" {
		out.Urgency = mc.Urgency
	}
	if out.Mood == session.MoodNeutral && mc.Mood != "" {
		out.Mood = mc.Mood
	}
	return out
}

// DifficultyForGrade maps a free-form grade ("7", "grade 10", "college") to a
// difficulty band. Unknown grades yield an empty difficulty.
func DifficultyForGrade(grade string) session.Difficulty {
	g := strings.ToLower(strings.TrimSpace(grade))
	switch {
	case g == "":
		return ""
	case strings.Contains(g, "college"), strings.Contains(g, "university"):
		return session.DifficultyAdvanced
	}
	digits := strings.TrimFunc(g, func(r rune) bool { return !unicode.IsDigit(r) })
	n, err := strconv.Atoi(digits)
	if err != nil {
		return ""
	}
	switch {
	case n <= 5:
		return session.DifficultyElementary
	case n <= 8:
		return session.DifficultyMiddle
	case n <= 12:
		return session.DifficultyHigh
	default:
		return session.DifficultyAdvanced
	}
}

func tail(history []*session.ChatMessage, n int) []*session.ChatMessage {
	if len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}
