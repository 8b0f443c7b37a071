package tutor

import (
	"fmt"
	"strings"

	"github.com/tutorhub/tutor-hub/config"
	"github.com/tutorhub/tutor-hub/internal/domain/profile"
	"github.com/tutorhub/tutor-hub/internal/domain/session"
)

// Persona is the static part of a handler's system instruction.
type Persona struct {
	Role    string
	Subject *config.SubjectEntry
}

// Instruction assembles the full system instruction for one reply:
// role, subject topics and teaching style, then what we know about the student.
func (p Persona) Instruction(student profile.Snapshot, c session.Classification) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(p.Role))
	b.WriteString("\n")

	if s := p.Subject; s != nil {
		if len(s.Topics) > 0 {
			b.WriteString("\nTopics you cover:\n")
			for _, t := range s.Topics {
				fmt.Fprintf(&b, "- %s\n", t)
			}
		}
		if s.Style != "" {
			fmt.Fprintf(&b, "\nTeaching style: %s.\n", s.Style)
		}
	}

	if ctx := studentContext(student, c); ctx != "" {
		b.WriteString("\nAbout the student:\n")
		b.WriteString(ctx)
	}
	return b.String()
}

func studentContext(s profile.Snapshot, c session.Classification) string {
	var lines []string
	if s.DisplayName != "" {
		lines = append(lines, "Name: "+s.DisplayName)
	}
	if s.GradeLevel != "" {
		lines = append(lines, "Grade: "+s.GradeLevel)
	}
	if s.Level > 0 {
		lines = append(lines, fmt.Sprintf("Level %d (%s), %d XP", s.Level, s.Level.Title(), s.XP))
	}
	if len(s.SubjectInterests) > 0 {
		lines = append(lines, "Interested in: "+strings.Join(s.SubjectInterests, ", "))
	}
	if c.Topic != "" {
		lines = append(lines, "Current topic: "+c.Topic)
	}
	if c.Difficulty != "" {
		lines = append(lines, "Question level: "+strings.ReplaceAll(string(c.Difficulty), "_", " "))
	}
	switch c.Mood {
	case session.MoodConfused:
		lines = append(lines, "The student seems confused. Slow down and check each step.")
	case session.MoodFrustrated:
		lines = append(lines, "The student seems frustrated. Be patient and encouraging.")
	case session.MoodExcited:
		lines = append(lines, "The student is excited. Keep the momentum going.")
	}
	if c.Urgency == session.UrgencyHigh {
		lines = append(lines, "There is a deadline soon. Keep the answer focused.")
	}
	if len(lines) == 0 {
		return ""
	}
	return "- " + strings.Join(lines, "\n- ") + "\n"
}
