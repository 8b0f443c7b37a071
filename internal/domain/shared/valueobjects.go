package shared

import (
	"strings"
	"time"

	"github.com/tutorhub/tutor-hub/pkg/timeutil"
)

// ═══════════════════════════════════════════════════════════════════════════
// XP (очки опыта)
// ═══════════════════════════════════════════════════════════════════════════

// XP - очки опыта студента. Никогда не отрицательные.
type XP int

const (
	MinXP XP = 0
	MaxXP XP = 10_000_000
)

func (x XP) IsValid() bool { return x >= MinXP && x <= MaxXP }
func (x XP) Int() int      { return int(x) }

// Add прибавляет неотрицательную дельту. Результат ограничен MaxXP.
func (x XP) Add(delta int) XP {
	if delta <= 0 {
		return x
	}
	r := XP(int(x) + delta)
	if r > MaxXP || r < x {
		return MaxXP
	}
	return r
}

// levelThresholds[i] - минимальный XP для уровня i+1.
var levelThresholds = []XP{0, 50, 150, 300, 500, 750, 1050, 1400, 1800, 2250, 2750}

// levelStepAfterTable - шаг XP для уровней выше таблицы.
const levelStepAfterTable XP = 500

// Level вычисляет уровень. Функция монотонна: больше XP - не меньший уровень.
func (x XP) Level() Level {
	if x <= 0 {
		return MinLevel
	}
	last := levelThresholds[len(levelThresholds)-1]
	if x >= last {
		return Level(len(levelThresholds)) + Level((x-last)/levelStepAfterTable)
	}
	lvl := MinLevel
	for i, t := range levelThresholds {
		if x >= t {
			lvl = Level(i + 1)
		}
	}
	return lvl
}

// NewXP создаёт XP с валидацией.
func NewXP(amount int) (XP, error) {
	if amount < 0 {
		return 0, NewDomainError("shared", "NewXP", ErrNegativeValue, "XP cannot be negative")
	}
	if XP(amount) > MaxXP {
		return MaxXP, nil
	}
	return XP(amount), nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Level
// ═══════════════════════════════════════════════════════════════════════════

// Level - уровень студента, производный от XP.
type Level int

const MinLevel Level = 1

func (l Level) Int() int { return int(l) }

// RequiredXP возвращает минимальный XP для достижения уровня.
func (l Level) RequiredXP() XP {
	if l <= MinLevel {
		return 0
	}
	if int(l) <= len(levelThresholds) {
		return levelThresholds[l-1]
	}
	extra := XP(int(l) - len(levelThresholds))
	return levelThresholds[len(levelThresholds)-1] + extra*levelStepAfterTable
}

// Title - название уровня для приветствия.
func (l Level) Title() string {
	switch {
	case l < 3:
		return "Beginner"
	case l < 6:
		return "Learner"
	case l < 10:
		return "Scholar"
	case l < 15:
		return "Achiever"
	default:
		return "Master"
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Subject
// ═══════════════════════════════════════════════════════════════════════════

// Subject - нормализованное имя предмета ("math", "physics").
type Subject string

// NormalizeSubject приводит имя предмета к нижнему регистру без пробелов по краям.
func NormalizeSubject(s string) Subject {
	return Subject(strings.ToLower(strings.TrimSpace(s)))
}

func (s Subject) String() string { return string(s) }
func (s Subject) IsEmpty() bool  { return s == "" }

// ═══════════════════════════════════════════════════════════════════════════
// DayKey
// ═══════════════════════════════════════════════════════════════════════════

// DayKey - календарный день в часовом поясе приложения, формат YYYY-MM-DD.
type DayKey string

// DayKeyOf возвращает день для t в часовом поясе loc.
func DayKeyOf(t time.Time, loc *time.Location) DayKey {
	return DayKey(timeutil.FormatDay(t, loc))
}

func (d DayKey) String() string { return string(d) }

// Time возвращает полночь дня в loc.
func (d DayKey) Time(loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	return time.ParseInLocation(timeutil.FormatDate, string(d), loc)
}
