package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/tutorhub/tutor-hub/internal/domain/profile"
)

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST BODIES
// ══════════════════════════════════════════════════════════════════════════════

const maxBodyBytes = 64 << 10

type startSessionRequest struct {
	StudentID   string `json:"student_id" validate:"omitempty,max=128"`
	StudentName string `json:"student_name" validate:"omitempty,max=100"`
	Subject     string `json:"subject" validate:"omitempty,max=50"`
	GradeLevel  string `json:"grade_level" validate:"omitempty,max=20"`
}

type sendMessageRequest struct {
	SessionID   string `json:"session_id" validate:"required,max=128"`
	UserMessage string `json:"user_message" validate:"required"`
	Subject     string `json:"subject" validate:"omitempty,max=50"`
}

type updateProfileRequest struct {
	DisplayName      *string  `json:"display_name" validate:"omitempty,max=100"`
	GradeLevel       *string  `json:"grade_level" validate:"omitempty,max=20"`
	SubjectInterests []string `json:"subject_interests" validate:"omitempty,max=20,dive,max=50"`
	TeacherID        *string  `json:"teacher_id" validate:"omitempty,max=128"`
	JoinedClasses    []string `json:"joined_classes" validate:"omitempty,max=50,dive,max=128"`
}

func (r updateProfileRequest) toUpdate() profile.ProfileUpdate {
	return profile.ProfileUpdate{
		DisplayName:      r.DisplayName,
		GradeLevel:       r.GradeLevel,
		SubjectInterests: r.SubjectInterests,
		TeacherID:        r.TeacherID,
		JoinedClasses:    r.JoinedClasses,
	}
}

const defaultQuestionCount = 10

type practiceRequest struct {
	Subject       string   `json:"subject" validate:"required,max=50"`
	Topics        []string `json:"topics" validate:"omitempty,max=10,dive,max=100"`
	Difficulty    string   `json:"difficulty" validate:"omitempty,oneof=easy medium hard"`
	QuestionCount int      `json:"question_count" validate:"omitempty,min=5,max=20"`
}

type setStreakRequest struct {
	Days *int `json:"days" validate:"required,min=0,max=3650"`
}

type correctXPRequest struct {
	XP     *int   `json:"xp" validate:"required,min=0"`
	Reason string `json:"reason" validate:"omitempty,max=200"`
}

// ══════════════════════════════════════════════════════════════════════════════
// DECODING
// ══════════════════════════════════════════════════════════════════════════════

// requestError is a malformed or invalid body. Fields maps JSON field names
// to the failed rule.
type requestError struct {
	Message string
	Fields  map[string]string
}

func (e *requestError) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s: %s", name, e.Fields[name]))
	}
	return e.Message + " (" + strings.Join(parts, ", ") + ")"
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report JSON names instead of Go field names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodeJSON reads a size-limited body into dst and validates it.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return &requestError{Message: "request body is empty"}
		case errors.As(err, &maxErr):
			return &requestError{Message: "request body is too large"}
		default:
			return &requestError{Message: "malformed JSON: " + err.Error()}
		}
	}
	if err := s.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return &requestError{Message: "invalid request"}
		}
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			rule := fe.Tag()
			if fe.Param() != "" {
				rule += "=" + fe.Param()
			}
			fields[fe.Field()] = rule
		}
		return &requestError{Message: "validation failed", Fields: fields}
	}
	return nil
}

// writeRequestError answers 400 with per-field details.
func writeRequestError(w http.ResponseWriter, r *http.Request, err *requestError) {
	writeJSONResponse(w, r, http.StatusBadRequest, JSONResponse{
		Success: false,
		Error: &APIError{
			Code:    "invalid_request",
			Message: err.Message,
			Fields:  err.Fields,
		},
	})
}
