package http

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/tutorhub/tutor-hub/internal/application/command"
	"github.com/tutorhub/tutor-hub/internal/application/query"
	"github.com/tutorhub/tutor-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]any{
		"name":    "Tutor Hub API",
		"version": s.config.Version,
		"endpoints": map[string]string{
			"health":   "/api/health",
			"session":  "/api/chat/session",
			"message":  "/api/chat/message",
			"history":  "/api/chat/history/{session_id}",
			"welcome":  "/api/welcome/{session_id}",
			"practice": "/api/practice/generate",
		},
	})
}

// handleHealth reports database, cache and model circuit state.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.deps.HealthChecker.Check(r.Context())
	if !status.Healthy {
		writeJSONResponse(w, r, http.StatusServiceUnavailable, JSONResponse{Success: false, Data: status})
		return
	}
	writeJSON(w, r, http.StatusOK, status)
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "alive"})
}

// ══════════════════════════════════════════════════════════════════════════════
// CHAT HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

type startSessionResponse struct {
	Session        query.SessionDTO  `json:"session"`
	Profile        *query.ProfileDTO `json:"profile"`
	ProfileCreated bool              `json:"profile_created"`
}

// handleStartSession handles POST /api/chat/session
func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	if s.deps.StartSession == nil {
		notConfigured(w, r)
		return
	}
	var req startSessionRequest
	if !s.bind(w, r, &req) {
		return
	}

	caller := callerFrom(r.Context())
	switch {
	case caller.Role == RoleTeacher:
		s.writeError(w, r, forbidden("session", "Start", "teachers cannot open tutoring sessions"))
		return
	case !caller.Anonymous():
		if req.StudentID != "" && req.StudentID != caller.ID {
			s.writeError(w, r, forbidden("session", "Start", "cannot open a session for another student"))
			return
		}
		req.StudentID = caller.ID
	}

	res, err := s.deps.StartSession.Handle(r.Context(), command.StartSessionCommand{
		StudentID:   req.StudentID,
		StudentName: req.StudentName,
		Subject:     req.Subject,
		GradeLevel:  req.GradeLevel,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, startSessionResponse{
		Session:        query.ToSessionDTO(res.Session),
		Profile:        query.ToProfileDTO(res.Profile, 0, nil),
		ProfileCreated: res.ProfileCreated,
	})
}

// handleGetSession handles GET /api/chat/session/{id}
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	if s.deps.Chat == nil {
		notConfigured(w, r)
		return
	}
	dto, err := s.deps.Chat.GetSession(r.Context(), query.GetSessionQuery{
		SessionID: r.PathValue("id"),
		StudentID: callerFrom(r.Context()).studentScope(),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, dto)
}

// handleListSessions handles GET /api/chat/sessions[?student_id=&limit=]
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	if s.deps.Chat == nil {
		notConfigured(w, r)
		return
	}
	studentID := strings.TrimSpace(r.URL.Query().Get("student_id"))
	caller := callerFrom(r.Context())
	switch {
	case caller.Role == RoleStudent && !caller.Anonymous():
		if studentID != "" && studentID != caller.ID {
			s.writeError(w, r, forbidden("session", "List", "cannot list another student's sessions"))
			return
		}
		studentID = caller.ID
	case caller.Anonymous() && studentID == "":
		s.writeError(w, r, shared.NewDomainError("session", "List", shared.ErrInvalidID, "student_id is required"))
		return
	}

	list, err := s.deps.Chat.ListSessions(r.Context(), query.ListSessionsQuery{
		StudentID: studentID,
		Limit:     getQueryParamInt(r, "limit", 0),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSONList(w, r, list)
}

type sendMessageResponse struct {
	Message     query.MessageDTO `json:"message"`
	Source      string           `json:"routing_source"`
	XPAwarded   int              `json:"xp_awarded"`
	TotalXP     int              `json:"total_xp,omitempty"`
	Level       int              `json:"level,omitempty"`
	LevelUp     bool             `json:"level_up"`
	AlertRaised bool             `json:"alert_raised"`
}

// handleSendMessage handles POST /api/chat/message
func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	if s.deps.SendMessage == nil {
		notConfigured(w, r)
		return
	}
	var req sendMessageRequest
	if !s.bind(w, r, &req) {
		return
	}

	res, err := s.deps.SendMessage.Handle(r.Context(), command.SendMessageCommand{
		SessionID:     req.SessionID,
		StudentID:     callerFrom(r.Context()).studentScope(),
		Message:       req.UserMessage,
		Subject:       req.Subject,
		CorrelationID: getRequestID(r.Context()),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := sendMessageResponse{
		Message:     query.ToMessageDTO(res.Message),
		Source:      string(res.Selection.Source),
		AlertRaised: res.Alert != nil,
	}
	if res.Award != nil {
		resp.XPAwarded = res.Award.Delta
		resp.TotalXP = res.Award.TotalXP.Int()
		resp.Level = res.Award.Level.Int()
		resp.LevelUp = res.Award.LeveledUp
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// handleHistory handles GET /api/chat/history/{session_id}[?limit=]
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.deps.Chat == nil {
		notConfigured(w, r)
		return
	}
	msgs, err := s.deps.Chat.GetHistory(r.Context(), query.GetHistoryQuery{
		SessionID: r.PathValue("session_id"),
		StudentID: callerFrom(r.Context()).studentScope(),
		Limit:     getQueryParamInt(r, "limit", 0),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSONList(w, r, msgs)
}

// handleWelcome handles GET /api/welcome/{session_id}
func (s *Server) handleWelcome(w http.ResponseWriter, r *http.Request) {
	if s.deps.Welcome == nil {
		notConfigured(w, r)
		return
	}
	dto, err := s.deps.Welcome.Handle(r.Context(), query.GetWelcomeQuery{
		SessionID: r.PathValue("session_id"),
		StudentID: callerFrom(r.Context()).studentScope(),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, dto)
}

// ══════════════════════════════════════════════════════════════════════════════
// PRACTICE HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleGeneratePractice handles POST /api/practice/generate
func (s *Server) handleGeneratePractice(w http.ResponseWriter, r *http.Request) {
	if s.deps.Practice == nil {
		notConfigured(w, r)
		return
	}
	var req practiceRequest
	if !s.bind(w, r, &req) {
		return
	}
	if req.QuestionCount == 0 {
		req.QuestionCount = defaultQuestionCount
	}

	test, err := s.deps.Practice.Handle(r.Context(), command.GeneratePracticeCommand{
		StudentID:     callerFrom(r.Context()).studentScope(),
		Subject:       req.Subject,
		Topics:        req.Topics,
		Difficulty:    req.Difficulty,
		QuestionCount: req.QuestionCount,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, test)
}

// ══════════════════════════════════════════════════════════════════════════════
// PROFILE HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleGetProfile handles GET /api/students/{id}. Students read their own
// profile; teachers read profiles of their students.
func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	if s.deps.Profile == nil {
		notConfigured(w, r)
		return
	}
	id := r.PathValue("id")
	caller := callerFrom(r.Context())
	if caller.Anonymous() {
		s.writeError(w, r, unauthorized("profile", "Get"))
		return
	}
	if caller.Role == RoleStudent && caller.ID != id {
		s.writeError(w, r, forbidden("profile", "Get", "cannot read another student's profile"))
		return
	}

	dto, err := s.deps.Profile.Handle(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if caller.Role == RoleTeacher && dto.TeacherID != caller.ID {
		s.writeError(w, r, forbidden("profile", "Get", "student is not assigned to this teacher"))
		return
	}
	writeJSON(w, r, http.StatusOK, dto)
}

// handleUpdateProfile handles PATCH /api/students/{id}
func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	if s.deps.UpdateProfile == nil {
		notConfigured(w, r)
		return
	}
	id := r.PathValue("id")
	if err := requireStudent(callerFrom(r.Context()), id, "profile", "Update"); err != nil {
		s.writeError(w, r, err)
		return
	}
	var req updateProfileRequest
	if !s.bind(w, r, &req) {
		return
	}

	p, err := s.deps.UpdateProfile.Handle(r.Context(), command.UpdateProfileCommand{
		StudentID: id,
		Update:    req.toUpdate(),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, query.ToProfileDTO(p, 0, nil))
}

// ══════════════════════════════════════════════════════════════════════════════
// INBOX HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleStudentNotifications handles GET /api/students/{id}/notifications
func (s *Server) handleStudentNotifications(w http.ResponseWriter, r *http.Request) {
	if s.deps.Inbox == nil {
		notConfigured(w, r)
		return
	}
	id := r.PathValue("id")
	if err := requireStudent(callerFrom(r.Context()), id, "notification", "List"); err != nil {
		s.writeError(w, r, err)
		return
	}
	list, err := s.deps.Inbox.StudentNotifications(r.Context(), query.InboxQuery{
		RecipientID: id,
		UnreadOnly:  getQueryParamBool(r, "unread"),
		Limit:       getQueryParamInt(r, "limit", 0),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSONList(w, r, list)
}

// handleMarkNotificationRead handles POST /api/notifications/{id}/read
func (s *Server) handleMarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	if s.deps.MarkRead == nil {
		notConfigured(w, r)
		return
	}
	caller := callerFrom(r.Context())
	if err := requireRole(caller, RoleStudent, "notification", "MarkRead"); err != nil {
		s.writeError(w, r, err)
		return
	}
	n, err := s.deps.MarkRead.MarkNotification(r.Context(), command.MarkNotificationReadCommand{
		NotificationID: r.PathValue("id"),
		StudentID:      caller.ID,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, query.ToNotificationDTO(n))
}

// handleTeacherAlerts handles GET /api/teachers/{id}/alerts[?unread=true]
func (s *Server) handleTeacherAlerts(w http.ResponseWriter, r *http.Request) {
	if s.deps.Inbox == nil {
		notConfigured(w, r)
		return
	}
	id := r.PathValue("id")
	caller := callerFrom(r.Context())
	if err := requireRole(caller, RoleTeacher, "alert", "List"); err != nil {
		s.writeError(w, r, err)
		return
	}
	if !caller.IsTeacher(id) {
		s.writeError(w, r, forbidden("alert", "List", "cannot read another teacher's alerts"))
		return
	}
	list, err := s.deps.Inbox.TeacherAlerts(r.Context(), query.InboxQuery{
		RecipientID: id,
		UnreadOnly:  getQueryParamBool(r, "unread"),
		Limit:       getQueryParamInt(r, "limit", 0),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSONList(w, r, list)
}

// handleMarkAlertRead handles POST /api/alerts/{id}/read
func (s *Server) handleMarkAlertRead(w http.ResponseWriter, r *http.Request) {
	if s.deps.MarkRead == nil {
		notConfigured(w, r)
		return
	}
	caller := callerFrom(r.Context())
	if err := requireRole(caller, RoleTeacher, "alert", "MarkRead"); err != nil {
		s.writeError(w, r, err)
		return
	}
	a, err := s.deps.MarkRead.MarkAlert(r.Context(), command.MarkAlertReadCommand{
		AlertID:   r.PathValue("id"),
		TeacherID: caller.ID,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, query.ToAlertDTO(a))
}

// ══════════════════════════════════════════════════════════════════════════════
// ADMIN HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleSetStreak handles PUT /api/admin/students/{id}/streak
func (s *Server) handleSetStreak(w http.ResponseWriter, r *http.Request) {
	if s.deps.Admin == nil {
		notConfigured(w, r)
		return
	}
	var req setStreakRequest
	if !s.bind(w, r, &req) {
		return
	}
	p, err := s.deps.Admin.SetStreak(r.Context(), command.SetStreakCommand{
		StudentID: r.PathValue("id"),
		Days:      *req.Days,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, query.ToProfileDTO(p, 0, nil))
}

// handleCorrectXP handles PUT /api/admin/students/{id}/xp
func (s *Server) handleCorrectXP(w http.ResponseWriter, r *http.Request) {
	if s.deps.Admin == nil {
		notConfigured(w, r)
		return
	}
	var req correctXPRequest
	if !s.bind(w, r, &req) {
		return
	}
	p, err := s.deps.Admin.CorrectXP(r.Context(), command.CorrectXPCommand{
		StudentID: r.PathValue("id"),
		XP:        *req.XP,
		Reason:    req.Reason,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, query.ToProfileDTO(p, 0, nil))
}

// handleRunJob handles POST /api/admin/jobs/{name}/run. The job runs
// synchronously; its outcome is in the scheduler's job results.
func (s *Server) handleRunJob(w http.ResponseWriter, r *http.Request) {
	if s.deps.Admin == nil {
		notConfigured(w, r)
		return
	}
	name := r.PathValue("name")
	start := time.Now()
	if err := s.deps.Admin.RunJob(r.Context(), name); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusAccepted, map[string]any{
		"job":         name,
		"duration_ms": time.Since(start).Milliseconds(),
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// bind decodes and validates the body, answering 400 itself on failure.
func (s *Server) bind(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := s.decodeJSON(w, r, dst)
	if err == nil {
		return true
	}
	var reqErr *requestError
	if errors.As(err, &reqErr) {
		writeRequestError(w, r, reqErr)
		return false
	}
	s.writeError(w, r, err)
	return false
}

func notConfigured(w http.ResponseWriter, r *http.Request) {
	writeJSONError(w, r, http.StatusNotImplemented, "not_implemented", "endpoint is not configured")
}

func unauthorized(domain, op string) error {
	return shared.NewDomainError(domain, op, shared.ErrUnauthorized, "caller identity is required")
}

func forbidden(domain, op, msg string) error {
	return shared.NewDomainError(domain, op, shared.ErrForbidden, msg)
}

func requireRole(c Caller, role Role, domain, op string) error {
	if c.Anonymous() {
		return unauthorized(domain, op)
	}
	if c.Role != role {
		return forbidden(domain, op, "requires the "+string(role)+" role")
	}
	return nil
}

func requireStudent(c Caller, id, domain, op string) error {
	if err := requireRole(c, RoleStudent, domain, op); err != nil {
		return err
	}
	if !c.IsStudent(id) {
		return forbidden(domain, op, "cannot access another student's data")
	}
	return nil
}
