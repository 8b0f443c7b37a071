package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/tutorhub/tutor-hub/config"
	"github.com/tutorhub/tutor-hub/internal/application/alerting"
	"github.com/tutorhub/tutor-hub/internal/application/command"
	"github.com/tutorhub/tutor-hub/internal/application/engagement"
	"github.com/tutorhub/tutor-hub/internal/application/query"
	"github.com/tutorhub/tutor-hub/internal/application/routing"
	"github.com/tutorhub/tutor-hub/internal/application/tutor"
	"github.com/tutorhub/tutor-hub/internal/domain/alert"
	"github.com/tutorhub/tutor-hub/internal/domain/profile"
	"github.com/tutorhub/tutor-hub/internal/infrastructure/llm"
	"github.com/tutorhub/tutor-hub/internal/infrastructure/persistence/memory"
	"github.com/tutorhub/tutor-hub/internal/interface/http/handlers"
	"github.com/tutorhub/tutor-hub/pkg/logger"
)

const adminToken = "let-me-in"

type fakeJobs struct {
	ran []string
	err error
}

func (f *fakeJobs) RunNow(_ context.Context, name string) error {
	f.ran = append(f.ran, name)
	return f.err
}

type testAPI struct {
	store    *memory.Store
	provider *llm.MockProvider
	jobs     *fakeJobs
	handler  http.Handler
}

func newTestAPI(t *testing.T, provider *llm.MockProvider, mutate func(*Config)) *testAPI {
	t.Helper()
	catalog, err := config.LoadCatalog("")
	require.NoError(t, err)
	if provider == nil {
		provider = llm.NewEchoProvider()
	}

	store := memory.New()
	log := logger.Nop()
	registry, err := tutor.NewRegistry(catalog, provider, tutor.RegistryOptions{})
	require.NoError(t, err)
	ledger := engagement.NewLedger(store.Profiles, nil, log)
	engine := alerting.NewEngine(store.Profiles, store.Sessions, store.Alerts, nil, nil, alerting.DefaultConfig(), log)
	jobs := &fakeJobs{}

	hash, err := bcrypt.GenerateFromPassword([]byte(adminToken), bcrypt.MinCost)
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.RateLimitPerMinute = 0
	cfg.AdminTokenHash = string(hash)
	if mutate != nil {
		mutate(&cfg)
	}

	srv := NewServer(cfg, Dependencies{
		StartSession: command.NewStartSessionHandler(store.Sessions, store.Profiles, nil, log),
		SendMessage: command.NewSendMessageHandler(store.Sessions, store.Profiles, routing.NewRouter(catalog),
			registry, ledger, engine, nil, command.SendMessageHandlerConfig{}, log),
		UpdateProfile: command.NewUpdateProfileHandler(store.Profiles, store.Teachers, log),
		MarkRead:      command.NewMarkReadHandler(store.Alerts, store.Notifications),
		Practice:      command.NewGeneratePracticeHandler(provider, catalog, nil, command.GeneratePracticeConfig{}, log),
		Admin:         command.NewAdminHandler(ledger, jobs, log),
		Chat:          query.NewChatHandler(store.Sessions),
		Welcome:       query.NewWelcomeHandler(store.Sessions, store.Profiles, catalog),
		Profile:       query.NewProfileHandler(store.Profiles, store.Sessions),
		Inbox:         query.NewInboxHandler(store.Alerts, store.Notifications),
		Logger:        log,
	})
	return &testAPI{store: store, provider: provider, jobs: jobs, handler: srv.Handler()}
}

type subject struct {
	id   string
	role Role
}

var anonymous = subject{}

func student(id string) subject { return subject{id: id, role: RoleStudent} }
func teacher(id string) subject { return subject{id: id, role: RoleTeacher} }

func (a *testAPI) do(t *testing.T, method, path string, as subject, body any, headers ...string) (*httptest.ResponseRecorder, JSONResponse) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if as.id != "" {
		req.Header.Set(HeaderSubjectID, as.id)
		req.Header.Set(HeaderSubjectRole, string(as.role))
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)

	var resp JSONResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return rec, resp
}

// decode re-marshals the generic Data field into v.
func decode(t *testing.T, data any, v any) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, v))
}

func (a *testAPI) startSession(t *testing.T, as subject, subjectName string) string {
	t.Helper()
	rec, resp := a.do(t, http.MethodPost, "/api/chat/session", as, map[string]string{
		"student_name": "Priya",
		"subject":      subjectName,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var out startSessionResponse
	decode(t, resp.Data, &out)
	return out.Session.ID
}

func TestChatFlow_SendAndHistory(t *testing.T) {
	api := newTestAPI(t, nil, nil)
	priya := student("s1")
	sid := api.startSession(t, priya, "math")

	for i := 0; i < 3; i++ {
		rec, resp := api.do(t, http.MethodPost, "/api/chat/message", priya, map[string]string{
			"session_id":   sid,
			"user_message": "How do I factor x^2 - 9?",
			"subject":      "math",
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var out sendMessageResponse
		decode(t, resp.Data, &out)
		assert.Equal(t, 5, out.XPAwarded)
		assert.Equal(t, "subject:math", out.Message.Handler)
		assert.NotEmpty(t, out.Message.BotResponse)
	}

	rec, resp := api.do(t, http.MethodGet, "/api/chat/history/"+sid, priya, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var history []query.MessageDTO
	decode(t, resp.Data, &history)
	require.Len(t, history, 3)
	assert.False(t, history[1].Timestamp.Before(history[0].Timestamp))
	assert.Equal(t, 3, resp.Meta.TotalCount)

	p, err := api.store.Profiles.GetByID(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, 15, p.XP.Int())
}

func TestSendMessage_StressRoutesToSupport(t *testing.T) {
	api := newTestAPI(t, nil, nil)
	sid := api.startSession(t, anonymous, "")

	rec, resp := api.do(t, http.MethodPost, "/api/chat/message", anonymous, map[string]string{
		"session_id":   sid,
		"user_message": "I'm so stressed about my algebra exam",
		"subject":      "math",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out sendMessageResponse
	decode(t, resp.Data, &out)
	assert.Equal(t, "support", out.Message.Handler)
	assert.Equal(t, "stress", out.Source)
}

func TestSendMessage_Errors(t *testing.T) {
	failing := llm.NewMockProvider(llm.MockResponse{Err: &llm.ErrProviderUnavailable{Err: errors.New("down")}})
	api := newTestAPI(t, failing, nil)
	sid := api.startSession(t, student("s1"), "math")

	t.Run("missing fields", func(t *testing.T) {
		rec, resp := api.do(t, http.MethodPost, "/api/chat/message", anonymous, map[string]string{})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		require.NotNil(t, resp.Error)
		assert.Equal(t, "required", resp.Error.Fields["session_id"])
		assert.Equal(t, "required", resp.Error.Fields["user_message"])
	})

	t.Run("unknown field", func(t *testing.T) {
		rec, _ := api.do(t, http.MethodPost, "/api/chat/message", anonymous, map[string]string{
			"session_id": sid, "user_message": "hi", "mode": "fast",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown session", func(t *testing.T) {
		rec, _ := api.do(t, http.MethodPost, "/api/chat/message", anonymous, map[string]string{
			"session_id": "nope", "user_message": "hi",
		})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("another student's session", func(t *testing.T) {
		rec, _ := api.do(t, http.MethodPost, "/api/chat/message", student("s2"), map[string]string{
			"session_id": sid, "user_message": "hi",
		})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("model failure", func(t *testing.T) {
		rec, resp := api.do(t, http.MethodPost, "/api/chat/message", student("s1"), map[string]string{
			"session_id": sid, "user_message": "What is a prime number?",
		})
		assert.Equal(t, http.StatusBadGateway, rec.Code)
		assert.Equal(t, "generation_failed", resp.Error.Code)

		n, err := api.store.Sessions.CountMessages(context.Background(), "s1")
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}

func TestSessions_ListAndOwnership(t *testing.T) {
	api := newTestAPI(t, nil, nil)
	first := api.startSession(t, student("s1"), "math")
	second := api.startSession(t, student("s1"), "physics")
	api.startSession(t, student("s2"), "math")

	rec, resp := api.do(t, http.MethodGet, "/api/chat/sessions", student("s1"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []query.SessionDTO
	decode(t, resp.Data, &list)
	require.Len(t, list, 2)
	ids := []string{list[0].ID, list[1].ID}
	assert.ElementsMatch(t, []string{first, second}, ids)

	rec, _ = api.do(t, http.MethodGet, "/api/chat/sessions?student_id=s2", student("s1"), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = api.do(t, http.MethodGet, "/api/chat/sessions", anonymous, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = api.do(t, http.MethodGet, "/api/chat/session/"+first, student("s2"), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = api.do(t, http.MethodPost, "/api/chat/session", teacher("t1"), map[string]string{})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestWelcome(t *testing.T) {
	api := newTestAPI(t, nil, nil)
	sid := api.startSession(t, student("s1"), "physics")

	rec, resp := api.do(t, http.MethodGet, "/api/welcome/"+sid, student("s1"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var out query.WelcomeDTO
	decode(t, resp.Data, &out)
	assert.Contains(t, out.Message, "Priya")
	require.Len(t, out.QuickActions, 4)
	assert.Equal(t, "physics_help", out.QuickActions[0].Action)
}

func TestProfile_ReadAndUpdate(t *testing.T) {
	api := newTestAPI(t, nil, nil)
	api.startSession(t, student("s1"), "math")

	rec, _ := api.do(t, http.MethodGet, "/api/students/s1", anonymous, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = api.do(t, http.MethodGet, "/api/students/s1", student("s2"), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, resp := api.do(t, http.MethodPatch, "/api/students/s1", student("s1"), map[string]any{
		"display_name":      "Priya K",
		"teacher_id":        "t1",
		"subject_interests": []string{"Physics"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var updated query.ProfileDTO
	decode(t, resp.Data, &updated)
	assert.Equal(t, "Priya K", updated.DisplayName)
	assert.Equal(t, []string{"physics"}, updated.SubjectInterests)

	// assigned teacher may read, others may not
	rec, _ = api.do(t, http.MethodGet, "/api/students/s1", teacher("t1"), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = api.do(t, http.MethodGet, "/api/students/s1", teacher("t2"), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, resp = api.do(t, http.MethodPatch, "/api/students/s1", student("s1"), map[string]any{"xp": 1000})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "xp is not student-editable")
	assert.Equal(t, "invalid_request", resp.Error.Code)
}

func TestTeacherAlerts(t *testing.T) {
	api := newTestAPI(t, nil, nil)
	ctx := context.Background()
	a, err := alert.NewAlert(alert.NewAlertParams{
		ID: "a1", TeacherID: "t1", StudentID: "s1", Kind: alert.KindInactive,
		Title: "Priya has been inactive", Description: "No messages for 3 days",
	})
	require.NoError(t, err)
	require.NoError(t, api.store.Alerts.Insert(ctx, a))

	rec, _ := api.do(t, http.MethodGet, "/api/teachers/t1/alerts", anonymous, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec, _ = api.do(t, http.MethodGet, "/api/teachers/t1/alerts", teacher("t2"), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec, _ = api.do(t, http.MethodGet, "/api/teachers/t1/alerts", student("s1"), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, resp := api.do(t, http.MethodGet, "/api/teachers/t1/alerts?unread=true", teacher("t1"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var alerts []query.AlertDTO
	decode(t, resp.Data, &alerts)
	require.Len(t, alerts, 1)
	assert.Equal(t, "inactive", alerts[0].Kind)

	rec, _ = api.do(t, http.MethodPost, "/api/alerts/a1/read", teacher("t2"), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, resp = api.do(t, http.MethodPost, "/api/alerts/a1/read", teacher("t1"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var read query.AlertDTO
	decode(t, resp.Data, &read)
	assert.True(t, read.IsRead)
	assert.NotNil(t, read.ReadAt)

	rec, resp = api.do(t, http.MethodGet, "/api/teachers/t1/alerts?unread=true", teacher("t1"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, resp.Data, &alerts)
	assert.Empty(t, alerts)

	rec, _ = api.do(t, http.MethodPost, "/api/alerts/missing/read", teacher("t1"), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStudentNotifications_RequireOwner(t *testing.T) {
	api := newTestAPI(t, nil, nil)

	rec, resp := api.do(t, http.MethodGet, "/api/students/s1/notifications", student("s1"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []query.NotificationDTO
	decode(t, resp.Data, &list)
	assert.Empty(t, list)

	rec, _ = api.do(t, http.MethodGet, "/api/students/s1/notifications", student("s2"), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec, _ = api.do(t, http.MethodPost, "/api/notifications/n1/read", teacher("t1"), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestPractice_Validation(t *testing.T) {
	api := newTestAPI(t, nil, nil)

	rec, resp := api.do(t, http.MethodPost, "/api/practice/generate", anonymous, map[string]any{
		"subject": "math", "difficulty": "extreme", "question_count": 3,
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "oneof=easy medium hard", resp.Error.Fields["difficulty"])
	assert.Equal(t, "min=5", resp.Error.Fields["question_count"])

	rec, _ = api.do(t, http.MethodPost, "/api/practice/generate", anonymous, map[string]any{
		"subject": "astrology", "question_count": 5,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, api.provider.CallCount())
}

func TestAdmin(t *testing.T) {
	api := newTestAPI(t, nil, nil)
	p, err := profile.NewStudentProfile(profile.NewStudentParams{ID: "s1", DisplayName: "Priya"})
	require.NoError(t, err)
	require.NoError(t, api.store.Profiles.Create(context.Background(), p))

	rec, _ := api.do(t, http.MethodPut, "/api/admin/students/s1/streak", anonymous, map[string]int{"days": 4})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec, _ = api.do(t, http.MethodPut, "/api/admin/students/s1/streak", anonymous, map[string]int{"days": 4},
		HeaderAdminToken, "wrong")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, resp := api.do(t, http.MethodPut, "/api/admin/students/s1/streak", anonymous, map[string]int{"days": 4},
		HeaderAdminToken, adminToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out query.ProfileDTO
	decode(t, resp.Data, &out)
	assert.Equal(t, 4, out.StreakDays)

	rec, resp = api.do(t, http.MethodPut, "/api/admin/students/s1/xp", anonymous, map[string]any{"xp": 160, "reason": "import"},
		HeaderAdminToken, adminToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, resp.Data, &out)
	assert.Equal(t, 160, out.XP)
	assert.Equal(t, 3, out.Level)

	rec, _ = api.do(t, http.MethodPut, "/api/admin/students/s1/xp", anonymous, map[string]any{},
		HeaderAdminToken, adminToken)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = api.do(t, http.MethodPost, "/api/admin/jobs/daily_practice/run", anonymous, nil,
		HeaderAdminToken, adminToken)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []string{"daily_practice"}, api.jobs.ran)
}

func TestAdmin_DisabledWithoutHash(t *testing.T) {
	api := newTestAPI(t, nil, func(c *Config) { c.AdminTokenHash = "" })
	rec, _ := api.do(t, http.MethodPost, "/api/admin/jobs/daily_practice/run", anonymous, nil,
		HeaderAdminToken, adminToken)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, api.jobs.ran)
}

func TestHealth(t *testing.T) {
	checker := handlers.NewCompositeHealthChecker("test")
	checker.AddCheck("database", func(context.Context) error { return nil })
	checker.AddOptionalCheck("redis", func(context.Context) error { return errors.New("connection refused") })

	srv := NewServer(DefaultConfig(), Dependencies{Logger: logger.Nop(), HealthChecker: checker})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp JSONResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	var status handlers.HealthStatus
	decode(t, resp.Data, &status)
	assert.True(t, status.Healthy)
	assert.True(t, status.Degraded)
	assert.False(t, status.Checks["redis"].Healthy)

	checker.AddCheck("database", func(context.Context) error { return errors.New("down") })
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRequestIDAndHeaders(t *testing.T) {
	srv := NewServer(DefaultConfig(), Dependencies{Logger: logger.Nop()})

	req := httptest.NewRequest(http.MethodGet, "/api/", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	var resp JSONResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "req-42", resp.RequestID)
}

func TestRateLimitMiddleware(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RateLimitPerMinute = 2
	srv := NewServer(cfg, Dependencies{Logger: logger.Nop()})

	call := func(id string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/live", nil)
		req.Header.Set(HeaderSubjectID, id)
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		return rec.Code
	}
	assert.Equal(t, http.StatusOK, call("s1"))
	assert.Equal(t, http.StatusOK, call("s1"))
	assert.Equal(t, http.StatusTooManyRequests, call("s1"))
	assert.Equal(t, http.StatusOK, call("s2"), "limits are per subject")
}

func TestRateLimiter_WindowAndEviction(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	rl := newRateLimiter(1, time.Minute, 2)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.Equal(t, time.Minute, rl.RetryAfter("a"))

	now = now.Add(time.Minute)
	assert.True(t, rl.Allow("a"), "new window")

	rl.Allow("b")
	rl.Allow("c")
	assert.Equal(t, 2, rl.Tracked())
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{forbidden("x", "y", "no"), http.StatusForbidden},
		{unauthorized("x", "y"), http.StatusUnauthorized},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		got, _ := statusFor(tc.err)
		assert.Equal(t, tc.want, got, tc.err.Error())
	}
}
