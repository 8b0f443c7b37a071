package http

import (
	"context"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// ══════════════════════════════════════════════════════════════════════════════
// CALLER IDENTITY
// Authentication happens upstream; the gateway forwards the verified subject
// in headers. This layer only reads them and checks ownership.
// ══════════════════════════════════════════════════════════════════════════════

const (
	HeaderSubjectID   = "X-Subject-ID"
	HeaderSubjectRole = "X-Subject-Role"
	HeaderAdminToken  = "X-Admin-Token"
)

// Role of the authenticated caller.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
)

// Caller is the subject forwarded by the gateway.
type Caller struct {
	ID   string
	Role Role
}

// Anonymous reports whether no identity was forwarded.
func (c Caller) Anonymous() bool { return c.ID == "" }

// IsStudent reports whether the caller is the given student.
func (c Caller) IsStudent(id string) bool {
	return c.Role == RoleStudent && c.ID == id
}

// IsTeacher reports whether the caller is the given teacher.
func (c Caller) IsTeacher(id string) bool {
	return c.Role == RoleTeacher && c.ID == id
}

// studentScope returns the id used for ownership checks. Teachers and
// anonymous callers are not bound to a student.
func (c Caller) studentScope() string {
	if c.Role == RoleStudent {
		return c.ID
	}
	return ""
}

const contextKeyCaller contextKey = "caller"

func callerFromRequest(r *http.Request) Caller {
	id := strings.TrimSpace(r.Header.Get(HeaderSubjectID))
	if id == "" {
		return Caller{}
	}
	role := Role(strings.ToLower(strings.TrimSpace(r.Header.Get(HeaderSubjectRole))))
	if role != RoleTeacher {
		role = RoleStudent
	}
	return Caller{ID: id, Role: role}
}

// callerFrom extracts the caller stored by identityMiddleware.
func callerFrom(ctx context.Context) Caller {
	if c, ok := ctx.Value(contextKeyCaller).(Caller); ok {
		return c
	}
	return Caller{}
}

// identityMiddleware stores the forwarded subject in the request context.
func (s *Server) identityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), contextKeyCaller, callerFromRequest(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// ADMIN GUARD
// ══════════════════════════════════════════════════════════════════════════════

// adminGuard checks X-Admin-Token against a bcrypt hash. An empty hash turns
// the admin surface off.
type adminGuard struct {
	hash []byte
}

func newAdminGuard(tokenHash string) *adminGuard {
	return &adminGuard{hash: []byte(strings.TrimSpace(tokenHash))}
}

func (g *adminGuard) enabled() bool { return len(g.hash) > 0 }

func (g *adminGuard) allow(token string) bool {
	if !g.enabled() || token == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword(g.hash, []byte(token)) == nil
}

// requireAdmin wraps admin endpoints.
func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.admin.enabled() {
			writeJSONError(w, r, http.StatusNotFound, "not_found", "admin endpoints are disabled")
			return
		}
		if !s.admin.allow(r.Header.Get(HeaderAdminToken)) {
			writeJSONError(w, r, http.StatusUnauthorized, "unauthorized", "invalid admin token")
			return
		}
		next(w, r)
	}
}
