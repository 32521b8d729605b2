package api

import (
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cashi/auth-core/internal/audit"
)

// handleListAuditLogs serves GET /audit-logs. Supported query parameters
// are action, outcome, username, from and to (RFC 3339), limit and
// offset.
func (s *Server) handleListAuditLogs(w http.ResponseWriter, r *http.Request) {
	if s.auditRepo == nil {
		writeNotFound(w, "audit logging not configured")
		return
	}

	filter, msg := auditFilterFromQuery(r.URL.Query())
	if msg != "" {
		writeBadRequest(w, msg)
		return
	}

	page, err := s.auditRepo.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing audit logs failed", "error", err)
		writeInternalError(w, "failed to list audit logs")
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// auditFilterFromQuery parses the list parameters. A non-empty message
// describes the first invalid one.
func auditFilterFromQuery(q url.Values) (audit.Filter, string) {
	f := audit.Filter{
		Action:   q.Get("action"),
		Outcome:  q.Get("outcome"),
		Username: q.Get("username"),
	}

	for _, p := range []struct {
		name string
		dst  *time.Time
	}{{"from", &f.From}, {"to", &f.To}} {
		if v := q.Get(p.name); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				return f, p.name + " must be an RFC 3339 timestamp"
			}
			*p.dst = t
		}
	}

	for _, p := range []struct {
		name string
		dst  *int
	}{{"limit", &f.Limit}, {"offset", &f.Offset}} {
		if v := q.Get(p.name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				return f, p.name + " must be a non-negative integer"
			}
			*p.dst = n
		}
	}
	return f, ""
}
