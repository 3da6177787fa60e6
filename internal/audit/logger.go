package audit

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/opencivics/hustings/internal/middleware"
)

var (
	// ErrNilRepository is returned when a nil repository is passed to logging functions.
	ErrNilRepository = errors.New("audit repository cannot be nil")
	// ErrInvalidEntityType is returned when an invalid entity type is provided.
	ErrInvalidEntityType = errors.New("entity type is not recognized")
	// ErrInvalidEntityID is returned when an invalid entity ID is provided.
	ErrInvalidEntityID = errors.New("entity ID cannot be empty")
	// ErrInvalidAction is returned when an invalid action is provided.
	ErrInvalidAction = errors.New("action is not recognized")
)

// Entity types that appear in audit records.
const (
	EntityQuestion = "question"
	EntityReport   = "report"
	EntityCluster  = "cluster"
)

// ValidEntityTypes defines the allowed entity types for audit logging.
var ValidEntityTypes = map[string]bool{
	EntityQuestion: true,
	EntityReport:   true,
	EntityCluster:  true,
}

// Auditable moderator actions.
const (
	ActionFlagQuestion    = "flag_question"
	ActionUnflagQuestion  = "unflag_question"
	ActionApproveQuestion = "approve_question"
	ActionRemoveQuestion  = "remove_question"
	ActionMergeQuestion   = "merge_question"
	ActionUnmergeQuestion = "unmerge_question"
	ActionFileReport      = "file_report"
	ActionResolveReport   = "resolve_report"
	ActionDismissReport   = "dismiss_report"
	ActionExportLog       = "export_audit_log"
)

// ValidActions defines the allowed actions for audit logging.
var ValidActions = map[string]bool{
	ActionFlagQuestion:    true,
	ActionUnflagQuestion:  true,
	ActionApproveQuestion: true,
	ActionRemoveQuestion:  true,
	ActionMergeQuestion:   true,
	ActionUnmergeQuestion: true,
	ActionFileReport:      true,
	ActionResolveReport:   true,
	ActionDismissReport:   true,
	ActionExportLog:       true,
}

// validateEntry validates the required fields of an entry against whitelists.
func validateEntry(entityType, entityID, action string) error {
	if entityType == "" || !ValidEntityTypes[entityType] {
		return ErrInvalidEntityType
	}
	if entityID == "" {
		return ErrInvalidEntityID
	}
	if action == "" || !ValidActions[action] {
		return ErrInvalidAction
	}
	return nil
}

// extractIPAddress extracts the client IP address from an HTTP request.
// It checks X-Forwarded-For, X-Real-IP, and RemoteAddr in that order.
// The port is stripped so the value stores cleanly.
func extractIPAddress(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		var firstIP string
		if idx := strings.Index(xff, ","); idx != -1 {
			firstIP = strings.TrimSpace(xff[:idx])
		} else {
			firstIP = strings.TrimSpace(xff)
		}
		if firstIP != "" {
			host, _, err := net.SplitHostPort(firstIP)
			if err != nil {
				return firstIP
			}
			return host
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		xri = strings.TrimSpace(xri)
		host, _, err := net.SplitHostPort(xri)
		if err != nil {
			return xri
		}
		return host
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RecordAction appends a moderator action to the audit log. Actor and
// request id come from the context when available.
//
// Audit writes are fail-closed: callers get the error back and decide
// whether the action stands without its audit record.
func RecordAction(ctx context.Context, repo Repository, actorID, entityType, entityID, action, outcome string) error {
	if repo == nil {
		return ErrNilRepository
	}
	if err := validateEntry(entityType, entityID, action); err != nil {
		return err
	}
	if actorID == "" {
		actorID = middleware.GetUserID(ctx)
	}

	_, err := repo.Append(Entry{
		ActorID:    actorID,
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		Outcome:    outcome,
		RequestID:  middleware.GetRequestID(ctx),
	})
	return err
}

// RecordFromRequest appends an audit record with HTTP request metadata:
// actor, request id, client IP and user agent.
func RecordFromRequest(r *http.Request, repo Repository, entityType, entityID, action, outcome string) error {
	if repo == nil {
		return ErrNilRepository
	}
	if err := validateEntry(entityType, entityID, action); err != nil {
		return err
	}

	_, err := repo.Append(Entry{
		ActorID:    middleware.GetUserID(r.Context()),
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		Outcome:    outcome,
		RequestID:  middleware.GetRequestID(r.Context()),
		IPAddress:  extractIPAddress(r),
		UserAgent:  r.UserAgent(),
	})
	return err
}
