package transport

import "net/http"

// AuditRecorder is what handlers use to leave an audit trail after a
// successful mutation.
type AuditRecorder interface {
	RecordRequest(r *http.Request, action, resourceType string, resourceID int64, details interface{})
}

type NoopAuditRecorder struct{}

func (NoopAuditRecorder) RecordRequest(*http.Request, string, string, int64, interface{}) {}
