// Package queue defines the audit events exchanged over the message broker
// together with their publisher and consumer.
package queue

import "time"

// AuditQueueName is the durable queue audit events are published to.
const AuditQueueName = "seating.audit"

// Audit event types.
const (
    EventImport   = "import"
    EventAssign   = "assign"
    EventUnassign = "unassign"
)

// AuditEvent is published after every change to the seating plan.  It
// carries enough information for downstream consumers to keep an audit
// trail without querying the primary database.  Import events fill
// BatchID, Source and Rows; assignment events fill the seat fields.
type AuditEvent struct {
    Type        string `json:"type"`
    BatchID     string `json:"batch_id,omitempty"`
    Source      string `json:"source,omitempty"`
    Rows        int    `json:"rows,omitempty"`
    RoomCode    string `json:"room_code,omitempty"`
    SeatNo      string `json:"seat_no,omitempty"`
    EnrolmentNo string `json:"enrolment_no,omitempty"`
    Actor       string `json:"actor,omitempty"`
    At          string `json:"at"`
}

// Stamp sets At to the current UTC time in RFC 3339 format.
func (e AuditEvent) Stamp() AuditEvent {
    e.At = time.Now().UTC().Format(time.RFC3339)
    return e
}
