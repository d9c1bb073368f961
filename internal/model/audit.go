package model

import "time"

// Admin override actions recorded in the audit log.
const (
    AuditActionForceExpire = "force_expire"
    AuditActionForceSold   = "force_sold"
)

// AuditEntry models a row in the `reservation_audit` table.  Every
// admin override writes one entry alongside the state change so that
// forced transitions remain traceable to an operator and a reason.
//
// Fields:
//  ID            – primary key identifier.
//  ReservationID – reservation the override acted on.
//  AdminAlias    – alias of the admin session that forced the change.
//  Action        – one of the AuditAction constants.
//  Reason        – free-text operator justification.
//  CreatedAt     – when the override was applied.
type AuditEntry struct {
    ID            uint64    `json:"id"`             // reservation_audit.id
    ReservationID uint64    `json:"reservation_id"` // reservation_audit.reservation_id
    AdminAlias    string    `json:"admin_alias"`    // reservation_audit.admin_alias
    Action        string    `json:"action"`         // reservation_audit.action
    Reason        string    `json:"reason"`         // reservation_audit.reason
    CreatedAt     time.Time `json:"created_at"`     // reservation_audit.created_at
}
