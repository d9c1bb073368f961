// Package repository defines the closed set of error kinds shared by
// the storage layer and the business packages built on top of it.
// Callers are expected to match these sentinels with errors.Is and to
// handle every kind; new failure modes must be added here rather than
// invented ad hoc so the mapping to HTTP statuses stays in one place.
package repository

import "errors"

// ErrNotFound is returned when a session or reservation id does not
// resolve to a row. On the session path handlers recover from it by
// redirecting to session creation, never by surfacing a hard failure.
var ErrNotFound = errors.New("not found")

// ErrExpired is returned when a session exists but its expires_at has
// passed. Gating treats it exactly like ErrNotFound; it is reported
// distinctly for diagnostics only.
var ErrExpired = errors.New("session expired")

// ErrUnauthorized is returned when the acting session does not own the
// resource it is mutating, or lacks the admin role required for an
// override. Handlers translate this into an HTTP 403 response.
var ErrUnauthorized = errors.New("unauthorized")

// ErrInvalidTransition is returned when a reservation is asked to move
// to a status its current status does not permit (e.g. selling a
// queued entry). State is left untouched.
var ErrInvalidTransition = errors.New("invalid transition")

// ErrDuplicateActiveSession is returned by session creation when an
// unexpired session already exists for the same (alias, role) pair.
// The lifecycle manager treats it as a signal to reuse that session.
var ErrDuplicateActiveSession = errors.New("active session exists for alias")

// ErrConflict is returned when a write is rejected by a uniqueness
// constraint, such as a second primary reservation for the same
// release racing a concurrent insert. The reservation engine
// translates it into "queue instead of reserve".
var ErrConflict = errors.New("conflict")

// ErrAuditWrite is returned when an admin override applied its state
// change but the accompanying audit entry could not be written even
// after a retry. The transition stands; the omission must be logged
// for operator follow-up.
var ErrAuditWrite = errors.New("audit write failed")

// ErrStorage wraps any other database failure. Idempotent reads may be
// retried once; non-idempotent writes must not be blindly retried —
// callers re-derive current state first.
var ErrStorage = errors.New("storage failure")
