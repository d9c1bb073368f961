package model

import "time"

// ReservationStatus enumerates the reservation state machine.  A
// reservation is "active" while in_cart, reserved or in_queue; the
// remaining statuses are terminal and a record never leaves them.
type ReservationStatus string

const (
    StatusInCart    ReservationStatus = "in_cart"
    StatusReserved  ReservationStatus = "reserved"
    StatusInQueue   ReservationStatus = "in_queue"
    StatusExpired   ReservationStatus = "expired"
    StatusSold      ReservationStatus = "sold"
    StatusCancelled ReservationStatus = "cancelled"
)

// Terminal reports whether s permits no further transitions.
func (s ReservationStatus) Terminal() bool {
    return s == StatusExpired || s == StatusSold || s == StatusCancelled
}

// Active reports whether s counts toward the per-release holder set.
func (s ReservationStatus) Active() bool {
    return s == StatusInCart || s == StatusReserved || s == StatusInQueue
}

// Reservation binds one catalog release to at most one active holder.
// For a given release at most one reservation is the primary holder
// (in_cart or reserved); further sessions wanting the same release
// queue behind it with strictly increasing, gap-free positions.
//
// Fields:
//  ID              – primary key identifier.
//  ReleaseID       – catalog release being reserved.
//  SessionID       – holder's session.
//  Status          – current state (see ReservationStatus).
//  PositionInQueue – 1-based queue slot; nil unless Status is in_queue.
//  ReservedAt      – creation timestamp.
//  ExpiresAt       – when an unrenewed hold lapses; nil for queued and
//                    terminal entries.
type Reservation struct {
    ID              uint64            `json:"id"`                          // reservations.id
    ReleaseID       uint64            `json:"release_id"`                  // reservations.release_id
    SessionID       string            `json:"session_id"`                  // reservations.session_id
    Status          ReservationStatus `json:"status"`                      // reservations.status
    PositionInQueue *uint32           `json:"position_in_queue,omitempty"` // reservations.position_in_queue (nullable)
    ReservedAt      time.Time         `json:"reserved_at"`                 // reservations.reserved_at
    ExpiresAt       *time.Time        `json:"expires_at,omitempty"`        // reservations.expires_at (nullable)
}
