// Package queue defines message payloads exchanged over the message broker.
package queue

// ReservationChangedEvent is published after every committed
// reservation transition. It is a staleness signal, not a source of
// truth: consumers (other tabs, devices, back-office tooling) react by
// re-fetching authoritative state from the API rather than trusting
// the payload.
type ReservationChangedEvent struct {
    ReservationID   uint64  `json:"reservation_id"`
    ReleaseID       uint64  `json:"release_id"`
    SessionID       string  `json:"session_id"`
    Status          string  `json:"status"`
    PositionInQueue *uint32 `json:"position_in_queue,omitempty"`
    OccurredAt      string  `json:"occurred_at"`
}
