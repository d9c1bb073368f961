package model

import "time"

// Release represents a vinyl record in the `releases` catalog table.
// Catalog rows are read-only from this service's point of view; the
// reservation engine only needs their identity and price, the rest is
// carried for the browse endpoints.
//
// Fields:
//  ID         – primary key identifier.
//  Title      – record title.
//  Artists    – comma-joined artist credits as stored.
//  Condition  – media condition grading (e.g. "VG+", "NM").
//  PriceCents – asking price in cents.
//  Year       – release year when known.
//  Country    – pressing country when known.
//  CreatedAt  – creation timestamp.
//  UpdatedAt  – last update timestamp.
type Release struct {
    ID         uint64    `json:"id"`                // releases.id
    Title      string    `json:"title"`             // releases.title
    Artists    string    `json:"artists"`           // releases.artists
    Condition  string    `json:"condition"`         // releases.condition
    PriceCents uint32    `json:"price_cents"`       // releases.price_cents
    Year       *uint16   `json:"year,omitempty"`    // releases.year (nullable)
    Country    *string   `json:"country,omitempty"` // releases.country (nullable)
    CreatedAt  time.Time `json:"created_at"`        // releases.created_at
    UpdatedAt  time.Time `json:"updated_at"`        // releases.updated_at
}
