package model

import "time"

// Language enumerates the locale preferences a visitor may choose.
// The storefront ships with a Chilean Spanish default and an English
// fallback; the value is stored verbatim in user_sessions.preferred_language.
type Language string

const (
    LanguageSpanish Language = "es-CL" // Chilean Spanish (default)
    LanguageEnglish Language = "en-US" // English fallback
)

// ValidLanguage reports whether l is one of the supported locales.
func ValidLanguage(l Language) bool {
    return l == LanguageSpanish || l == LanguageEnglish
}

// Session roles.  A session is pseudonymous: the alias is a display
// name chosen by the visitor, not a credential.  Admin sessions are
// minted through a separate, policy-gated path.
const (
    RoleUser  = "user"
    RoleAdmin = "admin"
)

// Session represents a row in the `user_sessions` table.  A session
// identifies a visitor without authentication: the alias is free text
// and unique only per (alias, role) pair among unexpired sessions.
// Expiry is absolute — LastActive is refreshed by the heartbeat but
// never extends ExpiresAt.
//
// Fields:
//  ID         – opaque server-generated token (hex), immutable.
//  Alias      – pseudonymous display name, at most 30 characters.
//  Language   – preferred locale (es-CL or en-US).
//  Role       – "user" or "admin".
//  CreatedAt  – creation timestamp.
//  LastActive – last heartbeat timestamp.
//  ExpiresAt  – CreatedAt + 30 days, fixed at creation.
type Session struct {
    ID         string    `json:"id"`          // user_sessions.id
    Alias      string    `json:"alias"`       // user_sessions.alias
    Language   Language  `json:"language"`    // user_sessions.preferred_language
    Role       string    `json:"role"`        // user_sessions.role
    CreatedAt  time.Time `json:"created_at"`  // user_sessions.created_at
    LastActive time.Time `json:"last_active"` // user_sessions.last_active
    ExpiresAt  time.Time `json:"expires_at"`  // user_sessions.expires_at
}

// MaxAliasLen bounds the alias accepted at session creation.
const MaxAliasLen = 30

// SessionTTL is the absolute lifetime of a session from creation.
const SessionTTL = 30 * 24 * time.Hour
