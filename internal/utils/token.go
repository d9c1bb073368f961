package utils // package utils provides helpers for session identifiers and transport tokens

import (
    "crypto/rand"  // secure random number generation
    "encoding/hex" // hex encoding for opaque identifiers
    "errors"
    "time"

    "github.com/golang-jwt/jwt/v5" // JWT library for creating signed tokens
)

// ErrBadToken is returned when a transport token fails signature or
// claim validation. Callers treat it like a missing token.
var ErrBadToken = errors.New("invalid transport token")

// TransportToken is the short-lived credential handed to the client
// alongside the durable session row. The Route Gate validates it on
// every request before the session store is consulted; it never
// outlives the session it mirrors.
type TransportToken struct {
    Token string    // the serialized JWT string
    Exp   time.Time // the UTC expiration time
}

// TokenClaims is what a valid transport token resolves to. The session
// id is authoritative for store lookups; alias and role are carried so
// middleware can gate admin routes without an extra read.
type TokenClaims struct {
    SessionID string
    Alias     string
    Role      string
}

// NewSessionID returns a 32-byte cryptographically random identifier
// encoded as 64 hex characters. Session ids are opaque and immutable.
func NewSessionID() (string, error) {
    b := make([]byte, 32)
    if _, err := rand.Read(b); err != nil {
        return "", err
    }
    return hex.EncodeToString(b), nil
}

// NewTransportToken builds and signs an HS256 JWT mirroring a session.
// The expiry is capped at the session's own expires_at so a token can
// never vouch for a session that is already gone.  Claims: sid (session
// id), alias, role, exp and iat.
func NewTransportToken(secret, sessionID, alias, role string, sessionExpiry time.Time) (TransportToken, error) {
    exp := sessionExpiry.UTC()
    claims := jwt.MapClaims{
        "sid":   sessionID,
        "alias": alias,
        "role":  role,
        "exp":   exp.Unix(),
        "iat":   time.Now().UTC().Unix(),
    }
    t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
    signed, err := t.SignedString([]byte(secret))
    if err != nil {
        return TransportToken{}, err
    }
    return TransportToken{Token: signed, Exp: exp}, nil
}

// ParseTransportToken validates the signature and expiry of a transport
// token and extracts its claims.  Only HMAC-signed tokens are accepted;
// anything else fails with ErrBadToken.
func ParseTransportToken(secret, raw string) (TokenClaims, error) {
    tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
        if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
            return nil, ErrBadToken
        }
        return []byte(secret), nil
    })
    if err != nil || !tok.Valid {
        return TokenClaims{}, ErrBadToken
    }
    claims, ok := tok.Claims.(jwt.MapClaims)
    if !ok {
        return TokenClaims{}, ErrBadToken
    }
    sid, _ := claims["sid"].(string)
    if sid == "" {
        return TokenClaims{}, ErrBadToken
    }
    alias, _ := claims["alias"].(string)
    role, _ := claims["role"].(string)
    return TokenClaims{SessionID: sid, Alias: alias, Role: role}, nil
}
