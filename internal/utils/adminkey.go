package utils

import "golang.org/x/crypto/bcrypt"

// HashAdminKey returns the bcrypt hash of a raw admin key using the
// given cost. Used by the provisioning tooling; the server only ever
// sees the hash via ADMIN_KEY_HASH.
func HashAdminKey(plain string, cost int) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// VerifyAdminKey safely compares the configured bcrypt hash against the
// key presented by a caller asking to mint an admin session. An empty
// hash disables admin minting entirely.
func VerifyAdminKey(hash, plain string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
