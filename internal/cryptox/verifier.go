// Package cryptox implements the link token codec and the revoke-token
// verifier.
package cryptox

import (
	"crypto/subtle"

	"golang.org/x/crypto/argon2"
)

// RevokeVerifier derives the value stored in place of a revoke token.
// The file hash doubles as the argon2 salt so equal revoke tokens on
// different files never share a verifier.
func RevokeVerifier(revokeToken, fileHash string) []byte {
	return argon2.IDKey([]byte(revokeToken), []byte(fileHash), 1, 64*1024, 4, 32)
}

// CheckRevokeToken reports whether candidate matches the stored verifier.
func CheckRevokeToken(candidate, fileHash string, verifier []byte) bool {
	if len(verifier) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare(RevokeVerifier(candidate, fileHash), verifier) == 1
}
