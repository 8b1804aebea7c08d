// Package token implements the split invite token: a fixed-width opaque
// string whose first characters form a public lookup identifier and whose
// remainder is a secret that is only ever stored hashed. The lookup half gives
// O(1) retrieval; the hashed secret keeps tokens non-recoverable from a data
// dump.
package token

import (
	"errors"

	"github.com/envault/envault/pkg/crypto"
)

const (
	// LookupLength is the width of the public lookup identifier.
	LookupLength = 5
	// SecretLength is the width of the secret half.
	SecretLength = 5
	// EncodedLength is the total width of an encoded token.
	EncodedLength = LookupLength + SecretLength
)

// ErrInvalidToken is returned for any string that cannot be a token. The
// check is purely structural and runs before any storage access.
var ErrInvalidToken = errors.New("token: invalid token")

// Token is an immutable split token value.
type Token struct {
	lookupID string
	secret   string
}

// New generates a fresh random token.
func New() (Token, error) {
	raw, err := crypto.RandomToken(EncodedLength)
	if err != nil {
		return Token{}, err
	}
	return split(raw), nil
}

// Parse decodes a presented token string. Any string whose length differs
// from EncodedLength is rejected without further inspection.
func Parse(s string) (Token, error) {
	if len(s) != EncodedLength {
		return Token{}, ErrInvalidToken
	}
	return split(s), nil
}

func split(raw string) Token {
	return Token{
		lookupID: raw[:LookupLength],
		secret:   raw[LookupLength:],
	}
}

// LookupID returns the public half used as a storage index.
func (t Token) LookupID() string { return t.lookupID }

// Secret returns the secret half. Callers must only persist its hash.
func (t Token) Secret() string { return t.secret }

// String re-encodes the token into its wire form.
func (t Token) String() string { return t.lookupID + t.secret }
