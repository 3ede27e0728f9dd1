// Package linktoken derives and verifies the unauthenticated capability
// tokens embedded in customer email links ("view my order", "refund my order").
//
// Tokens are deterministic: the same (order, purpose, secret) always yields
// the same token, so a link can be re-issued without any storage. Current
// tokens are compact HS256 JWTs carrying the order id, which makes lookup
// O(1). Links issued before that format used a 32-hex truncated SHA-256
// digest; those are still accepted and verified by re-deriving the digest.
package linktoken

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Purpose binds a token to one capability.
type Purpose string

const (
	PurposeView   Purpose = "view"
	PurposeRefund Purpose = "refund"
)

func (p Purpose) Valid() bool { return p == PurposeView || p == PurposeRefund }

// Kind is the detected shape of a presented token.
type Kind int

const (
	KindMalformed Kind = iota
	KindSigned
	KindLegacy
)

// DefaultSecret is used when no signing secret is configured.
const DefaultSecret = "fallback-secret"

// LegacyLength is the length of a legacy digest token.
const LegacyLength = 32

const legacySalt = "static-salt"

var (
	ErrMalformed    = errors.New("linktoken: malformed token")
	ErrInvalid      = errors.New("linktoken: invalid token")
	ErrWrongPurpose = errors.New("linktoken: token issued for another purpose")
)

// Claims is the payload of a signed link token. No expiry is set: links in
// already-sent emails must keep working.
type Claims struct {
	OrderID string  `json:"oid"`
	Purpose Purpose `json:"pur"`
	jwt.RegisteredClaims
}

// Codec derives and verifies tokens for a single secret.
type Codec struct {
	secret []byte
	parser *jwt.Parser
}

// New returns a Codec. An empty secret falls back to DefaultSecret.
func New(secret string) *Codec {
	if secret == "" {
		secret = DefaultSecret
	}
	return &Codec{
		secret: []byte(secret),
		parser: jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})),
	}
}

// Derive returns the signed token for (orderID, purpose).
func (c *Codec) Derive(orderID string, purpose Purpose) string {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{OrderID: orderID, Purpose: purpose})
	s, err := tok.SignedString(c.secret)
	if err != nil {
		// HS256 over a non-empty []byte key does not fail.
		panic("linktoken: sign: " + err.Error())
	}
	return s
}

// LegacyDigest returns the pre-JWT digest token for (orderID, purpose).
func (c *Codec) LegacyDigest(orderID string, purpose Purpose) string {
	sum := sha256.Sum256([]byte(orderID + "-" + string(purpose) + "-" + legacySalt + string(c.secret)))
	return hex.EncodeToString(sum[:])[:LegacyLength]
}

// Detect classifies token by shape only. It never touches the secret.
func Detect(token string) Kind {
	switch {
	case isLegacy(token):
		return KindLegacy
	case strings.Count(token, ".") == 2 && len(token) < 1024:
		return KindSigned
	default:
		return KindMalformed
	}
}

func isLegacy(token string) bool {
	if len(token) != LegacyLength {
		return false
	}
	for i := 0; i < len(token); i++ {
		ch := token[i]
		if (ch < '0' || ch > '9') && (ch < 'a' || ch > 'f') {
			return false
		}
	}
	return true
}

// Parse validates a signed token and returns its claims, checking that it
// was issued for purpose.
func (c *Codec) Parse(token string, purpose Purpose) (Claims, error) {
	if Detect(token) != KindSigned {
		return Claims{}, ErrMalformed
	}
	var claims Claims
	_, err := c.parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return c.secret, nil
	})
	if err != nil {
		return Claims{}, errors.Join(ErrInvalid, err)
	}
	if claims.OrderID == "" || !claims.Purpose.Valid() {
		return Claims{}, ErrInvalid
	}
	if claims.Purpose != purpose {
		return Claims{}, ErrWrongPurpose
	}
	return claims, nil
}

// Verify reports whether token grants purpose on orderID. Both token
// formats are accepted; comparison of legacy digests is constant-time.
func (c *Codec) Verify(token, orderID string, purpose Purpose) bool {
	switch Detect(token) {
	case KindLegacy:
		want := c.LegacyDigest(orderID, purpose)
		return subtle.ConstantTimeCompare([]byte(want), []byte(token)) == 1
	case KindSigned:
		claims, err := c.Parse(token, purpose)
		return err == nil && claims.OrderID == orderID
	default:
		return false
	}
}
