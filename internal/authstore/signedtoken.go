package authstore

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// signedTokenHeaderPrefix is the fixed base64url encoding of
// {"alg":"HS256","typ":"JWT"} with no padding — the constant header spec.md
// §4.1's verify() uses to classify a token as "signed" rather than a raw
// 64-hex permanent token. golang-jwt/jwt/v5 emits exactly this header for
// jwt.SigningMethodHS256, so no custom encoding is needed to produce it.
const signedTokenHeaderPrefix = "eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9."

// signedTokenTTL is the signed-token lifetime spec.md §3 pins at 15 minutes.
const signedTokenTTL = 15 * time.Minute

// looksLikeSignedToken reports whether token is shaped like a signed token
// (begins with the fixed header) rather than a 64-hex permanent token.
func looksLikeSignedToken(token string) bool {
	return strings.HasPrefix(token, signedTokenHeaderPrefix)
}

// signedClaims is the payload spec.md §3 pins: `{"s":"<session_id>",
// "exp":<unix_seconds>}` — nothing else, and in particular no role, so a
// client can never read or tamper with its own privilege level.
type signedClaims struct {
	SessionID string `json:"s"`
	Exp       int64  `json:"exp"`
}

func (c signedClaims) GetExpirationTime() (*jwt.NumericDate, error) {
	return jwt.NewNumericDate(time.Unix(c.Exp, 0)), nil
}
func (c signedClaims) GetIssuedAt() (*jwt.NumericDate, error)  { return nil, nil }
func (c signedClaims) GetNotBefore() (*jwt.NumericDate, error) { return nil, nil }
func (c signedClaims) GetIssuer() (string, error)              { return "", nil }
func (c signedClaims) GetSubject() (string, error)              { return "", nil }
func (c signedClaims) GetAudience() (jwt.ClaimStrings, error)   { return nil, nil }

// signedTokenManager mints and verifies signed tokens, using each session's
// permanent token as that session's own HMAC-SHA256 key rather than one
// global server secret — see spec.md §4.1's rationale: compromising one
// session's key can't forge tokens for any other session, and rotating a
// session immediately invalidates its previously minted tokens.
//
// golang-jwt/jwt/v5 is built around a single verification key resolved by a
// keyFunc callback; its Parser populates token.Claims with the *unverified*
// payload before invoking keyFunc (see jwt/v5's parser.go), which is exactly
// the two-pass shape spec.md §4.1 describes for verifySigned: read the
// session id first, then resolve that session's key, then check the MAC.
type signedTokenManager struct{}

func newSignedTokenManager() *signedTokenManager { return &signedTokenManager{} }

// sessionKeyLookup resolves a session id to the permanent token used as its
// HMAC key. Returns false if the session doesn't exist.
type sessionKeyLookup func(sessionID string) (Token, bool)

// mint builds and signs a token for sessionID using key as the HMAC-SHA256
// signing key, per spec.md §4.1's mint().
func (m *signedTokenManager) mint(sessionID string, key Token) (string, error) {
	claims := signedClaims{
		SessionID: sessionID,
		Exp:       time.Now().Add(signedTokenTTL).Unix(),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(key[:])
}

var errSignedTokenInvalid = errors.New("signed token invalid")

// verify parses and validates token, resolving the signing key through
// lookup, and returns the session id on success. It never returns an error
// to the caller beyond a bare true/false — malformed input, unknown
// session, bad MAC, and expiry all collapse to the same "rejected" result,
// matching spec.md §4.1's "never throws" contract.
func (m *signedTokenManager) verify(token string, lookup sessionKeyLookup) (string, bool) {
	var claims signedClaims
	var resolvedID string

	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errSignedTokenInvalid
		}
		c, ok := t.Claims.(*signedClaims)
		if !ok || c.SessionID == "" {
			return nil, errSignedTokenInvalid
		}
		key, ok := lookup(c.SessionID)
		if !ok {
			return nil, errSignedTokenInvalid
		}
		resolvedID = c.SessionID
		return key[:], nil
	}, jwt.WithStrictDecoding())
	if err != nil || parsed == nil || !parsed.Valid {
		return "", false
	}
	if resolvedID == "" {
		return "", false
	}
	return resolvedID, true
}
