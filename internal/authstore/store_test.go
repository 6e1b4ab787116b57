package authstore

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "auth.json")
	s, err := Open(path)
	require.NoError(t, err)
	return s
}

// scenario A: signed-token happy path, and a tampered signature rejects.
func TestSignedTokenHappyPath(t *testing.T) {
	s := newTestStore(t)
	var tok Token
	for i := range tok {
		tok[i] = 0x42
	}
	sess := &Session{ID: "default", Name: "default", Role: RoleEditor, Token: tok, CreatedAt: time.Now()}
	s.d.Sessions[sess.ID] = sess

	signed, err := s.Mint(sess)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, countDots(signed), 2)

	v := s.Verify(signed)
	assert.Equal(t, RoleEditor, v.Role)
	assert.Equal(t, "default", v.SessionID)

	tampered := signed[:len(signed)-1] + flip(signed[len(signed)-1])
	assert.Equal(t, none, s.Verify(tampered))
}

// scenario B: a token signed with session A's key does not verify once the
// claimed session id instead resolves to a different permanent token.
func TestCrossSessionHMACIsolation(t *testing.T) {
	s := newTestStore(t)

	var tokA Token
	for i := range tokA {
		tokA[i] = 0x42
	}
	sessA := &Session{ID: "default", Role: RoleEditor, Token: tokA, CreatedAt: time.Now()}

	signed, err := s.Mint(sessA)
	require.NoError(t, err)

	var tokB Token
	for i := range tokB {
		tokB[i] = 0x99
	}
	s.d.Sessions["default"] = &Session{ID: "default", Role: RoleEditor, Token: tokB, CreatedAt: time.Now()}

	assert.Equal(t, none, s.Verify(signed))
}

// scenario C: presenting a permanent token mints a signed token that itself
// verifies to the same role and session.
func TestPermanentTokenExchange(t *testing.T) {
	s := newTestStore(t)
	var tok Token
	for i := range tok {
		tok[i] = 0x42
	}
	sess := &Session{ID: "default", Role: RoleEditor, Token: tok, CreatedAt: time.Now()}
	s.d.Sessions[sess.ID] = sess

	v := s.Verify(tok.Hex())
	require.Equal(t, RoleEditor, v.Role)
	require.Equal(t, "default", v.SessionID)

	signed, err := s.Mint(sess)
	require.NoError(t, err)

	v2 := s.Verify(signed)
	assert.Equal(t, RoleEditor, v2.Role)
	assert.Equal(t, "default", v2.SessionID)
}

func TestVerifyEmptyIsNone(t *testing.T) {
	s := newTestStore(t)
	assert.Equal(t, none, s.Verify(""))
}

func TestShareLinkValidityAndUseCount(t *testing.T) {
	s := newTestStore(t)
	maxUses := 2
	hexTok, err := s.CreateShareLink(RoleViewer, nil, &maxUses, "demo")
	require.NoError(t, err)

	v := s.Verify(hexTok)
	assert.Equal(t, RoleViewer, v.Role)
	assert.Empty(t, v.SessionID)

	v2 := s.Verify(hexTok)
	assert.Equal(t, RoleViewer, v2.Role)

	// third use exceeds max_uses
	v3 := s.Verify(hexTok)
	assert.Equal(t, none, v3)
}

func TestRevokeShareLink(t *testing.T) {
	s := newTestStore(t)
	hexTok, err := s.CreateShareLink(RoleViewer, nil, nil, "")
	require.NoError(t, err)

	removed, err := s.RevokeShareLink(hexTok)
	require.NoError(t, err)
	assert.True(t, removed)

	assert.Equal(t, none, s.Verify(hexTok))
}

func TestAdminPasswordSetAndVerify(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SetAdminPassword("correct horse battery staple"))
	assert.True(t, s.VerifyAdminPassword("correct horse battery staple"))
	assert.False(t, s.VerifyAdminPassword("wrong"))
	assert.True(t, s.AuthRequired())
}

func TestFindOrCreateOAuthSessionIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	sess1, err := s.FindOrCreateOAuthSession("github", "1234", "octocat")
	require.NoError(t, err)

	sess2, err := s.FindOrCreateOAuthSession("github", "1234", "octocat")
	require.NoError(t, err)

	assert.Equal(t, sess1.ID, sess2.ID)
}

func countDots(s string) int {
	n := 0
	for _, c := range s {
		if c == '.' {
			n++
		}
	}
	return n
}

func flip(b byte) string {
	if b == 'A' {
		return "B"
	}
	return "A"
}
