package authstore

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/termweb-dev/termweb-core/internal/logger"
)

// Verdict is the outcome of classifying a bearer credential, per spec.md
// §4.1's verify() contract: a role, and the session id behind it when the
// credential identifies one (a share link carries a role with no session).
type Verdict struct {
	Role      Role
	SessionID string // empty unless the credential resolved to a session
}

// none is the zero-value verdict returned for any malformed, expired, or
// unrecognized credential. verify() never errors; it only ever classifies.
var none = Verdict{Role: RoleNone}

// Store is the process-wide Token/Identity Store (spec.md §4.1). All
// mutating operations, and reads that race with them, go through mu — a
// single mutex with short critical sections, matching spec.md §5's "no
// reader/writer distinction — contention is low."
type Store struct {
	mu   sync.Mutex
	path string
	d    *data

	signed *signedTokenManager
}

// Open loads the AuthState file at path, or starts a fresh one if absent,
// per spec.md §3's "initialized at startup (load or create)".
func Open(path string) (*Store, error) {
	d, err := loadState(path)
	if err != nil {
		return nil, err
	}
	return &Store{
		path:   path,
		d:      d,
		signed: newSignedTokenManager(),
	}, nil
}

// saveLocked persists the current state. Caller must hold mu.
func (s *Store) saveLocked() error {
	if err := saveState(s.path, s.d); err != nil {
		logger.Security().Error().Err(err).Msg("auth state persistence failed")
		return err
	}
	return nil
}

// IssuePermanent creates a new session with a freshly generated permanent
// token, persists it, and returns the handle (spec.md §4.1 issuePermanent).
func (s *Store) IssuePermanent(name string, role Role) (*Session, error) {
	tok, err := newToken()
	if err != nil {
		return nil, err
	}
	sess := &Session{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: time.Now().UTC(),
		Role:      role,
		Token:     tok,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.d.Sessions[sess.ID] = sess
	if err := s.saveLocked(); err != nil {
		return nil, err
	}
	return sess, nil
}

// Verify classifies a bearer credential per spec.md §4.1's verify(): empty
// input, a signed (header.payload.signature) token, a 64-hex permanent
// token or share-link token, or none of the above.
func (s *Store) Verify(token string) Verdict {
	if token == "" {
		return none
	}
	if looksLikeSignedToken(token) {
		return s.verifySigned(token)
	}
	if len(token) == tokenSize*2 {
		return s.verifyHex(token)
	}
	return none
}

// verifyHex handles the 64-hex-char branch: constant-time compare against
// every session's permanent token, then every share link's token.
func (s *Store) verifyHex(hexToken string) Verdict {
	want, ok := tokenFromHex(hexToken)
	if !ok {
		return none
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sess := range s.d.Sessions {
		if subtle.ConstantTimeCompare(sess.Token[:], want[:]) == 1 {
			return Verdict{Role: sess.Role, SessionID: sess.ID}
		}
	}
	for _, link := range s.d.ShareLinks {
		if subtle.ConstantTimeCompare(link.Token[:], want[:]) != 1 {
			continue
		}
		if !link.Valid(time.Now().UTC()) {
			return none
		}
		link.UseCount++
		_ = s.saveLocked()
		return Verdict{Role: link.Role}
	}
	return none
}

// verifySigned handles the signed-token branch by delegating to the
// signedTokenManager, which looks up the claimed session's permanent token
// as the HMAC verification key (see signedtoken.go).
func (s *Store) verifySigned(token string) Verdict {
	sessionID, ok := s.signed.verify(token, s.sessionTokenLookup)
	if !ok {
		return none
	}
	s.mu.Lock()
	sess, exists := s.d.Sessions[sessionID]
	s.mu.Unlock()
	if !exists {
		return none
	}
	return Verdict{Role: sess.Role, SessionID: sess.ID}
}

// sessionTokenLookup returns the permanent token for sessionID, used as the
// per-session HMAC key by both mint and verifySigned.
func (s *Store) sessionTokenLookup(sessionID string) (Token, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.d.Sessions[sessionID]
	if !ok {
		return Token{}, false
	}
	return sess.Token, true
}

// Mint issues a short-lived signed token for sess, per spec.md §4.1's mint().
func (s *Store) Mint(sess *Session) (string, error) {
	return s.signed.mint(sess.ID, sess.Token)
}

// SessionByID returns a copy of the session record, or false if absent.
func (s *Store) SessionByID(id string) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.d.Sessions[id]
	if !ok {
		return Session{}, false
	}
	return *sess, true
}

// CreateShareLink mints a new bearer credential not bound to any session,
// per spec.md §4.1's createShareLink().
func (s *Store) CreateShareLink(role Role, expiresIn *time.Duration, maxUses *int, label string) (string, error) {
	tok, err := newToken()
	if err != nil {
		return "", err
	}
	link := &ShareLink{
		Token:     tok,
		Role:      role,
		CreatedAt: time.Now().UTC(),
		MaxUses:   maxUses,
		Label:     label,
	}
	if expiresIn != nil {
		t := link.CreatedAt.Add(*expiresIn)
		link.ExpiresAt = &t
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.d.ShareLinks = append(s.d.ShareLinks, link)
	if err := s.saveLocked(); err != nil {
		return "", err
	}
	return tok.Hex(), nil
}

// RevokeShareLink removes the share link whose token matches hexToken,
// using a constant-time comparison per spec.md §4.1's revokeShareLink().
func (s *Store) RevokeShareLink(hexToken string) (bool, error) {
	want, ok := tokenFromHex(hexToken)
	if !ok {
		return false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, link := range s.d.ShareLinks {
		if subtle.ConstantTimeCompare(link.Token[:], want[:]) == 1 {
			s.d.ShareLinks = append(s.d.ShareLinks[:i], s.d.ShareLinks[i+1:]...)
			if err := s.saveLocked(); err != nil {
				return false, err
			}
			return true, nil
		}
	}
	return false, nil
}

// SetAdminPassword stores a salted hash of pw and enables auth_required,
// per spec.md §4.1's setAdminPassword(): "random 32-byte salt; store
// salt || SHA-256(salt || pw)".
func (s *Store) SetAdminPassword(pw string) error {
	var salt [32]byte
	if _, err := rand.Read(salt[:]); err != nil {
		return fmt.Errorf("generate salt: %w", err)
	}
	h := sha256.New()
	h.Write(salt[:])
	h.Write([]byte(pw))
	sum := h.Sum(nil)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.d.AdminPasswordHash = hex.EncodeToString(salt[:]) + hex.EncodeToString(sum)
	s.d.AuthRequired = true
	return s.saveLocked()
}

// ClearAdminPassword removes the admin password, dropping auth_required if
// no passkey credentials remain to require it.
func (s *Store) ClearAdminPassword() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.d.AdminPasswordHash = ""
	s.d.AuthRequired = len(s.d.Passkeys) > 0
	return s.saveLocked()
}

// VerifyAdminPassword constant-time compares pw against the stored salted
// hash. Returns false if no admin password is set.
func (s *Store) VerifyAdminPassword(pw string) bool {
	s.mu.Lock()
	stored := s.d.AdminPasswordHash
	s.mu.Unlock()
	if len(stored) != 128 {
		return false
	}
	raw, err := hex.DecodeString(stored)
	if err != nil {
		return false
	}
	salt, want := raw[:32], raw[32:]
	h := sha256.New()
	h.Write(salt)
	h.Write([]byte(pw))
	got := h.Sum(nil)
	return subtle.ConstantTimeCompare(got, want) == 1
}

// FindOrCreateOAuthSession implements spec.md §4.1's
// findOrCreateOAuthSession(): a linear scan for a matching
// (provider, provider_user_id) pair, creating a session with the
// configured default role when no match exists.
func (s *Store) FindOrCreateOAuthSession(provider, providerUserID, displayName string) (*Session, error) {
	s.mu.Lock()
	for _, sess := range s.d.Sessions {
		if sess.Provider == provider && sess.ProviderUserID == providerUserID {
			s.mu.Unlock()
			return sess, nil
		}
	}
	defaultRole := s.d.OAuth.DefaultRole
	s.mu.Unlock()

	tok, err := newToken()
	if err != nil {
		return nil, err
	}
	sess := &Session{
		ID:             uuid.NewString(),
		Name:           displayName,
		CreatedAt:      time.Now().UTC(),
		Role:           defaultRole,
		Token:          tok,
		Provider:       provider,
		ProviderUserID: providerUserID,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.d.Sessions[sess.ID] = sess
	if err := s.saveLocked(); err != nil {
		return nil, err
	}
	return sess, nil
}

// OAuthProviderCreds returns the configured client id/secret for provider,
// and whether the provider is configured at all.
func (s *Store) OAuthProviderCreds(provider string) (ProviderCreds, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch provider {
	case "github":
		if s.d.OAuth.GitHub == nil {
			return ProviderCreds{}, false
		}
		return *s.d.OAuth.GitHub, true
	case "google":
		if s.d.OAuth.Google == nil {
			return ProviderCreds{}, false
		}
		return *s.d.OAuth.Google, true
	default:
		return ProviderCreds{}, false
	}
}

// SetOAuthProvider configures a provider's client credentials.
func (s *Store) SetOAuthProvider(provider string, creds ProviderCreds) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch provider {
	case "github":
		s.d.OAuth.GitHub = &creds
	case "google":
		s.d.OAuth.Google = &creds
	default:
		return fmt.Errorf("unknown oauth provider %q", provider)
	}
	return s.saveLocked()
}

// AuthRequired reports whether a credential must be presented at all.
func (s *Store) AuthRequired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.d.AuthRequired
}
