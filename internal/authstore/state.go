package authstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ProviderCreds is an OAuth application's client id/secret pair for one
// provider, per spec.md §3's AuthState.oauth_provider_configurations.
type ProviderCreds struct {
	ClientID     string
	ClientSecret string
}

// PasskeyCredential is an opaque WebAuthn-style credential record. Only
// storage is in scope here — the authentication ceremony itself (the
// browser-side WebAuthn API calls) is external, the same way terminal
// emulation and the HTML client are external per spec.md §1.
type PasskeyCredential struct {
	ID        string // hex
	PublicKey string // hex
	Name      string
	CreatedAt time.Time
}

// oauthConfig holds both providers' credentials plus the role newly
// provisioned OAuth users receive.
type oauthConfig struct {
	GitHub      *ProviderCreds
	Google      *ProviderCreds
	DefaultRole Role
}

// data is the live, in-memory shape of the AuthState singleton described in
// spec.md §3. Store wraps this with a mutex; data itself has no locking.
type data struct {
	AuthRequired      bool
	AdminPasswordHash string // 128 hex chars: salt(32 bytes) || sha256(salt||pw)(32 bytes)
	Sessions          map[string]*Session
	ShareLinks        []*ShareLink
	OAuth             oauthConfig
	Passkeys          []PasskeyCredential
}

func newData() *data {
	return &data{
		Sessions: make(map[string]*Session),
	}
}

// --- on-disk JSON shape (§6.1) ---
//
// A real parser (encoding/json) is used here rather than the substring
// scanner spec.md's source implementation relies on — see SPEC_FULL.md §4.1
// and §9's design note, which explicitly calls for replacing the ad-hoc
// scanner with a real parser in a rewrite. The wire *shape* below is
// unchanged from §6.1.

type wireSession struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	CreatedAt      int64  `json:"created_at"`
	Token          string `json:"token"`
	Role           int    `json:"role"`
	Provider       string `json:"provider,omitempty"`
	ProviderUserID string `json:"provider_user_id,omitempty"`
}

type wireShareLink struct {
	Token     string `json:"token"`
	Role      int    `json:"role"`
	CreatedAt int64  `json:"created_at"`
	UseCount  int    `json:"use_count"`
	ExpiresAt *int64 `json:"expires_at,omitempty"`
	MaxUses   *int   `json:"max_uses,omitempty"`
	Label     string `json:"label,omitempty"`
}

type wireProviderCreds struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

type wireOAuth struct {
	GitHub      *wireProviderCreds `json:"github,omitempty"`
	Google      *wireProviderCreds `json:"google,omitempty"`
	DefaultRole int                `json:"default_role"`
}

type wirePasskey struct {
	ID        string `json:"id"`
	PublicKey string `json:"public_key"`
	Name      string `json:"name,omitempty"`
	CreatedAt int64  `json:"created_at"`
}

type wireState struct {
	AuthRequired      bool            `json:"auth_required"`
	AdminPasswordHash string          `json:"admin_password_hash,omitempty"`
	Sessions          []wireSession   `json:"sessions"`
	ShareLinks        []wireShareLink `json:"share_links"`
	OAuth             wireOAuth       `json:"oauth"`
	Passkeys          []wirePasskey   `json:"passkey_credentials"`

	// Legacy detection only: a pre-multi-session file carried a single
	// admin identity split across these two keys. Their mere presence
	// marks the whole file as an incompatible schema (§6.1: "Legacy
	// records ... are treated as incompatible and discarded").
	LegacyEditorToken string `json:"editor_token,omitempty"`
	LegacyViewerToken string `json:"viewer_token,omitempty"`
}

// loadState reads and decodes the AuthState file at path. A missing file is
// not an error: it means "start fresh", matching the "initialized at
// startup (load or create)" lifecycle in spec.md §3.
func loadState(path string) (*data, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return newData(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read auth state: %w", err)
	}

	var w wireState
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("parse auth state: %w", err)
	}
	if w.LegacyEditorToken != "" || w.LegacyViewerToken != "" {
		// Incompatible schema: discard and start fresh rather than guess
		// at a migration the spec doesn't define.
		return newData(), nil
	}

	d := newData()
	d.AuthRequired = w.AuthRequired
	d.AdminPasswordHash = w.AdminPasswordHash
	for _, ws := range w.Sessions {
		tok, ok := tokenFromHex(ws.Token)
		if !ok {
			continue
		}
		d.Sessions[ws.ID] = &Session{
			ID:             ws.ID,
			Name:           ws.Name,
			CreatedAt:      time.Unix(ws.CreatedAt, 0).UTC(),
			Role:           Role(ws.Role),
			Token:          tok,
			Provider:       ws.Provider,
			ProviderUserID: ws.ProviderUserID,
		}
	}
	for _, wl := range w.ShareLinks {
		tok, ok := tokenFromHex(wl.Token)
		if !ok {
			continue
		}
		link := &ShareLink{
			Token:     tok,
			Role:      Role(wl.Role),
			CreatedAt: time.Unix(wl.CreatedAt, 0).UTC(),
			UseCount:  wl.UseCount,
			Label:     wl.Label,
		}
		if wl.ExpiresAt != nil {
			t := time.Unix(*wl.ExpiresAt, 0).UTC()
			link.ExpiresAt = &t
		}
		if wl.MaxUses != nil {
			n := *wl.MaxUses
			link.MaxUses = &n
		}
		d.ShareLinks = append(d.ShareLinks, link)
	}
	if w.OAuth.GitHub != nil {
		d.OAuth.GitHub = &ProviderCreds{ClientID: w.OAuth.GitHub.ClientID, ClientSecret: w.OAuth.GitHub.ClientSecret}
	}
	if w.OAuth.Google != nil {
		d.OAuth.Google = &ProviderCreds{ClientID: w.OAuth.Google.ClientID, ClientSecret: w.OAuth.Google.ClientSecret}
	}
	d.OAuth.DefaultRole = Role(w.OAuth.DefaultRole)
	for _, wp := range w.Passkeys {
		d.Passkeys = append(d.Passkeys, PasskeyCredential{
			ID:        wp.ID,
			PublicKey: wp.PublicKey,
			Name:      wp.Name,
			CreatedAt: time.Unix(wp.CreatedAt, 0).UTC(),
		})
	}
	return d, nil
}

// saveState persists data to path at mode 0600, per spec.md §3's "Persisted
// to a single file at a well-known path; mode 0600."
func saveState(path string, d *data) error {
	w := wireState{
		AuthRequired:      d.AuthRequired,
		AdminPasswordHash: d.AdminPasswordHash,
		OAuth:             wireOAuth{DefaultRole: int(d.OAuth.DefaultRole)},
	}
	if d.OAuth.GitHub != nil {
		w.OAuth.GitHub = &wireProviderCreds{ClientID: d.OAuth.GitHub.ClientID, ClientSecret: d.OAuth.GitHub.ClientSecret}
	}
	if d.OAuth.Google != nil {
		w.OAuth.Google = &wireProviderCreds{ClientID: d.OAuth.Google.ClientID, ClientSecret: d.OAuth.Google.ClientSecret}
	}
	for _, s := range d.Sessions {
		w.Sessions = append(w.Sessions, wireSession{
			ID:             s.ID,
			Name:           s.Name,
			CreatedAt:      s.CreatedAt.Unix(),
			Token:          s.Token.Hex(),
			Role:           int(s.Role),
			Provider:       s.Provider,
			ProviderUserID: s.ProviderUserID,
		})
	}
	for _, l := range d.ShareLinks {
		wl := wireShareLink{
			Token:     l.Token.Hex(),
			Role:      int(l.Role),
			CreatedAt: l.CreatedAt.Unix(),
			UseCount:  l.UseCount,
			Label:     l.Label,
		}
		if l.ExpiresAt != nil {
			v := l.ExpiresAt.Unix()
			wl.ExpiresAt = &v
		}
		if l.MaxUses != nil {
			v := *l.MaxUses
			wl.MaxUses = &v
		}
		w.ShareLinks = append(w.ShareLinks, wl)
	}
	for _, p := range d.Passkeys {
		w.Passkeys = append(w.Passkeys, wirePasskey{
			ID:        p.ID,
			PublicKey: p.PublicKey,
			Name:      p.Name,
			CreatedAt: p.CreatedAt.Unix(),
		})
	}

	encoded, err := json.MarshalIndent(w, "", "  ")
	if err != nil {
		return fmt.Errorf("encode auth state: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create auth state dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, encoded, 0600); err != nil {
		return fmt.Errorf("write auth state: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("install auth state: %w", err)
	}
	return nil
}
