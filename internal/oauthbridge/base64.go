package oauthbridge

import (
	"encoding/base64"
	"strings"
)

// base64URLDecode decodes a base64url segment that may be missing its
// padding, the shape both signed tokens (internal/authstore) and Google's
// id_token segments use.
func base64URLDecode(s string) ([]byte, error) {
	if m := len(s) % 4; m != 0 {
		s += strings.Repeat("=", 4-m)
	}
	return base64.URLEncoding.DecodeString(s)
}
