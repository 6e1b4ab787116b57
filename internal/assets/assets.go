// Package assets implements the gateway.Assets contract over an embedded
// filesystem. The HTML/JS terminal client itself is an external
// collaborator per spec.md §1; this package only serves whatever files
// live under web/ so the gateway's routing table has something concrete
// to hand back.
package assets

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"mime"
	"path/filepath"
)

//go:embed web/index.html web/manifest.json web/file-worker.js
var embedded embed.FS

// configMarkerStart and configMarkerEnd bound the JSON fragment IndexHTML
// splices the caller's config into, per spec.md §4.3's "/" route: "serve
// HTML with a config JSON fragment injected at a named marker."
const (
	configMarkerStart = "/*__TERMWEB_CONFIG_JSON__*/"
	configMarkerEnd   = "/*__TERMWEB_CONFIG_JSON_END__*/"
)

// Assets serves the embedded web/ tree.
type Assets struct {
	fsys fs.FS
}

// New constructs an Assets backed by the files embedded at build time.
func New() *Assets {
	return &Assets{fsys: embedded}
}

// IndexHTML returns index.html with configJSON spliced between the two
// named markers.
func (a *Assets) IndexHTML(configJSON string) ([]byte, error) {
	data, err := fs.ReadFile(a.fsys, "web/index.html")
	if err != nil {
		return nil, fmt.Errorf("assets: read index.html: %w", err)
	}
	start := bytes.Index(data, []byte(configMarkerStart))
	end := bytes.Index(data, []byte(configMarkerEnd))
	if start == -1 || end == -1 || end < start {
		return data, nil
	}
	out := make([]byte, 0, len(data)+len(configJSON))
	out = append(out, data[:start+len(configMarkerStart)]...)
	out = append(out, configJSON...)
	out = append(out, data[end:]...)
	return out, nil
}

// Manifest returns the PWA manifest's bytes.
func (a *Assets) Manifest() ([]byte, error) {
	data, err := fs.ReadFile(a.fsys, "web/manifest.json")
	if err != nil {
		return nil, fmt.Errorf("assets: read manifest.json: %w", err)
	}
	return data, nil
}

// Asset returns any other embedded file by its gateway-visible path (a
// leading slash, as the routing table names them).
func (a *Assets) Asset(path string) ([]byte, string, bool) {
	name := path
	if len(name) > 0 && name[0] == '/' {
		name = name[1:]
	}
	data, err := fs.ReadFile(a.fsys, "web/"+name)
	if err != nil {
		return nil, "", false
	}
	ct := mime.TypeByExtension(filepath.Ext(name))
	if ct == "" {
		ct = "application/octet-stream"
	}
	return data, ct, true
}
