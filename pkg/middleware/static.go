package middleware

import (
	"bytes"
	"io"
	"io/fs"
	"net/http"
	"path"
	"strings"
)

// StaticOption configures StaticFiles.
type StaticOption func(*staticConfig)

type staticConfig struct {
	prefix string
	index  string
}

// WithStaticPrefix serves files only below the given URL prefix, which is
// removed before looking the file up.
func WithStaticPrefix(prefix string) StaticOption {
	return func(c *staticConfig) {
		c.prefix = strings.Trim(prefix, "/")
	}
}

// WithIndexFile sets the file served for directory requests. Default
// "index.html"; an empty name disables directory requests.
func WithIndexFile(name string) StaticOption {
	return func(c *staticConfig) {
		c.index = name
	}
}

// StaticFiles serves GET and HEAD requests for files that exist in fsys and
// passes everything else to next, so it can sit in front of routing.
// Directory listings are never produced. Range requests and conditional
// headers are handled by http.ServeContent.
func StaticFiles(fsys fs.FS, opts ...StaticOption) Middleware {
	config := &staticConfig{index: "index.html"}
	for _, opt := range opts {
		opt(config)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet && r.Method != http.MethodHead {
				next.ServeHTTP(w, r)
				return
			}
			name, ok := config.resolve(fsys, r.URL.Path)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			if err := serveFile(w, r, fsys, name); err != nil {
				next.ServeHTTP(w, r)
			}
		})
	}
}

// resolve maps a URL path to the name of a regular file in fsys.
func (c *staticConfig) resolve(fsys fs.FS, urlPath string) (string, bool) {
	name := strings.TrimPrefix(path.Clean("/"+urlPath), "/")
	if c.prefix != "" {
		if name != c.prefix && !strings.HasPrefix(name, c.prefix+"/") {
			return "", false
		}
		name = strings.TrimPrefix(strings.TrimPrefix(name, c.prefix), "/")
	}
	if name == "" {
		name = "."
	}
	if !fs.ValidPath(name) {
		return "", false
	}

	info, err := fs.Stat(fsys, name)
	if err != nil {
		return "", false
	}
	if info.IsDir() {
		if c.index == "" {
			return "", false
		}
		name = path.Join(name, c.index)
		if info, err = fs.Stat(fsys, name); err != nil {
			return "", false
		}
	}
	return name, info.Mode().IsRegular()
}

// serveFile writes the named file. Errors are returned only when nothing has
// been written yet.
func serveFile(w http.ResponseWriter, r *http.Request, fsys fs.FS, name string) error {
	f, err := fsys.Open(name)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	content, ok := f.(io.ReadSeeker)
	if !ok {
		data, err := io.ReadAll(f)
		if err != nil {
			return err
		}
		content = bytes.NewReader(data)
	}
	http.ServeContent(w, r, info.Name(), info.ModTime(), content)
	return nil
}
