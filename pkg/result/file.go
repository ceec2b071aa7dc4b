package result

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// VirtualFile serves name from fsys, usually the application's web root.
// A leading slash or "~/" in name is ignored. An empty contentType is
// derived from the file extension. Missing files and directories answer 404.
func VirtualFile(fsys fs.FS, name, contentType string) Result {
	return ResultFunc(func(w http.ResponseWriter, r *http.Request) error {
		cleaned := path.Clean("/" + strings.TrimPrefix(name, "~"))
		f, err := fsys.Open(strings.TrimPrefix(cleaned, "/"))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				http.NotFound(w, r)
				return nil
			}
			return fmt.Errorf("result: open %s: %w", name, err)
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return fmt.Errorf("result: stat %s: %w", name, err)
		}
		if info.IsDir() {
			http.NotFound(w, r)
			return nil
		}

		content, ok := f.(io.ReadSeeker)
		if !ok {
			data, err := io.ReadAll(f)
			if err != nil {
				return fmt.Errorf("result: read %s: %w", name, err)
			}
			content = bytes.NewReader(data)
		}
		serve(w, r, info.Name(), contentType, info.ModTime(), content)
		return nil
	})
}

// PhysicalFile serves the file at an absolute or working-directory relative
// filesystem path. Missing files and directories answer 404.
func PhysicalFile(filePath, contentType string) Result {
	return ResultFunc(func(w http.ResponseWriter, r *http.Request) error {
		cleaned := filepath.Clean(filePath)
		f, err := os.Open(cleaned)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				http.NotFound(w, r)
				return nil
			}
			return fmt.Errorf("result: open %s: %w", cleaned, err)
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return fmt.Errorf("result: stat %s: %w", cleaned, err)
		}
		if info.IsDir() {
			http.NotFound(w, r)
			return nil
		}
		serve(w, r, info.Name(), contentType, info.ModTime(), f)
		return nil
	})
}

// FileContent writes data as a file response.
func FileContent(data []byte, contentType string) Result {
	return ResultFunc(func(w http.ResponseWriter, r *http.Request) error {
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		serve(w, r, "", contentType, time.Time{}, bytes.NewReader(data))
		return nil
	})
}

// serve delegates to http.ServeContent for range and conditional requests.
func serve(w http.ResponseWriter, r *http.Request, name, contentType string, modTime time.Time, content io.ReadSeeker) {
	if contentType == "" {
		contentType = ContentTypeByExtension(name)
	}
	w.Header().Set("Content-Type", contentType)
	http.ServeContent(w, r, name, modTime, content)
}
