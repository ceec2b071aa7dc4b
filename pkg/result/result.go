// Package result provides values that describe an HTTP response and write it
// when executed. Handlers return a Result instead of writing to the
// ResponseWriter themselves:
//
//	result.Handler(func(r *http.Request) result.Result {
//		if r.URL.Query().Get("bookid") == "" {
//			return result.BadRequest("Book is not supplied")
//		}
//		return result.VirtualFile(files, "files/sample.pdf", "application/pdf")
//	}, logger)
package result

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Suhaibinator/SPipeline/pkg/codec"
	"go.uber.org/zap"
)

// ErrUnsafeRedirect is returned by RedirectToRoute results whose target is
// not an application-local path.
var ErrUnsafeRedirect = errors.New("result: redirect target is not a local path")

// Result writes a response.
type Result interface {
	Execute(w http.ResponseWriter, r *http.Request) error
}

// ResultFunc adapts a function to the Result interface.
type ResultFunc func(w http.ResponseWriter, r *http.Request) error

// Execute implements Result.
func (f ResultFunc) Execute(w http.ResponseWriter, r *http.Request) error {
	return f(w, r)
}

// Action produces the result for a request.
type Action func(r *http.Request) Result

// Handler adapts an action to an http.HandlerFunc. A nil result answers 204.
// If executing the result fails before anything was written, the error is
// logged and the client receives 500.
func Handler(action Action, logger *zap.Logger) http.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		res := action(r)
		if res == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		tw := &trackingWriter{ResponseWriter: w}
		if err := res.Execute(tw, r); err != nil {
			logger.Error("Failed to execute result",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Error(err),
			)
			if !tw.written {
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}
	}
}

// trackingWriter records whether the response has been started.
type trackingWriter struct {
	http.ResponseWriter
	written bool
}

func (w *trackingWriter) WriteHeader(status int) {
	w.written = true
	w.ResponseWriter.WriteHeader(status)
}

func (w *trackingWriter) Write(b []byte) (int, error) {
	w.written = true
	return w.ResponseWriter.Write(b)
}

func (w *trackingWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// Content writes body with the given content type and status.
// A zero status means 200.
func Content(body, contentType string, status int) Result {
	return ResultFunc(func(w http.ResponseWriter, r *http.Request) error {
		if contentType != "" {
			w.Header().Set("Content-Type", contentType)
		}
		if status == 0 {
			status = http.StatusOK
		}
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		w.WriteHeader(status)
		if body == "" || r.Method == http.MethodHead {
			return nil
		}
		_, err := w.Write([]byte(body))
		return err
	})
}

// Text writes a text/plain response with status 200.
func Text(body string) Result {
	return Content(body, "text/plain; charset=utf-8", http.StatusOK)
}

// HTML writes a text/html response with status 200.
func HTML(body string) Result {
	return Content(body, "text/html; charset=utf-8", http.StatusOK)
}

// JSON writes v as JSON with status 200.
func JSON(v any) Result {
	return JSONWithStatus(v, http.StatusOK)
}

// JSONWithStatus writes v as JSON with the given status.
func JSONWithStatus(v any, status int) Result {
	c := codec.NewJSONCodec[any, any]()
	return ResultFunc(func(w http.ResponseWriter, r *http.Request) error {
		return c.Encode(&statusWriter{ResponseWriter: w, status: status}, v)
	})
}

// statusWriter sends status instead of the implicit 200 on the first write.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(status int) {
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		status := w.status
		if status == 0 {
			status = http.StatusOK
		}
		w.WriteHeader(status)
	}
	return w.ResponseWriter.Write(b)
}

// Status writes an empty response with code.
func Status(code int) Result {
	return ResultFunc(func(w http.ResponseWriter, r *http.Request) error {
		w.WriteHeader(code)
		return nil
	})
}

// NoContent writes 204.
func NoContent() Result {
	return Status(http.StatusNoContent)
}

func statusWithMessage(code int, message string) Result {
	if message == "" {
		return Status(code)
	}
	return Content(message, "text/plain; charset=utf-8", code)
}

// BadRequest writes 400 with an optional plain text message.
func BadRequest(message string) Result {
	return statusWithMessage(http.StatusBadRequest, message)
}

// NotFound writes 404 with an optional plain text message.
func NotFound(message string) Result {
	return statusWithMessage(http.StatusNotFound, message)
}

// Unauthorized writes 401 with an optional plain text message.
func Unauthorized(message string) Result {
	return statusWithMessage(http.StatusUnauthorized, message)
}

// Redirect sends 302 Found to url.
func Redirect(url string) Result {
	return ResultFunc(func(w http.ResponseWriter, r *http.Request) error {
		http.Redirect(w, r, url, http.StatusFound)
		return nil
	})
}

// RedirectPermanent sends 301 Moved Permanently to url.
func RedirectPermanent(url string) Result {
	return ResultFunc(func(w http.ResponseWriter, r *http.Request) error {
		http.Redirect(w, r, url, http.StatusMovedPermanently)
		return nil
	})
}

// RedirectToRoute sends 302 Found to path, which must be local to the
// application, typically built with Router.URL. Absolute and
// protocol-relative URLs fail with ErrUnsafeRedirect.
func RedirectToRoute(path string) Result {
	return ResultFunc(func(w http.ResponseWriter, r *http.Request) error {
		if !isLocalPath(path) {
			return fmt.Errorf("%w: %q", ErrUnsafeRedirect, path)
		}
		http.Redirect(w, r, path, http.StatusFound)
		return nil
	})
}

func isLocalPath(path string) bool {
	if !strings.HasPrefix(path, "/") {
		return false
	}
	return len(path) == 1 || (path[1] != '/' && path[1] != '\\')
}

// ContentTypeByExtension returns the MIME type registered for the extension
// of name, or application/octet-stream.
func ContentTypeByExtension(name string) string {
	if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
