package transfer

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/marmos91/dittovfs/internal/logger"
	"github.com/marmos91/dittovfs/pkg/provider"
)

// ErrorResponse is the JSON body of a failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

// DownloadHandler serves GET requests for a cached file id taken from the
// {fileID} path value. Direct URLs are answered with a 302; everything else
// is streamed through, and the adapter is released when the copy ends or the
// client goes away.
func DownloadHandler(router *Router) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fileID := r.PathValue("fileID")
		if fileID == "" {
			SendError(w, http.StatusBadRequest, "file id required")
			return
		}

		d, err := router.RequestDownload(r.Context(), fileID)
		if err != nil {
			SendError(w, StatusFor(err), err.Error())
			return
		}
		if d.Redirect() {
			http.Redirect(w, r, d.URL, http.StatusFound)
			return
		}
		defer d.Stream.Close()

		mimeType := d.MimeType
		if mimeType == "" {
			mimeType = "application/octet-stream"
		}
		w.Header().Set("Content-Type", mimeType)
		if d.Size > 0 {
			w.Header().Set("Content-Length", strconv.FormatInt(d.Size, 10))
		}
		w.WriteHeader(http.StatusOK)

		if _, err := io.Copy(w, d.Stream); err != nil {
			logger.Warn("Download of file %s ended early: %v", fileID, err)
		}
	})
}

// StatusFor maps a domain error to an HTTP status. A backend status carried by
// a ProviderError wins; unclassified errors are 500.
func StatusFor(err error) int {
	if code := provider.StatusCode(err); code >= 400 && code < 600 {
		return code
	}
	switch {
	case errors.Is(err, provider.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, provider.ErrNotAuthorized), errors.Is(err, provider.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, provider.ErrConfiguration):
		return http.StatusBadRequest
	case errors.Is(err, provider.ErrNotSupported):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

// SendError writes a JSON error body.
func SendError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(ErrorResponse{Error: message, Code: code}); err != nil {
		logger.Debug("Failed to write error response: %v", err)
	}
}
