package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"storyeditor/api/internal/codec"
	"storyeditor/api/internal/media"
	"storyeditor/api/internal/migrate"
	"storyeditor/api/internal/reducer"
	"storyeditor/api/internal/revisions"
	"storyeditor/api/internal/session"
	"storyeditor/api/internal/store"
)

const defaultEditor = "editor"

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		s.handleReady(w, r)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/search" {
		query := strings.TrimSpace(r.URL.Query().Get("q"))
		if query == "" {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "q is required", nil)
			return
		}
		limit := queryInt(r, "limit", 20)
		offset := queryInt(r, "offset", 0)
		writeJSON(w, http.StatusOK, s.service.Search(r.Context(), query, limit, offset))
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/media" {
		r.Body = http.MaxBytesReader(w, r.Body, media.MaxUploadBytes+1)
		name := strings.TrimSpace(r.URL.Query().Get("name"))
		resource, err := s.service.UploadMedia(r.Context(), name, r.Body)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"resource": resource})
		return
	}

	if r.URL.Path == "/api/stories" {
		switch r.Method {
		case http.MethodGet:
			items, err := s.service.ListStories(r.Context())
			if err != nil {
				writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"items": items})
		case http.MethodPost:
			var body CreateStoryInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			view, err := s.service.CreateStory(r.Context(), body, editorName(r))
			if err != nil {
				writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, view)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	if strings.HasPrefix(r.URL.Path, "/api/stories/") {
		parts := splitPath(strings.TrimPrefix(r.URL.Path, "/api/stories/"))
		if len(parts) == 0 {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
			return
		}
		s.handleStory(w, r, parts[0], parts[1:])
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	ready, checks := s.service.Readiness(ctx)
	status := "ready"
	statusCode := http.StatusOK
	if !ready {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, statusCode, map[string]any{
		"ok":     ready,
		"status": status,
		"checks": checks,
	})
}

func (s *HTTPServer) handleStory(w http.ResponseWriter, r *http.Request, storyID string, parts []string) {
	ctx := r.Context()

	switch {
	case r.Method == http.MethodGet && len(parts) == 0:
		view, err := s.service.OpenStory(ctx, storyID)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, view)

	case r.Method == http.MethodDelete && len(parts) == 0:
		if err := s.service.DeleteStory(ctx, storyID); err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})

	case r.Method == http.MethodPost && len(parts) == 1 && parts[0] == "actions":
		var body DispatchInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		view, err := s.service.Dispatch(ctx, storyID, body)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, view)

	case r.Method == http.MethodPost && len(parts) == 1 && parts[0] == "save":
		var body SaveInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		result, err := s.service.Save(ctx, storyID, body, editorName(r))
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)

	case r.Method == http.MethodGet && len(parts) == 2 && parts[0] == "offcanvas":
		report, err := s.service.OffCanvas(ctx, storyID, parts[1])
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, report)

	case r.Method == http.MethodPost && len(parts) == 3 && parts[0] == "elements" && parts[2] == "trim":
		var body TrimInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		view, err := s.service.TrimElement(ctx, storyID, parts[1], body)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, view)

	case r.Method == http.MethodGet && len(parts) == 1 && parts[0] == "revisions":
		items, err := s.service.History(ctx, storyID, queryInt(r, "limit", 50))
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})

	case r.Method == http.MethodGet && len(parts) == 2 && parts[0] == "revisions":
		revision, err := s.service.GetRevision(ctx, storyID, parts[1])
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, revision)

	case r.Method == http.MethodPost && len(parts) == 3 && parts[0] == "revisions" && parts[2] == "restore":
		view, err := s.service.RestoreRevision(ctx, storyID, parts[1])
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, view)

	case r.Method == http.MethodPost && len(parts) == 1 && parts[0] == "versions":
		var body NamedVersionInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		revision, err := s.service.NameVersion(ctx, storyID, body, editorName(r))
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, revision)

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
	}
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, X-Editor, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func writeMappedError(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	if status == http.StatusInternalServerError {
		log.Printf("request failed: %v", err)
	}
	writeError(w, status, code, message, details)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

// editorName identifies who made a change. There are no accounts; clients
// name themselves with the X-Editor header.
func editorName(r *http.Request) string {
	name := strings.TrimSpace(r.Header.Get("X-Editor"))
	if name == "" {
		return defaultEditor
	}
	return name
}

func queryInt(r *http.Request, key string, fallback int) int {
	value, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || value < 0 {
		return fallback
	}
	return value
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	var migrateErr *migrate.Error
	if errors.As(err, &migrateErr) {
		return http.StatusUnprocessableEntity, "MIGRATION_FAILED", migrateErr.Error(), map[string]any{
			"version": migrateErr.Version,
		}
	}
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, revisions.ErrNotFound), errors.Is(err, revisions.ErrNoHistory), errors.Is(err, media.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", "Story is not open", nil
	case errors.Is(err, codec.ErrFutureVersion):
		return http.StatusUnprocessableEntity, "UNSUPPORTED_VERSION", err.Error(), nil
	case errors.Is(err, codec.ErrInvalidDocument):
		return http.StatusUnprocessableEntity, "INVALID_DOCUMENT", err.Error(), nil
	case errors.Is(err, reducer.ErrUnknownAction):
		return http.StatusUnprocessableEntity, "INVALID_ACTION", err.Error(), nil
	case errors.Is(err, media.ErrUnsupportedMedia):
		return http.StatusUnsupportedMediaType, "UNSUPPORTED_MEDIA", err.Error(), nil
	case errors.Is(err, media.ErrTooLarge):
		return http.StatusRequestEntityTooLarge, "TOO_LARGE", err.Error(), nil
	case errors.Is(err, media.ErrEmptyCrop):
		return http.StatusUnprocessableEntity, "NOTHING_TO_KEEP", err.Error(), nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
