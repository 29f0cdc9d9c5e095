package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"storyeditor/api/internal/media"
	"storyeditor/api/internal/reducer"
	"storyeditor/api/internal/search"
	"storyeditor/api/internal/story"
)

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("X-Editor", "ada")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	var response map[string]any
	if rr.Body.Len() > 0 {
		if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
			t.Fatalf("failed to parse response %q: %v", rr.Body.String(), err)
		}
	}
	return rr, response
}

func TestStoryLifecycleOverHTTP(t *testing.T) {
	svc, deps := newTestService(t)
	handler := NewHTTPServer(svc, "*").Handler()

	rr, created := doJSON(t, handler, http.MethodPost, "/api/stories", map[string]any{"title": "Night market"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create status = %d body = %s", rr.Code, rr.Body.String())
	}
	id, _ := created["id"].(string)
	fingerprint, _ := created["fingerprint"].(string)
	if id == "" || fingerprint == "" {
		t.Fatalf("create response = %v", created)
	}

	rr, listed := doJSON(t, handler, http.MethodGet, "/api/stories", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("list status = %d", rr.Code)
	}
	if items, _ := listed["items"].([]any); len(items) != 1 {
		t.Fatalf("list items = %v", listed["items"])
	}

	rename, err := reducer.NewAction(reducer.ActionUpdateStory, reducer.UpdateStoryPayload{Properties: reducer.StoryPatch{Title: stringPtr("Night market, late")}})
	if err != nil {
		t.Fatalf("NewAction() error = %v", err)
	}
	rr, dispatched := doJSON(t, handler, http.MethodPost, "/api/stories/"+id+"/actions", DispatchInput{Fingerprint: fingerprint, Actions: []reducer.Action{rename}})
	if rr.Code != http.StatusOK {
		t.Fatalf("dispatch status = %d body = %s", rr.Code, rr.Body.String())
	}
	if dispatched["dirty"] != true {
		t.Fatalf("dispatch response = %v", dispatched)
	}

	rr, conflict := doJSON(t, handler, http.MethodPost, "/api/stories/"+id+"/actions", DispatchInput{Fingerprint: fingerprint, Actions: []reducer.Action{rename}})
	if rr.Code != http.StatusConflict || conflict["code"] != "CONFLICT" {
		t.Fatalf("stale dispatch status = %d body = %v", rr.Code, conflict)
	}
	details, _ := conflict["details"].(map[string]any)
	if details["fingerprint"] != dispatched["fingerprint"] {
		t.Fatalf("conflict details = %v, want current fingerprint %v", details, dispatched["fingerprint"])
	}

	rr, saved := doJSON(t, handler, http.MethodPost, "/api/stories/"+id+"/save", map[string]any{"message": "Rename"})
	if rr.Code != http.StatusOK || saved["committed"] != true {
		t.Fatalf("save status = %d body = %v", rr.Code, saved)
	}
	if record, _ := deps.store.GetStory(context.Background(), id); record.UpdatedBy != "ada" {
		t.Fatalf("saved by %q, want ada", record.UpdatedBy)
	}

	rr, history := doJSON(t, handler, http.MethodGet, "/api/stories/"+id+"/revisions", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("revisions status = %d", rr.Code)
	}
	items, _ := history["items"].([]any)
	if len(items) != 2 {
		t.Fatalf("revisions = %v", history["items"])
	}
	first, _ := items[1].(map[string]any)
	firstHash, _ := first["hash"].(string)

	rr, revision := doJSON(t, handler, http.MethodGet, "/api/stories/"+id+"/revisions/"+firstHash, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("revision status = %d body = %s", rr.Code, rr.Body.String())
	}
	if title := revision["story"].(map[string]any)["title"]; title != "Night market" {
		t.Fatalf("revision title = %v", title)
	}

	rr, restored := doJSON(t, handler, http.MethodPost, "/api/stories/"+id+"/revisions/"+firstHash+"/restore", nil)
	if rr.Code != http.StatusOK || restored["dirty"] != true {
		t.Fatalf("restore status = %d body = %v", rr.Code, restored)
	}

	rr, tagged := doJSON(t, handler, http.MethodPost, "/api/stories/"+id+"/versions", map[string]any{"name": "launch", "hash": firstHash})
	if rr.Code != http.StatusCreated {
		t.Fatalf("versions status = %d body = %v", rr.Code, tagged)
	}
}

func TestOpenStoryErrorsOverHTTP(t *testing.T) {
	svc, deps := newTestService(t)
	seedStory(t, deps, "story_broken", `{"pages": "nope"}`)
	seedStory(t, deps, "story_future", `{"version": 40, "pages": []}`)
	handler := NewHTTPServer(svc, "*").Handler()

	tests := []struct {
		path   string
		status int
		code   string
	}{
		{path: "/api/stories/story_missing", status: http.StatusNotFound, code: "NOT_FOUND"},
		{path: "/api/stories/story_broken", status: http.StatusUnprocessableEntity, code: "MIGRATION_FAILED"},
		{path: "/api/stories/story_future", status: http.StatusUnprocessableEntity, code: "UNSUPPORTED_VERSION"},
		{path: "/api/stories/story_broken/unknown", status: http.StatusNotFound, code: "NOT_FOUND"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rr, body := doJSON(t, handler, http.MethodGet, tt.path, nil)
			if rr.Code != tt.status || body["code"] != tt.code {
				t.Fatalf("status = %d code = %v, want %d %s", rr.Code, body["code"], tt.status, tt.code)
			}
		})
	}
}

func TestOffCanvasAndTrimOverHTTP(t *testing.T) {
	svc, deps := newTestService(t)
	id := seedStory(t, deps, "story_legacy", legacyDocument)
	handler := NewHTTPServer(svc, "*").Handler()

	rr, report := doJSON(t, handler, http.MethodGet, "/api/stories/"+id+"/offcanvas/photo", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("offcanvas status = %d body = %s", rr.Code, rr.Body.String())
	}
	off, _ := report["offCanvas"].(map[string]any)
	if off["offCanvas"] != true || off["offCanvasLeft"] != float64(100) {
		t.Fatalf("offCanvas = %v", report["offCanvas"])
	}

	rr, trimmed := doJSON(t, handler, http.MethodPost, "/api/stories/"+id+"/elements/photo/trim", map[string]any{})
	if rr.Code != http.StatusOK {
		t.Fatalf("trim status = %d body = %s", rr.Code, rr.Body.String())
	}
	if trimmed["dirty"] != true {
		t.Fatalf("trim response = %v", trimmed)
	}

	rr, body := doJSON(t, handler, http.MethodPost, "/api/stories/"+id+"/elements/caption/trim", map[string]any{})
	if rr.Code != http.StatusUnprocessableEntity || body["code"] != "NOT_MEDIA" {
		t.Fatalf("trim text status = %d body = %v", rr.Code, body)
	}
}

func TestSearchOverHTTP(t *testing.T) {
	svc, deps := newTestService(t)
	var got search.Query
	deps.search.searchFn = func(_ context.Context, q search.Query) search.Response {
		got = q
		return search.Response{Results: []search.Result{{ID: "story_1", Title: "Harbour"}}, Total: 1, Query: q.Text}
	}
	handler := NewHTTPServer(svc, "*").Handler()

	rr, body := doJSON(t, handler, http.MethodGet, "/api/search?q=harbour&limit=5&offset=10", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("search status = %d", rr.Code)
	}
	if got.Text != "harbour" || got.Limit != 5 || got.Offset != 10 {
		t.Fatalf("query = %+v", got)
	}
	if results, _ := body["results"].([]any); len(results) != 1 {
		t.Fatalf("results = %v", body["results"])
	}

	rr, _ = doJSON(t, handler, http.MethodGet, "/api/search", nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("empty search status = %d", rr.Code)
	}
}

func TestMediaUploadOverHTTP(t *testing.T) {
	svc, deps := newTestService(t)
	deps.media.uploadFn = func(_ context.Context, name string, body io.Reader) (story.Resource, error) {
		data, _ := io.ReadAll(body)
		if strings.HasPrefix(string(data), "GIF") {
			return story.Resource{Src: "/media/" + name, MimeType: "image/gif", Width: 1, Height: 1}, nil
		}
		return story.Resource{}, fmt.Errorf("%w: text/plain", media.ErrUnsupportedMedia)
	}
	handler := NewHTTPServer(svc, "*").Handler()

	req := httptest.NewRequest(http.MethodPost, "/api/media?name=loop.gif", strings.NewReader("GIF89a"))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("upload status = %d body = %s", rr.Code, rr.Body.String())
	}

	req = httptest.NewRequest(http.MethodPost, "/api/media?name=notes.txt", strings.NewReader("hello"))
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("unsupported upload status = %d", rr.Code)
	}

	svc.media = nil
	req = httptest.NewRequest(http.MethodPost, "/api/media?name=loop.gif", strings.NewReader("GIF89a"))
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("upload without storage status = %d", rr.Code)
	}
}

func TestMapErrorDefaultsToServerError(t *testing.T) {
	status, code, _, _ := mapError(fmt.Errorf("wrapped: %w", io.ErrUnexpectedEOF))
	if status != http.StatusInternalServerError || code != "SERVER_ERROR" {
		t.Fatalf("mapError() = %d %s", status, code)
	}
}
