package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"storyeditor/api/internal/codec"
	"storyeditor/api/internal/geometry"
	"storyeditor/api/internal/migrate"
	"storyeditor/api/internal/reducer"
	"storyeditor/api/internal/revisions"
	"storyeditor/api/internal/search"
	"storyeditor/api/internal/session"
	"storyeditor/api/internal/store"
	"storyeditor/api/internal/story"
	"storyeditor/api/internal/util"
)

type storyStore interface {
	ListStories(context.Context) ([]store.StorySummary, error)
	GetStory(context.Context, string) (store.StoryRecord, error)
	InsertStory(context.Context, store.StoryRecord) error
	UpdateStory(context.Context, store.StoryRecord) error
	DeleteStory(context.Context, string) error
	Ping(context.Context) error
}

type revisionService interface {
	EnsureRepo(string, []byte, string) error
	Commit(string, []byte, string, string) (revisions.Revision, bool, error)
	History(string, int) ([]revisions.Revision, error)
	Read(string, string) ([]byte, revisions.Revision, error)
	Tag(string, string, string, string) error
}

type searchService interface {
	Search(context.Context, search.Query) search.Response
	IndexStory(search.StoryRecord)
	DeleteStory(string)
	Health() search.Health
}

type mediaService interface {
	Upload(context.Context, string, io.Reader) (story.Resource, error)
	Crop(context.Context, story.Resource, geometry.CropParams) (story.Resource, error)
}

// StoryView is what clients receive for an open story.
type StoryView struct {
	ID          string      `json:"id"`
	Story       story.Story `json:"story"`
	Fingerprint string      `json:"fingerprint"`
	Dirty       bool        `json:"dirty"`
}

type CreateStoryInput struct {
	Title string `json:"title"`
}

type DispatchInput struct {
	Fingerprint string           `json:"fingerprint"`
	Actions     []reducer.Action `json:"actions"`
}

type SaveInput struct {
	Message string `json:"message"`
}

type SaveResult struct {
	StoryView
	Revision  revisions.Revision `json:"revision"`
	Committed bool               `json:"committed"`
}

type NamedVersionInput struct {
	Name string `json:"name"`
	Hash string `json:"hash"`
}

type TrimInput struct {
	Fingerprint string `json:"fingerprint"`
}

// OffCanvasReport describes how far an element hangs past the page.
type OffCanvasReport struct {
	PageID    string               `json:"pageId"`
	ElementID string               `json:"elementId"`
	Box       geometry.Box         `json:"box"`
	OffCanvas geometry.OffCanvas   `json:"offCanvas"`
	Crop      *geometry.CropParams `json:"crop,omitempty"`
}

type RevisionView struct {
	Revision revisions.Revision `json:"revision"`
	Story    story.Story        `json:"story"`
}

type Service struct {
	store     storyStore
	revisions revisionService
	search    searchService
	media     mediaService
	working   session.Store
	codec     *codec.Codec

	lockMu sync.Mutex
	locks  map[string]*sync.Mutex
}

// Options carries the optional collaborators. A nil Search disables search
// and a nil Media disables uploads and trimming.
type Options struct {
	Search searchService
	Media  mediaService
}

func New(dataStore storyStore, revisionSvc revisionService, working session.Store, storyCodec *codec.Codec, opts Options) *Service {
	return &Service{
		store:     dataStore,
		revisions: revisionSvc,
		search:    opts.Search,
		media:     opts.Media,
		working:   working,
		codec:     storyCodec,
		locks:     make(map[string]*sync.Mutex),
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

type pinger interface {
	Ping(ctx context.Context) error
}

// Readiness checks the backends every request path depends on. The database
// and the working-copy store gate readiness; a degraded search index does
// not, since queries fall back to Postgres.
func (s *Service) Readiness(ctx context.Context) (bool, map[string]any) {
	ready := true
	checks := map[string]any{
		"database": map[string]any{"status": "ok"},
	}
	if err := s.store.Ping(ctx); err != nil {
		ready = false
		checks["database"] = map[string]any{"status": "error", "error": err.Error()}
	}

	if p, ok := s.working.(pinger); ok {
		if err := p.Ping(ctx); err != nil {
			ready = false
			checks["workingCopies"] = map[string]any{"status": "error", "error": err.Error()}
		} else {
			checks["workingCopies"] = map[string]any{"status": "ok", "backend": "redis"}
		}
	} else {
		checks["workingCopies"] = map[string]any{"status": "ok", "backend": "memory"}
	}

	if s.search == nil {
		checks["search"] = map[string]any{"status": "disabled"}
	} else {
		health := s.search.Health()
		status := "ok"
		if health.Degraded {
			status = "degraded"
		}
		checks["search"] = map[string]any{"status": status, "backend": health.Backend}
	}
	return ready, checks
}

func (s *Service) ListStories(ctx context.Context) ([]store.StorySummary, error) {
	return s.store.ListStories(ctx)
}

// CreateStory stores a new story with one page holding a default
// background shape, and opens it.
func (s *Service) CreateStory(ctx context.Context, input CreateStoryInput, actor string) (StoryView, error) {
	title := strings.TrimSpace(input.Title)
	id := util.NewID("story")
	created := NewStory(title)

	data, err := s.codec.Encode(created)
	if err != nil {
		return StoryView{}, err
	}
	record := store.StoryRecord{
		ID:        id,
		Title:     title,
		Version:   s.codec.CurrentVersion(),
		Data:      data,
		BodyText:  search.PlainText(created),
		UpdatedBy: actor,
	}
	if err := s.store.InsertStory(ctx, record); err != nil {
		return StoryView{}, err
	}
	if err := s.revisions.EnsureRepo(id, data, actor); err != nil {
		return StoryView{}, fmt.Errorf("create revision history: %w", err)
	}
	s.index(id, created)

	snapshot, err := s.putWorkingCopy(ctx, id, created, false)
	if err != nil {
		return StoryView{}, err
	}
	log.Printf("story %s created by %s", id, actor)
	return viewOf(id, snapshot), nil
}

// NewStory returns an empty story at the current schema version.
func NewStory(title string) story.Story {
	page := NewPage()
	return story.Story{
		Version: migrate.CurrentVersion,
		Title:   title,
		Pages:   []story.Page{page},
		Current: page.ID,
		Defaults: story.Defaults{
			AutoAdvance:       true,
			PageDuration:      7,
			BackgroundOverlay: story.OverlayNone,
		},
	}
}

// NewPage returns a page whose only element is a full-page background shape.
func NewPage() story.Page {
	background := story.Element{
		ID:           util.NewID("el"),
		Type:         story.ElementShape,
		X:            1,
		Y:            1,
		Width:        1,
		Height:       1,
		IsBackground: true,
		Extra: map[string]json.RawMessage{
			"isDefaultBackground": json.RawMessage("true"),
		},
	}
	return story.Page{
		ID:                  util.NewID("page"),
		Elements:            []story.Element{background},
		BackgroundElementID: background.ID,
		BackgroundOverlay:   story.OverlayNone,
	}
}

// OpenStory returns the working copy of a story, loading and migrating the
// stored document when no working copy exists.
func (s *Service) OpenStory(ctx context.Context, storyID string) (StoryView, error) {
	lock := s.storyLock(storyID)
	lock.Lock()
	defer lock.Unlock()

	snapshot, err := s.load(ctx, storyID)
	if err != nil {
		return StoryView{}, err
	}
	return viewOf(storyID, snapshot), nil
}

// Dispatch applies actions to the working copy in order. A non-empty
// fingerprint must match the working copy or nothing is applied.
func (s *Service) Dispatch(ctx context.Context, storyID string, input DispatchInput) (StoryView, error) {
	if len(input.Actions) == 0 {
		return StoryView{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "actions are required", nil)
	}

	lock := s.storyLock(storyID)
	lock.Lock()
	defer lock.Unlock()

	snapshot, err := s.load(ctx, storyID)
	if err != nil {
		return StoryView{}, err
	}
	if err := checkFingerprint(snapshot, input.Fingerprint); err != nil {
		return StoryView{}, err
	}

	next, err := reducer.Replay(snapshot.Story, input.Actions)
	if err != nil {
		return StoryView{}, domainError(http.StatusUnprocessableEntity, "INVALID_ACTION", err.Error(), nil)
	}
	fingerprint, err := next.Fingerprint()
	if err != nil {
		return StoryView{}, err
	}
	updated, err := s.putWorkingCopy(ctx, storyID, next, snapshot.Dirty || fingerprint != snapshot.Fingerprint)
	if err != nil {
		return StoryView{}, err
	}
	return viewOf(storyID, updated), nil
}

// Save persists the working copy, records a revision and refreshes the
// search index.
func (s *Service) Save(ctx context.Context, storyID string, input SaveInput, actor string) (SaveResult, error) {
	lock := s.storyLock(storyID)
	lock.Lock()
	defer lock.Unlock()

	snapshot, err := s.load(ctx, storyID)
	if err != nil {
		return SaveResult{}, err
	}
	data, err := s.codec.Encode(snapshot.Story)
	if err != nil {
		return SaveResult{}, err
	}

	record := store.StoryRecord{
		ID:        storyID,
		Title:     snapshot.Story.Title,
		Version:   s.codec.CurrentVersion(),
		Data:      data,
		BodyText:  search.PlainText(snapshot.Story),
		UpdatedBy: actor,
	}
	if err := s.store.UpdateStory(ctx, record); err != nil {
		return SaveResult{}, err
	}

	message := strings.TrimSpace(input.Message)
	if message == "" {
		message = "Save story"
	}
	if err := s.revisions.EnsureRepo(storyID, data, actor); err != nil {
		return SaveResult{}, fmt.Errorf("open revision history: %w", err)
	}
	revision, committed, err := s.revisions.Commit(storyID, data, actor, message)
	if err != nil {
		return SaveResult{}, fmt.Errorf("commit revision: %w", err)
	}
	s.index(storyID, snapshot.Story)

	snapshot.Dirty = false
	snapshot.UpdatedAt = time.Now().UTC()
	if err := s.working.Save(ctx, storyID, snapshot); err != nil {
		return SaveResult{}, err
	}
	return SaveResult{StoryView: viewOf(storyID, snapshot), Revision: revision, Committed: committed}, nil
}

func (s *Service) History(ctx context.Context, storyID string, limit int) ([]revisions.Revision, error) {
	if _, err := s.store.GetStory(ctx, storyID); err != nil {
		return nil, err
	}
	items, err := s.revisions.History(storyID, limit)
	if errors.Is(err, revisions.ErrNoHistory) {
		return []revisions.Revision{}, nil
	}
	return items, err
}

// DeleteStory removes a story and its working copy. Its revision history
// stays on disk.
func (s *Service) DeleteStory(ctx context.Context, storyID string) error {
	lock := s.storyLock(storyID)
	lock.Lock()
	defer lock.Unlock()

	if err := s.store.DeleteStory(ctx, storyID); err != nil {
		return err
	}
	if err := s.working.Delete(ctx, storyID); err != nil {
		log.Printf("story %s working copy not removed: %v", storyID, err)
	}
	if s.search != nil {
		s.search.DeleteStory(storyID)
	}
	return nil
}

// GetRevision reads a saved revision, migrated to the current schema.
func (s *Service) GetRevision(ctx context.Context, storyID, hash string) (RevisionView, error) {
	if _, err := s.store.GetStory(ctx, storyID); err != nil {
		return RevisionView{}, err
	}
	data, revision, err := s.revisions.Read(storyID, hash)
	if err != nil {
		return RevisionView{}, err
	}
	decoded, err := s.codec.Decode(data)
	if err != nil {
		return RevisionView{}, err
	}
	return RevisionView{Revision: revision, Story: decoded}, nil
}

// RestoreRevision replaces the working copy with a saved revision. The
// restored story still has to be saved to become current.
func (s *Service) RestoreRevision(ctx context.Context, storyID, hash string) (StoryView, error) {
	lock := s.storyLock(storyID)
	lock.Lock()
	defer lock.Unlock()

	if _, err := s.store.GetStory(ctx, storyID); err != nil {
		return StoryView{}, err
	}
	data, _, err := s.revisions.Read(storyID, hash)
	if err != nil {
		return StoryView{}, err
	}
	restored, err := s.codec.Decode(data)
	if err != nil {
		return StoryView{}, err
	}
	snapshot, err := s.putWorkingCopy(ctx, storyID, restored, true)
	if err != nil {
		return StoryView{}, err
	}
	return viewOf(storyID, snapshot), nil
}

// NameVersion tags a revision, the latest one when no hash is given.
func (s *Service) NameVersion(ctx context.Context, storyID string, input NamedVersionInput, actor string) (revisions.Revision, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" || strings.ContainsAny(name, " \t\n~^:?*[\\") {
		return revisions.Revision{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name must be a non-empty tag name without spaces", nil)
	}
	hash := strings.TrimSpace(input.Hash)
	if hash == "" {
		latest, err := s.History(ctx, storyID, 1)
		if err != nil {
			return revisions.Revision{}, err
		}
		if len(latest) == 0 {
			return revisions.Revision{}, domainError(http.StatusConflict, "NO_REVISIONS", "story has no saved revisions", nil)
		}
		hash = latest[0].Hash
	}
	if err := s.revisions.Tag(storyID, hash, name, actor); err != nil {
		return revisions.Revision{}, err
	}
	_, revision, err := s.revisions.Read(storyID, hash)
	if err != nil {
		return revisions.Revision{}, err
	}
	revision.Tags = []string{name}
	return revision, nil
}

// OffCanvas reports an element's overhang past the page, and the crop
// that would remove it for media elements.
func (s *Service) OffCanvas(ctx context.Context, storyID, elementID string) (OffCanvasReport, error) {
	view, err := s.OpenStory(ctx, storyID)
	if err != nil {
		return OffCanvasReport{}, err
	}
	page, element, ok := findElement(view.Story, elementID)
	if !ok {
		return OffCanvasReport{}, notFound("element")
	}
	box := geometry.ElementBox(element)
	report := OffCanvasReport{
		PageID:    page.ID,
		ElementID: element.ID,
		Box:       box,
		OffCanvas: geometry.IsOffCanvas(box),
	}
	if crop, ok := geometry.GetCropParams(element); ok {
		report.Crop = &crop
	}
	return report, nil
}

// TrimElement destructively crops the off-canvas pixels of a media
// element: the cropped image becomes the element's resource and the
// element shrinks to its on-canvas frame.
func (s *Service) TrimElement(ctx context.Context, storyID, elementID string, input TrimInput) (StoryView, error) {
	if s.media == nil {
		return StoryView{}, domainError(http.StatusServiceUnavailable, "MEDIA_DISABLED", "media storage is not configured", nil)
	}

	lock := s.storyLock(storyID)
	lock.Lock()
	defer lock.Unlock()

	snapshot, err := s.load(ctx, storyID)
	if err != nil {
		return StoryView{}, err
	}
	if err := checkFingerprint(snapshot, input.Fingerprint); err != nil {
		return StoryView{}, err
	}

	page, element, ok := findElement(snapshot.Story, elementID)
	if !ok {
		return StoryView{}, notFound("element")
	}
	if !element.Type.IsMedia() || element.Resource == nil {
		return StoryView{}, domainError(http.StatusUnprocessableEntity, "NOT_MEDIA", "only media elements can be trimmed", nil)
	}
	if !geometry.IsOffCanvas(geometry.ElementBox(element)).OffCanvas {
		return StoryView{}, domainError(http.StatusUnprocessableEntity, "ON_CANVAS", "element is fully on the page", nil)
	}
	crop, ok := geometry.GetCropParams(element)
	if !ok || crop.CropWidth <= 0 || crop.CropHeight <= 0 {
		return StoryView{}, domainError(http.StatusUnprocessableEntity, "NOTHING_TO_KEEP", "element has no on-canvas pixels", nil)
	}

	resource, err := s.media.Crop(ctx, *element.Resource, crop)
	if err != nil {
		return StoryView{}, err
	}
	patch := reducer.ElementPatch{
		X:        &crop.NewX,
		Y:        &crop.NewY,
		Width:    &crop.NewWidth,
		Height:   &crop.NewHeight,
		Resource: &resource,
	}
	next := updateOnPage(snapshot.Story, page.ID, elementID, patch)

	updated, err := s.putWorkingCopy(ctx, storyID, next, true)
	if err != nil {
		return StoryView{}, err
	}
	log.Printf("story %s element %s trimmed to %.0fx%.0f", storyID, elementID, crop.CropWidth, crop.CropHeight)
	return viewOf(storyID, updated), nil
}

func (s *Service) Search(ctx context.Context, query string, limit, offset int) search.Response {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: query}
	}
	return s.search.Search(ctx, search.Query{Text: query, Limit: limit, Offset: offset})
}

func (s *Service) UploadMedia(ctx context.Context, name string, body io.Reader) (story.Resource, error) {
	if s.media == nil {
		return story.Resource{}, domainError(http.StatusServiceUnavailable, "MEDIA_DISABLED", "media storage is not configured", nil)
	}
	return s.media.Upload(ctx, name, body)
}

// load returns the working copy, creating it from the stored story when
// none exists. Callers hold the story lock.
func (s *Service) load(ctx context.Context, storyID string) (session.Snapshot, error) {
	snapshot, err := s.working.Load(ctx, storyID)
	if err == nil {
		return snapshot, nil
	}
	if !errors.Is(err, session.ErrNotFound) {
		return session.Snapshot{}, err
	}

	record, err := s.store.GetStory(ctx, storyID)
	if err != nil {
		return session.Snapshot{}, err
	}
	decoded, from, err := s.codec.DecodeVersion(record.Data)
	if err != nil {
		log.Printf("story %s could not be opened: %v", storyID, err)
		return session.Snapshot{}, err
	}
	if from < s.codec.CurrentVersion() {
		log.Printf("story %s migrated from version %d to %d", storyID, from, s.codec.CurrentVersion())
	}
	return s.putWorkingCopy(ctx, storyID, decoded, false)
}

func (s *Service) putWorkingCopy(ctx context.Context, storyID string, st story.Story, dirty bool) (session.Snapshot, error) {
	fingerprint, err := st.Fingerprint()
	if err != nil {
		return session.Snapshot{}, err
	}
	snapshot := session.Snapshot{
		Story:       st,
		Fingerprint: fingerprint,
		Dirty:       dirty,
		UpdatedAt:   time.Now().UTC(),
	}
	if err := s.working.Save(ctx, storyID, snapshot); err != nil {
		return session.Snapshot{}, err
	}
	return snapshot, nil
}

func (s *Service) index(storyID string, st story.Story) {
	if s.search == nil {
		return
	}
	s.search.IndexStory(search.NewStoryRecord(storyID, st))
}

func (s *Service) storyLock(storyID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.locks[storyID]
	if ok {
		return lock
	}
	lock = &sync.Mutex{}
	s.locks[storyID] = lock
	return lock
}

func checkFingerprint(snapshot session.Snapshot, expected string) error {
	expected = strings.TrimSpace(expected)
	if expected == "" || expected == snapshot.Fingerprint {
		return nil
	}
	return domainError(http.StatusConflict, "CONFLICT", "story changed since it was read", map[string]any{
		"fingerprint": snapshot.Fingerprint,
	})
}

func findElement(st story.Story, elementID string) (story.Page, story.Element, bool) {
	for _, page := range st.Pages {
		if element, ok := page.Element(elementID); ok {
			return page, element, true
		}
	}
	return story.Page{}, story.Element{}, false
}

// updateOnPage patches an element that may live on a page other than the
// current one, leaving the current page and selection as they were.
func updateOnPage(st story.Story, pageID, elementID string, patch reducer.ElementPatch) story.Story {
	if st.Current == pageID {
		return reducer.UpdateElementByID(st, elementID, patch)
	}
	current, selection := st.Current, st.Selection
	next := reducer.UpdateElementByID(reducer.SetCurrentPage(st, pageID), elementID, patch)
	next.Current, next.Selection = current, selection
	return next
}

func viewOf(storyID string, snapshot session.Snapshot) StoryView {
	return StoryView{
		ID:          storyID,
		Story:       snapshot.Story,
		Fingerprint: snapshot.Fingerprint,
		Dirty:       snapshot.Dirty,
	}
}
