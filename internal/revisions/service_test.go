package revisions

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

const (
	firstDoc  = `{"version":12,"title":"Launch","pages":[{"id":"p1","elements":[]}]}`
	secondDoc = `{"version":12,"title":"Launch v2","pages":[{"id":"p1","elements":[]}]}`
)

func TestStoryRepoLifecycle(t *testing.T) {
	tempDir := t.TempDir()
	svc := New(tempDir)

	if err := svc.EnsureRepo("story-1", []byte(firstDoc), "Avery"); err != nil {
		t.Fatalf("EnsureRepo() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(tempDir, "story-1")); err != nil {
		t.Fatalf("repo directory missing: %v", err)
	}
	if err := svc.EnsureRepo("story-1", []byte(secondDoc), "Avery"); err != nil {
		t.Fatalf("EnsureRepo() second call error = %v", err)
	}

	rev, changed, err := svc.Commit("story-1", []byte(secondDoc), "Avery", "Rename story")
	if err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	if !changed || len(rev.Hash) != 40 {
		t.Fatalf("Commit() = %+v changed=%v", rev, changed)
	}

	history, err := svc.History("story-1", 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("History() len = %d, want 2", len(history))
	}
	if history[0].Hash != rev.Hash || strings.TrimSpace(history[0].Message) != "Rename story" {
		t.Fatalf("History()[0] = %+v", history[0])
	}
	if strings.TrimSpace(history[1].Message) != "Create story" {
		t.Fatalf("History()[1] = %+v", history[1])
	}

	data, read, err := svc.Read("story-1", history[1].Hash[:7])
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if !strings.Contains(string(data), `"Launch"`) || read.Hash != history[1].Hash {
		t.Fatalf("Read() = %s %+v", data, read)
	}
}

func TestCommitSkipsUnchangedDocument(t *testing.T) {
	svc := New(t.TempDir())
	if err := svc.EnsureRepo("story-1", []byte(firstDoc), "Avery"); err != nil {
		t.Fatalf("EnsureRepo() error = %v", err)
	}

	reordered := `{"title":"Launch","pages":[{"elements":[],"id":"p1"}],"version":12}`
	_, changed, err := svc.Commit("story-1", []byte(reordered), "Avery", "No-op")
	if err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	if changed {
		t.Fatal("expected unchanged document to skip commit")
	}

	history, err := svc.History("story-1", 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("History() len = %d, want 1", len(history))
	}
}

func TestCommitSkipsEquivalentEncodings(t *testing.T) {
	svc := New(t.TempDir())
	stored := `{"version":12,"title":"Café","pages":[{"id":"p1","elements":[]}]}`
	if err := svc.EnsureRepo("story-1", []byte(stored), "Avery"); err != nil {
		t.Fatalf("EnsureRepo() error = %v", err)
	}

	escaped := `{ "pages": [ {"elements": [], "id": "p1"} ], "title": "Caf\u00e9", "version": 12.0 }`
	_, changed, err := svc.Commit("story-1", []byte(escaped), "Avery", "No-op")
	if err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	if changed {
		t.Fatal("expected escaped and reformatted document to skip commit")
	}
}

func TestRejectsStoryIDsOutsideBaseDir(t *testing.T) {
	base := filepath.Join(t.TempDir(), "repos")
	if err := os.MkdirAll(base, 0o755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	svc := New(base)

	for _, id := range []string{"", ".", "..", "../other", "a/b", `a\b`} {
		if _, err := svc.History(id, 0); !errors.Is(err, ErrNotFound) {
			t.Errorf("History(%q) error = %v, want ErrNotFound", id, err)
		}
		if _, _, err := svc.Read(id, "main"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Read(%q) error = %v, want ErrNotFound", id, err)
		}
		if err := svc.EnsureRepo(id, []byte(firstDoc), "Avery"); !errors.Is(err, ErrNotFound) {
			t.Errorf("EnsureRepo(%q) error = %v, want ErrNotFound", id, err)
		}
	}
	entries, err := os.ReadDir(filepath.Dir(base))
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("unexpected entries next to repos dir: %v", entries)
	}
}

func TestTagNamesRevision(t *testing.T) {
	svc := New(t.TempDir())
	if err := svc.EnsureRepo("story-1", []byte(firstDoc), "Avery"); err != nil {
		t.Fatalf("EnsureRepo() error = %v", err)
	}
	rev, _, err := svc.Commit("story-1", []byte(secondDoc), "Avery", "Rename story")
	if err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	if err := svc.Tag("story-1", rev.Hash, "launch-day", "Avery"); err != nil {
		t.Fatalf("Tag() error = %v", err)
	}
	if err := svc.Tag("story-1", rev.Hash, "launch-day", "Avery"); err != nil {
		t.Fatalf("Tag() repeated error = %v", err)
	}

	history, err := svc.History("story-1", 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history[0].Tags) != 1 || history[0].Tags[0] != "launch-day" {
		t.Fatalf("History()[0].Tags = %v", history[0].Tags)
	}
	if len(history[1].Tags) != 0 {
		t.Fatalf("History()[1].Tags = %v", history[1].Tags)
	}

	data, _, err := svc.Read("story-1", "launch-day")
	if err != nil {
		t.Fatalf("Read(tag) error = %v", err)
	}
	if !strings.Contains(string(data), "Launch v2") {
		t.Fatalf("Read(tag) = %s", data)
	}
}

func TestMissingRepoAndRevision(t *testing.T) {
	svc := New(t.TempDir())

	if _, err := svc.History("nope", 0); !errors.Is(err, ErrNoHistory) {
		t.Fatalf("History(missing) error = %v, want ErrNoHistory", err)
	}

	if err := svc.EnsureRepo("story-1", []byte(firstDoc), "Avery"); err != nil {
		t.Fatalf("EnsureRepo() error = %v", err)
	}
	if _, _, err := svc.Read("story-1", "deadbeef"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Read(unknown) error = %v, want ErrNotFound", err)
	}
}

func TestConcurrentCommitsAreSerialized(t *testing.T) {
	svc := New(t.TempDir())
	if err := svc.EnsureRepo("story-1", []byte(firstDoc), "Avery"); err != nil {
		t.Fatalf("EnsureRepo() error = %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			doc := fmt.Sprintf(`{"version":12,"title":"Draft %d","pages":[]}`, n)
			if _, _, err := svc.Commit("story-1", []byte(doc), "Avery", fmt.Sprintf("Draft %d", n)); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("Commit() error = %v", err)
	}

	history, err := svc.History("story-1", 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 9 {
		t.Fatalf("History() len = %d, want 9", len(history))
	}
}
