// Package revisions keeps the saved history of every story in its own git
// repository. Each save commits the encoded document as story.json on main.
package revisions

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/gowebpki/jcs"
)

const (
	documentFile = "story.json"
	mainBranch   = "main"
)

var (
	ErrNotFound  = errors.New("revision not found")
	ErrNoHistory = errors.New("story has no revision history")
)

// Revision describes one saved version of a story.
type Revision struct {
	Hash      string    `json:"hash"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
	Tags      []string  `json:"tags,omitempty"`
}

type Service struct {
	baseDir string
	lockMu  sync.Mutex
	locks   map[string]*sync.Mutex
}

func New(baseDir string) *Service {
	return &Service{
		baseDir: baseDir,
		locks:   make(map[string]*sync.Mutex),
	}
}

// EnsureRepo creates the story repository with initial as its first commit.
// It does nothing when the repository already exists.
func (s *Service) EnsureRepo(storyID string, initial []byte, author string) error {
	lock := s.storyLock(storyID)
	lock.Lock()
	defer lock.Unlock()

	path, err := s.repoPath(storyID)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat repo path: %w", err)
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("create repo dir: %w", err)
	}
	repo, err := git.PlainInit(path, false)
	if err != nil {
		return fmt.Errorf("init repo: %w", err)
	}
	hash, err := writeAndCommit(repo, initial, author, "Create story")
	if err != nil {
		return err
	}
	if err := repo.Storer.SetReference(plumbing.NewHashReference(plumbing.NewBranchReferenceName(mainBranch), hash)); err != nil {
		return fmt.Errorf("set main branch ref: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName(mainBranch))); err != nil {
		return fmt.Errorf("set HEAD to main: %w", err)
	}
	return nil
}

// Commit records data as the next revision. When data matches the head
// revision no commit is made and the head is returned with changed=false.
func (s *Service) Commit(storyID string, data []byte, author, message string) (Revision, bool, error) {
	lock := s.storyLock(storyID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.open(storyID)
	if err != nil {
		return Revision{}, false, err
	}
	head, err := headCommit(repo)
	if err != nil {
		return Revision{}, false, err
	}
	current, err := readDocument(head)
	if err != nil {
		return Revision{}, false, err
	}
	if bytes.Equal(canonical(current), canonical(data)) {
		return toRevision(head), false, nil
	}

	hash, err := writeAndCommit(repo, data, author, message)
	if err != nil {
		return Revision{}, false, err
	}
	commitObj, err := repo.CommitObject(hash)
	if err != nil {
		return Revision{}, false, fmt.Errorf("read commit object: %w", err)
	}
	return toRevision(commitObj), true, nil
}

// History lists revisions newest first, with their tags. A limit of zero
// or less returns everything.
func (s *Service) History(storyID string, limit int) ([]Revision, error) {
	lock := s.storyLock(storyID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.open(storyID)
	if err != nil {
		return nil, err
	}
	head, err := headCommit(repo)
	if err != nil {
		return nil, err
	}
	tags, err := tagsByCommit(repo)
	if err != nil {
		return nil, err
	}

	iter, err := repo.Log(&git.LogOptions{From: head.Hash})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	items := make([]Revision, 0)
	err = iter.ForEach(func(commitObj *object.Commit) error {
		item := toRevision(commitObj)
		item.Tags = tags[commitObj.Hash]
		items = append(items, item)
		if limit > 0 && len(items) >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return items, nil
}

// Read returns the document stored at hash, which may be abbreviated or a
// tag name.
func (s *Service) Read(storyID, hash string) ([]byte, Revision, error) {
	lock := s.storyLock(storyID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.open(storyID)
	if err != nil {
		return nil, Revision{}, err
	}
	commitObj, err := resolveCommit(repo, hash)
	if err != nil {
		return nil, Revision{}, err
	}
	data, err := readDocument(commitObj)
	if err != nil {
		return nil, Revision{}, err
	}
	return data, toRevision(commitObj), nil
}

// Tag names the revision at hash. Tagging the same name twice is a no-op.
func (s *Service) Tag(storyID, hash, name, author string) error {
	lock := s.storyLock(storyID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.open(storyID)
	if err != nil {
		return err
	}
	commitObj, err := resolveCommit(repo, hash)
	if err != nil {
		return err
	}
	_, err = repo.CreateTag(name, commitObj.Hash, &git.CreateTagOptions{
		Tagger:  signature(author),
		Message: name,
	})
	if err != nil && !errors.Is(err, git.ErrTagExists) {
		return fmt.Errorf("create tag: %w", err)
	}
	return nil
}

// repoPath maps a story id to its repository directory. Ids that could
// name anything outside baseDir are treated as unknown stories.
func (s *Service) repoPath(storyID string) (string, error) {
	if storyID == "" || storyID == "." || strings.Contains(storyID, "..") || strings.ContainsAny(storyID, "/\\\x00") {
		return "", fmt.Errorf("%w: story %q", ErrNotFound, storyID)
	}
	return filepath.Join(s.baseDir, storyID), nil
}

func (s *Service) open(storyID string) (*git.Repository, error) {
	path, err := s.repoPath(storyID)
	if err != nil {
		return nil, err
	}
	repo, err := git.PlainOpen(path)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, ErrNoHistory
	}
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}
	return repo, nil
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

func writeAndCommit(repo *git.Repository, data []byte, author, message string) (plumbing.Hash, error) {
	worktree, err := repo.Worktree()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("open worktree: %w", err)
	}
	payload, err := indent(data)
	if err != nil {
		return plumbing.ZeroHash, err
	}
	root := worktree.Filesystem.Root()
	if err := os.WriteFile(filepath.Join(root, documentFile), payload, 0o644); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("write %s: %w", documentFile, err)
	}
	if _, err := worktree.Add(documentFile); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("git add %s: %w", documentFile, err)
	}
	hash, err := worktree.Commit(message, &git.CommitOptions{
		AllowEmptyCommits: true,
		Author:            signature(author),
	})
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("commit story: %w", err)
	}
	return hash, nil
}

func headCommit(repo *git.Repository) (*object.Commit, error) {
	ref, err := repo.Reference(plumbing.NewBranchReferenceName(mainBranch), true)
	if err != nil {
		return nil, fmt.Errorf("resolve branch %s: %w", mainBranch, err)
	}
	commitObj, err := repo.CommitObject(ref.Hash())
	if err != nil {
		return nil, fmt.Errorf("load head commit: %w", err)
	}
	return commitObj, nil
}

func resolveCommit(repo *git.Repository, hash string) (*object.Commit, error) {
	resolved, err := repo.ResolveRevision(plumbing.Revision(hash))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, hash)
	}
	commitObj, err := repo.CommitObject(*resolved)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, hash)
	}
	return commitObj, nil
}

func tagsByCommit(repo *git.Repository) (map[plumbing.Hash][]string, error) {
	iter, err := repo.Tags()
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	defer iter.Close()

	tags := make(map[plumbing.Hash][]string)
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		target := ref.Hash()
		if tagObj, err := repo.TagObject(ref.Hash()); err == nil {
			target = tagObj.Target
		}
		tags[target] = append(tags[target], ref.Name().Short())
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("iterate tags: %w", err)
	}
	for hash := range tags {
		sort.Strings(tags[hash])
	}
	return tags, nil
}

func readDocument(commitObj *object.Commit) ([]byte, error) {
	file, err := commitObj.File(documentFile)
	if err != nil {
		return nil, fmt.Errorf("load %s from commit: %w", documentFile, err)
	}
	reader, err := file.Reader()
	if err != nil {
		return nil, fmt.Errorf("open %s reader: %w", documentFile, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", documentFile, err)
	}
	return data, nil
}

func toRevision(commitObj *object.Commit) Revision {
	return Revision{
		Hash:      commitObj.Hash.String(),
		Message:   commitObj.Message,
		Author:    commitObj.Author.Name,
		CreatedAt: commitObj.Author.When,
	}
}

func signature(author string) *object.Signature {
	if author == "" {
		author = "Story Editor"
	}
	return &object.Signature{
		Name:  author,
		Email: fmt.Sprintf("%s@local.storyeditor.dev", sanitizeEmail(author)),
		When:  time.Now(),
	}
}

func sanitizeEmail(input string) string {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			out = append(out, r)
			continue
		}
		if r == ' ' || r == '-' || r == '_' {
			out = append(out, '.')
		}
	}
	if len(out) == 0 {
		return "user"
	}
	return string(out)
}

func indent(data []byte) ([]byte, error) {
	var out bytes.Buffer
	if err := json.Indent(&out, data, "", "  "); err != nil {
		return nil, fmt.Errorf("format story document: %w", err)
	}
	out.WriteByte('\n')
	return out.Bytes(), nil
}

// canonical returns the RFC 8785 form of data so that formatting and key
// order do not count as changes. Invalid JSON is compared as-is.
func canonical(data []byte) []byte {
	normalized, err := jcs.Transform(data)
	if err != nil {
		return data
	}
	return normalized
}
