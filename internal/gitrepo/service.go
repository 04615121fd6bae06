// Package gitrepo keeps a git history of every caption revision, one
// repository per content item.
package gitrepo

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Revision is the caption snapshot written on every lifecycle event.
type Revision struct {
	CaptionID     string `json:"captionId"`
	ContentItemID string `json:"contentItemId"`
	Event         string `json:"event"`
	Tone          string `json:"tone"`
	Content       string `json:"content"`
	Status        string `json:"status"`
	Version       int    `json:"version"`
}

// Commit describes one archived revision.
type Commit struct {
	Hash      string    `json:"hash"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
	Revision  *Revision `json:"revision,omitempty"`
}

var (
	ErrNoHistory        = errors.New("no revision history")
	ErrRevisionNotFound = errors.New("revision not found")
)

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

// RecordRevision commits the caption snapshot to the content item's repo,
// creating the repo on first use.
func (s *Service) RecordRevision(rev Revision, author string) (Commit, error) {
	lock := s.itemLock(rev.ContentItemID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.openOrInit(rev.ContentItemID)
	if err != nil {
		return Commit{}, err
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return Commit{}, fmt.Errorf("open worktree: %w", err)
	}

	payload, err := json.MarshalIndent(rev, "", "  ")
	if err != nil {
		return Commit{}, fmt.Errorf("marshal revision: %w", err)
	}

	relPath := revisionPath(rev.CaptionID)
	absPath := filepath.Join(worktree.Filesystem.Root(), filepath.FromSlash(relPath))
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return Commit{}, fmt.Errorf("create captions dir: %w", err)
	}
	if err := os.WriteFile(absPath, append(payload, '\n'), 0o644); err != nil {
		return Commit{}, fmt.Errorf("write revision: %w", err)
	}
	if _, err := worktree.Add(relPath); err != nil {
		return Commit{}, fmt.Errorf("git add revision: %w", err)
	}

	message := fmt.Sprintf("%s %s v%d", commitPrefix(rev.CaptionID), rev.Event, rev.Version)
	hash, err := worktree.Commit(message, &git.CommitOptions{
		AllowEmptyCommits: true,
		Author: &object.Signature{
			Name:  author,
			Email: fmt.Sprintf("%s@captiondesk.local", sanitizeEmail(author)),
			When:  time.Now(),
		},
	})
	if err != nil {
		return Commit{}, fmt.Errorf("commit revision: %w", err)
	}

	commitObj, err := repo.CommitObject(hash)
	if err != nil {
		return Commit{}, fmt.Errorf("read commit object: %w", err)
	}
	info := toCommit(commitObj)
	info.Revision = &rev
	return info, nil
}

// History lists the revisions of one caption, newest first.
func (s *Service) History(contentItemID, captionID string, limit int) ([]Commit, error) {
	lock := s.itemLock(contentItemID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(contentItemID))
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return nil, ErrNoHistory
		}
		return nil, fmt.Errorf("open repo: %w", err)
	}

	head, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("resolve head: %w", err)
	}

	iter, err := repo.Log(&git.LogOptions{From: head.Hash()})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	prefix := commitPrefix(captionID) + " "
	items := make([]Commit, 0)
	err = iter.ForEach(func(commitObj *object.Commit) error {
		if !strings.HasPrefix(commitObj.Message, prefix) {
			return nil
		}
		info := toCommit(commitObj)
		rev, err := readRevision(commitObj, captionID)
		if err != nil {
			return err
		}
		info.Revision = &rev
		items = append(items, info)
		if limit > 0 && len(items) >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	if len(items) == 0 {
		return nil, ErrNoHistory
	}
	return items, nil
}

// GetRevision returns the caption snapshot stored at a commit.
func (s *Service) GetRevision(contentItemID, captionID, hash string) (Revision, error) {
	lock := s.itemLock(contentItemID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(contentItemID))
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return Revision{}, ErrRevisionNotFound
	}
	if err != nil {
		return Revision{}, fmt.Errorf("open repo: %w", err)
	}
	resolved, err := resolveHash(repo, hash)
	if err != nil {
		return Revision{}, fmt.Errorf("%w: %v", ErrRevisionNotFound, err)
	}
	commitObj, err := repo.CommitObject(resolved)
	if errors.Is(err, plumbing.ErrObjectNotFound) {
		return Revision{}, ErrRevisionNotFound
	}
	if err != nil {
		return Revision{}, fmt.Errorf("read commit %s: %w", hash, err)
	}
	rev, err := readRevision(commitObj, captionID)
	if errors.Is(err, object.ErrFileNotFound) {
		return Revision{}, ErrRevisionNotFound
	}
	return rev, err
}

func (s *Service) openOrInit(contentItemID string) (*git.Repository, error) {
	repoDir := s.repoPath(contentItemID)
	repo, err := git.PlainOpen(repoDir)
	if err == nil {
		return repo, nil
	}
	if !errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("open repo: %w", err)
	}

	if err := os.MkdirAll(repoDir, 0o755); err != nil {
		return nil, fmt.Errorf("create repo dir: %w", err)
	}
	repo, err = git.PlainInit(repoDir, false)
	if err != nil {
		return nil, fmt.Errorf("init repo: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName("main"))); err != nil {
		return nil, fmt.Errorf("set HEAD to main: %w", err)
	}
	return repo, nil
}

func (s *Service) repoPath(contentItemID string) string {
	return filepath.Join(s.baseDir, contentItemID)
}

func (s *Service) itemLock(contentItemID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.locks[contentItemID]
	if ok {
		return lock
	}
	lock = &sync.Mutex{}
	s.locks[contentItemID] = lock
	return lock
}

func revisionPath(captionID string) string {
	return path.Join("captions", captionID+".json")
}

func commitPrefix(captionID string) string {
	return "caption " + captionID + ":"
}

func readRevision(commitObj *object.Commit, captionID string) (Revision, error) {
	file, err := commitObj.File(revisionPath(captionID))
	if err != nil {
		return Revision{}, fmt.Errorf("load revision from commit: %w", err)
	}
	contents, err := file.Contents()
	if err != nil {
		return Revision{}, fmt.Errorf("read revision: %w", err)
	}
	var rev Revision
	if err := json.Unmarshal([]byte(contents), &rev); err != nil {
		return Revision{}, fmt.Errorf("decode revision: %w", err)
	}
	return rev, nil
}

func toCommit(commitObj *object.Commit) Commit {
	return Commit{
		Hash:      commitObj.Hash.String()[:7],
		Message:   strings.TrimSpace(commitObj.Message),
		Author:    commitObj.Author.Name,
		CreatedAt: commitObj.Author.When,
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

func resolveHash(repo *git.Repository, hash string) (plumbing.Hash, error) {
	if len(hash) == 40 {
		return plumbing.NewHash(hash), nil
	}
	resolved, err := repo.ResolveRevision(plumbing.Revision(hash))
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("resolve hash %s: %w", hash, err)
	}
	return *resolved, nil
}
