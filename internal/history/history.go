// Package history keeps a git repository per proposal with one commit for
// every state that reached the remote store.
package history

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	json "github.com/goccy/go-json"

	"bidline/api/internal/proposal"
)

const (
	proposalFile = "proposal.json"
	summaryFile  = "summary.json"
	authorName   = "bidline"
	authorEmail  = "sync@bidline.local"
)

// ErrNoHistory is returned when a proposal has never been recorded.
var ErrNoHistory = errors.New("no history for proposal")

var safeID = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Revision describes one recorded commit.
type Revision struct {
	Hash       string    `json:"hash"`
	FullHash   string    `json:"fullHash"`
	Message    string    `json:"message"`
	Author     string    `json:"author"`
	CreatedAt  time.Time `json:"createdAt"`
	TotalValue float64   `json:"totalValue"`
	Progress   int       `json:"progress"`
}

// FieldChange is one summary field that differs between two revisions.
type FieldChange struct {
	Field  string `json:"field"`
	Before string `json:"before"`
	After  string `json:"after"`
}

type Service struct {
	baseDir string
	now     func() time.Time
	lockMu  sync.Mutex
	locks   map[string]*sync.Mutex
}

func New(baseDir string) *Service {
	return &Service{
		baseDir: baseDir,
		now:     time.Now,
		locks:   make(map[string]*sync.Mutex),
	}
}

// RecordSynced commits the synced state. It has the shape of a sync hook.
func (s *Service) RecordSynced(_ context.Context, p proposal.Proposal, stored proposal.Summary) error {
	_, _, err := s.Record(p, stored)
	return err
}

// Record writes the proposal and its stored summary and commits them. When
// nothing changed since the last commit no commit is made and the current
// head is returned with committed == false.
func (s *Service) Record(p proposal.Proposal, stored proposal.Summary) (Revision, bool, error) {
	if !safeID.MatchString(p.ID) {
		return Revision{}, false, fmt.Errorf("record history: invalid proposal id %q", p.ID)
	}
	lock := s.proposalLock(p.ID)
	lock.Lock()
	defer lock.Unlock()

	repo, fresh, err := s.openOrInit(p.ID)
	if err != nil {
		return Revision{}, false, err
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return Revision{}, false, fmt.Errorf("open worktree: %w", err)
	}
	root := worktree.Filesystem.Root()

	if err := writeJSON(filepath.Join(root, proposalFile), p); err != nil {
		return Revision{}, false, err
	}
	if err := writeJSON(filepath.Join(root, summaryFile), stored); err != nil {
		return Revision{}, false, err
	}
	for _, name := range []string{proposalFile, summaryFile} {
		if _, err := worktree.Add(name); err != nil {
			return Revision{}, false, fmt.Errorf("git add %s: %w", name, err)
		}
	}

	if !fresh {
		status, err := worktree.Status()
		if err != nil {
			return Revision{}, false, fmt.Errorf("worktree status: %w", err)
		}
		if status.IsClean() {
			head, err := headCommit(repo)
			if err != nil {
				return Revision{}, false, err
			}
			rev, err := toRevision(head)
			return rev, false, err
		}
	}

	hash, err := worktree.Commit(commitMessage(stored), &git.CommitOptions{
		Author: &object.Signature{Name: authorName, Email: authorEmail, When: s.now()},
	})
	if err != nil {
		return Revision{}, false, fmt.Errorf("commit proposal state: %w", err)
	}
	if fresh {
		if err := pointHeadAtMain(repo, hash); err != nil {
			return Revision{}, false, err
		}
	}

	commitObj, err := repo.CommitObject(hash)
	if err != nil {
		return Revision{}, false, fmt.Errorf("read commit object: %w", err)
	}
	rev, err := toRevision(commitObj)
	return rev, true, err
}

// History lists revisions newest first. limit <= 0 returns everything.
func (s *Service) History(id string, limit int) ([]Revision, error) {
	repo, unlock, err := s.open(id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	head, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("resolve head: %w", err)
	}
	iter, err := repo.Log(&git.LogOptions{From: head.Hash()})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	items := make([]Revision, 0)
	err = iter.ForEach(func(commitObj *object.Commit) error {
		rev, err := toRevision(commitObj)
		if err != nil {
			return err
		}
		items = append(items, rev)
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

// Content returns the proposal recorded at hash (full or abbreviated).
func (s *Service) Content(id, hash string) (proposal.Proposal, error) {
	repo, unlock, err := s.open(id)
	if err != nil {
		return proposal.Proposal{}, err
	}
	defer unlock()

	commitObj, err := resolveCommit(repo, hash)
	if err != nil {
		return proposal.Proposal{}, err
	}
	var p proposal.Proposal
	if err := readJSON(commitObj, proposalFile, &p); err != nil {
		return proposal.Proposal{}, err
	}
	p.Sanitize()
	return p, nil
}

// Diff lists the summary fields that changed between two revisions.
func (s *Service) Diff(id, fromHash, toHash string) ([]FieldChange, error) {
	repo, unlock, err := s.open(id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var from, to proposal.Summary
	for _, item := range []struct {
		hash string
		dst  *proposal.Summary
	}{{fromHash, &from}, {toHash, &to}} {
		commitObj, err := resolveCommit(repo, item.hash)
		if err != nil {
			return nil, err
		}
		if err := readJSON(commitObj, summaryFile, item.dst); err != nil {
			return nil, err
		}
	}
	return DiffSummaries(from, to), nil
}

// DiffSummaries compares the user-visible summary fields, sorted by name.
func DiffSummaries(from, to proposal.Summary) []FieldChange {
	pairs := []FieldChange{
		{Field: "title", Before: from.Title, After: to.Title},
		{Field: "solicitation", Before: from.Solicitation, After: to.Solicitation},
		{Field: "client", Before: from.Client, After: to.Client},
		{Field: "contractType", Before: from.ContractType, After: to.ContractType},
		{Field: "dueDate", Before: from.DueDate, After: to.DueDate},
		{Field: "totalValue", Before: formatMoney(from.TotalValue), After: formatMoney(to.TotalValue)},
		{Field: "teamSize", Before: strconv.Itoa(from.TeamSize), After: strconv.Itoa(to.TeamSize)},
		{Field: "periodOfPerformance", Before: from.PeriodOfPerformance, After: to.PeriodOfPerformance},
		{Field: "progress", Before: strconv.Itoa(from.Progress), After: strconv.Itoa(to.Progress)},
	}
	result := make([]FieldChange, 0)
	for _, item := range pairs {
		if item.Before != item.After {
			result = append(result, item)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Field < result[j].Field
	})
	return result
}

func (s *Service) repoPath(id string) string {
	return filepath.Join(s.baseDir, id)
}

func (s *Service) proposalLock(id string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.locks[id]
	if ok {
		return lock
	}
	lock = &sync.Mutex{}
	s.locks[id] = lock
	return lock
}

// open returns the repository for id with its lock held.
func (s *Service) open(id string) (*git.Repository, func(), error) {
	if !safeID.MatchString(id) {
		return nil, nil, ErrNoHistory
	}
	lock := s.proposalLock(id)
	lock.Lock()
	repo, err := git.PlainOpen(s.repoPath(id))
	if errors.Is(err, git.ErrRepositoryNotExists) {
		lock.Unlock()
		return nil, nil, ErrNoHistory
	}
	if err != nil {
		lock.Unlock()
		return nil, nil, fmt.Errorf("open repo: %w", err)
	}
	return repo, lock.Unlock, nil
}

func (s *Service) openOrInit(id string) (*git.Repository, bool, error) {
	path := s.repoPath(id)
	repo, err := git.PlainOpen(path)
	if err == nil {
		return repo, false, nil
	}
	if !errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, false, fmt.Errorf("open repo: %w", err)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, false, fmt.Errorf("create repo dir: %w", err)
	}
	repo, err = git.PlainInit(path, false)
	if err != nil {
		return nil, false, fmt.Errorf("init repo: %w", err)
	}
	return repo, true, nil
}

func pointHeadAtMain(repo *git.Repository, hash plumbing.Hash) error {
	mainRef := plumbing.NewBranchReferenceName("main")
	if err := repo.Storer.SetReference(plumbing.NewHashReference(mainRef, hash)); err != nil {
		return fmt.Errorf("set main branch ref: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, mainRef)); err != nil {
		return fmt.Errorf("set HEAD to main: %w", err)
	}
	return nil
}

func headCommit(repo *git.Repository) (*object.Commit, error) {
	head, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("resolve head: %w", err)
	}
	commitObj, err := repo.CommitObject(head.Hash())
	if err != nil {
		return nil, fmt.Errorf("load head commit: %w", err)
	}
	return commitObj, nil
}

func resolveCommit(repo *git.Repository, hash string) (*object.Commit, error) {
	var resolved plumbing.Hash
	if len(hash) == 40 {
		resolved = plumbing.NewHash(hash)
	} else {
		h, err := repo.ResolveRevision(plumbing.Revision(hash))
		if err != nil {
			return nil, fmt.Errorf("resolve revision %s: %w", hash, err)
		}
		resolved = *h
	}
	commitObj, err := repo.CommitObject(resolved)
	if err != nil {
		return nil, fmt.Errorf("read commit %s: %w", hash, err)
	}
	return commitObj, nil
}

func toRevision(commitObj *object.Commit) (Revision, error) {
	rev := Revision{
		Hash:      commitObj.Hash.String()[:7],
		FullHash:  commitObj.Hash.String(),
		Message:   commitObj.Message,
		Author:    commitObj.Author.Name,
		CreatedAt: commitObj.Author.When,
	}
	var stored proposal.Summary
	if err := readJSON(commitObj, summaryFile, &stored); err != nil {
		return Revision{}, err
	}
	rev.TotalValue = stored.TotalValue
	rev.Progress = stored.Progress
	return rev, nil
}

func readJSON(commitObj *object.Commit, name string, dst any) error {
	file, err := commitObj.File(name)
	if err != nil {
		return fmt.Errorf("load %s from commit: %w", name, err)
	}
	contents, err := file.Contents()
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	if err := json.Unmarshal([]byte(contents), dst); err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}
	return nil
}

func writeJSON(path string, value any) error {
	payload, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, append(payload, '\n'), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}

func commitMessage(s proposal.Summary) string {
	title := s.Title
	if title == "" {
		title = "Untitled proposal"
	}
	return fmt.Sprintf("%s\n\ntotal=%s progress=%d%% team=%d period=%q",
		title, formatMoney(s.TotalValue), s.Progress, s.TeamSize, s.PeriodOfPerformance)
}

func formatMoney(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
