package task

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"taskbell/internal/applog"
	"taskbell/internal/clock"
)

var legacySeq atomic.Int64

type Options struct {
	Path   string
	Clock  clock.Clock
	Logger *log.Logger
}

// Store is the ordered task list and its JSON file mirror. Every mutation
// rewrites the whole file before returning.
type Store struct {
	mu     sync.Mutex
	path   string
	clock  clock.Clock
	logger *log.Logger
	flk    *flock.Flock
	tasks  []Task
}

// DueBatch is what one scheduler pass claimed.
type DueBatch struct {
	Claimed []Task
	// Skipped holds ids whose reminder time could not be interpreted.
	Skipped []string
}

func NewStore(opts Options) (*Store, error) {
	path := strings.TrimSpace(opts.Path)
	if path == "" {
		return nil, errors.New("store path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return &Store{
		path:   path,
		clock:  clock.OrReal(opts.Clock),
		logger: applog.Or(opts.Logger),
		flk:    flock.New(path + ".lock"),
		tasks:  []Task{},
	}, nil
}

// Open creates the store and loads it. On ErrCorruptStore or ErrPersistence
// the returned store is still usable.
func Open(opts Options) (*Store, error) {
	s, err := NewStore(opts)
	if err != nil {
		return nil, err
	}
	return s, s.Load()
}

func (s *Store) Path() string { return s.path }

// TryLock takes the cross-process lock without waiting.
func (s *Store) TryLock() error {
	ok, err := s.flk.TryLock()
	if err != nil {
		return fmt.Errorf("lock %s: %w", s.flk.Path(), err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrStoreBusy, s.flk.Path())
	}
	return nil
}

func (s *Store) Unlock() error {
	return s.flk.Unlock()
}

func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tasks = []Task{}

	b, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("%w: read %s: %v", ErrCorruptStore, s.path, err)
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return nil
	}

	var loaded []Task
	if err := json.Unmarshal(b, &loaded); err != nil {
		moved, mvErr := s.quarantineLocked()
		if mvErr != nil {
			return fmt.Errorf("%w: parse %s: %v (could not move it aside: %v)", ErrCorruptStore, s.path, err, mvErr)
		}
		return fmt.Errorf("%w: parse %s: %v (moved to %s)", ErrCorruptStore, s.path, err, moved)
	}
	if loaded == nil {
		loaded = []Task{}
	}

	repaired := backfillIDs(loaded, s.clock.Now())
	s.tasks = loaded
	if repaired == 0 {
		return nil
	}

	applog.Warn(s.logger, "store_backfilled_ids", map[string]any{
		"path":     s.path,
		"repaired": repaired,
	})
	return s.saveLocked()
}

// backfillIDs assigns ids to records that lack one or repeat an earlier one.
func backfillIDs(tasks []Task, now time.Time) int {
	seen := make(map[string]bool, len(tasks))
	repaired := 0
	for i := range tasks {
		id := strings.TrimSpace(tasks[i].ID)
		if id == "" || seen[id] {
			id = fmt.Sprintf("legacy_%d_%d_%d", i, now.UnixMilli(), legacySeq.Add(1))
			repaired++
		}
		tasks[i].ID = id
		seen[id] = true
	}
	return repaired
}

func (s *Store) quarantineLocked() (string, error) {
	dst := fmt.Sprintf("%s.corrupt-%s", s.path, s.clock.Now().Format("20060102T150405"))
	if err := os.Rename(s.path, dst); err != nil {
		return "", err
	}
	return dst, nil
}

func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

// saveLocked replaces the file atomically: temp file in the same directory,
// fsync, then rename over the old one.
func (s *Store) saveLocked() error {
	b, err := json.MarshalIndent(s.tasks, "", "    ")
	if err != nil {
		return fmt.Errorf("%w: encode: %v", ErrPersistence, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	tmpName := tmp.Name()
	fail := func(err error) error {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	if _, err := tmp.Write(b); err != nil {
		return fail(err)
	}
	if err := tmp.Sync(); err != nil {
		return fail(err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		return fail(err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return nil
}

// Add parses deadline as DD/MM HH:MM in the current year and appends the
// new task.
func (s *Store) Add(description, deadline string, lead LeadTime) (Task, error) {
	dl, err := ParseDeadline(deadline, s.clock.Now())
	if err != nil {
		return Task{}, err
	}
	return s.AddAt(description, dl, lead)
}

func (s *Store) AddAt(description string, deadline time.Time, lead LeadTime) (Task, error) {
	t, err := NewTask(description, deadline, lead)
	if err != nil {
		return Task{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.tasks = append(s.tasks, t)
	if err := s.saveLocked(); err != nil {
		return t, err
	}
	return t, nil
}

func (s *Store) Get(id string) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(id)
	if i < 0 {
		return Task{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s.tasks[i], nil
}

func (s *Store) List() []Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.tasks)
}

func (s *Store) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s.tasks = slices.Delete(s.tasks, i, i+1)
	return s.saveLocked()
}

// Update applies fn to a copy of the task and stores the result. Returning
// an error from fn leaves the store untouched.
func (s *Store) Update(id string, fn func(*Task) error) (Task, error) {
	t, _, err := s.update(id, func(t *Task) (bool, error) {
		if err := fn(t); err != nil {
			return false, err
		}
		return true, nil
	})
	return t, err
}

func (s *Store) update(id string, fn func(*Task) (bool, error)) (Task, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(id)
	if i < 0 {
		return Task{}, false, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	next := s.tasks[i]
	changed, err := fn(&next)
	if err != nil {
		return s.tasks[i], false, err
	}
	if next.ID != s.tasks[i].ID {
		return s.tasks[i], false, fmt.Errorf("%w: task id is immutable", ErrValidation)
	}
	if !changed {
		return next, false, nil
	}

	s.tasks[i] = next
	if err := s.saveLocked(); err != nil {
		return next, true, err
	}
	return next, true, nil
}

func (s *Store) Edit(id, description string) (Task, error) {
	desc, err := NormalizeDescription(description)
	if err != nil {
		return Task{}, err
	}
	return s.Update(id, func(t *Task) error {
		t.Description = desc
		return nil
	})
}

func (s *Store) ToggleCompleted(id string) (Task, error) {
	return s.Update(id, func(t *Task) error {
		t.Completed = !t.Completed
		return nil
	})
}

// ResetReminder re-arms a fired reminder. reset is false, and nothing is
// written, when the task had not been reminded yet.
func (s *Store) ResetReminder(id string) (Task, bool, error) {
	return s.update(id, func(t *Task) (bool, error) {
		if !t.Reminded {
			return false, nil
		}
		t.Reminded = false
		return true, nil
	})
}

// SortByDeadline orders tasks by ascending deadline. Tasks with an
// unreadable deadline keep their relative order at the end.
func (s *Store) SortByDeadline() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	slices.SortStableFunc(s.tasks, func(a, b Task) int {
		at, aok := a.Deadline.Time()
		bt, bok := b.Deadline.Time()
		switch {
		case !aok && !bok:
			return 0
		case !aok:
			return 1
		case !bok:
			return -1
		default:
			return at.Compare(bt)
		}
	})
	return s.saveLocked()
}

// ClaimDue marks every task due at now as reminded and persists once.
// Claimed tasks are returned already flagged, so a second call at the same
// instant claims nothing.
func (s *Store) ClaimDue(now time.Time) (DueBatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var batch DueBatch
	for i := range s.tasks {
		due, ok := s.tasks[i].Due(now)
		if !ok {
			batch.Skipped = append(batch.Skipped, s.tasks[i].ID)
			continue
		}
		if !due {
			continue
		}
		s.tasks[i].Reminded = true
		batch.Claimed = append(batch.Claimed, s.tasks[i])
	}

	if len(batch.Claimed) == 0 {
		return batch, nil
	}
	return batch, s.saveLocked()
}

func (s *Store) indexLocked(id string) int {
	return slices.IndexFunc(s.tasks, func(t Task) bool { return t.ID == id })
}
