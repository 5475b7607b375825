// Package progress owns the per-user completion record of a course and the
// contract of the stores that persist it.
package progress

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/p-n-ai/pai-course/internal/course"
)

var (
	// ErrNotFound means the user has no progress record for the course yet.
	ErrNotFound = errors.New("progress not found")
	// ErrProgressUnavailable means the store could not produce an answer.
	// It must never be rendered as 0% progress.
	ErrProgressUnavailable = errors.New("progress unavailable")

	// ErrListUnsupported means the store cannot enumerate learners.
	ErrListUnsupported = errors.New("store cannot list progress by course")
)

// Set is a set of identities. It encodes as a sorted JSON array.
type Set map[string]struct{}

// NewSet returns a set holding ids.
func NewSet(ids ...string) Set {
	s := make(Set, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Has reports whether id is in the set.
func (s Set) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Sorted returns the members in ascending order.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

func (s Set) clone() Set {
	out := make(Set, len(s))
	for id := range s {
		out[id] = struct{}{}
	}
	return out
}

func (s Set) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

func (s *Set) UnmarshalJSON(b []byte) error {
	var ids []string
	if err := json.Unmarshal(b, &ids); err != nil {
		return err
	}
	*s = NewSet(ids...)
	return nil
}

// CourseProgress is one user's completion record for one course.
// CompletedLessons holds course.LessonRef keys ("module/lesson").
type CourseProgress struct {
	UserID               string    `json:"user_id"`
	CourseID             string    `json:"course_id"`
	CompletedModules     Set       `json:"completed_modules"`
	CompletedLessons     Set       `json:"completed_lessons"`
	CompletedAssessments Set       `json:"completed_assessments"`
	ProgressRate         int       `json:"progress_rate"`
	StartedAt            time.Time `json:"started_at"`
}

func newCourseProgress(userID, courseID string, startedAt time.Time) CourseProgress {
	return CourseProgress{
		UserID:               userID,
		CourseID:             courseID,
		CompletedModules:     Set{},
		CompletedLessons:     Set{},
		CompletedAssessments: Set{},
		StartedAt:            startedAt.UTC().Truncate(time.Microsecond),
	}
}

// LessonDone reports whether the lesson is completed. It matches the
// predicate shape used by course.Project and navigator.ResolveContinueTarget.
func (p CourseProgress) LessonDone(ref course.LessonRef) bool {
	return p.CompletedLessons.Has(ref.Key())
}

// Clone returns a deep copy.
func (p CourseProgress) Clone() CourseProgress {
	out := p
	out.CompletedModules = p.CompletedModules.clone()
	out.CompletedLessons = p.CompletedLessons.clone()
	out.CompletedAssessments = p.CompletedAssessments.clone()
	return out
}

// Store persists CourseProgress records. Every mutation is idempotent:
// repeating it returns the same record. Implementations are safe for
// concurrent use.
type Store interface {
	Load(ctx context.Context, userID, courseID string) (CourseProgress, error)
	Enroll(ctx context.Context, userID, courseID string) (CourseProgress, error)
	MarkLessonComplete(ctx context.Context, userID, courseID, moduleID, lessonID string) (CourseProgress, error)
	MarkModuleComplete(ctx context.Context, userID, courseID, moduleID string) (CourseProgress, error)
	MarkAssessmentComplete(ctx context.Context, userID, courseID, assessmentID string) (CourseProgress, error)
}

// Lister is implemented by stores that can enumerate all learners of a course.
type Lister interface {
	ListByCourse(ctx context.Context, courseID string) ([]CourseProgress, error)
}

// MemoryStore is an in-memory implementation of Store.
type MemoryStore struct {
	records map[string]*CourseProgress
	now     func() time.Time
	mu      sync.RWMutex
}

// NewMemoryStore creates a new in-memory progress store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*CourseProgress),
		now:     time.Now,
	}
}

func (s *MemoryStore) Load(_ context.Context, userID, courseID string) (CourseProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.records[recordKey(userID, courseID)]
	if !ok {
		return CourseProgress{}, fmt.Errorf("user %s course %s: %w", userID, courseID, ErrNotFound)
	}
	return p.Clone(), nil
}

func (s *MemoryStore) Enroll(_ context.Context, userID, courseID string) (CourseProgress, error) {
	return s.update(userID, courseID, func(*CourseProgress) {})
}

func (s *MemoryStore) MarkLessonComplete(_ context.Context, userID, courseID, moduleID, lessonID string) (CourseProgress, error) {
	if moduleID == "" || lessonID == "" {
		return CourseProgress{}, fmt.Errorf("module_id and lesson_id are required")
	}
	key := course.LessonRef{ModuleID: moduleID, LessonID: lessonID}.Key()
	return s.update(userID, courseID, func(p *CourseProgress) {
		p.CompletedLessons[key] = struct{}{}
	})
}

func (s *MemoryStore) MarkModuleComplete(_ context.Context, userID, courseID, moduleID string) (CourseProgress, error) {
	if moduleID == "" {
		return CourseProgress{}, fmt.Errorf("module_id is required")
	}
	return s.update(userID, courseID, func(p *CourseProgress) {
		p.CompletedModules[moduleID] = struct{}{}
	})
}

func (s *MemoryStore) MarkAssessmentComplete(_ context.Context, userID, courseID, assessmentID string) (CourseProgress, error) {
	if assessmentID == "" {
		return CourseProgress{}, fmt.Errorf("assessment_id is required")
	}
	return s.update(userID, courseID, func(p *CourseProgress) {
		p.CompletedAssessments[assessmentID] = struct{}{}
	})
}

func (s *MemoryStore) ListByCourse(_ context.Context, courseID string) ([]CourseProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []CourseProgress
	for _, p := range s.records {
		if p.CourseID == courseID {
			out = append(out, p.Clone())
		}
	}
	slices.SortFunc(out, func(a, b CourseProgress) int {
		return cmp.Compare(a.UserID, b.UserID)
	})
	return out, nil
}

func (s *MemoryStore) update(userID, courseID string, fn func(*CourseProgress)) (CourseProgress, error) {
	if userID == "" || courseID == "" {
		return CourseProgress{}, fmt.Errorf("user_id and course_id are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := recordKey(userID, courseID)
	p, ok := s.records[key]
	if !ok {
		created := newCourseProgress(userID, courseID, s.now())
		p = &created
		s.records[key] = p
	}
	fn(p)
	return p.Clone(), nil
}

func recordKey(userID, courseID string) string {
	return userID + ":" + courseID
}
