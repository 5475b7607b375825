// Package viewer assembles what a learner sees for a course or lesson:
// content, position, neighbours and progress.
package viewer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/p-n-ai/pai-course/internal/content"
	"github.com/p-n-ai/pai-course/internal/course"
	"github.com/p-n-ai/pai-course/internal/navigator"
	"github.com/p-n-ai/pai-course/internal/progress"
)

// ErrSuperseded means a newer request for the same view replaced this one
// before it finished. Its result must not be shown.
var ErrSuperseded = errors.New("request superseded")

// ProgressStatus tells how the progress figures in a view were obtained.
type ProgressStatus string

const (
	ProgressOK          ProgressStatus = "ok"
	ProgressNotStarted  ProgressStatus = "not_started"
	ProgressUnavailable ProgressStatus = "unavailable"
)

// LessonView is a resolved lesson page. Percent is only meaningful when
// ProgressStatus is not unavailable.
type LessonView struct {
	CourseID       string            `json:"course_id"`
	CourseTitle    string            `json:"course_title"`
	ModuleTitle    string            `json:"module_title"`
	Lesson         course.Lesson     `json:"lesson"`
	Ref            course.LessonRef  `json:"ref"`
	Prev           *course.LessonRef `json:"prev,omitempty"`
	Next           *course.LessonRef `json:"next,omitempty"`
	EndOfCourse    bool              `json:"end_of_course"`
	ProgressStatus ProgressStatus    `json:"progress_status"`
	Percent        int               `json:"percent"`
}

// CourseView is a course projected with one learner's completion state.
type CourseView struct {
	Course         course.Course     `json:"course"`
	ProgressStatus ProgressStatus    `json:"progress_status"`
	Percent        int               `json:"percent"`
	Completed      int               `json:"completed_lessons"`
	Total          int               `json:"total_lessons"`
	Continue       *course.LessonRef `json:"continue,omitempty"`
}

// Viewer serves learners' views. A new request for the same view (same
// user, course and lesson, or same course page) cancels the one in flight,
// and any late result of the old request is discarded with ErrSuperseded.
// Requests for different views never affect each other.
type Viewer struct {
	catalog content.Catalog
	tracker *progress.Tracker

	mu    sync.Mutex
	gen   uint64
	slots map[viewKey]slot
}

type viewKind uint8

const (
	kindLesson viewKind = iota
	kindOutline
	kindContinue
)

// viewKey identifies the view a request resolves.
type viewKey struct {
	kind     viewKind
	userID   string
	courseID string
	ref      course.LessonRef
}

// slot is the in-flight request for one view.
type slot struct {
	gen    uint64
	cancel context.CancelFunc
}

// New creates a viewer.
func New(catalog content.Catalog, tracker *progress.Tracker) *Viewer {
	return &Viewer{catalog: catalog, tracker: tracker, slots: make(map[viewKey]slot)}
}

// Open resolves the lesson at ref in courseID for userID.
func (v *Viewer) Open(ctx context.Context, userID, courseID string, ref course.LessonRef) (LessonView, error) {
	key := viewKey{kind: kindLesson, userID: userID, courseID: courseID, ref: ref}
	ctx, gen, done := v.begin(ctx, key)
	defer done()

	c, p, status, err := v.fetch(ctx, userID, courseID)
	if !v.current(key, gen) {
		return LessonView{}, ErrSuperseded
	}
	if err != nil {
		return LessonView{}, err
	}

	if _, err := navigator.Locate(c, ref.ModuleID, ref.LessonID); err != nil {
		return LessonView{}, err
	}
	projected := c.Project(p.LessonDone)
	m, _ := projected.Module(ref.ModuleID)
	lesson, _ := projected.Lesson(ref)

	view := LessonView{
		CourseID:       c.ID,
		CourseTitle:    c.Title,
		ModuleTitle:    m.Title,
		Lesson:         lesson,
		Ref:            ref,
		ProgressStatus: status,
	}
	if prev, ok := navigator.PrevLesson(c, ref.ModuleID, ref.LessonID); ok {
		view.Prev = &prev
	}
	if next, ok := navigator.NextLesson(c, ref.ModuleID, ref.LessonID); ok {
		view.Next = &next
	} else {
		view.EndOfCourse = true
	}
	if status != ProgressUnavailable {
		view.Percent = progress.Rate(p, c)
	}
	return view, nil
}

// Outline resolves the course page for userID.
func (v *Viewer) Outline(ctx context.Context, userID, courseID string) (CourseView, error) {
	key := viewKey{kind: kindOutline, userID: userID, courseID: courseID}
	ctx, gen, done := v.begin(ctx, key)
	defer done()

	c, p, status, err := v.fetch(ctx, userID, courseID)
	if !v.current(key, gen) {
		return CourseView{}, ErrSuperseded
	}
	if err != nil {
		return CourseView{}, err
	}

	projected := c.Project(p.LessonDone)
	view := CourseView{
		Course:         projected,
		ProgressStatus: status,
		Total:          navigator.CountTotalLessons(projected),
	}
	if status == ProgressUnavailable {
		return view, nil
	}
	view.Completed = navigator.CountCompletedLessons(projected)
	view.Percent = navigator.ProgressPercent(projected)
	if target, err := navigator.ResolveContinueTarget(c, p.LessonDone); err == nil {
		view.Continue = &target
	}
	return view, nil
}

// Continue returns the lesson the learner should resume at. Unlike the
// views it fails when progress is unavailable: guessing would send the
// learner back to the first lesson.
func (v *Viewer) Continue(ctx context.Context, userID, courseID string) (course.LessonRef, error) {
	key := viewKey{kind: kindContinue, userID: userID, courseID: courseID}
	ctx, gen, done := v.begin(ctx, key)
	defer done()

	c, p, status, err := v.fetch(ctx, userID, courseID)
	if !v.current(key, gen) {
		return course.LessonRef{}, ErrSuperseded
	}
	if err != nil {
		return course.LessonRef{}, err
	}
	if status == ProgressUnavailable {
		return course.LessonRef{}, fmt.Errorf("course %q: %w", courseID, progress.ErrProgressUnavailable)
	}
	return navigator.ResolveContinueTarget(c, p.LessonDone)
}

// begin registers a new request for key and cancels the one it replaces.
// done releases the slot unless a newer request already took it.
func (v *Viewer) begin(ctx context.Context, key viewKey) (context.Context, uint64, func()) {
	ctx, cancel := context.WithCancel(ctx)

	v.mu.Lock()
	if prev, ok := v.slots[key]; ok {
		prev.cancel()
	}
	v.gen++
	gen := v.gen
	v.slots[key] = slot{gen: gen, cancel: cancel}
	v.mu.Unlock()

	return ctx, gen, func() {
		v.mu.Lock()
		if cur, ok := v.slots[key]; ok && cur.gen == gen {
			delete(v.slots, key)
		}
		v.mu.Unlock()
		cancel()
	}
}

func (v *Viewer) current(key viewKey, gen uint64) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	cur, ok := v.slots[key]
	return ok && cur.gen == gen
}

// fetch loads the course and the learner's progress concurrently. Missing
// progress is an empty record; unreachable progress is reported through
// the status rather than failing the view.
func (v *Viewer) fetch(ctx context.Context, userID, courseID string) (course.Course, progress.CourseProgress, ProgressStatus, error) {
	var (
		c      course.Course
		p      progress.CourseProgress
		status = ProgressOK
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		c, err = v.catalog.Course(gctx, courseID)
		return err
	})
	g.Go(func() error {
		rec, err := v.tracker.Load(gctx, userID, courseID)
		switch {
		case err == nil:
			p = rec
		case errors.Is(err, progress.ErrNotFound):
			status = ProgressNotStarted
		case errors.Is(err, progress.ErrProgressUnavailable):
			status = ProgressUnavailable
		default:
			return err
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return course.Course{}, progress.CourseProgress{}, "", err
	}
	return c, p, status, nil
}
