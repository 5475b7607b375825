// Package navigator implements side-effect-free traversal over a course's
// module/lesson tree: aggregate counts, prev/next navigation across module
// boundaries and the "continue learning" target.
//
// Every function is pure and safe for concurrent use. None of them mutate
// the course they are given.
package navigator

import (
	"errors"
	"fmt"
	"math"

	"github.com/p-n-ai/pai-course/internal/course"
)

var (
	// ErrPositionNotFound means the (module, lesson) pointer does not exist in the course.
	ErrPositionNotFound = errors.New("position not found")
	// ErrNotResumable means the course has no lessons to resume.
	ErrNotResumable = errors.New("course has no lessons to resume")
)

// Position is a resolved location inside a course.
type Position struct {
	ModuleIndex int
	LessonIndex int
	Ref         course.LessonRef
}

// CountTotalLessons returns the number of lessons across all modules.
func CountTotalLessons(c course.Course) int {
	total := 0
	for _, m := range c.Modules {
		total += len(m.Lessons)
	}
	return total
}

// CountCompletedLessons returns the number of lessons whose Completed
// projection is set.
func CountCompletedLessons(c course.Course) int {
	done := 0
	for _, m := range c.Modules {
		for _, l := range m.Lessons {
			if l.Completed {
				done++
			}
		}
	}
	return done
}

// ProgressPercent returns round(100 * completed / total), or 0 for a course
// without lessons.
func ProgressPercent(c course.Course) int {
	return Percent(CountCompletedLessons(c), CountTotalLessons(c))
}

// Percent is the progress-rate formula shared with the progress store.
func Percent(completed, total int) int {
	if total <= 0 {
		return 0
	}
	p := int(math.Round(100 * float64(completed) / float64(total)))
	return min(max(p, 0), 100)
}

// Locate resolves a (module, lesson) pointer. It panics if the course holds
// duplicate identities on the path, which is a programmer error: loaders
// reject such courses via course.Validate.
func Locate(c course.Course, moduleID, lessonID string) (Position, error) {
	mi := -1
	for i, m := range c.Modules {
		if m.ID != moduleID {
			continue
		}
		if mi >= 0 {
			panic(fmt.Sprintf("navigator: duplicate module id %q in course %q", moduleID, c.ID))
		}
		mi = i
	}
	if mi < 0 {
		return Position{}, fmt.Errorf("module %q: %w", moduleID, ErrPositionNotFound)
	}

	li := -1
	for i, l := range c.Modules[mi].Lessons {
		if l.ID != lessonID {
			continue
		}
		if li >= 0 {
			panic(fmt.Sprintf("navigator: duplicate lesson id %q in module %q", lessonID, moduleID))
		}
		li = i
	}
	if li < 0 {
		return Position{}, fmt.Errorf("lesson %q in module %q: %w", lessonID, moduleID, ErrPositionNotFound)
	}

	return Position{
		ModuleIndex: mi,
		LessonIndex: li,
		Ref:         course.LessonRef{ModuleID: moduleID, LessonID: lessonID},
	}, nil
}

// NextLesson returns the lesson after the given one, continuing into the
// next non-empty module. It returns false at the last lesson of the course
// and for positions that cannot be located.
func NextLesson(c course.Course, moduleID, lessonID string) (course.LessonRef, bool) {
	pos, err := Locate(c, moduleID, lessonID)
	if err != nil {
		return course.LessonRef{}, false
	}

	m := c.Modules[pos.ModuleIndex]
	if pos.LessonIndex+1 < len(m.Lessons) {
		return refAt(c, pos.ModuleIndex, pos.LessonIndex+1), true
	}
	for mi := pos.ModuleIndex + 1; mi < len(c.Modules); mi++ {
		if len(c.Modules[mi].Lessons) > 0 {
			return refAt(c, mi, 0), true
		}
	}
	return course.LessonRef{}, false
}

// PrevLesson returns the lesson before the given one, continuing into the
// last lesson of the previous non-empty module. It returns false at the
// first lesson of the course and for positions that cannot be located.
func PrevLesson(c course.Course, moduleID, lessonID string) (course.LessonRef, bool) {
	pos, err := Locate(c, moduleID, lessonID)
	if err != nil {
		return course.LessonRef{}, false
	}

	if pos.LessonIndex > 0 {
		return refAt(c, pos.ModuleIndex, pos.LessonIndex-1), true
	}
	for mi := pos.ModuleIndex - 1; mi >= 0; mi-- {
		if n := len(c.Modules[mi].Lessons); n > 0 {
			return refAt(c, mi, n-1), true
		}
	}
	return course.LessonRef{}, false
}

// FirstLesson returns the first lesson in traversal order.
func FirstLesson(c course.Course) (course.LessonRef, bool) {
	for mi, m := range c.Modules {
		if len(m.Lessons) > 0 {
			return refAt(c, mi, 0), true
		}
	}
	return course.LessonRef{}, false
}

// ResolveContinueTarget returns the first lesson, in traversal order, for
// which done reports false. When every lesson is complete it falls back to
// the first lesson so the learner can review. A course with no lessons
// yields ErrNotResumable.
func ResolveContinueTarget(c course.Course, done func(course.LessonRef) bool) (course.LessonRef, error) {
	first, ok := FirstLesson(c)
	if !ok {
		return course.LessonRef{}, fmt.Errorf("course %q: %w", c.ID, ErrNotResumable)
	}
	for _, ref := range c.Refs() {
		if done == nil || !done(ref) {
			return ref, nil
		}
	}
	return first, nil
}

func refAt(c course.Course, mi, li int) course.LessonRef {
	return course.LessonRef{ModuleID: c.Modules[mi].ID, LessonID: c.Modules[mi].Lessons[li].ID}
}
