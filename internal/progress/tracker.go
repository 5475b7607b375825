package progress

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/p-n-ai/pai-course/internal/course"
	"github.com/p-n-ai/pai-course/internal/navigator"
)

// Tracker is the course-aware facade over a Store. It derives the progress
// rate from the course, rolls lesson completions up into module
// completions and reports every store failure other than ErrNotFound as
// ErrProgressUnavailable.
type Tracker struct {
	store  Store
	events EventLogger
}

// NewTracker creates a tracker. A nil events logger discards events.
func NewTracker(store Store, events EventLogger) *Tracker {
	if events == nil {
		events = NopEventLogger{}
	}
	return &Tracker{store: store, events: events}
}

// Store returns the underlying store.
func (t *Tracker) Store() Store {
	return t.store
}

// Rate returns round(100 * completed / total) counting only completed
// lessons that still exist in c, so it stays within [0,100] after edits.
func Rate(p CourseProgress, c course.Course) int {
	done := 0
	refs := c.Refs()
	for _, ref := range refs {
		if p.LessonDone(ref) {
			done++
		}
	}
	return navigator.Percent(done, len(refs))
}

// Derive returns p with ProgressRate recomputed against c.
func Derive(p CourseProgress, c course.Course) CourseProgress {
	p.ProgressRate = Rate(p, c)
	return p
}

// Load returns the stored record without deriving the rate.
func (t *Tracker) Load(ctx context.Context, userID, courseID string) (CourseProgress, error) {
	p, err := t.store.Load(ctx, userID, courseID)
	if err != nil {
		return CourseProgress{}, unavailable(err)
	}
	return p, nil
}

// Progress loads the user's record for c and derives its rate.
func (t *Tracker) Progress(ctx context.Context, userID string, c course.Course) (CourseProgress, error) {
	p, err := t.Load(ctx, userID, c.ID)
	if err != nil {
		return CourseProgress{}, err
	}
	return Derive(p, c), nil
}

// Enroll creates the record on first view. Enrolling twice is a no-op.
func (t *Tracker) Enroll(ctx context.Context, userID string, c course.Course) (CourseProgress, error) {
	existing, err := t.store.Load(ctx, userID, c.ID)
	if err == nil {
		return Derive(existing, c), nil
	}
	if !errors.Is(err, ErrNotFound) {
		return CourseProgress{}, unavailable(err)
	}

	p, err := t.store.Enroll(ctx, userID, c.ID)
	if err != nil {
		return CourseProgress{}, unavailable(err)
	}
	t.emit(ctx, Event{UserID: userID, CourseID: c.ID, EventType: EventEnrolled})
	return Derive(p, c), nil
}

// CompleteLesson marks ref complete and, when it finishes its module or the
// course, records those completions too. The lesson must exist in c.
func (t *Tracker) CompleteLesson(ctx context.Context, userID string, c course.Course, ref course.LessonRef) (CourseProgress, error) {
	if _, err := navigator.Locate(c, ref.ModuleID, ref.LessonID); err != nil {
		return CourseProgress{}, err
	}

	before, err := t.loadOrEmpty(ctx, userID, c.ID)
	if err != nil {
		return CourseProgress{}, err
	}

	// A repeated completion still finishes the module roll-up, so a retry
	// after a failed MarkModuleComplete records the module.
	p := before
	if !before.LessonDone(ref) {
		p, err = t.store.MarkLessonComplete(ctx, userID, c.ID, ref.ModuleID, ref.LessonID)
		if err != nil {
			return CourseProgress{}, unavailable(err)
		}
		t.emit(ctx, Event{
			UserID:    userID,
			CourseID:  c.ID,
			EventType: EventLessonCompleted,
			Data:      map[string]any{"module_id": ref.ModuleID, "lesson_id": ref.LessonID},
		})
	}

	rolledUp := false
	if m, ok := c.Module(ref.ModuleID); ok && moduleDone(p, m) && !p.CompletedModules.Has(m.ID) {
		p, err = t.store.MarkModuleComplete(ctx, userID, c.ID, m.ID)
		if err != nil {
			return CourseProgress{}, unavailable(err)
		}
		rolledUp = true
		t.emit(ctx, Event{
			UserID:    userID,
			CourseID:  c.ID,
			EventType: EventModuleCompleted,
			Data:      map[string]any{"module_id": m.ID},
		})
	}

	p = Derive(p, c)
	if p.ProgressRate == 100 && (Rate(before, c) < 100 || rolledUp) {
		t.emit(ctx, Event{UserID: userID, CourseID: c.ID, EventType: EventCourseCompleted})
	}
	return p, nil
}

// CompleteAssessment marks an assessment (quiz) of c complete.
func (t *Tracker) CompleteAssessment(ctx context.Context, userID string, c course.Course, assessmentID string) (CourseProgress, error) {
	before, err := t.loadOrEmpty(ctx, userID, c.ID)
	if err != nil {
		return CourseProgress{}, err
	}
	if before.CompletedAssessments.Has(assessmentID) {
		return Derive(before, c), nil
	}

	p, err := t.store.MarkAssessmentComplete(ctx, userID, c.ID, assessmentID)
	if err != nil {
		return CourseProgress{}, unavailable(err)
	}
	t.emit(ctx, Event{
		UserID:    userID,
		CourseID:  c.ID,
		EventType: EventAssessmentCompleted,
		Data:      map[string]any{"assessment_id": assessmentID},
	})
	return Derive(p, c), nil
}

func (t *Tracker) loadOrEmpty(ctx context.Context, userID, courseID string) (CourseProgress, error) {
	p, err := t.store.Load(ctx, userID, courseID)
	switch {
	case err == nil:
		return p, nil
	case errors.Is(err, ErrNotFound):
		return CourseProgress{
			UserID:               userID,
			CourseID:             courseID,
			CompletedModules:     Set{},
			CompletedLessons:     Set{},
			CompletedAssessments: Set{},
		}, nil
	default:
		return CourseProgress{}, unavailable(err)
	}
}

func (t *Tracker) emit(ctx context.Context, event Event) {
	if err := t.events.LogEvent(ctx, event); err != nil {
		slog.Warn("failed to log progress event", "type", event.EventType, "error", err)
	}
}

func moduleDone(p CourseProgress, m course.Module) bool {
	if len(m.Lessons) == 0 {
		return false
	}
	for _, l := range m.Lessons {
		if !p.LessonDone(course.LessonRef{ModuleID: m.ID, LessonID: l.ID}) {
			return false
		}
	}
	return true
}

// unavailable keeps ErrNotFound distinguishable and folds every other
// failure into ErrProgressUnavailable.
func unavailable(err error) error {
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrProgressUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrProgressUnavailable, err)
}
