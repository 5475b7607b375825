package viewer

import (
	"context"
	"testing"

	"github.com/p-n-ai/pai-course/internal/content"
	"github.com/p-n-ai/pai-course/internal/course"
	"github.com/p-n-ai/pai-course/internal/progress"
)

type oneCourse struct{ c course.Course }

func (o oneCourse) Course(context.Context, string) (course.Course, error) { return o.c, nil }
func (o oneCourse) Courses(context.Context) ([]content.Summary, error) { return nil, nil }

func TestViewer_ReleasesFinishedSlots(t *testing.T) {
	c := course.Course{ID: "go", Title: "Go", Modules: []course.Module{{
		ID: "m1", Title: "Basics",
		Lessons: []course.Lesson{{ID: "l1", Title: "Intro", Type: course.ContentText, Body: "hi"}},
	}}}
	v := New(oneCourse{c: c}, progress.NewTracker(progress.NewMemoryStore(), nil))
	ctx := context.Background()

	for _, user := range []string{"u1", "u2", "u3"} {
		if _, err := v.Open(ctx, user, "go", course.LessonRef{ModuleID: "m1", LessonID: "l1"}); err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		if _, err := v.Outline(ctx, user, "go"); err != nil {
			t.Fatalf("Outline() error = %v", err)
		}
		_, _ = v.Continue(ctx, user, "go")
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if n := len(v.slots); n != 0 {
		t.Errorf("slots = %d after all requests finished, want 0", n)
	}
}
