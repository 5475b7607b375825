package navigator_test

import (
	"errors"
	"testing"

	"github.com/p-n-ai/pai-course/internal/course"
	"github.com/p-n-ai/pai-course/internal/navigator"
)

func lessons(ids ...string) []course.Lesson {
	out := make([]course.Lesson, len(ids))
	for i, id := range ids {
		out[i] = course.Lesson{ID: id, Title: id, Type: course.ContentText, Body: id}
	}
	return out
}

// buildCourse creates modules named A, B, C... with the given lesson counts.
func buildCourse(counts ...int) course.Course {
	c := course.Course{ID: "c", Title: "C", Level: course.LevelBeginner, Category: course.CategoryBackend}
	for i, n := range counts {
		ids := make([]string, n)
		for j := range ids {
			ids[j] = string(rune('1' + j))
		}
		c.Modules = append(c.Modules, course.Module{
			ID:      string(rune('A' + i)),
			Title:   string(rune('A' + i)),
			Lessons: lessons(ids...),
		})
	}
	return c
}

func ref(m, l string) course.LessonRef {
	return course.LessonRef{ModuleID: m, LessonID: l}
}

func completedSet(keys ...string) func(course.LessonRef) bool {
	set := make(map[string]bool, len(keys))
	for _, k := range keys {
		set[k] = true
	}
	return func(r course.LessonRef) bool { return set[r.Key()] }
}

func TestCounts(t *testing.T) {
	tests := []struct {
		name        string
		course      course.Course
		done        []string
		wantTotal   int
		wantDone    int
		wantPercent int
	}{
		{"no modules", buildCourse(), nil, 0, 0, 0},
		{"only empty modules", buildCourse(0, 0), nil, 0, 0, 0},
		{"none done", buildCourse(2, 1), nil, 3, 0, 0},
		{"one of three", buildCourse(2, 1), []string{"A/1"}, 3, 1, 33},
		{"two of three", buildCourse(2, 1), []string{"A/1", "B/1"}, 3, 2, 67},
		{"all done", buildCourse(2, 0, 1), []string{"A/1", "A/2", "C/1"}, 3, 3, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := tt.course.Project(completedSet(tt.done...))

			total := navigator.CountTotalLessons(c)
			done := navigator.CountCompletedLessons(c)
			if total != tt.wantTotal {
				t.Errorf("CountTotalLessons() = %d, want %d", total, tt.wantTotal)
			}
			if done != tt.wantDone {
				t.Errorf("CountCompletedLessons() = %d, want %d", done, tt.wantDone)
			}
			if done > total {
				t.Errorf("completed %d exceeds total %d", done, total)
			}
			if got := navigator.ProgressPercent(c); got != tt.wantPercent {
				t.Errorf("ProgressPercent() = %d, want %d", got, tt.wantPercent)
			}
		})
	}
}

func TestPercent(t *testing.T) {
	tests := []struct {
		completed, total, want int
	}{
		{0, 0, 0},
		{5, 0, 0},
		{1, 8, 13},
		{1, 200, 1},
		{1, 201, 0},
		{7, 7, 100},
		{9, 7, 100},
	}
	for _, tt := range tests {
		if got := navigator.Percent(tt.completed, tt.total); got != tt.want {
			t.Errorf("Percent(%d, %d) = %d, want %d", tt.completed, tt.total, got, tt.want)
		}
	}
}

func TestNextLesson(t *testing.T) {
	c := buildCourse(2, 0, 1)

	tests := []struct {
		name   string
		from   course.LessonRef
		want   course.LessonRef
		wantOK bool
	}{
		{"same module", ref("A", "1"), ref("A", "2"), true},
		{"skips empty module", ref("A", "2"), ref("C", "1"), true},
		{"terminal", ref("C", "1"), course.LessonRef{}, false},
		{"unknown module", ref("Z", "1"), course.LessonRef{}, false},
		{"unknown lesson", ref("A", "9"), course.LessonRef{}, false},
		{"empty module is never a position", ref("B", "1"), course.LessonRef{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := navigator.NextLesson(c, tt.from.ModuleID, tt.from.LessonID)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("NextLesson(%v) = %v, %v; want %v, %v", tt.from, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestPrevLesson(t *testing.T) {
	c := buildCourse(0, 2, 0, 0, 1)

	tests := []struct {
		name   string
		from   course.LessonRef
		want   course.LessonRef
		wantOK bool
	}{
		{"same module", ref("B", "2"), ref("B", "1"), true},
		{"skips empty modules", ref("E", "1"), ref("B", "2"), true},
		{"terminal behind leading empty module", ref("B", "1"), course.LessonRef{}, false},
		{"unknown", ref("C", "1"), course.LessonRef{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := navigator.PrevLesson(c, tt.from.ModuleID, tt.from.LessonID)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("PrevLesson(%v) = %v, %v; want %v, %v", tt.from, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestTraversalRoundTrip(t *testing.T) {
	c := buildCourse(3, 0, 1, 2, 0)

	for _, r := range c.Refs() {
		if next, ok := navigator.NextLesson(c, r.ModuleID, r.LessonID); ok {
			back, ok := navigator.PrevLesson(c, next.ModuleID, next.LessonID)
			if !ok || back != r {
				t.Errorf("PrevLesson(NextLesson(%v)) = %v, %v", r, back, ok)
			}
		}
		if prev, ok := navigator.PrevLesson(c, r.ModuleID, r.LessonID); ok {
			fwd, ok := navigator.NextLesson(c, prev.ModuleID, prev.LessonID)
			if !ok || fwd != r {
				t.Errorf("NextLesson(PrevLesson(%v)) = %v, %v", r, fwd, ok)
			}
		}
	}
}

func TestTraversalVisitsEveryLessonOnce(t *testing.T) {
	c := buildCourse(0, 2, 0, 3, 1, 0)
	want := c.Refs()

	cur, ok := navigator.FirstLesson(c)
	var walked []course.LessonRef
	for ok {
		walked = append(walked, cur)
		cur, ok = navigator.NextLesson(c, cur.ModuleID, cur.LessonID)
	}

	if len(walked) != len(want) {
		t.Fatalf("walked %d lessons, want %d", len(walked), len(want))
	}
	for i := range want {
		if walked[i] != want[i] {
			t.Errorf("walked[%d] = %v, want %v", i, walked[i], want[i])
		}
	}
}

func TestNavigationDoesNotMutate(t *testing.T) {
	c := buildCourse(2, 1)
	before := course.Fingerprint(c)

	navigator.NextLesson(c, "A", "2")
	navigator.PrevLesson(c, "B", "1")
	navigator.ResolveContinueTarget(c, completedSet("A/1"))

	if course.Fingerprint(c) != before {
		t.Error("navigation mutated the course")
	}
}

func TestLocate(t *testing.T) {
	c := buildCourse(2, 1)

	pos, err := navigator.Locate(c, "B", "1")
	if err != nil {
		t.Fatalf("Locate() error = %v", err)
	}
	if pos.ModuleIndex != 1 || pos.LessonIndex != 0 {
		t.Errorf("Locate() = %+v", pos)
	}

	_, err = navigator.Locate(c, "A", "7")
	if !errors.Is(err, navigator.ErrPositionNotFound) {
		t.Errorf("Locate(A/7) error = %v, want ErrPositionNotFound", err)
	}
}

func TestLocate_DuplicateIdentityPanics(t *testing.T) {
	c := buildCourse(2)
	c.Modules[0].Lessons = append(c.Modules[0].Lessons, c.Modules[0].Lessons[0])

	defer func() {
		if recover() == nil {
			t.Error("expected panic on duplicate lesson identity")
		}
	}()
	navigator.NextLesson(c, "A", "1")
}

func TestResolveContinueTarget(t *testing.T) {
	three := buildCourse(3)

	tests := []struct {
		name   string
		course course.Course
		done   []string
		want   course.LessonRef
	}{
		{"nothing done starts at first", three, nil, ref("A", "1")},
		{"first incomplete in order, not after last completed", three, []string{"A/2"}, ref("A", "1")},
		{"skips completed prefix", three, []string{"A/1", "A/2"}, ref("A", "3")},
		{"all complete falls back to first", three, []string{"A/1", "A/2", "A/3"}, ref("A", "1")},
		{"first lesson behind empty module", buildCourse(0, 1), nil, ref("B", "1")},
		{"unknown keys ignored", three, []string{"Z/1"}, ref("A", "1")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := navigator.ResolveContinueTarget(tt.course, completedSet(tt.done...))
			if err != nil {
				t.Fatalf("ResolveContinueTarget() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ResolveContinueTarget() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestResolveContinueTarget_NotResumable(t *testing.T) {
	for _, c := range []course.Course{buildCourse(), buildCourse(0, 0)} {
		_, err := navigator.ResolveContinueTarget(c, nil)
		if !errors.Is(err, navigator.ErrNotResumable) {
			t.Errorf("ResolveContinueTarget() error = %v, want ErrNotResumable", err)
		}
	}
}
