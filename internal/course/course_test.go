package course_test

import (
	"encoding/json"
	"errors"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/p-n-ai/pai-course/internal/course"
)

func sampleCourse() course.Course {
	return course.Course{
		ID:       "go-basics",
		Title:    "Go Basics",
		Level:    course.LevelBeginner,
		Category: course.CategoryBackend,
		Modules: []course.Module{
			{
				ID:    "m1",
				Title: "Getting started",
				Lessons: []course.Lesson{
					{ID: "l1", Title: "Install", Type: course.ContentText, Body: "Download Go."},
					{ID: "l2", Title: "Hello", Type: course.ContentVideo, VideoURL: "https://cdn.example/hello.mp4"},
				},
			},
			{
				ID:    "m2",
				Title: "Types",
				Lessons: []course.Lesson{
					{ID: "l1", Title: "Quiz", Type: course.ContentQuiz, QuizID: "q-1"},
				},
			},
		},
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    course.Level
		wantErr bool
	}{
		{"Beginner", course.LevelBeginner, false},
		{"beginner", course.LevelBeginner, false},
		{"All Levels", course.LevelAllLevels, false},
		{"all_levels", course.LevelAllLevels, false},
		{"ADVANCED", course.LevelAdvanced, false},
		{"expert", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := course.ParseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseCategoryAndContentType(t *testing.T) {
	if c, err := course.ParseCategory("full-stack"); err != nil || c != course.CategoryFullstack {
		t.Errorf("ParseCategory(full-stack) = %q, %v", c, err)
	}
	if _, err := course.ParseCategory("mobile"); err == nil {
		t.Error("ParseCategory(mobile) should fail")
	}
	if ct, err := course.ParseContentType("VIDEO"); err != nil || ct != course.ContentVideo {
		t.Errorf("ParseContentType(VIDEO) = %q, %v", ct, err)
	}
}

func TestLevel_DisplayName(t *testing.T) {
	if got := course.LevelAllLevels.DisplayName(); got != "All Levels" {
		t.Errorf("DisplayName() = %q, want All Levels", got)
	}
	if got := course.LevelAdvanced.DisplayName(); got != "Advanced" {
		t.Errorf("DisplayName() = %q, want Advanced", got)
	}
}

func TestDecode_EnumsFromYAMLAndJSON(t *testing.T) {
	doc := `
id: c1
title: Course
level: all levels
category: frontend
modules:
  - id: m1
    title: M
    lessons:
      - id: l1
        title: L
        type: Text
        body: hi
`
	var fromYAML course.Course
	if err := yaml.Unmarshal([]byte(doc), &fromYAML); err != nil {
		t.Fatalf("yaml.Unmarshal() error = %v", err)
	}
	if fromYAML.Level != course.LevelAllLevels || fromYAML.Category != course.CategoryFrontend {
		t.Errorf("yaml enums = %q/%q", fromYAML.Level, fromYAML.Category)
	}
	if fromYAML.Modules[0].Lessons[0].Type != course.ContentText {
		t.Errorf("lesson type = %q, want text", fromYAML.Modules[0].Lessons[0].Type)
	}

	var fromJSON course.Course
	err := json.Unmarshal([]byte(`{"id":"c1","title":"C","level":"intermediate","category":"Backend"}`), &fromJSON)
	if err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	if fromJSON.Level != course.LevelIntermediate {
		t.Errorf("json level = %q, want Intermediate", fromJSON.Level)
	}

	if err := json.Unmarshal([]byte(`{"level":"guru"}`), &fromJSON); err == nil {
		t.Error("json.Unmarshal() should reject unknown level")
	}
}

func TestLessonRef_Key(t *testing.T) {
	ref := course.LessonRef{ModuleID: "m1", LessonID: "l2"}
	if ref.Key() != "m1/l2" {
		t.Errorf("Key() = %q, want m1/l2", ref.Key())
	}
	back, ok := course.ParseKey(ref.Key())
	if !ok || back != ref {
		t.Errorf("ParseKey() = %+v, %v", back, ok)
	}
	if _, ok := course.ParseKey("nokey"); ok {
		t.Error("ParseKey(nokey) should fail")
	}
}

func TestCourse_Lookup(t *testing.T) {
	c := sampleCourse()

	if _, ok := c.Module("m2"); !ok {
		t.Error("Module(m2) not found")
	}
	l, ok := c.Lesson(course.LessonRef{ModuleID: "m2", LessonID: "l1"})
	if !ok || l.Title != "Quiz" {
		t.Errorf("Lesson(m2/l1) = %+v, %v", l, ok)
	}
	if _, ok := c.Lesson(course.LessonRef{ModuleID: "m3", LessonID: "l1"}); ok {
		t.Error("Lesson(m3/l1) should not be found")
	}
	if got := len(c.Refs()); got != 3 {
		t.Errorf("Refs() = %d, want 3", got)
	}
}

func TestValidate(t *testing.T) {
	if err := course.Validate(sampleCourse()); err != nil {
		t.Fatalf("Validate(sample) error = %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*course.Course)
	}{
		{"missing title", func(c *course.Course) { c.Title = "" }},
		{"missing level", func(c *course.Course) { c.Level = "" }},
		{"duplicate module", func(c *course.Course) { c.Modules = append(c.Modules, c.Modules[0]) }},
		{"duplicate lesson", func(c *course.Course) {
			c.Modules[0].Lessons = append(c.Modules[0].Lessons, c.Modules[0].Lessons[0])
		}},
		{"video without url", func(c *course.Course) { c.Modules[0].Lessons[1].VideoURL = "" }},
		{"bad content type", func(c *course.Course) { c.Modules[0].Lessons[0].Type = "audio" }},
		{"slash in module id", func(c *course.Course) { c.Modules[1].ID = "m/2" }},
		{"slash in empty module id", func(c *course.Course) {
			c.Modules = append(c.Modules, course.Module{ID: "a/b", Title: "Later"})
		}},
		{"slash in lesson id", func(c *course.Course) { c.Modules[0].Lessons[0].ID = "l/1" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := sampleCourse()
			tt.mutate(&c)
			err := course.Validate(c)
			var verr *course.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Validate() error = %v, want *ValidationError", err)
			}
			if len(verr.Problems) == 0 {
				t.Error("ValidationError has no problems")
			}
		})
	}
}

func TestEdits_DoNotMutateOriginal(t *testing.T) {
	orig := sampleCourse()

	withModule := orig.WithModule(course.Module{ID: "m3", Title: "More"})
	if len(orig.Modules) != 2 || len(withModule.Modules) != 3 {
		t.Fatalf("WithModule: orig=%d new=%d", len(orig.Modules), len(withModule.Modules))
	}

	inserted := orig.InsertModule(0, course.Module{ID: "m0", Title: "Intro"})
	if inserted.Modules[0].ID != "m0" || orig.Modules[0].ID != "m1" {
		t.Errorf("InsertModule: new[0]=%q orig[0]=%q", inserted.Modules[0].ID, orig.Modules[0].ID)
	}

	removed, err := orig.RemoveModule("m1")
	if err != nil {
		t.Fatalf("RemoveModule() error = %v", err)
	}
	if len(removed.Modules) != 1 || orig.Modules[0].ID != "m1" || orig.Modules[1].ID != "m2" {
		t.Errorf("RemoveModule changed original: %+v", orig.Modules)
	}
	if _, err := orig.RemoveModule("nope"); err == nil {
		t.Error("RemoveModule(nope) should fail")
	}

	updated, err := orig.UpdateModule("m1", func(m course.Module) course.Module {
		m.Lessons[0].Title = "Changed"
		m, _ = m.RemoveLesson("l2")
		return m.WithLesson(course.Lesson{ID: "l9", Title: "New", Type: course.ContentText, Body: "x"})
	})
	if err != nil {
		t.Fatalf("UpdateModule() error = %v", err)
	}
	if orig.Modules[0].Lessons[0].Title != "Install" {
		t.Errorf("UpdateModule mutated original lesson title to %q", orig.Modules[0].Lessons[0].Title)
	}
	if got := updated.Modules[0].Lessons; len(got) != 2 || got[1].ID != "l9" {
		t.Errorf("updated lessons = %+v", got)
	}

	m, err := orig.Modules[1].UpdateLesson("l1", func(l course.Lesson) course.Lesson {
		l.Title = "Final quiz"
		return l
	})
	if err != nil || m.Lessons[0].Title != "Final quiz" || orig.Modules[1].Lessons[0].Title != "Quiz" {
		t.Errorf("UpdateLesson: new=%q orig=%q err=%v", m.Lessons[0].Title, orig.Modules[1].Lessons[0].Title, err)
	}
}

func TestProject(t *testing.T) {
	c := sampleCourse()
	done := map[string]bool{"m1/l2": true, "m2/l1": true}

	p := c.Project(func(r course.LessonRef) bool { return done[r.Key()] })

	if p.Modules[0].Lessons[0].Completed {
		t.Error("m1/l1 should not be completed")
	}
	if !p.Modules[0].Lessons[1].Completed || !p.Modules[1].Lessons[0].Completed {
		t.Error("m1/l2 and m2/l1 should be completed")
	}
	if c.Modules[0].Lessons[1].Completed {
		t.Error("Project mutated the original course")
	}

	// Re-projection for another viewer clears stale flags.
	other := p.Project(func(course.LessonRef) bool { return false })
	if other.Modules[1].Lessons[0].Completed {
		t.Error("re-projection kept a stale completion flag")
	}
}

func TestFingerprint(t *testing.T) {
	c := sampleCourse()
	projected := c.Project(func(course.LessonRef) bool { return true })

	if course.Fingerprint(c) != course.Fingerprint(projected) {
		t.Error("Fingerprint should ignore completion projection")
	}

	changed := c.WithModule(course.Module{ID: "m3", Title: "Extra"})
	if course.Fingerprint(c) == course.Fingerprint(changed) {
		t.Error("Fingerprint should change with content")
	}
}
