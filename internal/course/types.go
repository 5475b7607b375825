// Package course defines the immutable course content model: courses, modules and lessons.
package course

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
)

// ContentType is the kind of content a lesson carries.
type ContentType string

const (
	ContentVideo ContentType = "video"
	ContentText  ContentType = "text"
	ContentImage ContentType = "image"
	ContentQuiz  ContentType = "quiz"
)

// Level is the advertised difficulty of a course.
type Level string

const (
	LevelBeginner     Level = "Beginner"
	LevelIntermediate Level = "Intermediate"
	LevelAdvanced     Level = "Advanced"
	LevelAllLevels    Level = "AllLevels"
)

// Category groups courses in the catalog.
type Category string

const (
	CategoryFrontend  Category = "Frontend"
	CategoryBackend   Category = "Backend"
	CategoryFullstack Category = "Fullstack"
)

var (
	contentTypes = []ContentType{ContentVideo, ContentText, ContentImage, ContentQuiz}
	levels       = []Level{LevelBeginner, LevelIntermediate, LevelAdvanced, LevelAllLevels}
	categories   = []Category{CategoryFrontend, CategoryBackend, CategoryFullstack}

	folder = cases.Fold()
)

// canonical folds case and drops separators so "All Levels", "all_levels"
// and "AllLevels" compare equal.
func canonical(s string) string {
	s = strings.NewReplacer(" ", "", "_", "", "-", "").Replace(strings.TrimSpace(s))
	return folder.String(s)
}

// ParseContentType parses a lesson content type case-insensitively.
func ParseContentType(s string) (ContentType, error) {
	for _, t := range contentTypes {
		if canonical(string(t)) == canonical(s) {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown content type %q", s)
}

// ParseLevel parses a course level case-insensitively.
func ParseLevel(s string) (Level, error) {
	for _, l := range levels {
		if canonical(string(l)) == canonical(s) {
			return l, nil
		}
	}
	return "", fmt.Errorf("unknown level %q", s)
}

// ParseCategory parses a course category case-insensitively.
func ParseCategory(s string) (Category, error) {
	for _, c := range categories {
		if canonical(string(c)) == canonical(s) {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown category %q", s)
}

// DisplayName returns the human label for a level ("All Levels").
func (l Level) DisplayName() string {
	if l == LevelAllLevels {
		return "All Levels"
	}
	return string(l)
}

func (t *ContentType) UnmarshalText(b []byte) error {
	v, err := ParseContentType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

func (l *Level) UnmarshalText(b []byte) error {
	v, err := ParseLevel(string(b))
	if err != nil {
		return err
	}
	*l = v
	return nil
}

func (c *Category) UnmarshalText(b []byte) error {
	v, err := ParseCategory(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// Lesson is the atomic content unit of a module.
type Lesson struct {
	ID       string      `json:"id" yaml:"id" validate:"required"`
	Title    string      `json:"title" yaml:"title" validate:"required"`
	Type     ContentType `json:"type" yaml:"type" validate:"required,oneof=video text image quiz"`
	Order    int         `json:"order" yaml:"order"`
	Duration string      `json:"duration,omitempty" yaml:"duration"`

	// Completed is a per-viewer projection of progress; see Project.
	Completed bool `json:"completed" yaml:"-"`

	VideoURL string   `json:"video_url,omitempty" yaml:"video_url" validate:"required_if=Type video"`
	Body     string   `json:"body,omitempty" yaml:"body" validate:"required_if=Type text"`
	Images   []string `json:"images,omitempty" yaml:"images" validate:"required_if=Type image"`
	QuizID   string   `json:"quiz_id,omitempty" yaml:"quiz_id" validate:"required_if=Type quiz"`
}

// Module is a named, ordered group of lessons. Slice order is the traversal
// order; Order is advisory authoring metadata.
type Module struct {
	ID      string   `json:"id" yaml:"id" validate:"required"`
	Title   string   `json:"title" yaml:"title" validate:"required"`
	Order   int      `json:"order" yaml:"order"`
	Lessons []Lesson `json:"lessons" yaml:"lessons" validate:"dive"`
}

// Course is the top-level learning unit.
type Course struct {
	ID              string   `json:"id" yaml:"id" validate:"required"`
	Title           string   `json:"title" yaml:"title" validate:"required"`
	Description     string   `json:"description" yaml:"description"`
	LongDescription string   `json:"long_description,omitempty" yaml:"long_description"`
	Level           Level    `json:"level" yaml:"level" validate:"required"`
	Category        Category `json:"category" yaml:"category" validate:"required"`
	Modules         []Module `json:"modules" yaml:"modules" validate:"dive"`

	Thumbnail  string   `json:"thumbnail,omitempty" yaml:"thumbnail"`
	Instructor string   `json:"instructor,omitempty" yaml:"instructor"`
	Tags       []string `json:"tags,omitempty" yaml:"tags"`
}

// LessonRef points at a lesson by module and lesson identity.
type LessonRef struct {
	ModuleID string `json:"module_id"`
	LessonID string `json:"lesson_id"`
}

// Key returns the course-unique key of the lesson ("module/lesson").
func (r LessonRef) Key() string {
	return r.ModuleID + "/" + r.LessonID
}

// ParseKey is the inverse of LessonRef.Key.
func ParseKey(key string) (LessonRef, bool) {
	moduleID, lessonID, ok := strings.Cut(key, "/")
	if !ok || moduleID == "" || lessonID == "" {
		return LessonRef{}, false
	}
	return LessonRef{ModuleID: moduleID, LessonID: lessonID}, true
}

// Refs returns every lesson of the course in traversal order.
func (c Course) Refs() []LessonRef {
	var refs []LessonRef
	for _, m := range c.Modules {
		for _, l := range m.Lessons {
			refs = append(refs, LessonRef{ModuleID: m.ID, LessonID: l.ID})
		}
	}
	return refs
}

// Module returns the module with the given ID.
func (c Course) Module(id string) (Module, bool) {
	for _, m := range c.Modules {
		if m.ID == id {
			return m, true
		}
	}
	return Module{}, false
}

// Lesson returns the lesson addressed by ref.
func (c Course) Lesson(ref LessonRef) (Lesson, bool) {
	m, ok := c.Module(ref.ModuleID)
	if !ok {
		return Lesson{}, false
	}
	for _, l := range m.Lessons {
		if l.ID == ref.LessonID {
			return l, true
		}
	}
	return Lesson{}, false
}
