// Package content provides course catalogs: a YAML directory catalog and a
// client for the external content service.
package content

import (
	"cmp"
	"context"
	"errors"
	"slices"

	"github.com/p-n-ai/pai-course/internal/course"
)

// ErrCourseNotFound means no course with the requested ID exists.
var ErrCourseNotFound = errors.New("course not found")

// Catalog resolves courses by ID.
type Catalog interface {
	Course(ctx context.Context, id string) (course.Course, error)
	Courses(ctx context.Context) ([]Summary, error)
}

// Reloader is implemented by catalogs that can refresh their contents.
type Reloader interface {
	Reload(ctx context.Context) error
}

// Summary is the catalog listing entry for a course.
type Summary struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Level       course.Level    `json:"level"`
	Category    course.Category `json:"category"`
	Thumbnail   string          `json:"thumbnail,omitempty"`
	Instructor  string          `json:"instructor,omitempty"`
	Tags        []string        `json:"tags,omitempty"`
	Modules     int             `json:"modules"`
	Lessons     int             `json:"lessons"`
}

// Summarize builds the listing entry for c.
func Summarize(c course.Course) Summary {
	lessons := 0
	for _, m := range c.Modules {
		lessons += len(m.Lessons)
	}
	return Summary{
		ID:          c.ID,
		Title:       c.Title,
		Description: c.Description,
		Level:       c.Level,
		Category:    c.Category,
		Thumbnail:   c.Thumbnail,
		Instructor:  c.Instructor,
		Tags:        c.Tags,
		Modules:     len(c.Modules),
		Lessons:     lessons,
	}
}

func summarizeAll(courses map[string]course.Course) []Summary {
	out := make([]Summary, 0, len(courses))
	for _, c := range courses {
		out = append(out, Summarize(c))
	}
	slices.SortFunc(out, func(a, b Summary) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}
