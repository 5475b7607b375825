package content

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/p-n-ai/pai-course/internal/course"
)

// FileCatalog loads and caches courses from *.course.yaml files.
type FileCatalog struct {
	rootDir string
	strict  bool
	courses map[string]course.Course
	mu      sync.RWMutex
}

// FileOption configures a FileCatalog.
type FileOption func(*FileCatalog)

// WithStrict makes an invalid course file fail the load instead of being skipped.
func WithStrict(strict bool) FileOption {
	return func(f *FileCatalog) { f.strict = strict }
}

// NewFileCatalog creates a catalog over rootDir and loads all courses.
func NewFileCatalog(rootDir string, opts ...FileOption) (*FileCatalog, error) {
	f := &FileCatalog{rootDir: rootDir, courses: make(map[string]course.Course)}
	for _, opt := range opts {
		opt(f)
	}

	if err := f.Reload(context.Background()); err != nil {
		return nil, err
	}
	return f, nil
}

// Course returns a course by ID.
func (f *FileCatalog) Course(_ context.Context, id string) (course.Course, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	c, ok := f.courses[id]
	if !ok {
		return course.Course{}, fmt.Errorf("course %q: %w", id, ErrCourseNotFound)
	}
	return c.Clone(), nil
}

// Courses lists all loaded courses ordered by ID.
func (f *FileCatalog) Courses(context.Context) ([]Summary, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return summarizeAll(f.courses), nil
}

// Reload re-reads the directory and swaps the loaded set atomically. On
// error the previous set stays in place.
func (f *FileCatalog) Reload(context.Context) error {
	if _, err := os.Stat(f.rootDir); err != nil {
		return fmt.Errorf("loading courses: %w", err)
	}

	loaded := make(map[string]course.Course)
	err := filepath.WalkDir(f.rootDir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if !strings.HasSuffix(path, ".course.yaml") && !strings.HasSuffix(path, ".course.yml") {
			return nil
		}

		c, err := loadCourseFile(path)
		if err != nil {
			if f.strict {
				return err
			}
			slog.Warn("skipping invalid course file", "path", path, "error", err)
			return nil
		}
		if prev, dup := loaded[c.ID]; dup {
			err := fmt.Errorf("%s: course id %q already loaded (%s)", path, c.ID, prev.Title)
			if f.strict {
				return err
			}
			slog.Warn("skipping duplicate course", "path", path, "course_id", c.ID)
			return nil
		}
		loaded[c.ID] = c
		return nil
	})
	if err != nil {
		return fmt.Errorf("loading courses: %w", err)
	}

	f.mu.Lock()
	f.courses = loaded
	f.mu.Unlock()

	slog.Info("courses loaded", "path", f.rootDir, "courses", len(loaded))
	return nil
}

func loadCourseFile(path string) (course.Course, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return course.Course{}, err
	}

	var c course.Course
	if err := yaml.Unmarshal(data, &c); err != nil {
		return course.Course{}, fmt.Errorf("%s: %w", path, err)
	}
	if err := course.Validate(c); err != nil {
		return course.Course{}, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}
