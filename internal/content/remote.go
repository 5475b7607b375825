package content

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/xeipuuv/gojsonschema"

	"github.com/p-n-ai/pai-course/internal/course"
)

//go:embed course.schema.json
var courseSchemaJSON []byte

var courseSchema = mustSchema(courseSchemaJSON)

func mustSchema(b []byte) *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(b))
	if err != nil {
		panic(fmt.Sprintf("content: invalid embedded course schema: %v", err))
	}
	return s
}

// RemoteCatalog reads courses from the external content service. Fetched
// courses are kept in memory until the next Reload.
type RemoteCatalog struct {
	client  *resty.Client
	courses map[string]course.Course
	mu      sync.RWMutex
}

// NewRemoteCatalog creates a client for the content service at baseURL.
func NewRemoteCatalog(baseURL, token string) (*RemoteCatalog, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("content service URL is required (LEARN_CONTENT_URL)")
	}

	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(15*time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(200*time.Millisecond).
		SetHeader("Accept", "application/json").
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		})
	if token != "" {
		client.SetAuthToken(token)
	}

	return &RemoteCatalog{client: client, courses: make(map[string]course.Course)}, nil
}

// Course returns the cached course or fetches it from the service.
func (r *RemoteCatalog) Course(ctx context.Context, id string) (course.Course, error) {
	r.mu.RLock()
	c, ok := r.courses[id]
	r.mu.RUnlock()
	if ok {
		return c.Clone(), nil
	}

	resp, err := r.client.R().
		SetContext(ctx).
		SetPathParam("courseID", id).
		Get("/courses/{courseID}")
	if err != nil {
		return course.Course{}, fmt.Errorf("fetching course %q: %w", id, err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return course.Course{}, fmt.Errorf("course %q: %w", id, ErrCourseNotFound)
	}
	if resp.IsError() {
		return course.Course{}, fmt.Errorf("content service error %d: %s", resp.StatusCode(), resp.String())
	}

	c, err = DecodeCourse(resp.Body())
	if err != nil {
		return course.Course{}, err
	}

	r.mu.Lock()
	r.courses[c.ID] = c
	r.mu.Unlock()
	return c.Clone(), nil
}

// Courses lists the courses fetched by the last Reload plus any fetched since.
func (r *RemoteCatalog) Courses(context.Context) ([]Summary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return summarizeAll(r.courses), nil
}

// Reload fetches the full course list. Invalid documents are skipped.
func (r *RemoteCatalog) Reload(ctx context.Context) error {
	resp, err := r.client.R().SetContext(ctx).Get("/courses")
	if err != nil {
		return fmt.Errorf("fetching courses: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("content service error %d: %s", resp.StatusCode(), resp.String())
	}

	var docs []json.RawMessage
	if err := json.Unmarshal(resp.Body(), &docs); err != nil {
		return fmt.Errorf("decoding course list: %w", err)
	}

	loaded := make(map[string]course.Course, len(docs))
	for i, doc := range docs {
		c, err := DecodeCourse(doc)
		if err != nil {
			slog.Warn("skipping invalid course document", "index", i, "error", err)
			continue
		}
		loaded[c.ID] = c
	}

	r.mu.Lock()
	r.courses = loaded
	r.mu.Unlock()

	slog.Info("courses loaded", "source", "remote", "courses", len(loaded))
	return nil
}

// DecodeCourse checks doc against the course JSON schema, decodes it and
// validates the result.
func DecodeCourse(doc []byte) (course.Course, error) {
	result, err := courseSchema.Validate(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return course.Course{}, fmt.Errorf("reading course document: %w", err)
	}
	if !result.Valid() {
		problems := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			problems = append(problems, e.String())
		}
		return course.Course{}, fmt.Errorf("course document does not match schema: %s", strings.Join(problems, "; "))
	}

	var c course.Course
	if err := json.Unmarshal(doc, &c); err != nil {
		return course.Course{}, fmt.Errorf("decoding course document: %w", err)
	}
	if err := course.Validate(c); err != nil {
		return course.Course{}, err
	}
	return c, nil
}
