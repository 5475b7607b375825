package progress

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	defaultRemoteTimeout = 10 * time.Second
	defaultRemoteRetries = 2
)

// RemoteStore talks to the external progress service over HTTP. Every
// mutation is a PUT, so the client retries transient failures internally
// and callers only see the final outcome.
type RemoteStore struct {
	client *resty.Client
}

// RemoteOption configures a RemoteStore.
type RemoteOption func(*resty.Client)

// WithServiceToken sets the bearer token sent to the progress service.
func WithServiceToken(token string) RemoteOption {
	return func(c *resty.Client) {
		if token != "" {
			c.SetAuthToken(token)
		}
	}
}

// WithRetries overrides the number of retries for transient failures.
func WithRetries(n int) RemoteOption {
	return func(c *resty.Client) {
		c.SetRetryCount(n)
	}
}

// WithTimeout overrides the per-request timeout.
func WithTimeout(d time.Duration) RemoteOption {
	return func(c *resty.Client) {
		c.SetTimeout(d)
	}
}

// NewRemoteStore creates a client for the progress service at baseURL.
func NewRemoteStore(baseURL string, opts ...RemoteOption) (*RemoteStore, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("progress service URL is required (LEARN_PROGRESS_URL)")
	}

	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(defaultRemoteTimeout).
		SetRetryCount(defaultRemoteRetries).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		SetHeader("Accept", "application/json").
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		})
	for _, opt := range opts {
		opt(client)
	}

	return &RemoteStore{client: client}, nil
}

func (s *RemoteStore) Load(ctx context.Context, userID, courseID string) (CourseProgress, error) {
	return s.do(ctx, http.MethodGet, "/users/{userID}/courses/{courseID}/progress", map[string]string{
		"userID":   userID,
		"courseID": courseID,
	})
}

func (s *RemoteStore) Enroll(ctx context.Context, userID, courseID string) (CourseProgress, error) {
	return s.do(ctx, http.MethodPut, "/users/{userID}/courses/{courseID}/progress", map[string]string{
		"userID":   userID,
		"courseID": courseID,
	})
}

func (s *RemoteStore) MarkLessonComplete(ctx context.Context, userID, courseID, moduleID, lessonID string) (CourseProgress, error) {
	return s.do(ctx, http.MethodPut, "/users/{userID}/courses/{courseID}/progress/lessons/{moduleID}/{lessonID}", map[string]string{
		"userID":   userID,
		"courseID": courseID,
		"moduleID": moduleID,
		"lessonID": lessonID,
	})
}

func (s *RemoteStore) MarkModuleComplete(ctx context.Context, userID, courseID, moduleID string) (CourseProgress, error) {
	return s.do(ctx, http.MethodPut, "/users/{userID}/courses/{courseID}/progress/modules/{moduleID}", map[string]string{
		"userID":   userID,
		"courseID": courseID,
		"moduleID": moduleID,
	})
}

func (s *RemoteStore) MarkAssessmentComplete(ctx context.Context, userID, courseID, assessmentID string) (CourseProgress, error) {
	return s.do(ctx, http.MethodPut, "/users/{userID}/courses/{courseID}/progress/assessments/{assessmentID}", map[string]string{
		"userID":       userID,
		"courseID":     courseID,
		"assessmentID": assessmentID,
	})
}

func (s *RemoteStore) do(ctx context.Context, method, path string, params map[string]string) (CourseProgress, error) {
	for name, v := range params {
		if v == "" {
			return CourseProgress{}, fmt.Errorf("%s is required", name)
		}
	}

	var result CourseProgress
	resp, err := s.client.R().
		SetContext(ctx).
		SetPathParams(params).
		SetResult(&result).
		Execute(method, path)
	if err != nil {
		return CourseProgress{}, fmt.Errorf("progress service %s %s: %w", method, path, err)
	}

	switch {
	case resp.StatusCode() == http.StatusNotFound:
		return CourseProgress{}, fmt.Errorf("user %s course %s: %w", params["userID"], params["courseID"], ErrNotFound)
	case resp.IsError():
		return CourseProgress{}, fmt.Errorf("progress service error %d: %s", resp.StatusCode(), resp.String())
	}

	normalize(&result, params["userID"], params["courseID"])
	return result, nil
}

// normalize fills sets the service omitted so callers never see nil sets.
func normalize(p *CourseProgress, userID, courseID string) {
	if p.UserID == "" {
		p.UserID = userID
	}
	if p.CourseID == "" {
		p.CourseID = courseID
	}
	if p.CompletedModules == nil {
		p.CompletedModules = Set{}
	}
	if p.CompletedLessons == nil {
		p.CompletedLessons = Set{}
	}
	if p.CompletedAssessments == nil {
		p.CompletedAssessments = Set{}
	}
}
