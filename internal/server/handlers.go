package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/p-n-ai/pai-course/internal/assistant"
	"github.com/p-n-ai/pai-course/internal/course"
	"github.com/p-n-ai/pai-course/internal/navigator"
	"github.com/p-n-ai/pai-course/internal/progress"
	"github.com/p-n-ai/pai-course/internal/report"
	"github.com/p-n-ai/pai-course/internal/session"
	"github.com/p-n-ai/pai-course/internal/viewer"
)

const fingerprintHeader = "X-Content-Fingerprint"

var (
	errForbidden         = errors.New("forbidden")
	errEndOfCourse       = errors.New("end of course")
	errStartOfCourse     = errors.New("start of course")
	errAssistantDisabled = errors.New("assistant is not configured")
	errBadRequest        = errors.New("bad request")
)

// reportRoles may download learner reports.
var reportRoles = map[string]bool{"instructor": true, "admin": true}

func currentSession(r *http.Request) session.Session {
	s, _ := session.FromContext(r.Context())
	return s
}

func lessonRef(r *http.Request) course.LessonRef {
	return course.LessonRef{ModuleID: r.PathValue("moduleID"), LessonID: r.PathValue("lessonID")}
}

func (s *Server) handleListCourses(w http.ResponseWriter, r *http.Request) {
	courses, err := s.catalog.Courses(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"courses": courses})
}

func (s *Server) handleGetCourse(w http.ResponseWriter, r *http.Request) {
	user := currentSession(r)
	view, err := s.viewer.Outline(r.Context(), user.UserID, r.PathValue("courseID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set(fingerprintHeader, course.Fingerprint(view.Course))
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleContinue(w http.ResponseWriter, r *http.Request) {
	user := currentSession(r)
	ref, err := s.viewer.Continue(r.Context(), user.UserID, r.PathValue("courseID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ref)
}

func (s *Server) handleGetLesson(w http.ResponseWriter, r *http.Request) {
	user := currentSession(r)
	courseID := r.PathValue("courseID")

	view, err := s.viewer.Open(r.Context(), user.UserID, courseID, lessonRef(r))
	if err != nil {
		writeError(w, r, err)
		return
	}

	// First lesson view enrolls the learner.
	if view.ProgressStatus == viewer.ProgressNotStarted {
		if c, err := s.catalog.Course(r.Context(), courseID); err == nil {
			if _, err := s.tracker.Enroll(r.Context(), user.UserID, c); err != nil {
				slog.Warn("enroll on first view failed", "user_id", user.UserID, "course_id", courseID, "error", err)
			}
		}
	}

	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleNeighbour(next bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := s.catalog.Course(r.Context(), r.PathValue("courseID"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		ref := lessonRef(r)
		if _, err := navigator.Locate(c, ref.ModuleID, ref.LessonID); err != nil {
			writeError(w, r, err)
			return
		}

		var (
			target course.LessonRef
			ok     bool
		)
		if next {
			target, ok = navigator.NextLesson(c, ref.ModuleID, ref.LessonID)
			err = errEndOfCourse
		} else {
			target, ok = navigator.PrevLesson(c, ref.ModuleID, ref.LessonID)
			err = errStartOfCourse
		}
		if !ok {
			writeError(w, r, fmt.Errorf("lesson %s: %w", ref.Key(), err))
			return
		}
		writeJSON(w, http.StatusOK, target)
	}
}

func (s *Server) handleCompleteLesson(w http.ResponseWriter, r *http.Request) {
	user := currentSession(r)
	c, err := s.catalog.Course(r.Context(), r.PathValue("courseID"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	p, err := s.tracker.CompleteLesson(r.Context(), user.UserID, c, lessonRef(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleCompleteAssessment(w http.ResponseWriter, r *http.Request) {
	user := currentSession(r)
	c, err := s.catalog.Course(r.Context(), r.PathValue("courseID"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	p, err := s.tracker.CompleteAssessment(r.Context(), user.UserID, c, r.PathValue("assessmentID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleGetProgress(w http.ResponseWriter, r *http.Request) {
	user := currentSession(r)
	c, err := s.catalog.Course(r.Context(), r.PathValue("courseID"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	p, err := s.tracker.Progress(r.Context(), user.UserID, c)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	user := currentSession(r)
	if !reportRoles[strings.ToLower(user.Role)] {
		writeError(w, r, fmt.Errorf("role %q cannot download reports: %w", user.Role, errForbidden))
		return
	}

	c, err := s.catalog.Course(r.Context(), r.PathValue("courseID"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	lister, ok := s.tracker.Store().(progress.Lister)
	if !ok {
		writeError(w, r, progress.ErrListUnsupported)
		return
	}
	records, err := lister.ListByCourse(r.Context(), c.ID)
	if err != nil {
		if !errors.Is(err, progress.ErrListUnsupported) {
			err = fmt.Errorf("%w: %w", progress.ErrProgressUnavailable, err)
		}
		writeError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := report.Write(&buf, c, records); err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s-progress.xlsx"`, c.ID))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

type askRequest struct {
	Text     string `json:"text"`
	ModuleID string `json:"module_id"`
	LessonID string `json:"lesson_id"`
}

func (s *Server) handleAskAssistant(w http.ResponseWriter, r *http.Request) {
	if s.assistants == nil {
		writeError(w, r, errAssistantDisabled)
		return
	}

	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Text) == "" {
		writeError(w, r, fmt.Errorf("%w: text is required", errBadRequest))
		return
	}

	user := currentSession(r)
	courseID := r.PathValue("courseID")
	if _, err := s.catalog.Course(r.Context(), courseID); err != nil {
		writeError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), assistantTimeout)
	defer cancel()

	token, _ := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	client, err := s.assistants.Get(ctx, user.UserID, token)
	if err != nil {
		slog.Warn("assistant connect failed", "user_id", user.UserID, "error", err)
		writeError(w, r, fmt.Errorf("%w: %w", assistant.ErrNotConnected, err))
		return
	}

	reply, err := client.Ask(ctx, assistant.Message{
		Text:     req.Text,
		CourseID: courseID,
		ModuleID: req.ModuleID,
		LessonID: req.LessonID,
	})
	if err != nil {
		if !errors.Is(err, context.DeadlineExceeded) {
			_ = client.Close()
			if !errors.Is(err, assistant.ErrNotConnected) {
				err = fmt.Errorf("%w: %w", assistant.ErrNotConnected, err)
			}
		}
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}
