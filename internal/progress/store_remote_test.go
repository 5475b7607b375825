package progress_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/p-n-ai/pai-course/internal/progress"
)

func TestNewRemoteStore_RequiresURL(t *testing.T) {
	if _, err := progress.NewRemoteStore(""); err == nil {
		t.Fatal("expected error for empty URL")
	}
}

func TestRemoteStore_Load(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/users/u1/courses/c1/progress" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer svc-token" {
			t.Errorf("Authorization = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"user_id":"u1","course_id":"c1","completed_lessons":["m1/l1"],"started_at":"2026-01-02T03:04:05Z"}`))
	}))
	defer srv.Close()

	store, err := progress.NewRemoteStore(srv.URL, progress.WithServiceToken("svc-token"))
	if err != nil {
		t.Fatalf("NewRemoteStore() error = %v", err)
	}

	p, err := store.Load(context.Background(), "u1", "c1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !p.CompletedLessons.Has("m1/l1") {
		t.Errorf("CompletedLessons = %v", p.CompletedLessons.Sorted())
	}
	if p.CompletedModules == nil || p.CompletedAssessments == nil {
		t.Error("omitted sets should be normalized to empty sets")
	}
}

func TestRemoteStore_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	store, _ := progress.NewRemoteStore(srv.URL)
	_, err := store.Load(context.Background(), "u1", "c1")
	if !errors.Is(err, progress.ErrNotFound) {
		t.Errorf("Load() error = %v, want ErrNotFound", err)
	}
}

func TestRemoteStore_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "boom", http.StatusBadGateway)
			return
		}
		if r.Method != http.MethodPut || r.URL.Path != "/users/u1/courses/c1/progress/lessons/m1/l1" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"user_id":"u1","course_id":"c1","completed_lessons":["m1/l1"]}`))
	}))
	defer srv.Close()

	store, _ := progress.NewRemoteStore(srv.URL, progress.WithRetries(2))
	p, err := store.MarkLessonComplete(context.Background(), "u1", "c1", "m1", "l1")
	if err != nil {
		t.Fatalf("MarkLessonComplete() error = %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
	if !p.CompletedLessons.Has("m1/l1") {
		t.Error("lesson not reported complete")
	}
}

func TestRemoteStore_PersistentFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	store, _ := progress.NewRemoteStore(srv.URL, progress.WithRetries(0), progress.WithTimeout(time.Second))
	_, err := store.MarkAssessmentComplete(context.Background(), "u1", "c1", "quiz")
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, progress.ErrNotFound) {
		t.Error("server failure must not be reported as not found")
	}

	tracker := progress.NewTracker(store, nil)
	_, err = tracker.Progress(context.Background(), "u1", trackerCourse())
	if !errors.Is(err, progress.ErrProgressUnavailable) {
		t.Errorf("Tracker.Progress() error = %v, want ErrProgressUnavailable", err)
	}
}

func TestRemoteStore_RequiresIDs(t *testing.T) {
	store, _ := progress.NewRemoteStore("http://127.0.0.1:1")
	if _, err := store.MarkModuleComplete(context.Background(), "u1", "c1", ""); err == nil {
		t.Error("expected error for empty module id")
	}
}
