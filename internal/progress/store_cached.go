package progress

import (
	"context"
	"log/slog"
	"time"
)

const defaultCacheTTL = 10 * time.Minute

// JSONCache is the subset of the platform cache used by CachedStore.
type JSONCache interface {
	GetJSON(ctx context.Context, key string, v any) (bool, error)
	SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// CachedStore is a read-through cache in front of a Store. Every write
// invalidates the cached record so the next Load reads the wrapped store,
// which stays the source of truth. Cache failures are logged and otherwise
// ignored.
type CachedStore struct {
	next  Store
	cache JSONCache
	ttl   time.Duration
}

// NewCachedStore wraps next with cache. A zero ttl uses the default.
func NewCachedStore(next Store, cache JSONCache, ttl time.Duration) *CachedStore {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &CachedStore{next: next, cache: cache, ttl: ttl}
}

func (s *CachedStore) Load(ctx context.Context, userID, courseID string) (CourseProgress, error) {
	key := cacheKey(userID, courseID)

	var cached CourseProgress
	hit, err := s.cache.GetJSON(ctx, key, &cached)
	if err != nil {
		slog.Warn("progress cache read failed", "key", key, "error", err)
	}
	if hit {
		normalize(&cached, userID, courseID)
		return cached, nil
	}

	p, err := s.next.Load(ctx, userID, courseID)
	if err != nil {
		return CourseProgress{}, err
	}
	s.store(ctx, key, p)
	return p, nil
}

func (s *CachedStore) Enroll(ctx context.Context, userID, courseID string) (CourseProgress, error) {
	return s.write(ctx, userID, courseID, func() (CourseProgress, error) {
		return s.next.Enroll(ctx, userID, courseID)
	})
}

func (s *CachedStore) MarkLessonComplete(ctx context.Context, userID, courseID, moduleID, lessonID string) (CourseProgress, error) {
	return s.write(ctx, userID, courseID, func() (CourseProgress, error) {
		return s.next.MarkLessonComplete(ctx, userID, courseID, moduleID, lessonID)
	})
}

func (s *CachedStore) MarkModuleComplete(ctx context.Context, userID, courseID, moduleID string) (CourseProgress, error) {
	return s.write(ctx, userID, courseID, func() (CourseProgress, error) {
		return s.next.MarkModuleComplete(ctx, userID, courseID, moduleID)
	})
}

func (s *CachedStore) MarkAssessmentComplete(ctx context.Context, userID, courseID, assessmentID string) (CourseProgress, error) {
	return s.write(ctx, userID, courseID, func() (CourseProgress, error) {
		return s.next.MarkAssessmentComplete(ctx, userID, courseID, assessmentID)
	})
}

// ListByCourse bypasses the cache.
func (s *CachedStore) ListByCourse(ctx context.Context, courseID string) ([]CourseProgress, error) {
	lister, ok := s.next.(Lister)
	if !ok {
		return nil, ErrListUnsupported
	}
	return lister.ListByCourse(ctx, courseID)
}

func (s *CachedStore) write(ctx context.Context, userID, courseID string, fn func() (CourseProgress, error)) (CourseProgress, error) {
	key := cacheKey(userID, courseID)

	// Snapshots from concurrent writes can reach the cache in any order, so
	// only the wrapped store decides what the record looks like.
	p, err := fn()
	if derr := s.cache.Delete(ctx, key); derr != nil {
		slog.Warn("progress cache invalidate failed", "key", key, "error", derr)
	}
	if err != nil {
		return CourseProgress{}, err
	}
	return p, nil
}

func (s *CachedStore) store(ctx context.Context, key string, p CourseProgress) {
	if err := s.cache.SetJSON(ctx, key, p, s.ttl); err != nil {
		slog.Warn("progress cache write failed", "key", key, "error", err)
	}
}

func cacheKey(userID, courseID string) string {
	return "progress:" + userID + ":" + courseID
}
