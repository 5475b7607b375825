package progress

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/p-n-ai/pai-course/internal/course"
)

const dbTimeout = 5 * time.Second

const (
	kindModule     = "module"
	kindLesson     = "lesson"
	kindAssessment = "assessment"
)

//go:embed schema.sql
var schemaSQL string

// PostgresStore is a PostgreSQL-backed Store implementation.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgreSQL-backed progress store.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresStore{pool: pool}, nil
}

// Migrate creates the progress tables if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("migrate progress schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Load(ctx context.Context, userID, courseID string) (CourseProgress, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()
	return s.load(ctx, s.pool, userID, courseID)
}

func (s *PostgresStore) Enroll(ctx context.Context, userID, courseID string) (CourseProgress, error) {
	return s.markItem(ctx, userID, courseID, "", "")
}

func (s *PostgresStore) MarkLessonComplete(ctx context.Context, userID, courseID, moduleID, lessonID string) (CourseProgress, error) {
	if moduleID == "" || lessonID == "" {
		return CourseProgress{}, fmt.Errorf("module_id and lesson_id are required")
	}
	key := course.LessonRef{ModuleID: moduleID, LessonID: lessonID}.Key()
	return s.markItem(ctx, userID, courseID, kindLesson, key)
}

func (s *PostgresStore) MarkModuleComplete(ctx context.Context, userID, courseID, moduleID string) (CourseProgress, error) {
	if moduleID == "" {
		return CourseProgress{}, fmt.Errorf("module_id is required")
	}
	return s.markItem(ctx, userID, courseID, kindModule, moduleID)
}

func (s *PostgresStore) MarkAssessmentComplete(ctx context.Context, userID, courseID, assessmentID string) (CourseProgress, error) {
	if assessmentID == "" {
		return CourseProgress{}, fmt.Errorf("assessment_id is required")
	}
	return s.markItem(ctx, userID, courseID, kindAssessment, assessmentID)
}

func (s *PostgresStore) ListByCourse(ctx context.Context, courseID string) ([]CourseProgress, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT user_id, started_at
		 FROM course_progress
		 WHERE course_id = $1
		 ORDER BY user_id ASC`,
		courseID,
	)
	if err != nil {
		return nil, fmt.Errorf("query course progress: %w", err)
	}
	defer rows.Close()

	var out []CourseProgress
	index := make(map[string]int)
	for rows.Next() {
		var userID string
		var startedAt time.Time
		if err := rows.Scan(&userID, &startedAt); err != nil {
			return nil, fmt.Errorf("scan course progress: %w", err)
		}
		index[userID] = len(out)
		out = append(out, newCourseProgress(userID, courseID, startedAt))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate course progress: %w", err)
	}

	items, err := s.pool.Query(ctx,
		`SELECT user_id, kind, item_id
		 FROM progress_items
		 WHERE course_id = $1`,
		courseID,
	)
	if err != nil {
		return nil, fmt.Errorf("query progress items: %w", err)
	}
	defer items.Close()

	for items.Next() {
		var userID, kind, itemID string
		if err := items.Scan(&userID, &kind, &itemID); err != nil {
			return nil, fmt.Errorf("scan progress item: %w", err)
		}
		if i, ok := index[userID]; ok {
			addItem(&out[i], kind, itemID)
		}
	}
	if err := items.Err(); err != nil {
		return nil, fmt.Errorf("iterate progress items: %w", err)
	}

	return out, nil
}

// markItem upserts the progress row and, when kind is set, the completed
// item. Both inserts ignore conflicts so repeated calls are no-ops.
func (s *PostgresStore) markItem(ctx context.Context, userID, courseID, kind, itemID string) (CourseProgress, error) {
	if userID == "" || courseID == "" {
		return CourseProgress{}, fmt.Errorf("user_id and course_id are required")
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var result CourseProgress
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO course_progress (user_id, course_id)
			 VALUES ($1, $2)
			 ON CONFLICT (user_id, course_id) DO NOTHING`,
			userID,
			courseID,
		); err != nil {
			return fmt.Errorf("upsert course progress: %w", err)
		}

		if kind != "" {
			if _, err := tx.Exec(ctx,
				`INSERT INTO progress_items (user_id, course_id, kind, item_id)
				 VALUES ($1, $2, $3, $4)
				 ON CONFLICT (user_id, course_id, kind, item_id) DO NOTHING`,
				userID,
				courseID,
				kind,
				itemID,
			); err != nil {
				return fmt.Errorf("insert %s item: %w", kind, err)
			}
		}

		p, err := s.load(ctx, tx, userID, courseID)
		if err != nil {
			return err
		}
		result = p
		return nil
	})
	if err != nil {
		return CourseProgress{}, err
	}
	return result, nil
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (s *PostgresStore) load(ctx context.Context, q querier, userID, courseID string) (CourseProgress, error) {
	var startedAt time.Time
	err := q.QueryRow(ctx,
		`SELECT started_at
		 FROM course_progress
		 WHERE user_id = $1 AND course_id = $2`,
		userID,
		courseID,
	).Scan(&startedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return CourseProgress{}, fmt.Errorf("user %s course %s: %w", userID, courseID, ErrNotFound)
		}
		return CourseProgress{}, fmt.Errorf("get course progress: %w", err)
	}

	p := newCourseProgress(userID, courseID, startedAt)

	rows, err := q.Query(ctx,
		`SELECT kind, item_id
		 FROM progress_items
		 WHERE user_id = $1 AND course_id = $2`,
		userID,
		courseID,
	)
	if err != nil {
		return CourseProgress{}, fmt.Errorf("query progress items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var kind, itemID string
		if err := rows.Scan(&kind, &itemID); err != nil {
			return CourseProgress{}, fmt.Errorf("scan progress item: %w", err)
		}
		addItem(&p, kind, itemID)
	}
	if err := rows.Err(); err != nil {
		return CourseProgress{}, fmt.Errorf("iterate progress items: %w", err)
	}

	return p, nil
}

func addItem(p *CourseProgress, kind, itemID string) {
	switch kind {
	case kindModule:
		p.CompletedModules[itemID] = struct{}{}
	case kindLesson:
		p.CompletedLessons[itemID] = struct{}{}
	case kindAssessment:
		p.CompletedAssessments[itemID] = struct{}{}
	}
}
