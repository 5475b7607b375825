package content

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

const reloadTimeout = time.Minute

// Refresher reloads a catalog on a cron schedule.
type Refresher struct {
	cron *cron.Cron
}

// NewRefresher schedules r.Reload with spec (standard five-field cron or
// descriptors such as "@every 10m").
func NewRefresher(spec string, r Reloader) (*Refresher, error) {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), reloadTimeout)
		defer cancel()
		if err := r.Reload(ctx); err != nil {
			slog.Error("catalog refresh failed", "error", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid refresh schedule %q: %w", spec, err)
	}
	return &Refresher{cron: c}, nil
}

// Start runs the schedule in the background.
func (r *Refresher) Start() {
	r.cron.Start()
}

// Stop halts the schedule and waits for a running reload to finish or ctx to end.
func (r *Refresher) Stop(ctx context.Context) {
	select {
	case <-r.cron.Stop().Done():
	case <-ctx.Done():
	}
}
