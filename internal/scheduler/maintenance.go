package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"signage-fleet-server/internal/metrics"
)

type TokenPurger interface {
	PurgeStale(ctx context.Context, before time.Time) (int64, error)
}

// Maintenance runs periodic housekeeping on a cron schedule.
type Maintenance struct {
	cron      *cron.Cron
	tokens    TokenPurger
	retention time.Duration
	now       func() time.Time
	log       *logrus.Entry
}

func NewMaintenance(schedule string, retention time.Duration, tokens TokenPurger) (*Maintenance, error) {
	m := &Maintenance{
		cron:      cron.New(),
		tokens:    tokens,
		retention: retention,
		now:       time.Now,
		log:       logrus.WithField("component", "maintenance"),
	}

	if _, err := m.cron.AddFunc(schedule, func() {
		if _, err := m.PurgeTokens(context.Background()); err != nil {
			m.log.WithError(err).Error("Token purge failed")
		}
	}); err != nil {
		return nil, fmt.Errorf("invalid maintenance schedule %q: %w", schedule, err)
	}
	return m, nil
}

func (m *Maintenance) Start() {
	m.cron.Start()
}

// Stop waits for a running job to finish or ctx to expire.
func (m *Maintenance) Stop(ctx context.Context) {
	select {
	case <-m.cron.Stop().Done():
	case <-ctx.Done():
	}
}

// PurgeTokens deletes token records revoked or expired longer than the
// retention period ago.
func (m *Maintenance) PurgeTokens(ctx context.Context) (int64, error) {
	cutoff := m.now().Add(-m.retention)
	n, err := m.tokens.PurgeStale(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	metrics.TokensPurgedTotal.Add(float64(n))
	m.log.WithFields(logrus.Fields{"deleted": n, "cutoff": cutoff}).Info("Stale tokens purged")
	return n, nil
}
