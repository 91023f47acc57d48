// Package scheduler fires campaign status transitions at their start and end
// instants. Timers live in process memory and are rebuilt from the store at
// boot, so only one server instance should run the scheduler.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"signage-fleet-server/internal/domain"
	"signage-fleet-server/internal/metrics"
)

// Notifier is told when a campaign changes status.
type Notifier interface {
	CampaignStatusChanged(companyID, campaignID string, status domain.CampaignStatus)
}

type CampaignLister interface {
	ListUnfinished(ctx context.Context, now time.Time) ([]*domain.Campaign, error)
}

type jobKey struct {
	CampaignID string
	Transition domain.CampaignStatus
}

type job struct {
	timer     *time.Timer
	companyID string
}

type Scheduler struct {
	mu       sync.Mutex
	jobs     map[jobKey]*job
	notifier Notifier
	now      func() time.Time
	log      *logrus.Entry
}

func New(notifier Notifier) *Scheduler {
	return &Scheduler{
		jobs:     make(map[jobKey]*job),
		notifier: notifier,
		now:      time.Now,
		log:      logrus.WithField("component", "scheduler"),
	}
}

// Schedule replaces any timers of the campaign with ones for its current
// window. Transitions already in the past are not scheduled.
func (s *Scheduler) Schedule(campaign *domain.Campaign) {
	s.Cancel(campaign.ID)

	now := s.now()
	if campaign.StartDate.After(now) {
		s.arm(campaign, domain.CampaignActive, campaign.StartDate.Sub(now))
	}
	if campaign.EndDate.After(now) {
		s.arm(campaign, domain.CampaignFinished, campaign.EndDate.Sub(now))
	}
}

func (s *Scheduler) arm(campaign *domain.Campaign, transition domain.CampaignStatus, delay time.Duration) {
	key := jobKey{CampaignID: campaign.ID, Transition: transition}
	j := &job{companyID: campaign.CompanyID}

	s.mu.Lock()
	defer s.mu.Unlock()

	j.timer = time.AfterFunc(delay, func() { s.fire(key, j) })
	s.jobs[key] = j
	metrics.ScheduledJobs.Set(float64(len(s.jobs)))
}

func (s *Scheduler) fire(key jobKey, j *job) {
	s.mu.Lock()
	if s.jobs[key] != j {
		// Cancelled or rescheduled after the timer started.
		s.mu.Unlock()
		return
	}
	delete(s.jobs, key)
	metrics.ScheduledJobs.Set(float64(len(s.jobs)))
	s.mu.Unlock()

	metrics.CampaignTransitionsTotal.WithLabelValues(string(key.Transition)).Inc()
	s.log.WithFields(logrus.Fields{
		"campaign_id": key.CampaignID,
		"status":      key.Transition,
	}).Info("Campaign status changed")
	s.notifier.CampaignStatusChanged(j.companyID, key.CampaignID, key.Transition)
}

// Cancel stops every pending timer of a campaign.
func (s *Scheduler) Cancel(campaignID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, transition := range []domain.CampaignStatus{domain.CampaignActive, domain.CampaignFinished} {
		key := jobKey{CampaignID: campaignID, Transition: transition}
		if j, ok := s.jobs[key]; ok {
			j.timer.Stop()
			delete(s.jobs, key)
		}
	}
	metrics.ScheduledJobs.Set(float64(len(s.jobs)))
}

// Rehydrate schedules every campaign that has not finished yet.
func (s *Scheduler) Rehydrate(ctx context.Context, lister CampaignLister) (int, error) {
	campaigns, err := lister.ListUnfinished(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("rehydrate scheduler: %w", err)
	}
	for _, c := range campaigns {
		s.Schedule(c)
	}
	s.log.WithField("campaigns", len(campaigns)).Info("Scheduler rehydrated")
	return len(campaigns), nil
}

// Pending reports whether a transition timer is armed.
func (s *Scheduler) Pending(campaignID string, transition domain.CampaignStatus) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.jobs[jobKey{CampaignID: campaignID, Transition: transition}]
	return ok
}

func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Stop cancels all timers.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, j := range s.jobs {
		j.timer.Stop()
		delete(s.jobs, key)
	}
	metrics.ScheduledJobs.Set(0)
}
