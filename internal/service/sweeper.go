// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/robfig/cron/v3"

	"github.com/controlplaneio-fluxcd/aegis/internal/schedule"
	"github.com/controlplaneio-fluxcd/aegis/internal/store"
)

// SweepExpired marks the active licenses past their expiry as expired.
// It returns the number of updated licenses.
func (s *Service) SweepExpired(ctx context.Context) (int, error) {
	now := s.timestamp()
	log := logr.FromContextOrDiscard(ctx)

	expirable, err := s.store.ListExpirable(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("failed to list expired licenses: %w", err)
	}

	swept := 0
	for i := range expirable {
		l := &expirable[i]
		// The license may have been revoked since it was listed.
		changed, err := s.store.ExpireLicense(ctx, l.ID, now)
		if err != nil {
			log.Error(err, "failed to mark license as expired", "license_id", l.ID)
			continue
		}
		if !changed {
			continue
		}
		swept++

		s.audit(ctx, store.AuditEvent{
			EventType:   store.EventExpired,
			LicenseID:   l.ID,
			CustomerID:  l.CustomerID,
			ProductName: l.ProductName,
			EventData:   fmt.Sprintf("Expired at %s", l.ExpiresAt.Format(time.RFC3339)),
		}, RequestMeta{})
	}

	s.metrics.recordExpired(swept)
	if swept > 0 {
		log.Info("expired licenses swept", "count", swept)
	}
	return swept, nil
}

// SweeperStatus describes the sweeper schedule and its last run.
type SweeperStatus struct {
	Schedule        string     `json:"schedule"`
	PreviousTrigger *time.Time `json:"previous_trigger,omitempty"`
	NextTrigger     time.Time  `json:"next_trigger"`
	LastRun         *time.Time `json:"last_run,omitempty"`
	LastSwept       int        `json:"last_swept"`
}

// Sweeper runs SweepExpired on a cron schedule.
type Sweeper struct {
	svc      *Service
	schedule *schedule.Schedule
	cron     *cron.Cron

	mu        sync.Mutex
	lastRun   time.Time
	lastSwept int
}

// StartSweeper runs the sweeper until the context is canceled.
func (s *Service) StartSweeper(ctx context.Context, sched *schedule.Schedule) *Sweeper {
	log := logr.FromContextOrDiscard(ctx).WithName("sweeper")

	sw := &Sweeper{
		svc:      s,
		schedule: sched,
		cron: cron.New(
			cron.WithLogger(log),
			cron.WithChain(cron.SkipIfStillRunning(log)),
		),
	}
	sw.cron.Schedule(sched, cron.FuncJob(func() {
		sw.run(logr.NewContext(ctx, log))
	}))
	sw.cron.Start()

	go func() {
		<-ctx.Done()
		<-sw.cron.Stop().Done()
	}()

	log.Info("sweeper started", "schedule", sched.String())
	return sw
}

func (sw *Sweeper) run(ctx context.Context) {
	n, err := sw.svc.SweepExpired(ctx)
	if err != nil {
		logr.FromContextOrDiscard(ctx).Error(err, "sweep failed")
		return
	}

	sw.mu.Lock()
	defer sw.mu.Unlock()
	sw.lastRun = sw.svc.timestamp()
	sw.lastSwept = n
}

// Status returns the schedule triggers around now and the outcome of the last run.
func (sw *Sweeper) Status(now time.Time) SweeperStatus {
	prev, next := sw.schedule.Triggers(now)
	status := SweeperStatus{
		Schedule:    sw.schedule.String(),
		NextTrigger: next.UTC(),
	}
	if !prev.IsZero() {
		p := prev.UTC()
		status.PreviousTrigger = &p
	}

	sw.mu.Lock()
	defer sw.mu.Unlock()
	if !sw.lastRun.IsZero() {
		t := sw.lastRun
		status.LastRun = &t
	}
	status.LastSwept = sw.lastSwept
	return status
}
