// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

package schedule

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// cronLookBack bounds the search for the previous trigger. It spans
// five years so that schedules for Feb 29 (0 0 29 2 *) are covered.
const cronLookBack = 5 * 365 * 24 * time.Hour

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Schedule is a parsed cron expression of a periodic job.
type Schedule struct {
	cron.Schedule

	spec     string
	timeZone string
}

// Parse parses a standard cron expression or a descriptor such as '@hourly'.
// The expression is evaluated in the given time zone when set.
func Parse(spec, timeZone string) (*Schedule, error) {
	cronSpec := spec
	if timeZone != "" {
		cronSpec = fmt.Sprintf("CRON_TZ=%s %s", timeZone, spec)
	}
	s, err := parser.Parse(cronSpec)
	if err != nil {
		if timeZone != "" {
			return nil, fmt.Errorf("failed to parse cron spec '%s' with timezone '%s': %w", spec, timeZone, err)
		}
		return nil, fmt.Errorf("failed to parse cron spec '%s': %w", spec, err)
	}
	return &Schedule{Schedule: s, spec: spec, timeZone: timeZone}, nil
}

// String returns the cron expression.
func (s *Schedule) String() string {
	if s.timeZone != "" {
		return fmt.Sprintf("%s (%s)", s.spec, s.timeZone)
	}
	return s.spec
}

// Triggers returns the last trigger at or before now and the next one after now.
// The previous trigger is zero when the schedule never fired in the look back window.
func (s *Schedule) Triggers(now time.Time) (prev, next time.Time) {
	next = s.Next(now)
	prev = s.previous(now.Add(-cronLookBack), next.Add(-1), next)
	return prev, next
}

// previous binary searches [start, end] for the latest trigger before next.
func (s *Schedule) previous(start, end, next time.Time) time.Time {
	if end.Before(start) {
		return time.Time{}
	}

	middle := start.Add(end.Sub(start) / 2)
	middleTrigger := s.Next(middle)

	// The trigger after middle is not before next, so the
	// previous trigger can only be in the left half.
	if !middleTrigger.Before(next) {
		return s.previous(start, middle.Add(-1), next)
	}

	// middleTrigger is a candidate, a closer one may exist after it.
	if closer := s.previous(middleTrigger, end, next); !closer.IsZero() {
		return closer
	}
	return middleTrigger
}
