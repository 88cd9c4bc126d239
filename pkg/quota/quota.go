// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package quota enforces the per-user daily prompt limit ahead of
// Intellect.
package quota

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/kadirpekel/aegis/pkg/persistence"
)

// ErrLimitExceeded is returned by Check when the caller has already hit
// dailyPromptLimit for today.
var ErrLimitExceeded = fmt.Errorf("quota: daily prompt limit exceeded")

// Limiter enforces Config.DailyPromptLimit against the persistence
// port's per-user turn count. A limit of zero disables enforcement.
type Limiter struct {
	store            persistence.Store
	dailyPromptLimit int
	logger           *slog.Logger
}

// NewLimiter builds a Limiter. dailyPromptLimit of zero disables the
// check entirely.
func NewLimiter(store persistence.Store, dailyPromptLimit int, logger *slog.Logger) *Limiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Limiter{store: store, dailyPromptLimit: dailyPromptLimit, logger: logger}
}

// Check returns ErrLimitExceeded if userID has already used up its
// daily budget for agentKey; it is a no-op when the limit is disabled.
func (l *Limiter) Check(ctx context.Context, agentKey, userID string) error {
	if l.dailyPromptLimit <= 0 {
		return nil
	}

	count, err := l.store.CountMessagesForUserToday(ctx, agentKey, userID)
	if err != nil {
		return fmt.Errorf("quota: count today's messages: %w", err)
	}
	if count >= l.dailyPromptLimit {
		return ErrLimitExceeded
	}
	return nil
}

// Scheduler runs a periodic no-op reset tick for observability: since
// the limit is derived live from CountMessagesForUserToday rather than
// a decrementing counter, there is no counter state to reset, but
// operators still want a log line confirming the day rolled over.
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger
}

// NewScheduler starts a daily midnight tick that logs the rollover.
func NewScheduler(logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := cron.New()
	_, err := c.AddFunc("@midnight", func() {
		logger.Info("quota: daily window rolled over")
	})
	if err != nil {
		return nil, fmt.Errorf("quota: schedule midnight reset: %w", err)
	}
	c.Start()
	return &Scheduler{cron: c, logger: logger}, nil
}

// Stop halts the scheduler, waiting for any in-flight tick to finish.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}
