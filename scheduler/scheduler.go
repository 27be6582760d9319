// Package scheduler runs the periodic maintenance loop: reaping idle
// sessions and garbage-collecting superseded chunk versions the deferred
// deletion missed.
package scheduler

import (
    "context"
    "log/slog"
    "time"

    "github.com/amsaid/docpilot/orchestrator"
    "github.com/amsaid/docpilot/vector_index"
)

type Scheduler struct {
    sessions *orchestrator.SessionStore
    index    *vector_index.Gateway
    interval time.Duration
    logger   *slog.Logger

    stop chan struct{}
}

func New(sessions *orchestrator.SessionStore, index *vector_index.Gateway,
    interval time.Duration, logger *slog.Logger) *Scheduler {

    if interval <= 0 {
        interval = 5 * time.Minute
    }
    return &Scheduler{
        sessions: sessions,
        index:    index,
        interval: interval,
        logger:   logger,
        stop:     make(chan struct{}),
    }
}

// Start blocks, running maintenance every interval until Stop is called.
// Intended to run in its own goroutine.
func (s *Scheduler) Start() {
    ticker := time.NewTicker(s.interval)
    defer ticker.Stop()

    for {
        select {
        case <-ticker.C:
            s.runOnce()
        case <-s.stop:
            return
        }
    }
}

func (s *Scheduler) Stop() {
    close(s.stop)
}

func (s *Scheduler) runOnce() {
    reaped := s.sessions.ReapIdle(time.Now())

    ctx, cancel := context.WithTimeout(context.Background(), s.interval)
    defer cancel()
    swept, err := s.index.SweepSuperseded(ctx)
    if err != nil {
        s.logger.Error("Maintenance sweep of superseded versions failed",
            slog.String("error", err.Error()))
    }

    if reaped > 0 || swept > 0 {
        s.logger.Info("Maintenance pass completed",
            slog.Int("sessions_reaped", reaped),
            slog.Int("chunks_swept", swept))
    }
}
