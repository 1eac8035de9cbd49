package main

import (
	"fmt"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/weftkit/weft"
	"github.com/weftkit/weft/lanes"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Schedule the configured workload on a real-time host",
		RunE:  runWorkload,
	}
}

func runWorkload(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	host := weft.NewLoopHost()
	defer host.Close()
	if cfg.FrameBudgetFPS > 0 {
		host.SetFrameBudget(cfg.FrameBudgetFPS)
	}

	s := weft.New(weft.WithHost(host), weft.WithLogger(logger))

	mix := []struct {
		priority weft.Priority
		count    int
	}{
		{weft.Immediate, cfg.Workload.Immediate},
		{weft.UserBlocking, cfg.Workload.UserBlocking},
		{weft.Normal, cfg.Workload.Normal},
		{weft.Idle, cfg.Workload.Idle},
	}

	stepCost := time.Duration(cfg.Workload.StepCostMS) * time.Millisecond
	start := time.Now()

	var wg sync.WaitGroup
	for _, m := range mix {
		for i := range m.count {
			wg.Add(1)
			name := fmt.Sprintf("%v/%d", m.priority, i)
			s.Schedule(m.priority, newTask(s, logger, name, cfg.Workload.Steps, stepCost, &wg))
		}
	}

	wg.Wait()
	logger.Info("workload drained",
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("tasks", cfg.Workload.Immediate+cfg.Workload.UserBlocking+cfg.Workload.Normal+cfg.Workload.Idle))
	return nil
}

// newTask builds a resumable callback that burns stepCost per slice and
// yields between steps whenever the host asks for the thread back.
func newTask(s *weft.Scheduler, logger *zap.Logger, name string, steps int, stepCost time.Duration, wg *sync.WaitGroup) weft.Callback {
	remaining := steps

	var step weft.Callback
	step = func(deadline bool) weft.Callback {
		for remaining > 0 {
			busyWait(stepCost)
			remaining--
			logger.Debug("step done",
				zap.String("task", name),
				zap.Int("remaining", remaining),
				zap.Bool("past_deadline", deadline))
			if remaining > 0 && s.ShouldYield() {
				return step
			}
		}
		logger.Info("task finished", zap.String("task", name), zap.Stringer("priority", s.CurrentPriority()))
		wg.Done()
		return nil
	}
	return step
}

func busyWait(d time.Duration) {
	end := time.Now().Add(d)
	for time.Now().Before(end) {
	}
}

func newLanesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lanes",
		Short: "Replay the workload through the lane batching model",
		RunE:  runLanes,
	}
}

// runLanes drives a Registry on a virtual clock: it records an update per
// configured task, then repeatedly asks for the next batch and commits it,
// advancing the clock so starvation deadlines become visible.
func runLanes(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	registry := lanes.NewRegistry()
	clock := time.Unix(0, 0)

	record := func(p weft.Priority, count int) {
		for range count {
			lane := lanes.FindUpdateLane(weft.PriorityToLanePriority(p), registry.Pending())
			registry.MarkUpdated(lane, clock)
			logger.Debug("update recorded", zap.Stringer("lane", lane), zap.Stringer("priority", p))
		}
	}
	record(weft.Immediate, cfg.Workload.Immediate)
	record(weft.UserBlocking, cfg.Workload.UserBlocking)
	record(weft.Normal, cfg.Workload.Normal)
	record(weft.Idle, cfg.Workload.Idle)

	for batch := 0; registry.HasWork(); batch++ {
		registry.MarkStarvedLanesAsExpired(clock)
		next, priority := registry.NextLanes(lanes.NoLanes)
		if next == lanes.NoLanes {
			break
		}
		logger.Info("committing batch",
			zap.Int("batch", batch),
			zap.Stringer("lanes", next),
			zap.Int("lane_count", next.Count()),
			zap.String("scheduler_priority", weft.LanePriorityToPriority(priority).String()))
		registry.MarkFinished(registry.Pending().Remove(next))
		clock = clock.Add(16 * time.Millisecond)
	}

	logger.Info("all lanes drained")
	return nil
}

func setup(cmd *cobra.Command) (*Config, *zap.Logger, error) {
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, nil, err
	}
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	logger, err := SetupLogger(cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}
