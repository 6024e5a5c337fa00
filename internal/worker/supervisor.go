package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/mennohie/wdm-project-group-9/internal/metrics"
)

// Runner is one restartable partition consumer; *Loop implements it.
type Runner interface {
	Run(ctx context.Context, beat func()) error
}

type event struct {
	partition int
	gen       int
	exited    bool
	err       error
}

type slot struct {
	gen      int
	cancel   context.CancelFunc
	running  bool
	lastBeat time.Time
}

// Supervisor keeps one Runner alive per partition. Every Interval it
// restarts runners that exited or have not beaten for two intervals.
type Supervisor struct {
	Partitions []int
	NewRunner  func(partition int) Runner
	Interval   time.Duration
	Log        *slog.Logger
	Metrics    *metrics.Metrics
}

// Run blocks until ctx is canceled and every runner has returned.
func (s *Supervisor) Run(ctx context.Context) error {
	interval := s.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	log := s.Log
	if log == nil {
		log = slog.Default()
	}

	events := make(chan event, 4*len(s.Partitions)+1)
	slots := make(map[int]*slot, len(s.Partitions))
	live := 0

	start := func(p int) {
		sl := slots[p]
		if sl == nil {
			sl = &slot{}
			slots[p] = sl
		}
		sl.gen++
		gen := sl.gen
		rctx, cancel := context.WithCancel(ctx)
		sl.cancel, sl.running, sl.lastBeat = cancel, true, time.Now()
		live++

		runner := s.NewRunner(p)
		beat := func() {
			select {
			case events <- event{partition: p, gen: gen}:
			case <-rctx.Done():
			}
		}
		go func() {
			err := runner.Run(rctx, beat)
			cancel()
			events <- event{partition: p, gen: gen, exited: true, err: err}
		}()
	}

	for _, p := range s.Partitions {
		start(p)
	}
	log.InfoContext(ctx, "supervisor started", "partitions", s.Partitions, "interval", interval)

	tick := time.NewTicker(interval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			for _, sl := range slots {
				sl.cancel()
			}
			for live > 0 {
				if ev := <-events; ev.exited {
					live--
				}
			}
			log.InfoContext(ctx, "supervisor stopped")
			return nil

		case ev := <-events:
			if ev.exited {
				live--
			}
			sl := slots[ev.partition]
			if sl == nil || ev.gen != sl.gen {
				continue
			}
			if ev.exited {
				sl.running = false
				log.ErrorContext(ctx, "partition loop exited", "partition", ev.partition, "err", ev.err)
				continue
			}
			sl.lastBeat = time.Now()

		case now := <-tick.C:
			for p, sl := range slots {
				stale := now.Sub(sl.lastBeat) > 2*interval
				if sl.running && !stale {
					continue
				}
				if sl.running {
					log.WarnContext(ctx, "partition loop stale, restarting", "partition", p,
						"last_beat", sl.lastBeat)
					sl.cancel()
				} else {
					log.WarnContext(ctx, "restarting partition loop", "partition", p)
				}
				s.Metrics.Restart(p)
				start(p)
			}
		}
	}
}
