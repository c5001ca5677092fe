package scheduler

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"flowdesk/internal/eventbus"
	"flowdesk/pkg/logx"
)

func (s *Service) enqueue(r run) {
	s.mu.Lock()
	q := s.queue
	s.mu.Unlock()
	if q == nil {
		s.log.Debug("scheduler not running, dropping run", logx.String("job", r.name))
		return
	}
	select {
	case q <- r:
	default:
		s.log.Warn("scheduler queue full, dropping run",
			logx.String("job", r.name),
			logx.Int("queue_len", len(q)),
			logx.Int("queue_cap", cap(q)),
		)
	}
}

func (s *Service) worker(ctx context.Context, stopCh <-chan struct{}, queue <-chan run) {
	for {
		// Fast-exit check so a closed stopCh wins over queued work.
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		default:
		}

		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case r := <-queue:
			s.execOne(ctx, stopCh, r)
		}
	}
}

func (s *Service) execOne(ctx context.Context, stopCh <-chan struct{}, r run) {
	start := time.Now()
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{
			Type: "job.started",
			Time: start,
			Data: JobEvent{ID: r.id, Name: r.name, Started: start},
		})
	}

	// Mark running for overlap control.
	if r.state != nil {
		r.state.mu.Lock()
		r.state.running = true
		r.state.mu.Unlock()
		defer func() {
			r.state.mu.Lock()
			r.state.running = false
			r.state.mu.Unlock()
		}()
	}

	s.mu.Lock()
	cfg := s.cfg
	s.mu.Unlock()

	opt := r.opt.withDefaults(cfg)
	maxAttempts := 1 + opt.RetryMax

	var err error
	attempts := 0
attemptLoop:
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		attempts = attempt
		// Per-attempt timeout so a timed-out first attempt does not poison
		// the retries.
		runCtx := ctx
		var cancel func()
		if r.timeout > 0 {
			runCtx, cancel = context.WithTimeout(ctx, r.timeout)
		}
		err = r.job(runCtx)
		if cancel != nil {
			cancel()
		}
		if err == nil || attempt >= maxAttempts {
			break
		}

		delay := backoffDelay(opt, attempt)
		if delay > 0 {
			s.log.Debug("job retry scheduled",
				logx.String("job", r.name),
				logx.Int("attempt", attempt+1),
				logx.Duration("delay", delay),
				logx.Err(err),
			)
			tmr := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				if !tmr.Stop() {
					<-tmr.C
				}
				err = ctx.Err()
				break attemptLoop
			case <-stopCh:
				if !tmr.Stop() {
					<-tmr.C
				}
				err = errors.New("scheduler stopped")
				break attemptLoop
			case <-tmr.C:
			}
		}
	}

	dur := time.Since(start)
	item := HistoryItem{ID: r.id, Name: r.name, Started: start, Duration: dur}
	if err != nil {
		item.Error = err.Error()
		s.log.Warn("job failed",
			logx.String("job", r.name),
			logx.Duration("dur", dur),
			logx.Int("attempts", attempts),
			logx.Err(err),
		)
		if s.bus != nil {
			s.bus.Publish(eventbus.Event{
				Type: "job.failed",
				Time: time.Now(),
				Data: JobEvent{ID: r.id, Name: r.name, Started: start, Duration: dur, Attempts: attempts, Error: item.Error},
			})
		}
	} else {
		// Frequent fast jobs stay at debug; only slow completions make INFO.
		if dur >= 750*time.Millisecond {
			s.log.Info("job completed",
				logx.String("job", r.name), logx.Duration("dur", dur), logx.Int("attempts", attempts))
		} else {
			s.log.Debug("job completed",
				logx.String("job", r.name), logx.Duration("dur", dur), logx.Int("attempts", attempts))
		}
		if s.bus != nil {
			s.bus.Publish(eventbus.Event{
				Type: "job.finished",
				Time: time.Now(),
				Data: JobEvent{ID: r.id, Name: r.name, Started: start, Duration: dur, Attempts: attempts},
			})
		}
	}

	s.hmu.Lock()
	defer s.hmu.Unlock()
	s.history = append(s.history, item)
	historySize := cfg.HistorySize
	if historySize <= 0 {
		historySize = 200
	}
	if len(s.history) > historySize {
		s.history = s.history[len(s.history)-historySize:]
	}
}

// backoffDelay grows exponentially from RetryBase, capped at RetryMaxDelay,
// with +/- RetryJitter applied.
func backoffDelay(opt JobOptions, retry int) time.Duration {
	d := opt.RetryBase
	for i := 1; i < retry; i++ {
		d *= 2
		if d > opt.RetryMaxDelay {
			d = opt.RetryMaxDelay
			break
		}
	}
	if opt.RetryJitter > 0 {
		r := (rand.Float64()*2 - 1) * opt.RetryJitter
		d = time.Duration(float64(d) * (1 + r))
		if d < 0 {
			d = 0
		}
	}
	if d > opt.RetryMaxDelay {
		d = opt.RetryMaxDelay
	}
	return d
}
