package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"flowdesk/internal/eventbus"
	"flowdesk/pkg/logx"
)

// Register parses schedule and installs the job under name, replacing any
// existing job with the same name. Supported schedule formats:
//   - Cron: "*/5 * * * *", "30 9 * * 1", "@daily", "@every 15m"
//   - Interval duration: "15m", "2h30m"
//   - Interval HH:MM: "00:30" (every 30 minutes)
func (s *Service) Register(name, schedule string, timeout time.Duration, job func(ctx context.Context) error) (string, error) {
	return s.RegisterOpt(name, schedule, timeout, JobOptions{}, job)
}

func (s *Service) RegisterOpt(name, schedule string, timeout time.Duration, opt JobOptions, job func(ctx context.Context) error) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", errors.New("job name required")
	}
	if job == nil {
		return "", errors.New("job func required")
	}
	ps, err := ParseSchedule(schedule)
	if err != nil {
		return "", err
	}
	spec := ps.Cron
	if ps.Kind == SpecInterval {
		spec = "@every " + ps.Every.String()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Validate the spec before touching any existing definition: a bad
	// replacement must leave the old schedule running.
	if _, err := s.parser.Parse(spec); err != nil {
		return "", fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}

	_ = s.cancelLocked(name)
	id := fmt.Sprintf("job:%d", time.Now().UnixNano())
	d := jobDef{
		id:      id,
		name:    name,
		spec:    spec,
		timeout: s.resolveTimeout(timeout),
		job:     job,
		opt:     opt.withDefaults(s.cfg),
		state:   &runState{},
	}
	s.defs = append(s.defs, d)
	if s.c != nil {
		if err := s.addCronLocked(&s.defs[len(s.defs)-1]); err != nil {
			return id, err
		}
	}
	s.log.Debug("job registered",
		logx.String("job", name),
		logx.String("spec", spec),
		logx.Duration("timeout", d.timeout),
	)
	return id, nil
}

// Reschedule swaps the schedule of an existing job. On a parse failure the
// previous schedule stays in effect.
func (s *Service) Reschedule(name, schedule string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i := range s.defs {
		if s.defs[i].name == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("unknown job %q", name)
	}

	ps, err := ParseSchedule(schedule)
	if err != nil {
		return err
	}
	spec := ps.Cron
	if ps.Kind == SpecInterval {
		spec = "@every " + ps.Every.String()
	}
	if _, err := s.parser.Parse(spec); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}

	if s.c != nil && s.defs[idx].entryID != 0 {
		s.c.Remove(s.defs[idx].entryID)
		s.defs[idx].entryID = 0
	}
	s.defs[idx].spec = spec
	if s.c != nil {
		if err := s.addCronLocked(&s.defs[idx]); err != nil {
			return err
		}
	}
	s.log.Info("job rescheduled", logx.String("job", name), logx.String("spec", spec))
	return nil
}

// Cancel removes the named job. Cancelling an unknown name is a no-op and
// returns false.
func (s *Service) Cancel(name string) bool {
	s.mu.Lock()
	removed := s.cancelLocked(name)
	s.mu.Unlock()
	if removed {
		s.log.Debug("job cancelled", logx.String("job", name))
	}
	return removed
}

// CancelAll removes every registered job without stopping the workers.
func (s *Service) CancelAll() {
	s.mu.Lock()
	if s.c != nil {
		for i := range s.defs {
			if s.defs[i].entryID != 0 {
				s.c.Remove(s.defs[i].entryID)
			}
		}
	}
	n := len(s.defs)
	s.defs = nil
	s.mu.Unlock()
	s.log.Info("all jobs cancelled", logx.Int("jobs", n))
}

func (s *Service) cancelLocked(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}
	removed := false
	if s.c != nil {
		for i := range s.defs {
			if s.defs[i].name == name && s.defs[i].entryID != 0 {
				s.c.Remove(s.defs[i].entryID)
				s.defs[i].entryID = 0
				removed = true
			}
		}
	}
	n := 0
	for _, d := range s.defs {
		if d.name == name {
			removed = true
			continue
		}
		s.defs[n] = d
		n++
	}
	s.defs = s.defs[:n]
	return removed
}

// RunNow enqueues one immediate run of the named job through the same path
// a cron firing takes, overlap policy included.
func (s *Service) RunNow(name string) error {
	s.mu.Lock()
	var def *jobDef
	for i := range s.defs {
		if s.defs[i].name == name {
			def = &s.defs[i]
			break
		}
	}
	if def == nil {
		s.mu.Unlock()
		return fmt.Errorf("unknown job %q", name)
	}
	running := s.queue != nil
	d := *def
	s.mu.Unlock()

	if !running {
		return errors.New("scheduler not running")
	}
	s.fire(&d)
	return nil
}

func (s *Service) addCronLocked(d *jobDef) error {
	// The closure gets its own copy: s.defs is compacted in place on
	// cancel, so a captured pointer could end up aiming at a different
	// job's definition. The shared runState pointer survives the copy,
	// which is what overlap control needs.
	snap := *d
	eid, err := s.c.AddFunc(d.spec, func() { s.fire(&snap) })
	if err != nil {
		return err
	}
	d.entryID = eid
	return nil
}

// fire applies the overlap policy and enqueues one run.
func (s *Service) fire(d *jobDef) {
	if d.opt.Overlap == OverlapSkipIfRunning {
		d.state.mu.Lock()
		running := d.state.running
		d.state.mu.Unlock()
		if running {
			s.log.Debug("job skipped, previous run still executing",
				logx.String("job", d.name))
			if s.bus != nil {
				now := time.Now()
				s.bus.Publish(eventbus.Event{
					Type: "job.skipped",
					Time: now,
					Data: JobEvent{ID: d.id, Name: d.name, Started: now, Error: "overlap_skip"},
				})
			}
			return
		}
	}
	s.enqueue(run{id: d.id, name: d.name, timeout: d.timeout, job: d.job, opt: d.opt, state: d.state})
}
