package scheduler

import "time"

// Snapshot returns a point-in-time view for the admin API: per-job next and
// previous fire times plus the recent run history.
func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	enabled := s.cfg.Enabled
	workers := s.cfg.Workers
	tz := s.cfg.Timezone
	defs := make([]jobDef, len(s.defs))
	copy(defs, s.defs)
	c := s.c
	loc := s.loc
	queue := s.queue
	s.mu.Unlock()

	if workers <= 0 {
		workers = 2
	}
	if loc == nil {
		loc = time.Local
	}
	if tz == "" {
		tz = loc.String()
	}

	jobs := make([]JobInfo, 0, len(defs))
	for _, d := range defs {
		info := JobInfo{ID: d.id, Name: d.name, Spec: d.spec, Timeout: d.timeout}
		if c != nil && d.entryID != 0 {
			e := c.Entry(d.entryID)
			info.Next = e.Next
			info.Prev = e.Prev
		}
		jobs = append(jobs, info)
	}

	ql, qc := 0, 0
	if queue != nil {
		ql, qc = len(queue), cap(queue)
	}

	s.hmu.Lock()
	hist := make([]HistoryItem, len(s.history))
	copy(hist, s.history)
	s.hmu.Unlock()

	return Snapshot{
		Enabled:  enabled,
		Running:  queue != nil,
		Timezone: tz,
		Workers:  workers,
		QueueLen: ql,
		QueueCap: qc,
		Jobs:     jobs,
		History:  hist,
	}
}
