// Package queue drains the durable delivery queue. Each tick claims due
// pending entries, attempts delivery, and either completes, reschedules
// with linear backoff, or fails the entry terminally.
package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"flowdesk/internal/model"
	"flowdesk/internal/store"
	"flowdesk/pkg/logx"
)

// Deliverer is the delivery half of the dispatcher.
type Deliverer interface {
	Deliver(ctx context.Context, n *model.Notification) error
}

type Options struct {
	BatchSize   int
	MaxAttempts int
	// RetryStep is multiplied by the attempt number: attempt 1 retries
	// after 1 step, attempt 2 after 2 steps, and so on.
	RetryStep time.Duration
	// Lease bounds how long an entry may sit in processing before it is
	// treated as orphaned by a dead run and returned to pending.
	Lease time.Duration
}

type Processor struct {
	store     store.Store
	deliverer Deliverer
	opts      Options
	log       logx.Logger

	now func() time.Time
}

func New(st store.Store, d Deliverer, opts Options, log logx.Logger) *Processor {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.RetryStep <= 0 {
		opts.RetryStep = 5 * time.Minute
	}
	if opts.Lease <= 0 {
		opts.Lease = 10 * time.Minute
	}
	return &Processor{
		store:     st,
		deliverer: d,
		opts:      opts,
		log:       log.With(logx.String("component", "queue")),
		now:       time.Now,
	}
}

// Tick processes one batch. Per-entry failures are contained: a poisonous
// entry ends up failed, not wedging the queue.
func (p *Processor) Tick(ctx context.Context) error {
	now := p.now().UTC()

	// Entries stuck in processing past the lease belong to a run that
	// died mid-delivery; put them back so a restart can resume them.
	requeued, err := p.store.RequeueStaleProcessing(ctx, now.Add(-p.opts.Lease))
	if err != nil {
		p.log.Error("requeue stale entries failed", logx.Err(err))
	} else if requeued > 0 {
		p.log.Warn("requeued orphaned deliveries", logx.Int64("entries", requeued))
	}

	entries, err := p.store.DuePendingEntries(ctx, now, p.opts.BatchSize)
	if err != nil {
		return fmt.Errorf("list due entries: %w", err)
	}
	if len(entries) == 0 {
		return nil
	}

	var done, retried, failed int
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		switch p.processOne(ctx, e) {
		case outcomeDone:
			done++
		case outcomeRetried:
			retried++
		case outcomeFailed:
			failed++
		}
	}
	p.log.Info("queue tick",
		logx.Int("due", len(entries)),
		logx.Int("completed", done),
		logx.Int("rescheduled", retried),
		logx.Int("failed", failed),
	)
	return nil
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeDone
	outcomeRetried
	outcomeFailed
)

func (p *Processor) processOne(ctx context.Context, e model.QueueEntry) outcome {
	now := p.now().UTC()
	attempts, ok, err := p.store.ClaimEntry(ctx, e.ID, now)
	if err != nil {
		p.log.Error("claim failed", logx.String("entry", e.ID), logx.Err(err))
		return outcomeSkipped
	}
	if !ok {
		// Another tick got there first.
		return outcomeSkipped
	}

	deliverErr := p.deliver(ctx, e)
	if deliverErr == nil {
		if err := p.store.CompleteEntry(ctx, e.ID, p.now().UTC()); err != nil {
			p.log.Error("complete failed", logx.String("entry", e.ID), logx.Err(err))
		}
		return outcomeDone
	}

	maxAttempts := e.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = p.opts.MaxAttempts
	}
	if attempts >= maxAttempts {
		if err := p.store.FailEntry(ctx, e.ID, deliverErr.Error()); err != nil {
			p.log.Error("fail transition failed", logx.String("entry", e.ID), logx.Err(err))
		}
		p.log.Warn("delivery permanently failed",
			logx.String("entry", e.ID),
			logx.String("notification", e.NotificationID),
			logx.Int("attempts", attempts),
			logx.Err(deliverErr),
		)
		return outcomeFailed
	}

	nextAt := now.Add(time.Duration(attempts) * p.opts.RetryStep)
	if err := p.store.RescheduleEntry(ctx, e.ID, nextAt, deliverErr.Error()); err != nil {
		p.log.Error("reschedule failed", logx.String("entry", e.ID), logx.Err(err))
		return outcomeFailed
	}
	p.log.Debug("delivery rescheduled",
		logx.String("entry", e.ID),
		logx.Int("attempt", attempts),
		logx.Time("next_attempt", nextAt),
	)
	return outcomeRetried
}

func (p *Processor) deliver(ctx context.Context, e model.QueueEntry) error {
	n, err := p.store.GetNotification(ctx, e.NotificationID)
	if errors.Is(err, store.ErrNotFound) {
		// The notification was cleaned up underneath the entry; nothing
		// left to deliver.
		return nil
	}
	if err != nil {
		return err
	}
	return p.deliverer.Deliver(ctx, &n)
}
