// Package orchestrator drains the local queue against the booking service
// and folds the server's view back into the local cache.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/md-rashed-zaman/bookingsync/libs/syncproto"
	"github.com/md-rashed-zaman/bookingsync/services/reception-client/internal/localstore"
)

// Client is the subset of the sync API the orchestrator needs.
type Client interface {
	Push(ctx context.Context, actions []syncproto.Action) (syncproto.PushResponse, error)
	Pull(ctx context.Context, days int) (syncproto.PullResponse, error)
}

type Options struct {
	Interval time.Duration
	PullDays int
}

// Report summarizes one sync round.
type Report struct {
	Pushed    int
	Conflicts int
	Failed    int
	Merged    int
	PullError error
}

type Orchestrator struct {
	store  *localstore.Store
	client Client
	logger *slog.Logger
	opts   Options

	mu sync.Mutex
}

var ErrNoSuggestion = errors.New("conflict has no server suggestion")

func New(store *localstore.Store, client Client, logger *slog.Logger, opts Options) *Orchestrator {
	if opts.Interval <= 0 {
		opts.Interval = 30 * time.Second
	}
	opts.PullDays = syncproto.ClampDays(opts.PullDays)
	return &Orchestrator{store: store, client: client, logger: logger, opts: opts}
}

// SyncOnce pushes every pending or failed item one at a time, in queue
// order, then pulls. A pull failure is reported but not returned.
func (o *Orchestrator) SyncOnce(ctx context.Context) (Report, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	var rep Report
	if !o.store.Available() {
		return rep, nil
	}
	items, err := o.store.Pushable(ctx)
	if err != nil {
		return rep, fmt.Errorf("load queue: %w", err)
	}
	for _, it := range items {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		if err := o.store.MarkProcessing(ctx, it.ID); err != nil {
			return rep, err
		}
		resp, err := o.client.Push(ctx, []syncproto.Action{it.Action})
		switch {
		case err != nil:
			rep.Failed++
			o.logger.Warn("push failed", "item", it.ID, "err", err)
			if mErr := o.store.MarkFailed(context.WithoutCancel(ctx), it.ID, err.Error()); mErr != nil {
				return rep, mErr
			}
		case len(resp.Conflicts) > 0:
			c := resp.Conflicts[0]
			rep.Conflicts++
			o.logger.Info("push conflict", "item", it.ID, "reason", c.Reason)
			if err := o.store.MarkConflict(ctx, it.ID, c.Reason, c.ServerSuggestion); err != nil {
				return rep, err
			}
		default:
			rep.Pushed++
			if err := o.store.MarkDone(ctx, it.ID); err != nil {
				return rep, err
			}
		}
	}

	pull, err := o.client.Pull(ctx, o.opts.PullDays)
	if err != nil {
		rep.PullError = err
		o.logger.Warn("pull failed", "err", err)
		return rep, nil
	}
	if rep.Merged, err = o.store.MergeServer(ctx, pull.Appointments); err != nil {
		return rep, fmt.Errorf("merge: %w", err)
	}
	return rep, nil
}

// Run syncs on every tick while online, and right away whenever the
// service comes back. A nil online channel means always online.
func (o *Orchestrator) Run(ctx context.Context, online <-chan bool) error {
	if n, err := o.store.RecoverInterrupted(ctx); err != nil {
		return err
	} else if n > 0 {
		o.logger.Info("requeued interrupted items", "count", n)
	}
	up := online == nil
	t := time.NewTicker(o.opts.Interval)
	defer t.Stop()

	round := func() {
		rep, err := o.SyncOnce(ctx)
		if err != nil && ctx.Err() == nil {
			o.logger.Error("sync round failed", "err", err)
			return
		}
		if rep.Pushed+rep.Conflicts+rep.Failed > 0 {
			o.logger.Info("sync round", "pushed", rep.Pushed, "conflicts", rep.Conflicts, "failed", rep.Failed, "merged", rep.Merged)
		}
	}
	if up {
		round()
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case v, ok := <-online:
			if !ok {
				online = nil
				continue
			}
			up = v
			if up {
				round()
			}
		case <-t.C:
			if up {
				round()
			}
		}
	}
}

// Accept resolves a conflict by taking the server's suggested interval.
// A rejected CREATE is resubmitted as a CREATE; anything else becomes an
// UPDATE moving the appointment.
func (o *Orchestrator) Accept(ctx context.Context, itemID string) error {
	it, ok, err := o.store.Item(ctx, itemID)
	if err != nil {
		return err
	}
	if !ok {
		return localstore.ErrNotFound
	}
	if it.Status != localstore.QueueConflict {
		return fmt.Errorf("item %s is %s, not a conflict", itemID, it.Status)
	}
	sug := it.ConflictSuggestion
	if sug == nil {
		return ErrNoSuggestion
	}
	move := func(a *localstore.Appointment) { a.StartAt, a.EndAt = sug.StartAt, sug.EndAt }

	if it.Action.Type == syncproto.ActionCreate {
		var p syncproto.CreatePayload
		if err := json.Unmarshal(it.Action.Payload, &p); err != nil {
			return fmt.Errorf("decode queued create: %w", err)
		}
		p.StartAt, p.EndAt = sug.StartAt, sug.EndAt
		return o.store.Replace(ctx, itemID, syncproto.ActionCreate, p, move)
	}
	start, end := sug.StartAt, sug.EndAt
	p := syncproto.UpdatePayload{ID: it.AppointmentID, StartAt: &start, EndAt: &end}
	return o.store.Replace(ctx, itemID, syncproto.ActionUpdate, p, move)
}

// Dismiss drops the conflicting action; the next pull restores the
// server's version of the appointment.
func (o *Orchestrator) Dismiss(ctx context.Context, itemID string) error {
	return o.store.DeleteItem(ctx, itemID)
}

// Retry requeues a failed or conflicting item unchanged.
func (o *Orchestrator) Retry(ctx context.Context, itemID string) error {
	return o.store.ResetToPending(ctx, itemID)
}
