package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/md-rashed-zaman/bookingsync/libs/grpcx"
	"github.com/md-rashed-zaman/bookingsync/libs/runtime"
	"github.com/md-rashed-zaman/bookingsync/libs/syncproto"
	"github.com/md-rashed-zaman/bookingsync/services/reception-client/internal/connectivity"
	"github.com/md-rashed-zaman/bookingsync/services/reception-client/internal/localstore"
)

const timeLayout = "2006-01-02 15:04"

func newSyncCmd(a *app) *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Push queued changes and pull the latest appointments",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !watch {
				rep, err := a.orch.SyncOnce(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "pushed %d, conflicts %d, failed %d, merged %d\n", rep.Pushed, rep.Conflicts, rep.Failed, rep.Merged)
				if rep.PullError != nil {
					fmt.Fprintf(a.out, "pull skipped: %v\n", rep.PullError)
				}
				return nil
			}
			ctx, stop := runtime.SignalContext(cmd.Context())
			defer stop()
			probe, err := a.probe()
			if err != nil {
				return err
			}
			online := connectivity.NewWatcher(probe, a.v.GetDuration("interval")/3, a.logger).Run(ctx)
			a.logger.Info("watching for changes", "server", a.v.GetString("server"))
			return a.orch.Run(ctx, online)
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", false, "keep running and sync whenever the server is reachable")
	return cmd
}

func (a *app) probe() (connectivity.Probe, error) {
	if addr := a.v.GetString("grpc-addr"); addr != "" {
		conn, err := grpcx.Dial(addr, grpcx.DialOptions{})
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", addr, err)
		}
		a.closer = append(a.closer, func() { _ = conn.Close() })
		return connectivity.GRPCProbe(conn), nil
	}
	url := strings.TrimRight(a.v.GetString("server"), "/") + "/healthz"
	return connectivity.HTTPProbe(&http.Client{Timeout: 3 * time.Second}, url), nil
}

func newBookCmd(a *app) *cobra.Command {
	var (
		p        syncproto.CreatePayload
		start    string
		duration time.Duration
	)
	cmd := &cobra.Command{
		Use:   "book",
		Short: "Book an appointment locally and queue it for sync",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.requireStore(); err != nil {
				return err
			}
			at, err := a.parseTime(start)
			if err != nil {
				return err
			}
			if duration <= 0 {
				return errors.New("--duration must be positive")
			}
			p.StartAt, p.EndAt = at, at.Add(duration)
			appt, err := a.store.CreateLocal(cmd.Context(), p)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "queued %s %s-%s\n", appt.ID, a.stamp(appt.StartAt), appt.EndAt.In(a.loc).Format("15:04"))
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&p.EmployeeID, "employee", "", "employee id")
	f.StringVar(&p.ServiceID, "service", "", "service id")
	f.StringVar(&p.CustomerID, "customer-id", "", "existing customer id")
	f.StringVar(&p.CustomerName, "customer-name", "", "customer name")
	f.StringVar(&p.CustomerEmail, "customer-email", "", "customer email")
	f.StringVar(&p.CustomerPhone, "customer-phone", "", "customer phone")
	f.StringVar(&start, "start", "", `start time, "2006-01-02 15:04" in the business timezone or RFC 3339`)
	f.DurationVar(&duration, "duration", 30*time.Minute, "appointment length")
	_ = cmd.MarkFlagRequired("employee")
	_ = cmd.MarkFlagRequired("service")
	_ = cmd.MarkFlagRequired("start")
	return cmd
}

func newRescheduleCmd(a *app) *cobra.Command {
	var (
		start, employee string
		duration        time.Duration
	)
	cmd := &cobra.Command{
		Use:   "reschedule <appointment-id>",
		Short: "Move an appointment and queue the change",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireStore(); err != nil {
				return err
			}
			cur, ok, err := a.store.Appointment(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("appointment %s is not in the local cache; run sync first", args[0])
			}
			p := syncproto.UpdatePayload{ID: cur.ID}
			if start != "" {
				at, err := a.parseTime(start)
				if err != nil {
					return err
				}
				length := cur.EndAt.Sub(cur.StartAt)
				if duration > 0 {
					length = duration
				}
				end := at.Add(length)
				p.StartAt, p.EndAt = &at, &end
			}
			if employee != "" {
				p.EmployeeID = &employee
			}
			if p.StartAt == nil && p.EmployeeID == nil {
				return errors.New("nothing to change: pass --start or --employee")
			}
			appt, err := a.store.UpdateLocal(cmd.Context(), p)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "queued update %s %s\n", appt.ID, a.stamp(appt.StartAt))
			return nil
		},
	}
	cmd.Flags().StringVar(&start, "start", "", "new start time")
	cmd.Flags().DurationVar(&duration, "duration", 0, "new length; defaults to the current one")
	cmd.Flags().StringVar(&employee, "employee", "", "reassign to this employee")
	return cmd
}

func newCancelCmd(a *app) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "cancel <appointment-id>",
		Short: "Cancel an appointment and queue the change",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireStore(); err != nil {
				return err
			}
			if _, err := a.store.CancelLocal(cmd.Context(), args[0], reason); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "queued cancel %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "cancellation reason")
	return cmd
}

func newQueueCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "queue",
		Short: "List queued changes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			items, err := a.store.Queue(cmd.Context())
			if err != nil {
				return err
			}
			a.printItems(items)
			return nil
		},
	}
}

func newConflictsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "conflicts",
		Short: "Review changes the server rejected",
	}
	list := &cobra.Command{
		Use:   "list",
		Short: "List conflicting changes with the server's suggestion",
		RunE: func(cmd *cobra.Command, _ []string) error {
			items, err := a.store.QueueByStatus(cmd.Context(), localstore.QueueConflict)
			if err != nil {
				return err
			}
			a.printItems(items)
			return nil
		},
	}
	resolve := func(use, short string, fn func(context.Context, string) error) *cobra.Command {
		return &cobra.Command{
			Use:   use + " <item-id>",
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := fn(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(a.out, "%s %s\n", use, args[0])
				return nil
			},
		}
	}
	cmd.AddCommand(
		list,
		resolve("accept", "Take the server's suggested time", func(ctx context.Context, id string) error { return a.orch.Accept(ctx, id) }),
		resolve("dismiss", "Drop the change and keep the server's version", func(ctx context.Context, id string) error { return a.orch.Dismiss(ctx, id) }),
		resolve("retry", "Send the change again as is", func(ctx context.Context, id string) error { return a.orch.Retry(ctx, id) }),
	)
	return cmd
}

func newAppointmentsCmd(a *app) *cobra.Command {
	var day string
	cmd := &cobra.Command{
		Use:   "appointments",
		Short: "Show cached appointments for a day",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if day == "" {
				day = time.Now().In(a.loc).Format(time.DateOnly)
			}
			if _, err := time.Parse(time.DateOnly, day); err != nil {
				return fmt.Errorf("--date: %w", err)
			}
			appts, err := a.store.AppointmentsOn(cmd.Context(), day)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSTART\tEND\tEMPLOYEE\tCUSTOMER\tSTATUS\tSYNCED")
			for _, ap := range appts {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%t\n", ap.ID,
					ap.StartAt.In(a.loc).Format("15:04"), ap.EndAt.In(a.loc).Format("15:04"),
					ap.EmployeeID, ap.CustomerName, ap.Status, ap.Synced)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&day, "date", "", "day to show (YYYY-MM-DD); defaults to today")
	return cmd
}

func (a *app) printItems(items []localstore.QueueItem) {
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ITEM\tACTION\tAPPOINTMENT\tSTATUS\tATTEMPTS\tDETAIL")
	for _, it := range items {
		detail := it.LastError
		if s := it.ConflictSuggestion; s != nil {
			detail += fmt.Sprintf(" (suggested %s)", a.stamp(s.StartAt))
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n", it.ID, it.Action.Type, it.AppointmentID, it.Status, it.Attempts, strings.TrimSpace(detail))
	}
	_ = tw.Flush()
}

func (a *app) parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation(timeLayout, s, a.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: use %q or RFC 3339", s, timeLayout)
	}
	return t, nil
}

func (a *app) stamp(t time.Time) string { return t.In(a.loc).Format(timeLayout) }
