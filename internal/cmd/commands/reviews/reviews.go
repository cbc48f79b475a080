package reviews

import (
	"flag"
	"fmt"
	"time"

	"github.com/araddon/dateparse"

	"github.com/hashicorp-forge/doccontrol/internal/cmd/base"
	"github.com/hashicorp-forge/doccontrol/pkg/review"
)

type Command struct {
	*base.Command

	flagConfig  string
	flagCompany string
	flagWithin  int
	flagAsOf    string
	flagAll     bool
}

func (c *Command) Synopsis() string {
	return "List documents whose review is overdue or due soon"
}

func (c *Command) Help() string {
	return `Usage: doccontrol reviews-due [options]

  This command lists documents by next review date, grouped as overdue, due
  soon or scheduled. Only overdue and due soon documents are printed unless
  -all is set. The exit code is 2 when any review is overdue.` + c.Flags().Help()
}

func (c *Command) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("reviews-due", flag.ContinueOnError))

	f.StringVar(&c.flagConfig, "config", "", "(Required) Path to doccontrol config file")
	f.StringVar(&c.flagCompany, "company", "", "Only list documents of this company.")
	f.IntVar(&c.flagWithin, "within", 0,
		"Days ahead counted as due soon. Defaults to review.due_soon_days from the config.")
	f.StringVar(&c.flagAsOf, "as-of", "",
		"Evaluate as of this date instead of today. Accepts most date formats, e.g. 2026-03-09 or \"March 9, 2026\".")
	f.BoolVar(&c.flagAll, "all", false, "Also print documents whose review is not yet due.")

	return f
}

func (c *Command) Run(args []string) int {
	ui := c.UI

	flags := c.Flags()
	if err := flags.Parse(args); err != nil {
		ui.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}

	clock := time.Now
	if c.flagAsOf != "" {
		asOf, err := dateparse.ParseIn(c.flagAsOf, time.UTC)
		if err != nil {
			ui.Error(fmt.Sprintf("invalid as-of date %q: %v", c.flagAsOf, err))
			return 1
		}
		clock = func() time.Time { return asOf }
	}

	ctx, cancel := c.SignalContext()
	defer cancel()

	srv, err := c.LoadServer(ctx, c.flagConfig)
	if err != nil {
		ui.Error(err.Error())
		return 1
	}
	defer srv.Close()

	within := c.flagWithin
	if within <= 0 {
		within = srv.Config.Review.DueSoonDays
	}

	scheduler := review.New(srv.DB,
		review.WithLogger(c.Log),
		review.WithNotifier(srv.Notifier),
		review.WithClock(clock),
	)
	items, err := scheduler.ListReviewsDue(ctx, c.flagCompany, within)
	if err != nil {
		ui.Error(fmt.Sprintf("error listing reviews: %v", err))
		return 1
	}

	counts := map[review.Bucket]int{}
	for _, it := range items {
		counts[it.Bucket]++
		if it.Bucket == review.BucketScheduled && !c.flagAll {
			continue
		}
		ui.Output(fmt.Sprintf("%-10s %-16s %s  %4d  %s",
			it.Bucket,
			it.Document.ControlNumber,
			it.Document.NextReviewDate.Format("2006-01-02"),
			it.DaysUntilDue,
			it.Document.Title,
		))
	}
	ui.Info(fmt.Sprintf("overdue: %d, due soon: %d, scheduled: %d",
		counts[review.BucketOverdue], counts[review.BucketDueSoon], counts[review.BucketScheduled]))

	if counts[review.BucketOverdue] > 0 {
		return 2
	}
	return 0
}
