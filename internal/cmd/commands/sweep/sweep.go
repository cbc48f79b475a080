package sweep

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/hashicorp-forge/doccontrol/internal/cmd/base"
	"github.com/hashicorp-forge/doccontrol/internal/server"
	"github.com/hashicorp-forge/doccontrol/pkg/docerr"
	"github.com/hashicorp-forge/doccontrol/pkg/models"
)

type Command struct {
	*base.Command

	flagConfig string
	flagRemind bool
}

func (c *Command) Synopsis() string {
	return "Mark overdue reviews and acknowledgments"
}

func (c *Command) Help() string {
	return `Usage: doccontrol sweep [options]

  This command runs the periodic maintenance tasks: scheduled reviews past
  their due date become overdue, pending acknowledgments past their deadline
  become overdue, and archives past retention are reported. With -remind,
  workers with overdue acknowledgments are sent a reminder.` + c.Flags().Help()
}

func (c *Command) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("sweep", flag.ContinueOnError))

	f.StringVar(&c.flagConfig, "config", "", "(Required) Path to doccontrol config file")
	f.BoolVar(&c.flagRemind, "remind", false, "Send reminders for overdue acknowledgments.")

	return f
}

func (c *Command) Run(args []string) int {
	ui := c.UI

	flags := c.Flags()
	if err := flags.Parse(args); err != nil {
		ui.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}

	ctx, cancel := c.SignalContext()
	defer cancel()

	srv, err := c.LoadServer(ctx, c.flagConfig)
	if err != nil {
		ui.Error(err.Error())
		return 1
	}
	defer srv.Close()

	reviews, err := srv.Reviews.MarkOverdueReviews(ctx)
	if err != nil {
		ui.Error(fmt.Sprintf("error marking overdue reviews: %v", err))
		return 1
	}
	ui.Info(fmt.Sprintf("Reviews marked overdue: %d", reviews))

	acks, err := srv.Distribution.UpdateOverdueAcknowledgments(ctx)
	if err != nil {
		ui.Error(fmt.Sprintf("error marking overdue acknowledgments: %v", err))
		return 1
	}
	ui.Info(fmt.Sprintf("Acknowledgments marked overdue: %d", acks))

	if c.flagRemind {
		reminded, err := remind(ctx, srv)
		ui.Info(fmt.Sprintf("Workers reminded: %d", reminded))
		if err != nil {
			ui.Error(fmt.Sprintf("error sending reminders: %v", err))
			return 1
		}
	}

	eligible, err := srv.Archives.EligibleForDestruction(ctx, "", time.Now())
	if err != nil {
		ui.Error(fmt.Sprintf("error listing archives: %v", err))
		return 1
	}
	if len(eligible) > 0 {
		ui.Warn(fmt.Sprintf("Archives past retention: %d", len(eligible)))
	}
	return 0
}

// remind sends one reminder round for every document with an overdue
// acknowledgment.
func remind(ctx context.Context, srv *server.Server) (int64, error) {
	var docIDs []string
	err := srv.DB.WithContext(ctx).
		Model(&models.DocumentAcknowledgment{}).
		Where("status = ?", models.AcknowledgmentStatusOverdue).
		Distinct().
		Pluck("document_id", &docIDs).Error
	if err != nil {
		return 0, err
	}

	var (
		total  int64
		result error
	)
	for _, id := range docIDs {
		n, err := srv.Distribution.RecordAcknowledgmentReminder(ctx, id)
		if docerr.IsPrecondition(err) {
			// Obsolete or archived since the requirement was created.
			continue
		}
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("document %s: %w", id, err))
			continue
		}
		total += n
	}
	return total, result
}
