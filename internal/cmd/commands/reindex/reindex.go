package reindex

import (
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp-forge/doccontrol/internal/cmd/base"
	"github.com/hashicorp-forge/doccontrol/pkg/indexer"
	"github.com/hashicorp-forge/doccontrol/pkg/models"
)

type Command struct {
	*base.Command

	flagConfig   string
	flagCompany  string
	flagTypes    string
	flagStatuses string
	flagIDs      string
	flagForce    bool
	flagLimit    int
	flagDryRun   bool
	flagVerbose  bool
}

func (c *Command) Synopsis() string {
	return "Re-extract document text, tags and cross references"
}

func (c *Command) Help() string {
	return `Usage: doccontrol reindex [options]

  This command runs the reindex pipeline over documents whose extracted text
  is missing or older than their file. Use -force to reindex every document
  with a text-bearing file.` + c.Flags().Help()
}

func (c *Command) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("reindex", flag.ContinueOnError))

	f.StringVar(&c.flagConfig, "config", "", "(Required) Path to doccontrol config file")
	f.StringVar(&c.flagCompany, "company", "", "Only reindex documents of this company.")
	f.StringVar(&c.flagTypes, "types", "", "Comma-separated document type codes to reindex.")
	f.StringVar(&c.flagStatuses, "statuses", "", "Comma-separated document statuses to reindex.")
	f.StringVar(&c.flagIDs, "ids", "", "Comma-separated document IDs; overrides the other filters.")
	f.BoolVar(&c.flagForce, "force", false, "Reindex documents whose text is already current.")
	f.IntVar(&c.flagLimit, "limit", 0, "Maximum number of documents to process; 0 means no limit.")
	f.BoolVar(&c.flagDryRun, "dry-run", false, "Only list the documents that would be reindexed.")
	f.BoolVar(&c.flagVerbose, "verbose", false, "Print the outcome of every document.")

	return f
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Command) Run(args []string) int {
	ui := c.UI

	flags := c.Flags()
	if err := flags.Parse(args); err != nil {
		ui.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}
	if c.flagLimit < 0 {
		ui.Error("limit must not be negative")
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

	if srv.Reindexer == nil {
		ui.Error("reindexing requires a storage block in the configuration")
		return 1
	}

	filter := indexer.Filter{CompanyID: c.flagCompany}
	for _, t := range splitList(c.flagTypes) {
		filter.TypeCodes = append(filter.TypeCodes, strings.ToUpper(t))
	}
	for _, s := range splitList(c.flagStatuses) {
		st := models.DocumentStatus(strings.ToLower(s))
		if !st.Valid() {
			ui.Error(fmt.Sprintf("unknown status %q", s))
			return 1
		}
		filter.Statuses = append(filter.Statuses, st)
	}

	if c.flagDryRun {
		docs, err := srv.Reindexer.NeedsReindex(ctx, filter, c.flagForce, c.flagLimit)
		if err != nil {
			ui.Error(fmt.Sprintf("error listing documents: %v", err))
			return 1
		}
		ui.Warn("DRY RUN mode enabled - no changes will be made")
		for _, d := range docs {
			ui.Output(fmt.Sprintf("%s\t%s\t%s", d.ControlNumber, d.Status, d.FileRef))
		}
		ui.Info(fmt.Sprintf("Would reindex %d documents", len(docs)))
		return 0
	}

	summary, err := srv.Reindexer.ReindexBatch(ctx, indexer.BatchOptions{
		Filter:      filter,
		Force:       c.flagForce,
		Limit:       c.flagLimit,
		DocumentIDs: splitList(c.flagIDs),
		Progress: func(p indexer.Progress) {
			if c.flagVerbose {
				line := fmt.Sprintf("[%d/%d] %s: %s", p.Done, p.Total, p.Item.ControlNumber, p.Item.Status)
				if p.Item.Error != "" {
					line += " (" + p.Item.Error + ")"
				}
				ui.Info(line)
			}
		},
	})
	if err != nil {
		ui.Error(fmt.Sprintf("reindex failed: %v", err))
		return 1
	}

	ui.Info("")
	ui.Info("=== Summary ===")
	ui.Info(fmt.Sprintf("Documents: %d", summary.Total))
	ui.Info(fmt.Sprintf("Succeeded: %d", summary.Succeeded))
	ui.Info(fmt.Sprintf("Skipped: %d", summary.Skipped))
	ui.Info(fmt.Sprintf("Duration: %s", summary.Duration.Round(time.Millisecond)))
	if summary.Cancelled {
		ui.Warn("Reindex cancelled before completion")
	}
	if summary.Failed > 0 {
		ui.Error(fmt.Sprintf("Failed: %d", summary.Failed))
		return 1
	}
	return 0
}
