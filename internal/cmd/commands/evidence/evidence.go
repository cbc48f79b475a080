package evidence

import (
	"encoding/json"
	"flag"
	"fmt"
	"strings"

	"github.com/hashicorp-forge/doccontrol/internal/cmd/base"
	ev "github.com/hashicorp-forge/doccontrol/pkg/evidence"
)

type Command struct {
	*base.Command

	flagConfig  string
	flagCompany string
	flagElement string
	flagJSON    bool
}

func (c *Command) Synopsis() string {
	return "Report audit-element evidence coverage"
}

func (c *Command) Help() string {
	return `Usage: doccontrol evidence-report -company=<id> [options]

  This command reports which documents evidence each audit element and which
  required document types are missing. With -element only that element is
  reported.` + c.Flags().Help()
}

func (c *Command) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("evidence-report", flag.ContinueOnError))

	f.StringVar(&c.flagConfig, "config", "", "(Required) Path to doccontrol config file")
	f.StringVar(&c.flagCompany, "company", "", "(Required) Company to report on.")
	f.StringVar(&c.flagElement, "element", "", "Report a single audit element, e.g. 7.")
	f.BoolVar(&c.flagJSON, "json", false, "Print the report as JSON.")

	return f
}

func (c *Command) Run(args []string) int {
	ui := c.UI

	flags := c.Flags()
	if err := flags.Parse(args); err != nil {
		ui.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}
	if c.flagCompany == "" {
		ui.Error("company flag is required")
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

	var (
		report  any
		rows    []ev.ElementReport
		summary string
	)
	if c.flagElement != "" {
		r, err := srv.Evidence.GenerateElementEvidenceReport(ctx, c.flagCompany, strings.ToUpper(c.flagElement))
		if err != nil {
			ui.Error(fmt.Sprintf("error generating report: %v", err))
			return 1
		}
		report, rows = r, []ev.ElementReport{*r}
	} else {
		s, err := srv.Evidence.CompanyCoverage(ctx, c.flagCompany)
		if err != nil {
			ui.Error(fmt.Sprintf("error generating report: %v", err))
			return 1
		}
		report, rows = s, s.Elements
		summary = fmt.Sprintf("complete: %d, partial: %d, missing: %d, average coverage: %.2f%%",
			s.Complete, s.Partial, s.Missing, s.AverageCoverage)
	}

	if c.flagJSON {
		out, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			ui.Error(fmt.Sprintf("error encoding report: %v", err))
			return 1
		}
		ui.Output(string(out))
		return 0
	}

	for _, r := range rows {
		ui.Output(fmt.Sprintf("%-4s %-8s %6.2f%%  %s", r.Element, r.Status, r.Coverage, r.ElementName))
		if len(r.MissingTypes) > 0 {
			ui.Output("       missing: " + strings.Join(r.MissingTypes, ", "))
		}
		for _, d := range r.Documents {
			mark := "ok"
			if !d.Valid {
				mark = "invalid"
			}
			ui.Output(fmt.Sprintf("       %-16s %-7s %s", d.ControlNumber, mark, d.Title))
		}
	}
	if summary != "" {
		ui.Info(summary)
	}
	return 0
}
