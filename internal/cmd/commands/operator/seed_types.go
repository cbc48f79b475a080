package operator

import (
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/hashicorp-forge/doccontrol/internal/cmd/base"
	"github.com/hashicorp-forge/doccontrol/pkg/models"
)

type SeedTypesCommand struct {
	*base.Command

	// FS reads the types file; nil uses the OS filesystem.
	FS afero.Fs

	flagConfig    string
	flagTypesFile string
	flagCompanies string
	flagDryRun    bool
}

func (c *SeedTypesCommand) Synopsis() string {
	return "Seed document types and system folders"
}

func (c *SeedTypesCommand) Help() string {
	return `Usage: doccontrol operator seed-types [options]

  This command inserts the document types (the built-in set, or the types
  listed in -types-file) and creates one system folder per type for every
  company in -companies. Existing types and folders are left untouched.

  A types file is a YAML list:

    - code: POL
      name: Policy
      requiresApproval: true
      approverRoles: [supervisor, manager]
      reviewFrequencyMonths: 12` +
		c.Flags().Help()
}

func (c *SeedTypesCommand) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("seed-types", flag.ContinueOnError))

	f.StringVar(&c.flagConfig, "config", "", "(Required) Path to doccontrol config file")
	f.StringVar(&c.flagTypesFile, "types-file", "", "YAML file of document types replacing the built-in set.")
	f.StringVar(&c.flagCompanies, "companies", "", "Comma-separated company IDs to create system folders for.")
	f.BoolVar(&c.flagDryRun, "dry-run", false, "Only print the types that would be seeded.")

	return f
}

// DecodeTypes reads a YAML list of document types. Keys use the JSON field
// names of models.DocumentType.
func DecodeTypes(r io.Reader) ([]models.DocumentType, error) {
	var raw []map[string]any
	if err := yaml.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to parse types: %w", err)
	}

	types := make([]models.DocumentType, 0, len(raw))
	for i, m := range raw {
		var dt models.DocumentType
		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			TagName:          "json",
			Result:           &dt,
			WeaklyTypedInput: true,
			ErrorUnused:      true,
		})
		if err != nil {
			return nil, err
		}
		if err := dec.Decode(m); err != nil {
			return nil, fmt.Errorf("type %d: %w", i+1, err)
		}
		dt.Code = strings.ToUpper(strings.TrimSpace(dt.Code))
		if dt.Code == "" || dt.Name == "" {
			return nil, fmt.Errorf("type %d: code and name are required", i+1)
		}
		types = append(types, dt)
	}
	return types, nil
}

func (c *SeedTypesCommand) Run(args []string) int {
	ui := c.UI

	flags := c.Flags()
	if err := flags.Parse(args); err != nil {
		ui.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}

	types := models.DefaultDocumentTypes()
	if c.flagTypesFile != "" {
		fs := c.FS
		if fs == nil {
			fs = afero.NewOsFs()
		}
		f, err := fs.Open(c.flagTypesFile)
		if err != nil {
			ui.Error(fmt.Sprintf("error opening types file: %v", err))
			return 1
		}
		types, err = DecodeTypes(f)
		f.Close()
		if err != nil {
			ui.Error(err.Error())
			return 1
		}
	}

	if c.flagDryRun {
		ui.Warn("DRY RUN mode enabled - no changes will be made")
		for _, dt := range types {
			ui.Output(fmt.Sprintf("%-5s %-40s approval=%t review=%dmo", dt.Code, dt.Name, dt.RequiresApproval, dt.FrequencyMonths()))
		}
		return 0
	}

	ctx, cancel := c.SignalContext()
	defer cancel()

	srv, err := c.LoadServer(ctx, c.flagConfig)
	if err != nil {
		ui.Error(err.Error())
		return 1
	}
	defer srv.Close()

	n, err := models.SeedDocumentTypes(srv.DB.WithContext(ctx), types)
	if err != nil {
		ui.Error(fmt.Sprintf("error seeding document types: %v", err))
		return 1
	}
	ui.Info(fmt.Sprintf("Document types inserted: %d of %d", n, len(types)))

	for _, company := range strings.Split(c.flagCompanies, ",") {
		company = strings.TrimSpace(company)
		if company == "" {
			continue
		}
		created, err := srv.Folders.SeedSystemFolders(ctx, company, types)
		if err != nil {
			ui.Error(fmt.Sprintf("error seeding folders for %s: %v", company, err))
			return 1
		}
		ui.Info(fmt.Sprintf("System folders created for %s: %d", company, len(created)))
	}
	return 0
}
