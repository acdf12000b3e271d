// Command docprep prepares official cover-page DOCX files as
// open-agreements templates and restyles generated employment
// templates.
package main

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/alecthomas/kong"

	"github.com/openagreements/docprep/core/docx"
	"github.com/openagreements/docprep/core/manifest"
	"github.com/openagreements/docprep/core/ooxml"
	"github.com/openagreements/docprep/core/prepare"
	"github.com/openagreements/docprep/core/style"
	"github.com/openagreements/docprep/internal/backup"
	"github.com/openagreements/docprep/internal/config"
	"github.com/openagreements/docprep/internal/fetch"
	"github.com/openagreements/docprep/internal/logging"
)

const version = "0.2.0"

// CLI defines the command-line interface for docprep.
var CLI struct {
	// Global flags
	Config    string `name:"config" help:"Path to docprep.yaml" env:"DOCPREP_CONFIG" type:"path"`
	LogLevel  string `name:"log-level" help:"Log level (debug, info, warn, error)" env:"DOCPREP_LOG_LEVEL"`
	LogFormat string `name:"log-format" help:"Log format (text, json)" env:"DOCPREP_LOG_FORMAT"`

	Fetch     FetchCmd    `cmd:"" help:"Clone upstream repositories and install cover pages"`
	Prepare   PrepareCmd  `cmd:"" help:"Convert cover pages into templates"`
	Style     StyleCmd    `cmd:"" help:"Restyle generated employment templates in place"`
	Verify    VerifyCmd   `cmd:"" help:"Check template files against the provenance manifest"`
	Inspect   InspectCmd  `cmd:"" help:"List template tags found in a DOCX package"`
	ConfigCmd ConfigGroup `cmd:"" name:"config" help:"Configuration file management"`
	Version   VersionCmd  `cmd:"" help:"Print version information"`
}

// loadConfig resolves the configuration and initializes logging.
// Command-line flags win over both the config file and the
// environment.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(CLI.Config)
	if err != nil {
		return nil, err
	}
	if CLI.LogLevel != "" {
		cfg.Log.Level = CLI.LogLevel
	}
	if CLI.LogFormat != "" {
		cfg.Log.Format = CLI.LogFormat
	}
	logging.InitLogger(parseLevel(cfg.Log.Level), parseFormat(cfg.Log.Format))
	return cfg, nil
}

func parseLevel(s string) logging.Level {
	switch strings.ToLower(s) {
	case "debug":
		return logging.LevelDebug
	case "warn", "warning":
		return logging.LevelWarn
	case "error":
		return logging.LevelError
	default:
		return logging.LevelInfo
	}
}

func parseFormat(s string) logging.Format {
	if strings.EqualFold(s, "json") {
		return logging.FormatJSON
	}
	return logging.FormatText
}

func toolInfo() manifest.ToolInfo {
	return manifest.ToolInfo{Name: "docprep", Version: version}
}

// FetchCmd clones the configured source repositories and installs the
// named cover pages into the sources directory.
type FetchCmd struct{}

func (c *FetchCmd) Run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := logging.WithRunID(context.Background(), manifest.NewRunID())
	client := fetch.NewClient(filepath.Join(cfg.Workspace, "clones"))
	results, err := client.FetchAll(ctx, cfg.Fetch.Repos, cfg.SourcesDir)
	if err != nil {
		return err
	}

	for _, res := range results {
		for _, installed := range res.Installed {
			fmt.Printf("fetched %s -> %s\n", res.Repo, installed)
		}
	}
	return nil
}

// PrepareCmd runs the template-generation pass.
type PrepareCmd struct {
	Job string `help:"Run only the named job" optional:""`
}

func (c *PrepareCmd) Run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	jobs := cfg.Prepare.Jobs
	if c.Job != "" {
		job, err := cfg.Job(c.Job)
		if err != nil {
			return err
		}
		jobs = []config.Job{job}
	}

	runID := manifest.NewRunID()
	ctx := logging.WithRunID(context.Background(), runID)
	started := time.Now()

	m, err := manifest.Load(cfg.ManifestPath, toolInfo())
	if err != nil {
		return err
	}

	opts := cfg.PrepareOptions()
	var touched []string
	for _, job := range jobs {
		pj := prepare.Job{
			Name:   job.Name,
			Kind:   prepare.Kind(job.Kind),
			Source: job.Source,
			Dest:   job.Dest,
		}
		res, err := prepare.Run(ctx, pj, opts)
		if err != nil {
			return err
		}

		sourceHashes, err := manifest.HashFile(job.Source)
		if err != nil {
			return err
		}
		outputHashes, err := manifest.HashFile(job.Dest)
		if err != nil {
			return err
		}
		m.UpsertArtifact(manifest.Artifact{
			Name:         job.Name,
			Kind:         manifest.KindPrepared,
			SourcePath:   job.Source,
			SourceHashes: sourceHashes,
			OutputPath:   job.Dest,
			OutputHashes: outputHashes,
			Replacements: res.Replacements,
			TagsInserted: res.TagsInserted,
		})
		touched = append(touched, job.Name)

		fmt.Printf("prepared %s -> %s (%d replacements, %d tags)\n",
			job.Source, job.Dest, res.Replacements, res.TagsInserted)
	}

	m.RecordRun(runID, "prepare", started, time.Now(), touched)
	return m.Save(cfg.ManifestPath)
}

// StyleCmd runs the styling pass over the configured targets.
type StyleCmd struct {
	Target     []string `help:"Style only the named target paths" optional:""`
	SkipBackup bool     `help:"Skip the pre-edit backup bundle"`
}

func (c *StyleCmd) Run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	targets := cfg.Style.Targets
	if len(c.Target) > 0 {
		targets = c.Target
	}

	licensePath, licensed := style.ResolveLicense(cfg.LicenseCandidates())
	if licensed {
		logging.Info("license_applied", "path", licensePath)
	} else {
		logging.EvaluationMode("no license file found")
	}

	if !c.SkipBackup {
		bundle, err := backup.Create(cfg.Workspace, targets)
		if err != nil {
			return err
		}
		fmt.Printf("backup written to %s\n", bundle)
	}

	rules := cfg.StyleRules()
	if err := style.CompileRules(rules); err != nil {
		return err
	}

	runID := manifest.NewRunID()
	ctx := logging.WithRunID(context.Background(), runID)
	started := time.Now()

	m, err := manifest.Load(cfg.ManifestPath, toolInfo())
	if err != nil {
		return err
	}

	var touched []string
	for _, target := range targets {
		res, err := style.Run(ctx, target, licensed, rules)
		if err != nil {
			return err
		}

		hashes, err := manifest.HashFile(target)
		if err != nil {
			return err
		}
		name := filepath.Base(filepath.Dir(target))
		m.UpsertArtifact(manifest.Artifact{
			Name:         name,
			Kind:         manifest.KindStyled,
			OutputPath:   target,
			OutputHashes: hashes,
		})
		touched = append(touched, name)

		fmt.Printf("styled %s (%d tables, %d paragraphs, %d spacers removed)\n",
			target, res.Tables, res.Paragraphs, res.SpacersRemoved)
	}

	m.RecordRun(runID, "style", started, time.Now(), touched)
	return m.Save(cfg.ManifestPath)
}

// VerifyCmd checks every manifest artifact against the files on disk.
type VerifyCmd struct{}

func (c *VerifyCmd) Run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	m, err := manifest.Load(cfg.ManifestPath, toolInfo())
	if err != nil {
		return err
	}

	report, err := m.VerifyOutputs(".")
	if err != nil {
		return err
	}

	sort.Strings(report.Matched)
	for _, name := range report.Matched {
		fmt.Printf("ok       %s\n", name)
	}
	sort.Strings(report.Mismatched)
	for _, name := range report.Mismatched {
		fmt.Printf("mismatch %s\n", name)
	}
	sort.Strings(report.Missing)
	for _, name := range report.Missing {
		fmt.Printf("missing  %s\n", name)
	}

	if !report.OK() {
		return fmt.Errorf("verification failed: %d mismatched, %d missing",
			len(report.Mismatched), len(report.Missing))
	}
	fmt.Printf("verified %d artifacts\n", len(report.Matched))
	return nil
}

// tagPattern matches snake_case template tags like {customer_name}.
var tagPattern = regexp.MustCompile(`\{[a-z][a-z0-9_]*\}`)

// InspectCmd lists the template tags present in one DOCX package.
type InspectCmd struct {
	Path string `arg:"" help:"DOCX file to inspect" type:"existingfile"`
}

func (c *InspectCmd) Run() error {
	if _, err := loadConfig(); err != nil {
		return err
	}

	pkg, err := docx.Open(c.Path)
	if err != nil {
		return err
	}
	data, err := pkg.Part(docx.DocumentPart)
	if err != nil {
		return err
	}
	doc, err := ooxml.Parse(data)
	if err != nil {
		return err
	}

	counts := make(map[string]int)
	var order []string
	for _, p := range ooxml.Descendants(doc.Body(), "p") {
		text := ooxml.ParagraphText(p)
		tags := tagPattern.FindAllString(text, -1)
		if len(tags) == 0 {
			continue
		}
		for _, tag := range tags {
			if counts[tag] == 0 {
				order = append(order, tag)
			}
			counts[tag]++
		}
		fmt.Printf("%s\t%s\n", strings.Join(tags, " "), strings.TrimSpace(text))
	}

	if len(order) == 0 {
		fmt.Println("no template tags found")
		return nil
	}
	fmt.Println()
	for _, tag := range order {
		fmt.Printf("%s\t%d\n", tag, counts[tag])
	}
	return nil
}

// ConfigGroup contains configuration file operations.
type ConfigGroup struct {
	Init ConfigInitCmd `cmd:"" help:"Write an example docprep.yaml"`
}

// ConfigInitCmd writes the commented example configuration.
type ConfigInitCmd struct{}

func (c *ConfigInitCmd) Run() error {
	path := CLI.Config
	if path == "" {
		path = config.DefaultConfigFile
	}
	if err := config.WriteExample(path); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", path)
	return nil
}

// VersionCmd prints version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Printf("docprep %s\n", version)
	return nil
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("docprep"),
		kong.Description("Legal DOCX template preparation and styling"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)
	err := ctx.Run(ctx)
	ctx.FatalIfErrorf(err)
}
