// Package config resolves the tool configuration: compiled defaults,
// an optional .env file, an optional YAML file, then environment
// overrides, in that order. Commands receive an explicit Config; there
// are no ambient globals.
package config

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/openagreements/docprep/core/errors"
	"github.com/openagreements/docprep/core/prepare"
	"github.com/openagreements/docprep/core/style"
)

// Environment variable names.
const (
	EnvConfig       = "DOCPREP_CONFIG"
	EnvSourcesDir   = "DOCPREP_SOURCES_DIR"
	EnvTemplatesDir = "DOCPREP_TEMPLATES_DIR"
	EnvWorkspace    = "DOCPREP_WORKSPACE"
	EnvLicensePath  = "DOCPREP_LICENSE_PATH"
	EnvLicenseAlt   = "OPENAGREEMENTS_LICENSE_PATH"
	EnvLogLevel     = "DOCPREP_LOG_LEVEL"
	EnvLogFormat    = "DOCPREP_LOG_FORMAT"
)

// DefaultConfigFile is consulted when neither --config nor
// DOCPREP_CONFIG names a file.
const DefaultConfigFile = "docprep.yaml"

// Repo names one upstream template source repository.
type Repo struct {
	Name   string   `yaml:"name"`
	URL    string   `yaml:"url"`
	Branch string   `yaml:"branch"`
	Files  []string `yaml:"files"`
}

// Job names one prepare job: which cover page becomes which template.
type Job struct {
	Name   string `yaml:"name"`
	Kind   string `yaml:"kind"`
	Source string `yaml:"source"`
	Dest   string `yaml:"dest"`
}

// Fetch configures source acquisition.
type Fetch struct {
	Repos []Repo `yaml:"repos"`
}

// Prepare configures the template-generation pass. The context maps
// and agreement-name replacements default to the standard Bonterms
// placeholders when unset.
type Prepare struct {
	Jobs          []Job                 `yaml:"jobs"`
	NDAContext    prepare.ContextMap    `yaml:"nda_context,omitempty"`
	PSAContext    prepare.ContextMap    `yaml:"psa_context,omitempty"`
	AgreementName []prepare.Replacement `yaml:"agreement_name,omitempty"`
}

// Style configures the styling pass.
type Style struct {
	Targets           []string     `yaml:"targets"`
	LicenseCandidates []string     `yaml:"license_candidates"`
	Rules             []style.Rule `yaml:"rules,omitempty"`
}

// Log configures the structured logger.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config is the full resolved configuration.
type Config struct {
	SourcesDir   string  `yaml:"sources_dir"`
	TemplatesDir string  `yaml:"templates_dir"`
	Workspace    string  `yaml:"workspace"`
	ManifestPath string  `yaml:"manifest"`
	Log          Log     `yaml:"log"`
	Fetch        Fetch   `yaml:"fetch"`
	Prepare      Prepare `yaml:"prepare"`
	Style        Style   `yaml:"style"`
}

// Default returns the compiled defaults, reproducing the standard
// Bonterms and OpenAgreements layout.
func Default() *Config {
	return &Config{
		SourcesDir:   "sources",
		TemplatesDir: "templates",
		Workspace:    ".docprep",
		ManifestPath: filepath.Join("templates", "provenance.json"),
		Log:          Log{Level: "info", Format: "text"},
		Fetch: Fetch{Repos: []Repo{
			{
				Name:   "bonterms-mutual-nda",
				URL:    "https://github.com/Bonterms/Mutual-NDA.git",
				Branch: "main",
				Files:  []string{"nda-cover-page.docx"},
			},
			{
				Name:   "bonterms-professional-services-agreement",
				URL:    "https://github.com/Bonterms/Professional-Services-Agreement.git",
				Branch: "main",
				Files:  []string{"psa-cover-page.docx"},
			},
		}},
		Prepare: Prepare{Jobs: []Job{
			{
				Name:   "bonterms-mutual-nda",
				Kind:   "nda",
				Source: filepath.Join("sources", "nda-cover-page.docx"),
				Dest:   filepath.Join("templates", "bonterms-mutual-nda", "template.docx"),
			},
			{
				Name:   "bonterms-professional-services-agreement",
				Kind:   "psa",
				Source: filepath.Join("sources", "psa-cover-page.docx"),
				Dest:   filepath.Join("templates", "bonterms-professional-services-agreement", "template.docx"),
			},
		}},
		Style: Style{
			Targets: []string{
				filepath.Join("templates", "openagreements-employment-offer-letter", "template.docx"),
				filepath.Join("templates", "openagreements-employee-ip-inventions-assignment", "template.docx"),
				filepath.Join("templates", "openagreements-employment-confidentiality-acknowledgement", "template.docx"),
			},
			LicenseCandidates: []string{filepath.Join("licenses", "docprep-license.xml")},
		},
	}
}

// Load resolves the configuration. path is the --config value; when
// empty, DOCPREP_CONFIG and then docprep.yaml are consulted. A named
// file that does not exist is an error; the default file is optional.
func Load(path string) (*Config, error) {
	cfg := Default()

	// .env values become visible to both $VAR expansion and the
	// environment overrides below.
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, errors.NewIO("load .env", ".env", err)
		}
	}

	explicit := path != ""
	if path == "" {
		path = os.Getenv(EnvConfig)
		explicit = path != ""
	}
	if path == "" {
		path = DefaultConfigFile
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, &errors.ParseError{Format: "YAML", Path: path, Message: err.Error(), Err: err}
		}
	case os.IsNotExist(err) && !explicit:
		// Defaults only.
	default:
		return nil, errors.NewIO("read config", path, err)
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvSourcesDir); v != "" {
		cfg.SourcesDir = v
	}
	if v := os.Getenv(EnvTemplatesDir); v != "" {
		cfg.TemplatesDir = v
	}
	if v := os.Getenv(EnvWorkspace); v != "" {
		cfg.Workspace = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv(EnvLogFormat); v != "" {
		cfg.Log.Format = v
	}
}

// Validate checks the parts of the configuration that commands cannot
// recover from at runtime.
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Prepare.Jobs))
	for _, job := range c.Prepare.Jobs {
		if job.Name == "" {
			return errors.NewValidation("prepare.jobs.name", "job name must not be empty")
		}
		if seen[job.Name] {
			return errors.NewValidation("prepare.jobs.name", "duplicate job name "+job.Name)
		}
		seen[job.Name] = true
		if job.Kind != "nda" && job.Kind != "psa" {
			return errors.NewValidation("prepare.jobs.kind", "job "+job.Name+": kind must be nda or psa, got "+job.Kind)
		}
		if job.Source == "" || job.Dest == "" {
			return errors.NewValidation("prepare.jobs", "job "+job.Name+": source and dest are required")
		}
	}
	for _, repo := range c.Fetch.Repos {
		if repo.Name == "" || repo.URL == "" {
			return errors.NewValidation("fetch.repos", "repo name and url are required")
		}
	}
	if err := style.CompileRules(c.Style.Rules); err != nil {
		return err
	}
	return nil
}

// LicenseCandidates returns the ordered license file candidates: the
// primary and secondary environment variables, then the configured
// fallbacks.
func (c *Config) LicenseCandidates() []string {
	var out []string
	if v := os.Getenv(EnvLicensePath); v != "" {
		out = append(out, v)
	}
	if v := os.Getenv(EnvLicenseAlt); v != "" {
		out = append(out, v)
	}
	return append(out, c.Style.LicenseCandidates...)
}

// PrepareOptions returns the configured context-map overrides; nil
// maps fall back to the standard Bonterms placeholders.
func (c *Config) PrepareOptions() *prepare.Options {
	return &prepare.Options{
		NDAContext:               c.Prepare.NDAContext,
		PSAContext:               c.Prepare.PSAContext,
		AgreementNameReplacement: c.Prepare.AgreementName,
	}
}

// StyleRules returns the configured rule overrides, or the defaults.
func (c *Config) StyleRules() []style.Rule {
	if len(c.Style.Rules) > 0 {
		return c.Style.Rules
	}
	return style.DefaultRules()
}

// Job returns the named prepare job.
func (c *Config) Job(name string) (Job, error) {
	for _, job := range c.Prepare.Jobs {
		if job.Name == name {
			return job, nil
		}
	}
	return Job{}, errors.NewNotFound("prepare job", name)
}

// exampleConfig is written by `config init`.
const exampleConfig = `# docprep configuration.
#
# Values support $VAR expansion from the environment (and from an
# optional .env file in the working directory). Every key is optional;
# omitted keys keep their defaults.

sources_dir: sources
templates_dir: templates
workspace: .docprep
manifest: templates/provenance.json

log:
  level: info    # debug, info, warn, error
  format: text   # text or json

fetch:
  repos:
    - name: bonterms-mutual-nda
      url: https://github.com/Bonterms/Mutual-NDA.git
      branch: main
      files: [nda-cover-page.docx]
    - name: bonterms-professional-services-agreement
      url: https://github.com/Bonterms/Professional-Services-Agreement.git
      branch: main
      files: [psa-cover-page.docx]

prepare:
  jobs:
    - name: bonterms-mutual-nda
      kind: nda
      source: sources/nda-cover-page.docx
      dest: templates/bonterms-mutual-nda/template.docx
    - name: bonterms-professional-services-agreement
      kind: psa
      source: sources/psa-cover-page.docx
      dest: templates/bonterms-professional-services-agreement/template.docx

style:
  targets:
    - templates/openagreements-employment-offer-letter/template.docx
    - templates/openagreements-employee-ip-inventions-assignment/template.docx
    - templates/openagreements-employment-confidentiality-acknowledgement/template.docx
  license_candidates:
    - licenses/docprep-license.xml
  # rules: uncomment to override the paragraph spacing scheme.
  # rules:
  #   - name: section heading
  #     match: {equals: [Standard Terms, Signatures]}
  #     before_pt: 22
  #     after_pt: 14
`

// WriteExample writes the commented example configuration. It refuses
// to overwrite an existing file.
func WriteExample(path string) error {
	if path == "" {
		path = DefaultConfigFile
	}
	if _, err := os.Stat(path); err == nil {
		return errors.NewValidation("path", path+" already exists")
	}
	if err := os.WriteFile(path, []byte(exampleConfig), 0644); err != nil {
		return errors.NewIO("write config", path, err)
	}
	return nil
}
