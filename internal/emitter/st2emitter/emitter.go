// Package st2emitter renders StackStorm action metadata files from an ActionSet.
package st2emitter

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/template"
	"time"

	"github.com/Masterminds/sprig/v3"
	"github.com/mark3labs/netbox2st2/internal/logging"
	"github.com/mark3labs/netbox2st2/internal/netbox"
	genspec "github.com/mark3labs/netbox2st2/internal/spec"
	"github.com/segmentio/ksuid"
	k8syaml "sigs.k8s.io/yaml"
)

const (
	DefaultRunnerType = "local-shell-script"
	DefaultEntryPoint = "run.sh"
	// DefaultBinary is what the wrapper script execs when NETBOX2ST2_BIN is unset.
	DefaultBinary = "netbox2st2"
)

//go:embed templates/action.yaml.tmpl
var defaultActionTemplate string

// Options controls how action metadata is rendered.
type Options struct {
	OutDir       string // required; the pack's actions directory
	TemplatePath string // optional template overriding the built-in one
	RunnerType   string
	EntryPoint   string
	// NoWrapper skips writing the entry point script next to the metadata.
	NoWrapper bool
	DryRun    bool
	// Now and RunID are stamped into every file; zero values mean time.Now
	// and a fresh KSUID.
	Now    func() time.Time
	RunID  string
	Logger logging.Logger
}

// PlannedFile describes a file the emitter intends to write.
type PlannedFile struct {
	RelPath string
	Size    int
	Mode    os.FileMode
}

// Result reports what was (or, on dry-run, would be) written and removed.
type Result struct {
	RunID   string
	Actions int
	Planned []PlannedFile
	Removed []string
}

// ConnectionParameter is an action parameter StackStorm fills from the pack
// config through config_context.
type ConnectionParameter struct {
	Name        string
	Type        string
	Description string
	Default     string
	Secret      bool
}

// ConnectionParameters lets every generated action reach NetBox without a
// config file on the StackStorm host.
var ConnectionParameters = []ConnectionParameter{
	{
		Name:        netbox.ArgHostname,
		Type:        "string",
		Description: "NetBox hostname. Defaults to the pack config.",
		Default:     "{{ config_context.hostname | default('') }}",
	},
	{
		Name:        netbox.ArgAPIToken,
		Type:        "string",
		Description: "NetBox API token. Defaults to the pack config.",
		Default:     "{{ config_context.api_token | default('') }}",
		Secret:      true,
	},
	{
		Name:        netbox.ArgUseHTTPS,
		Type:        "boolean",
		Description: "Use HTTPS to reach NetBox. Defaults to the pack config.",
		Default:     "{{ config_context.use_https | default(false) }}",
	},
	{
		Name:        netbox.ArgSSLVerify,
		Type:        "boolean",
		Description: "Verify the NetBox TLS certificate. Defaults to the pack config.",
		Default:     "{{ config_context.ssl_verify | default(true) }}",
	},
}

type templateData struct {
	GenerationDate         time.Time
	RunID                  string
	Version                string
	ActionName             string
	Description            string
	EndpointURI            string
	Verb                   string
	GetDetailRouteEligible bool
	Parameters             []genspec.Parameter
	ConnectionParameters   []ConnectionParameter
	RunnerType             string
	EntryPoint             string
}

// Emit replaces every *.yaml file in OutDir with one metadata file per action.
func Emit(ctx context.Context, set *genspec.ActionSet, opts Options) (*Result, error) {
	_ = ctx
	if set == nil {
		return nil, fmt.Errorf("st2emitter: nil ActionSet")
	}
	if strings.TrimSpace(opts.OutDir) == "" {
		return nil, fmt.Errorf("st2emitter: OutDir is required")
	}
	log := logging.OrNop(opts.Logger)

	runnerType := strings.TrimSpace(opts.RunnerType)
	if runnerType == "" {
		runnerType = DefaultRunnerType
	}
	entryPoint := strings.TrimSpace(opts.EntryPoint)
	if entryPoint == "" {
		entryPoint = DefaultEntryPoint
	}
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	runID := strings.TrimSpace(opts.RunID)
	if runID == "" {
		runID = ksuid.New().String()
	}

	tmpl, err := loadTemplate(opts.TemplatePath)
	if err != nil {
		return nil, err
	}

	generated := now()
	files := map[string][]byte{}
	modes := map[string]os.FileMode{}
	for _, name := range set.Names() {
		action := set.Actions[name]
		data := templateData{
			GenerationDate:         generated,
			RunID:                  runID,
			Version:                set.Version,
			ActionName:             name,
			Description:            action.Description,
			EndpointURI:            action.EndpointURI,
			Verb:                   string(action.Verb),
			GetDetailRouteEligible: action.GetDetailRouteEligible,
			Parameters:             action.Parameters,
			ConnectionParameters:   ConnectionParameters,
			RunnerType:             runnerType,
			EntryPoint:             entryPoint,
		}
		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, data); err != nil {
			return nil, fmt.Errorf("st2emitter: render %s: %w", name, err)
		}
		if _, err := k8syaml.YAMLToJSON(buf.Bytes()); err != nil {
			return nil, fmt.Errorf("st2emitter: rendered %s is not valid YAML: %w", name, err)
		}
		rel := name + ".yaml"
		files[rel] = buf.Bytes()
		modes[rel] = 0o644
		log.Debug("rendered action", "action", name, "file", rel)
	}
	if !opts.NoWrapper {
		files[entryPoint] = []byte(renderWrapperScript())
		modes[entryPoint] = 0o755
	}

	rels := make([]string, 0, len(files))
	for p := range files {
		rels = append(rels, filepath.ToSlash(p))
	}
	sort.Strings(rels)
	planned := make([]PlannedFile, 0, len(rels))
	for _, rel := range rels {
		planned = append(planned, PlannedFile{RelPath: rel, Size: len(files[rel]), Mode: modes[rel]})
	}

	removed, err := staleMetadata(opts.OutDir)
	if err != nil {
		return nil, err
	}

	res := &Result{RunID: runID, Actions: len(set.Actions), Planned: planned, Removed: removed}
	if opts.DryRun {
		return res, nil
	}

	if err := os.MkdirAll(opts.OutDir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir: %w", err)
	}
	for _, rel := range removed {
		if err := os.Remove(filepath.Join(opts.OutDir, rel)); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("st2emitter: remove %s: %w", rel, err)
		}
	}
	if err := writeFiles(opts.OutDir, files, modes); err != nil {
		return nil, err
	}
	log.Info("wrote actions", "count", res.Actions, "dir", opts.OutDir, "run_id", runID)
	return res, nil
}

func loadTemplate(path string) (*template.Template, error) {
	text := defaultActionTemplate
	name := "action"
	if p := strings.TrimSpace(path); p != "" {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("st2emitter: read template: %w", err)
		}
		text = string(data)
		name = filepath.Base(p)
	}
	tmpl, err := template.New(name).Funcs(sprig.TxtFuncMap()).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("st2emitter: parse template: %w", err)
	}
	return tmpl, nil
}

// staleMetadata lists the *.yaml files currently in dir. Other files are left alone.
func staleMetadata(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("st2emitter: list %s: %w", dir, err)
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".yaml") {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}

func writeFiles(outDir string, files map[string][]byte, modes map[string]os.FileMode) error {
	abs, err := filepath.Abs(outDir)
	if err != nil {
		return fmt.Errorf("resolve out dir: %w", err)
	}
	for rel, content := range files {
		p := filepath.Join(abs, rel)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return fmt.Errorf("mkdir: %w", err)
		}
		// atomic write via temp file + rename
		tmp := p + ".tmp-" + time.Now().Format("20060102150405")
		if err := os.WriteFile(tmp, content, modes[rel]); err != nil {
			return fmt.Errorf("write temp %s: %w", rel, err)
		}
		if err := os.Chmod(tmp, modes[rel]); err != nil {
			_ = os.Remove(tmp)
			return fmt.Errorf("chmod %s: %w", rel, err)
		}
		if err := os.Rename(tmp, p); err != nil {
			_ = os.Remove(tmp)
			return fmt.Errorf("rename %s: %w", rel, err)
		}
	}
	return nil
}

func renderWrapperScript() string {
	return `#!/bin/sh
# Entry point for generated NetBox actions. StackStorm passes parameters as
# --name=value arguments; netbox2st2 run turns them into one API request.
exec "${NETBOX2ST2_BIN:-` + DefaultBinary + `}" run "$@"
`
}
