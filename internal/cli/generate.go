package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mark3labs/netbox2st2/internal/emitter/st2emitter"
	"github.com/mark3labs/netbox2st2/internal/logging"
	genspec "github.com/mark3labs/netbox2st2/internal/spec"
	"github.com/mark3labs/netbox2st2/internal/telemetry"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const (
	defaultSpecPort = 8000
	defaultOutDir   = "actions"
)

// GenerateConfig captures all inputs that influence the generate command after
// merging defaults, config file values, and CLI overrides.
type GenerateConfig struct {
	Host        string
	HTTPS       bool
	File        bool
	Port        int
	Out         string
	Template    string
	SaveSpec    string
	IncludeTags []string
	ExcludeTags []string
	Methods     []string
	Paths       []string
	RunnerType  string
	EntryPoint  string
	NoWrapper   bool
	DryRun      bool
	Verbose     bool
	ConfigPath  string
	Pack        PackConfig
}

func defaultGenerateConfig() GenerateConfig {
	return GenerateConfig{Port: defaultSpecPort, Out: defaultOutDir, Pack: defaultPackConfig()}
}

var generateRunner = runGenerate

func newGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate [host]",
		Short: "Generate StackStorm action metadata from NetBox's API spec",
		Long: "Generate one StackStorm action metadata file per NetBox API endpoint. " +
			"The spec is downloaded from <host>:<port>/api/swagger.json, or read from disk with --file. " +
			"Every existing *.yaml file in the output directory is replaced.",
		Example: strings.TrimSpace(`  netbox2st2 generate netbox.example.com --port 443 --https
  netbox2st2 generate ./swagger.json --file --out ./actions
  netbox2st2 --config netbox.yaml generate --dry-run`),
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveGenerateConfig(cmd, args)
			if err != nil {
				return err
			}
			return generateRunner(cmd.Context(), cfg)
		},
	}

	flags := cmd.Flags()
	flags.Bool("https", false, "Use HTTPS (with the default HTTPS port, also pass --port 443)")
	flags.Bool("file", false, "Read the spec from the path given as host instead of downloading it")
	flags.Int("port", defaultSpecPort, "Port NetBox is run on")
	flags.String("out", defaultOutDir, "Directory receiving the action metadata files")
	flags.String("template", "", "Action metadata template overriding the built-in one")
	flags.String("save-spec", "", "Save a copy of the downloaded spec to this path")
	flags.StringSlice("include-tags", nil, "Only include endpoints with these tags")
	flags.StringSlice("exclude-tags", nil, "Exclude endpoints with these tags")
	flags.StringSlice("methods", nil, "Only include these HTTP methods (get,post,put,patch,delete)")
	flags.StringSlice("paths", nil, "Only include paths matching these regular expressions")
	flags.String("runner-type", st2emitter.DefaultRunnerType, "StackStorm runner_type of the generated actions")
	flags.String("entry-point", st2emitter.DefaultEntryPoint, "entry_point of the generated actions")
	flags.Bool("no-wrapper", false, "Do not write the entry point script")
	flags.Bool("dry-run", false, "Preview planned outputs without writing files")

	return cmd
}

func resolveGenerateConfig(cmd *cobra.Command, args []string) (*GenerateConfig, error) {
	cfg := defaultGenerateConfig()

	configPath, err := resolveConfigPath(cmd)
	if err != nil {
		return nil, err
	}
	if configPath != "" {
		cfg.ConfigPath = configPath
		if err := applyGenerateConfigFromFile(&cfg, configPath); err != nil {
			return nil, err
		}
	}

	if len(args) == 1 {
		cfg.Host = strings.TrimSpace(args[0])
	}
	if err := applyGenerateFlagOverrides(cmd.Flags(), &cfg); err != nil {
		return nil, err
	}

	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyGenerateFlagOverrides(flags *pflag.FlagSet, cfg *GenerateConfig) error {
	stringFlags := map[string]*string{
		"out":         &cfg.Out,
		"template":    &cfg.Template,
		"save-spec":   &cfg.SaveSpec,
		"runner-type": &cfg.RunnerType,
		"entry-point": &cfg.EntryPoint,
	}
	for name, dst := range stringFlags {
		if !flags.Changed(name) {
			continue
		}
		value, err := flags.GetString(name)
		if err != nil {
			return err
		}
		*dst = strings.TrimSpace(value)
	}

	boolFlags := map[string]*bool{
		"https":      &cfg.HTTPS,
		"file":       &cfg.File,
		"no-wrapper": &cfg.NoWrapper,
		"dry-run":    &cfg.DryRun,
		"verbose":    &cfg.Verbose,
	}
	for name, dst := range boolFlags {
		if !flags.Changed(name) {
			continue
		}
		value, err := flags.GetBool(name)
		if err != nil {
			return err
		}
		*dst = value
	}

	sliceFlags := map[string]*[]string{
		"include-tags": &cfg.IncludeTags,
		"exclude-tags": &cfg.ExcludeTags,
		"methods":      &cfg.Methods,
		"paths":        &cfg.Paths,
	}
	for name, dst := range sliceFlags {
		if !flags.Changed(name) {
			continue
		}
		value, err := flags.GetStringSlice(name)
		if err != nil {
			return err
		}
		*dst = value
	}

	if flags.Changed("port") {
		value, err := flags.GetInt("port")
		if err != nil {
			return err
		}
		cfg.Port = value
	}

	return nil
}

func (c *GenerateConfig) normalize() {
	c.Host = strings.TrimSpace(c.Host)
	if c.Host == "" && !c.File {
		c.Host = c.Pack.Hostname
	}
	c.Out = strings.TrimSpace(c.Out)
	if c.Out == "" {
		c.Out = defaultOutDir
	}
	c.Template = strings.TrimSpace(c.Template)
	c.SaveSpec = strings.TrimSpace(c.SaveSpec)
	c.RunnerType = strings.TrimSpace(c.RunnerType)
	c.EntryPoint = strings.TrimSpace(c.EntryPoint)
	c.IncludeTags = sanitizeTags(c.IncludeTags)
	c.ExcludeTags = sanitizeTags(c.ExcludeTags)
	c.Paths = sanitizeTags(c.Paths)
	methods := sanitizeTags(c.Methods)
	for i, m := range methods {
		methods[i] = strings.ToLower(m)
	}
	c.Methods = methods
}

func (c *GenerateConfig) validate() error {
	if c.Host == "" {
		return newUsageError("generate: a NetBox host (or spec path with --file) is required")
	}
	if !c.File && (c.Port < 1 || c.Port > 65535) {
		return newUsageError(fmt.Sprintf("generate: --port %d is out of range", c.Port))
	}
	for _, m := range c.Methods {
		if _, ok := genspec.ParseMethod(m); !ok {
			return newUsageError(fmt.Sprintf("generate: unsupported method %q (allowed: get, post, put, patch, delete)", m))
		}
	}
	if c.File && c.SaveSpec != "" {
		return newUsageError("generate: --save-spec only applies when downloading the spec")
	}

	overlap := intersect(c.IncludeTags, c.ExcludeTags)
	if len(overlap) > 0 {
		return newUsageError(fmt.Sprintf("generate: include/exclude tags overlap: %s", strings.Join(overlap, ", ")))
	}

	return nil
}

// specInput is the path or URL handed to the loader.
func (c *GenerateConfig) specInput() string {
	if c.File {
		return c.Host
	}
	return genspec.SpecURL(c.Host, c.HTTPS, c.Port)
}

func runGenerate(ctx context.Context, cfg *GenerateConfig) error {
	log := logging.New(os.Stderr, cfg.Verbose)
	return withTelemetry(ctx, cfg.Pack, "netbox2st2.generate", log, func(ctx context.Context, reporter *telemetry.Reporter) error {
		return generate(ctx, cfg, log, reporter)
	})
}

func generate(ctx context.Context, cfg *GenerateConfig, log logging.Logger, crumbs breadcrumbs) error {
	// 1) Load the spec (file or http/https URL), converting OpenAPI 3 to Swagger 2
	if !cfg.File {
		fmt.Fprintln(os.Stdout, "Getting API spec from NetBox instance...")
	}
	loadOpts := []genspec.Option{
		genspec.WithLogger(log),
		genspec.WithInsecureSkipVerify(!cfg.Pack.SSLVerify),
		genspec.WithSavePath(cfg.SaveSpec),
	}
	if cfg.Pack.Timeout > 0 {
		loadOpts = append(loadOpts, genspec.WithHTTPTimeout(cfg.Pack.Timeout))
	}
	doc, err := genspec.Load(ctx, cfg.specInput(), loadOpts...)
	if err != nil {
		var se *genspec.SpecError
		if errors.As(err, &se) {
			msg := fmt.Sprintf("Failed to get the API spec! %s", se.Message)
			if se.Location != "" {
				msg = fmt.Sprintf("%s\nLocation: %s", msg, se.Location)
			}
			return newUsageError(msg)
		}
		return err
	}
	crumbs.Breadcrumb("generate", "loaded API spec", map[string]any{
		"input":   cfg.specInput(),
		"version": doc.Info.Version,
		"paths":   len(doc.Paths),
	})

	// 2) Classify endpoints into actions
	methods := make([]genspec.HttpMethod, 0, len(cfg.Methods))
	for _, m := range cfg.Methods {
		verb, _ := genspec.ParseMethod(m)
		methods = append(methods, verb)
	}
	set, err := genspec.BuildActionSet(
		ctx,
		doc,
		genspec.WithIncludeTags(cfg.IncludeTags),
		genspec.WithExcludeTags(cfg.ExcludeTags),
		genspec.WithMethods(methods),
		genspec.WithPathPatterns(cfg.Paths),
		genspec.WithBuildLogger(log),
	)
	if err != nil {
		return newUsageError(fmt.Sprintf("generate: %v", err))
	}
	crumbs.Breadcrumb("generate", "classified endpoints", map[string]any{
		"actions": len(set.Actions),
	})

	absOut := cfg.Out
	if ap, err := filepath.Abs(cfg.Out); err == nil {
		absOut = ap
	}

	// 3) Render one metadata file per action
	res, err := st2emitter.Emit(ctx, set, st2emitter.Options{
		OutDir:       cfg.Out,
		TemplatePath: cfg.Template,
		RunnerType:   cfg.RunnerType,
		EntryPoint:   cfg.EntryPoint,
		NoWrapper:    cfg.NoWrapper,
		DryRun:       cfg.DryRun,
		Logger:       log,
	})
	if err != nil {
		return wrapOutputError(err, absOut)
	}

	if cfg.DryRun {
		paths := make([]string, 0, len(res.Planned))
		for _, p := range res.Planned {
			paths = append(paths, p.RelPath)
		}
		printPlan(absOut, paths, res.Removed)
		return nil
	}
	fmt.Fprintf(os.Stdout, "Wrote %d actions to file.\n", res.Actions)
	fmt.Fprintln(os.Stdout, "Done!")
	return nil
}

func printPlan(outDir string, relPaths, removed []string) {
	fmt.Fprintf(os.Stdout, "Planned writes to %s (%d files):\n", outDir, len(relPaths))
	for _, p := range relPaths {
		fmt.Fprintf(os.Stdout, "- %s\n", p)
	}
	if len(removed) > 0 {
		fmt.Fprintf(os.Stdout, "Planned removals (%d files):\n", len(removed))
		for _, p := range removed {
			fmt.Fprintf(os.Stdout, "- %s\n", p)
		}
	}
}

func wrapOutputError(err error, outDir string) error {
	msg := err.Error()
	lower := strings.ToLower(msg)
	if strings.Contains(lower, "permission") || strings.Contains(lower, "read-only") || strings.Contains(lower, "mkdir") || strings.Contains(lower, "rename") {
		return newUsageError(fmt.Sprintf("output error for %s: %s\nHint: choose a different --out.", outDir, msg))
	}
	if strings.Contains(lower, "template") {
		return newUsageError(msg)
	}
	return err
}

func sanitizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	result := make([]string, 0, len(tags))
	for _, tag := range tags {
		trimmed := strings.TrimSpace(tag)
		if trimmed == "" {
			continue
		}
		if _, exists := seen[trimmed]; exists {
			continue
		}
		seen[trimmed] = struct{}{}
		result = append(result, trimmed)
	}
	if len(result) == 0 {
		return nil
	}
	return result
}

func intersect(a, b []string) []string {
	if len(a) == 0 || len(b) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(a))
	for _, item := range a {
		set[item] = struct{}{}
	}
	var result []string
	for _, item := range b {
		if _, ok := set[item]; ok {
			result = append(result, item)
		}
	}
	return result
}

func applyGenerateConfigFromFile(cfg *GenerateConfig, path string) error {
	raw, err := readConfigFile(path)
	if err != nil {
		return err
	}

	for key, value := range raw {
		handled, err := cfg.Pack.apply(key, value)
		if err != nil {
			return err
		}
		if handled {
			continue
		}
		switch normalizeKey(key) {
		case "host":
			cfg.Host, err = valueAsString(value)
		case "https":
			cfg.HTTPS, err = valueAsBool(value)
		case "file":
			cfg.File, err = valueAsBool(value)
		case "port":
			cfg.Port, err = valueAsInt(value)
		case "out":
			cfg.Out, err = valueAsString(value)
		case "template":
			cfg.Template, err = valueAsString(value)
		case "savespec":
			cfg.SaveSpec, err = valueAsString(value)
		case "includetags":
			cfg.IncludeTags, err = valueAsStringSlice(value)
		case "excludetags":
			cfg.ExcludeTags, err = valueAsStringSlice(value)
		case "methods":
			cfg.Methods, err = valueAsStringSlice(value)
		case "paths":
			cfg.Paths, err = valueAsStringSlice(value)
		case "runnertype":
			cfg.RunnerType, err = valueAsString(value)
		case "entrypoint":
			cfg.EntryPoint, err = valueAsString(value)
		case "nowrapper":
			cfg.NoWrapper, err = valueAsBool(value)
		case "dryrun":
			cfg.DryRun, err = valueAsBool(value)
		case "verbose":
			cfg.Verbose, err = valueAsBool(value)
		default:
			return newUsageError(fmt.Sprintf("config file %q: unknown field %q", path, key))
		}
		if err != nil {
			return newUsageError(fmt.Sprintf("config field %q: %v", key, err))
		}
	}

	return nil
}
