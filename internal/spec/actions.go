package spec

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi2"
	"github.com/getkin/kin-openapi/openapi3"
	"github.com/mark3labs/netbox2st2/internal/logging"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// IDPlaceholder replaces {id} in endpoint URIs. StackStorm renders it from
// the action's id parameter before the runner sees it.
const IDPlaceholder = "{{ id }}"

const detailRouteDescription = "If provided, will convert to using the detail route. " +
	"I.e., <endpoint_uri>/<id>/, meaning a max of one entity will be returned " +
	"and all other entity query parameters will be ignored."

// BuildOption configures how the ActionSet is built from a Swagger document.
type BuildOption func(*buildConfig)

type buildConfig struct {
	includeTags map[string]struct{}
	excludeTags map[string]struct{}
	methods     map[HttpMethod]struct{}
	pathRes     []*regexp.Regexp
	logger      logging.Logger
	err         error
}

// WithIncludeTags keeps only endpoints that have at least one of the given tags.
func WithIncludeTags(tags []string) BuildOption {
	return func(c *buildConfig) {
		c.includeTags = addTags(c.includeTags, tags)
	}
}

// WithExcludeTags removes endpoints that have any of the given tags.
func WithExcludeTags(tags []string) BuildOption {
	return func(c *buildConfig) {
		c.excludeTags = addTags(c.excludeTags, tags)
	}
}

func addTags(set map[string]struct{}, tags []string) map[string]struct{} {
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if set == nil {
			set = make(map[string]struct{}, len(tags))
		}
		set[t] = struct{}{}
	}
	return set
}

// WithMethods keeps only endpoints using one of the provided HTTP methods.
func WithMethods(methods []HttpMethod) BuildOption {
	return func(c *buildConfig) {
		for _, m := range methods {
			if c.methods == nil {
				c.methods = make(map[HttpMethod]struct{}, len(methods))
			}
			c.methods[m] = struct{}{}
		}
	}
}

// WithPathPatterns keeps only endpoints whose path matches at least one of the
// provided regular expressions. An invalid pattern fails the build.
func WithPathPatterns(patterns []string) BuildOption {
	return func(c *buildConfig) {
		for _, p := range patterns {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			re, err := regexp.Compile(p)
			if err != nil {
				if c.err == nil {
					c.err = fmt.Errorf("invalid path pattern %q: %w", p, err)
				}
				continue
			}
			c.pathRes = append(c.pathRes, re)
		}
	}
}

// WithBuildLogger receives per-endpoint progress and skip warnings.
func WithBuildLogger(l logging.Logger) BuildOption {
	return func(c *buildConfig) { c.logger = l }
}

// BuildActionSet classifies every (path, verb) pair of doc into an Action.
// Endpoints whose shape matches no rule are skipped with a warning.
func BuildActionSet(ctx context.Context, doc *openapi2.T, opts ...BuildOption) (*ActionSet, error) {
	_ = ctx
	if doc == nil {
		return nil, fmt.Errorf("nil document")
	}
	cfg := &buildConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.err != nil {
		return nil, cfg.err
	}
	log := logging.OrNop(cfg.logger)

	b := &builder{doc: doc, log: log, actions: map[string]*Action{}}

	paths := make([]string, 0, len(doc.Paths))
	for p := range doc.Paths {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, path := range paths {
		item := doc.Paths[path]
		if item == nil || !cfg.allowPath(path) {
			continue
		}
		for _, verb := range Methods {
			op := operationFor(item, verb)
			if op == nil || !cfg.allowMethod(verb) || !cfg.allowTags(op.Tags) {
				continue
			}
			b.classify(path, verb, op)
		}
	}
	b.resolveDeferred()

	return &ActionSet{
		Title:   doc.Info.Title,
		Version: doc.Info.Version,
		Actions: b.actions,
	}, nil
}

func operationFor(item *openapi2.PathItem, verb HttpMethod) *openapi2.Operation {
	switch verb {
	case GET:
		return item.Get
	case POST:
		return item.Post
	case PUT:
		return item.Put
	case PATCH:
		return item.Patch
	case DELETE:
		return item.Delete
	}
	return nil
}

func (c *buildConfig) allowMethod(m HttpMethod) bool {
	if len(c.methods) == 0 {
		return true
	}
	_, ok := c.methods[m]
	return ok
}

func (c *buildConfig) allowPath(p string) bool {
	if len(c.pathRes) == 0 {
		return true
	}
	for _, re := range c.pathRes {
		if re.MatchString(p) {
			return true
		}
	}
	return false
}

func (c *buildConfig) allowTags(tags []string) bool {
	if len(c.includeTags) > 0 {
		found := false
		for _, t := range tags {
			if _, ok := c.includeTags[strings.TrimSpace(t)]; ok {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for _, t := range tags {
		if _, ok := c.excludeTags[strings.TrimSpace(t)]; ok {
			return false
		}
	}
	return true
}

type builder struct {
	doc      *openapi2.T
	log      logging.Logger
	actions  map[string]*Action
	deferred []string
}

// ActionName derives the action name for a path and verb, e.g.
// "get.dcim.devices" for GET /dcim/devices/{id}/.
func ActionName(path string, verb HttpMethod) string {
	return string(verb) + "." + strings.Join(pathParts(path), ".")
}

func pathParts(path string) []string {
	trimmed := strings.Trim(strings.ReplaceAll(path, "/{id}", ""), "/")
	parts := strings.Split(trimmed, "/")
	for i, p := range parts {
		parts[i] = strings.ReplaceAll(p, "-", "_")
	}
	return parts
}

func (b *builder) classify(path string, verb HttpMethod, op *openapi2.Operation) {
	parts := pathParts(path)
	name := ActionName(path, verb)
	uri := strings.ReplaceAll(path, "{id}", IDPlaceholder)
	log := b.log.With("action", name)
	log.Debug("classifying endpoint", "verb", verb, "path", path)

	action := &Action{
		Name:                   name,
		Description:            defaultDescription(op.Description, verb, parts[len(parts)-1]),
		EndpointURI:            uri,
		Verb:                   verb,
		GetDetailRouteEligible: true,
	}

	if body := bodyParameter(op); body != nil && body.Schema != nil {
		if schema := b.resolveSchema(body.Schema); schema != nil {
			required := schema.Required
			if verb == PATCH {
				required = nil
			}
			action.Parameters = b.parseProperties(schema.Properties, required, nil)
		}
	}

	if override, ok := specialEndpoints[name]; ok {
		if err := override(b, action); err != nil {
			log.Warn("unable to apply special endpoint handling, skipping", "error", err)
			return
		}
		b.add(action)
		return
	}

	switch {
	case verb == GET && strings.HasSuffix(op.OperationID, "_list"):
		action.Parameters = sanitizeParameters(b.queryParameters(op))
		b.add(action)
	case verb == GET && strings.HasSuffix(uri, "/"+IDPlaceholder+"/"):
		// Resolved once every list endpoint has been seen.
		b.deferred = append(b.deferred, name)
	case verb == GET && strings.Contains(uri, IDPlaceholder) && !strings.HasSuffix(uri, IDPlaceholder):
		action.Parameters = append(action.Parameters, Parameter{
			Name:        "id",
			Type:        "integer",
			Description: "ID of the object.",
			Required:    true,
		})
		action.GetDetailRouteEligible = false
		b.add(action)
	case verb == DELETE || verb == PUT || verb == PATCH:
		action.Parameters = append(action.Parameters, Parameter{
			Name:        "id",
			Type:        "integer",
			Description: fmt.Sprintf("ID of the object to %s.", verb),
			Required:    true,
		})
		b.add(action)
	case verb == POST && !strings.Contains(uri, IDPlaceholder):
		b.add(action)
	default:
		log.Warn("unable to process endpoint, no defined logic")
	}
}

func (b *builder) add(a *Action) {
	if _, exists := b.actions[a.Name]; exists {
		b.log.Warn("action name collision, replacing earlier definition", "action", a.Name, "uri", a.EndpointURI)
	}
	b.actions[a.Name] = a
}

// resolveDeferred gives each list action with a matching detail route an
// optional id parameter that switches the request to the detail route.
func (b *builder) resolveDeferred() {
	for _, name := range b.deferred {
		list, ok := b.actions[name]
		if !ok {
			b.log.Warn("unable to find list action for deferred GET endpoint", "action", name)
			continue
		}
		idParam := Parameter{
			Name:        "id",
			Type:        "integer",
			Description: detailRouteDescription,
			Required:    false,
		}
		replaced := false
		for i, p := range list.Parameters {
			if p.Name == "id" {
				list.Parameters[i] = idParam
				replaced = true
				break
			}
		}
		if !replaced {
			list.Parameters = append(list.Parameters, idParam)
		}
	}
}

func defaultDescription(desc string, verb HttpMethod, last string) string {
	desc = strings.ReplaceAll(desc, "\n", "")
	if desc != "" {
		return desc
	}
	title := cases.Title(language.English).String(strings.ReplaceAll(last, "_", " "))
	return strings.ToUpper(string(verb)) + " " + title
}

func bodyParameter(op *openapi2.Operation) *openapi2.Parameter {
	for _, p := range op.Parameters {
		if p != nil && strings.EqualFold(p.In, "body") {
			return p
		}
	}
	return nil
}

func (b *builder) queryParameters(op *openapi2.Operation) []Parameter {
	var params []Parameter
	for _, p := range op.Parameters {
		p = b.resolveParameter(p)
		if p == nil || !strings.EqualFold(p.In, "query") {
			continue
		}
		desc := strings.TrimSpace(p.Description)
		if desc == "" {
			desc = humanize(p.Name)
		}
		typ := p.Type
		if typ == "" {
			typ = "string"
		}
		params = append(params, Parameter{
			Name:        p.Name,
			Type:        typ,
			Description: desc,
			Required:    p.Required,
		})
	}
	return params
}

func (b *builder) resolveParameter(p *openapi2.Parameter) *openapi2.Parameter {
	if p == nil || p.Ref == "" {
		return p
	}
	return b.doc.Parameters[refName(p.Ref)]
}

// resolveSchema follows a single $ref into the document's definitions.
func (b *builder) resolveSchema(ref *openapi3.SchemaRef) *openapi3.Schema {
	if ref == nil {
		return nil
	}
	if ref.Ref != "" {
		if def := b.definition(refName(ref.Ref)); def != nil {
			return def
		}
	}
	return ref.Value
}

func (b *builder) definition(name string) *openapi3.Schema {
	def, ok := b.doc.Definitions[name]
	if !ok || def == nil {
		return nil
	}
	return def.Value
}

func refName(ref string) string {
	return ref[strings.LastIndex(ref, "/")+1:]
}

// parseProperties turns a definition's writable properties into action
// parameters. Foreign keys and choice fields become integers.
func (b *builder) parseProperties(props openapi3.Schemas, required []string, ignore []string) []Parameter {
	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)

	params := make([]Parameter, 0, len(names))
	for _, name := range names {
		if contains(ignore, name) {
			continue
		}
		prop := props[name]
		if prop == nil {
			continue
		}
		param := Parameter{Name: name, Required: contains(required, name)}

		switch {
		case prop.Ref != "":
			param.Type = "integer"
			param.Description = humanize(name)
			if def := b.definition(refName(prop.Ref)); def != nil && def.Title != "" {
				param.Description = def.Title
			}
		case prop.Value == nil:
			continue
		case prop.Value.ReadOnly:
			continue
		case isChoiceField(prop.Value):
			param.Type = "integer"
			param.Description = humanize(name)
		default:
			param.Type = prop.Value.Type
			if param.Type == "" {
				param.Type = "string"
				if len(prop.Value.Properties) > 0 {
					param.Type = "object"
				}
			}
			param.Description = prop.Value.Title
			if param.Description == "" {
				param.Description = humanize(name)
			}
		}
		params = append(params, param)
	}
	return sanitizeParameters(params)
}

func isChoiceField(s *openapi3.Schema) bool {
	return s.Properties["label"] != nil && s.Properties["value"] != nil
}

// sanitizeParameters applies NetBox naming conventions to parameter types.
func sanitizeParameters(params []Parameter) []Parameter {
	for i := range params {
		p := &params[i]
		switch {
		case strings.HasSuffix(p.Name, "_id"):
			p.Type = "integer"
		case p.Name == "id__in":
			p.Type = "array"
			p.Description = "Array of IDs"
		case p.Name == "tags":
			p.Type = "array"
			p.Description = "Array of tag strings"
		}
		if p.Type == "number" {
			p.Type = "integer"
		}
	}
	return params
}

// humanize renders site_group as "Site group".
func humanize(name string) string {
	s := strings.ToLower(strings.ReplaceAll(name, "_", " "))
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func contains(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}
