package st2emitter

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	genspec "github.com/mark3labs/netbox2st2/internal/spec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

var fixedNow = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }

func minimalSet() *genspec.ActionSet {
	return &genspec.ActionSet{
		Title:   "NetBox API",
		Version: "v2",
		Actions: map[string]*genspec.Action{
			"get.dcim.devices": {
				Name:                   "get.dcim.devices",
				Description:            `GET "Devices"`,
				EndpointURI:            "/dcim/devices/",
				Verb:                   genspec.GET,
				GetDetailRouteEligible: true,
				Parameters: []genspec.Parameter{
					{Name: "name", Type: "string", Description: "Name"},
					{Name: "id__in", Type: "array", Description: "Array of IDs"},
				},
			},
			"delete.dcim.devices": {
				Name:                   "delete.dcim.devices",
				Description:            "DELETE Devices",
				EndpointURI:            "/dcim/devices/{{ id }}/",
				Verb:                   genspec.DELETE,
				GetDetailRouteEligible: true,
				Parameters: []genspec.Parameter{
					{Name: "id", Type: "integer", Description: "ID of the object to delete.", Required: true},
				},
			},
		},
	}
}

type metadata struct {
	Name        string                    `yaml:"name"`
	RunnerType  string                    `yaml:"runner_type"`
	Description string                    `yaml:"description"`
	Enabled     bool                      `yaml:"enabled"`
	EntryPoint  string                    `yaml:"entry_point"`
	Parameters  map[string]map[string]any `yaml:"parameters"`
}

func readMetadata(t *testing.T, path string) metadata {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var m metadata
	require.NoError(t, yaml.Unmarshal(data, &m))
	return m
}

func TestEmit_WriteAndContents(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	res, err := Emit(context.Background(), minimalSet(), Options{OutDir: dir, Now: fixedNow, RunID: "run-1"})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Actions)
	assert.Equal(t, "run-1", res.RunID)

	get := readMetadata(t, filepath.Join(dir, "get.dcim.devices.yaml"))
	assert.Equal(t, "get.dcim.devices", get.Name)
	assert.Equal(t, DefaultRunnerType, get.RunnerType)
	assert.Equal(t, DefaultEntryPoint, get.EntryPoint)
	assert.Equal(t, `GET "Devices"`, get.Description)
	assert.True(t, get.Enabled)
	assert.Equal(t, "/dcim/devices/", get.Parameters["endpoint_uri"]["default"])
	assert.Equal(t, true, get.Parameters["endpoint_uri"]["immutable"])
	assert.Equal(t, "get", get.Parameters["http_verb"]["default"])
	assert.Equal(t, true, get.Parameters["get_detail_route_eligible"]["default"])
	assert.Equal(t, "array", get.Parameters["id__in"]["type"])
	assert.Equal(t, false, get.Parameters["name"]["required"])
	assert.Contains(t, get.Parameters, "save_in_key_store")
	assert.Contains(t, get.Parameters, "save_in_key_store_key_name")
	assert.Contains(t, get.Parameters, "save_in_key_store_ttl")
	assert.Equal(t, "{{ config_context.hostname | default('') }}", get.Parameters["netbox_hostname"]["default"])
	assert.Equal(t, "boolean", get.Parameters["netbox_ssl_verify"]["type"])
	assert.Equal(t, true, get.Parameters["netbox_api_token"]["secret"])
	assert.NotContains(t, get.Parameters["netbox_hostname"], "immutable")

	del := readMetadata(t, filepath.Join(dir, "delete.dcim.devices.yaml"))
	assert.Equal(t, "/dcim/devices/{{ id }}/", del.Parameters["endpoint_uri"]["default"])
	assert.Equal(t, true, del.Parameters["id"]["required"])
	assert.NotContains(t, del.Parameters, "save_in_key_store")
	assert.Contains(t, del.Parameters, "netbox_api_token")

	raw, err := os.ReadFile(filepath.Join(dir, "get.dcim.devices.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), "2024-05-01T12:00:00Z")
	assert.Contains(t, string(raw), "run run-1")
	assert.Contains(t, string(raw), "version v2")

	st, err := os.Stat(filepath.Join(dir, DefaultEntryPoint))
	require.NoError(t, err)
	assert.NotZero(t, st.Mode().Perm()&0o100, "wrapper must be executable")
	script, err := os.ReadFile(filepath.Join(dir, DefaultEntryPoint))
	require.NoError(t, err)
	assert.Contains(t, string(script), `run "$@"`)
}

func TestEmit_RemovesStaleMetadataOnly(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "get.dcim.racks.yaml"), []byte("name: old\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("keep"), 0o600))

	res, err := Emit(context.Background(), minimalSet(), Options{OutDir: dir, Now: fixedNow, RunID: "r", NoWrapper: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"get.dcim.racks.yaml"}, res.Removed)

	_, err = os.Stat(filepath.Join(dir, "get.dcim.racks.yaml"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dir, "README.md"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, DefaultEntryPoint))
	assert.True(t, os.IsNotExist(err))
}

func TestEmit_DryRun_Plan(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "old.yaml"), []byte("x: 1\n"), 0o600))

	res, err := Emit(context.Background(), minimalSet(), Options{OutDir: dir, DryRun: true})
	require.NoError(t, err)
	assert.NotEmpty(t, res.RunID)

	var rels []string
	for _, pf := range res.Planned {
		rels = append(rels, pf.RelPath)
	}
	assert.Equal(t, []string{"delete.dcim.devices.yaml", "get.dcim.devices.yaml", "run.sh"}, rels)
	assert.Equal(t, []string{"old.yaml"}, res.Removed)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "dry-run must not touch the directory")
	assert.Equal(t, "old.yaml", entries[0].Name())
}

func TestEmit_CustomTemplateAndRunner(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	tmplPath := filepath.Join(t.TempDir(), "custom.tmpl")
	tmpl := "name: {{ .ActionName | quote }}\nrunner_type: {{ .RunnerType }}\nentry_point: {{ .EntryPoint }}\nverb: {{ .Verb | upper }}\n"
	require.NoError(t, os.WriteFile(tmplPath, []byte(tmpl), 0o600))

	_, err := Emit(context.Background(), minimalSet(), Options{
		OutDir:       dir,
		TemplatePath: tmplPath,
		RunnerType:   "python-script",
		EntryPoint:   "run.py",
		NoWrapper:    true,
	})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "delete.dcim.devices.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "name: \"delete.dcim.devices\"\nrunner_type: python-script\nentry_point: run.py\nverb: DELETE\n", string(data))
}

func TestEmit_RejectsInvalidYAML(t *testing.T) {
	t.Parallel()
	tmplPath := filepath.Join(t.TempDir(), "broken.tmpl")
	require.NoError(t, os.WriteFile(tmplPath, []byte("name: [unterminated\n"), 0o600))

	_, err := Emit(context.Background(), minimalSet(), Options{OutDir: t.TempDir(), TemplatePath: tmplPath})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "not valid YAML"), err.Error())
}

func TestEmit_RequiresOutDir(t *testing.T) {
	t.Parallel()
	_, err := Emit(context.Background(), minimalSet(), Options{})
	require.Error(t, err)
	_, err = Emit(context.Background(), nil, Options{OutDir: t.TempDir()})
	require.Error(t, err)
}
