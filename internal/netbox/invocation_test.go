package netbox

import (
	"testing"

	genspec "github.com/mark3labs/netbox2st2/internal/spec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseArgs(t *testing.T) {
	t.Parallel()
	got, err := ParseArgs([]string{"--endpoint_uri=/dcim/devices/", "--http_verb", "get", "--name=a=b", "--flag"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"endpoint_uri": "/dcim/devices/",
		"http_verb":    "get",
		"name":         "a=b",
		"flag":         "true",
	}, got)

	_, err = ParseArgs([]string{"positional"})
	require.Error(t, err)
	_, err = ParseArgs([]string{"--"})
	require.Error(t, err)
}

func TestNewInvocation(t *testing.T) {
	t.Parallel()
	inv, err := NewInvocation(map[string]string{
		"endpoint_uri":               "/dcim/devices/",
		"http_verb":                  "get",
		"get_detail_route_eligible":  "True",
		"save_in_key_store":          "False",
		"save_in_key_store_key_name": "",
		"save_in_key_store_ttl":      "60",
		"id__in":                     `["1","2"]`,
		"name":                       "sw1",
		"serial":                     "None",
		"netbox_hostname":            "netbox.local",
		"netbox_api_token":           "secret",
	})
	require.NoError(t, err)
	assert.Equal(t, "/dcim/devices/", inv.EndpointURI)
	assert.Equal(t, genspec.GET, inv.Verb)
	assert.True(t, inv.GetDetailRouteEligible)
	assert.False(t, inv.SaveInKeyStore)
	assert.Equal(t, 60, inv.KeyTTL)
	assert.Equal(t, map[string]any{
		"id__in": []any{"1", "2"},
		"name":   "sw1",
		"serial": nil,
	}, inv.Params)
}

func TestNewInvocation_Errors(t *testing.T) {
	t.Parallel()
	cases := []map[string]string{
		{"http_verb": "get"},
		{"endpoint_uri": "/x/", "http_verb": "options"},
		{"endpoint_uri": "/x/", "http_verb": "get", "get_detail_route_eligible": "maybe"},
		{"endpoint_uri": "/x/", "http_verb": "get", "save_in_key_store_ttl": "soon"},
	}
	for _, args := range cases {
		_, err := NewInvocation(args)
		assert.Error(t, err, "%v", args)
	}
}

func TestDecodeValue(t *testing.T) {
	t.Parallel()
	assert.Equal(t, int64(42), decodeValue("42"))
	assert.Equal(t, 1.5, decodeValue("1.5"))
	assert.Equal(t, true, decodeValue("True"))
	assert.Equal(t, false, decodeValue("false"))
	assert.Equal(t, "0012", decodeValue("0012"))
	assert.Equal(t, "1e3", decodeValue("1e3"))
	assert.Equal(t, "sw1", decodeValue("sw1"))
	assert.Equal(t, map[string]any{"a": float64(1)}, decodeValue(`{"a": 1}`))
	assert.Equal(t, "[not json", decodeValue("[not json"))
	assert.Nil(t, decodeValue("null"))
}
