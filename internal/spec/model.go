package spec

import (
	"sort"
	"strings"
)

// Action model produced by the endpoint classifier and consumed by emitters.

type HttpMethod string

const (
	GET    HttpMethod = "get"
	POST   HttpMethod = "post"
	PUT    HttpMethod = "put"
	DELETE HttpMethod = "delete"
	PATCH  HttpMethod = "patch"
)

// Methods lists the verbs the classifier knows about, in emission order.
var Methods = []HttpMethod{GET, POST, PUT, PATCH, DELETE}

// ParseMethod maps a case-insensitive verb name onto a known HttpMethod.
func ParseMethod(s string) (HttpMethod, bool) {
	for _, m := range Methods {
		if string(m) == strings.ToLower(strings.TrimSpace(s)) {
			return m, true
		}
	}
	return "", false
}

type ActionSet struct {
	Title   string
	Version string
	Actions map[string]*Action
}

// Names returns the action names sorted lexically.
func (s *ActionSet) Names() []string {
	names := make([]string, 0, len(s.Actions))
	for name := range s.Actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type Action struct {
	Name                   string
	Description            string
	Parameters             []Parameter
	EndpointURI            string
	Verb                   HttpMethod
	GetDetailRouteEligible bool
}

// HasParameter reports whether a parameter with the given name is declared.
func (a *Action) HasParameter(name string) bool {
	for _, p := range a.Parameters {
		if p.Name == name {
			return true
		}
	}
	return false
}

type Parameter struct {
	Name        string
	Type        string
	Description string
	Required    bool
}
