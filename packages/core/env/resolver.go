package env

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"sync"

	"github.com/abdul-hamid-achik/requester/packages/builtin"
	"github.com/rs/zerolog"
)

var variablePattern = regexp.MustCompile(`\{\{([^{}]+)\}\}`)

// Resolver substitutes {{...}} placeholders. Unknown variables are left in
// place and logged; failing function calls are errors.
type Resolver struct {
	mu        sync.RWMutex
	variables map[string]string
	funcs     *builtin.Registry
	logger    zerolog.Logger
}

func NewResolver(vars map[string]string) *Resolver {
	r := &Resolver{
		variables: make(map[string]string, len(vars)),
		funcs:     builtin.NewRegistry(),
		logger:    zerolog.Nop(),
	}
	for k, v := range vars {
		r.variables[k] = v
	}
	return r
}

// SetLogger sets where unresolved placeholders are reported
func (r *Resolver) SetLogger(logger zerolog.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = logger
}

func (r *Resolver) SetVariable(name, value string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.variables[name] = value
}

func (r *Resolver) GetVariable(name string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.variables[name]
	return v, ok
}

// Resolve replaces every placeholder in input
func (r *Resolver) Resolve(input string) (string, error) {
	if !strings.Contains(input, "{{") {
		return input, nil
	}

	var errs []error
	out := variablePattern.ReplaceAllStringFunc(input, func(match string) string {
		expr := strings.TrimSpace(match[2 : len(match)-2])

		if name, ok := strings.CutPrefix(expr, "$"); ok {
			if val, ok := os.LookupEnv(name); ok {
				return val
			}
			r.warn("unresolved environment variable", expr)
			return match
		}

		if builtin.IsCall(expr) {
			val, err := r.funcs.Call(expr)
			if err != nil {
				errs = append(errs, err)
				return match
			}
			return val
		}

		if val, ok := r.GetVariable(expr); ok {
			return val
		}
		r.warn("unresolved variable", expr)
		return match
	})

	if err := errors.Join(errs...); err != nil {
		return "", fmt.Errorf("failed to resolve %q: %w", input, err)
	}
	return out, nil
}

// ResolveValues resolves every value, keeping keys unchanged
func (r *Resolver) ResolveValues(values url.Values) (url.Values, error) {
	result := make(url.Values, len(values))
	for k, vs := range values {
		for _, v := range vs {
			resolved, err := r.Resolve(v)
			if err != nil {
				return nil, err
			}
			result.Add(k, resolved)
		}
	}
	return result, nil
}

func (r *Resolver) warn(msg, expr string) {
	r.mu.RLock()
	logger := r.logger
	r.mu.RUnlock()
	logger.Warn().Str("placeholder", expr).Msg(msg)
}
