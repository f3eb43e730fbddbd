package env

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"

	"github.com/abdul-hamid-achik/formstream/packages/builtin"
)

var variablePattern = regexp.MustCompile(`\{\{([^}]+)\}\}`)

// UnresolvedError lists placeholders that had no value
type UnresolvedError struct {
	Names []string
}

func (e *UnresolvedError) Error() string {
	return "unresolved placeholders: " + strings.Join(e.Names, ", ")
}

// Resolver expands {{...}} placeholders. A placeholder is one of
//
//	{{name}}        a variable set on the resolver
//	{{$NAME}}       an environment variable
//	{{fn(args)}}    a builtin function call
//
// Resolver is safe for concurrent use.
type Resolver struct {
	mu        sync.RWMutex
	variables map[string]string
	funcs     *builtin.Registry
	lookupEnv func(string) (string, bool)
}

// ResolverOption configures a resolver
type ResolverOption func(*Resolver)

// WithLookupEnv replaces os.LookupEnv for {{$NAME}} placeholders
func WithLookupEnv(fn func(string) (string, bool)) ResolverOption {
	return func(r *Resolver) {
		r.lookupEnv = fn
	}
}

// WithRegistry replaces the builtin function registry
func WithRegistry(reg *builtin.Registry) ResolverOption {
	return func(r *Resolver) {
		r.funcs = reg
	}
}

func NewResolver(opts ...ResolverOption) *Resolver {
	r := &Resolver{
		variables: make(map[string]string),
		funcs:     builtin.NewRegistry(),
		lookupEnv: os.LookupEnv,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Resolver) SetVariables(vars map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, v := range vars {
		r.variables[k] = v
	}
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

// Resolve expands every placeholder in input. Unknown variables are
// collected into an *UnresolvedError; a failing function call is returned
// as is.
func (r *Resolver) Resolve(input string) (string, error) {
	if !strings.Contains(input, "{{") {
		return input, nil
	}

	var unresolved []string
	var callErr error

	out := variablePattern.ReplaceAllStringFunc(input, func(match string) string {
		expr := strings.TrimSpace(match[2 : len(match)-2])

		if name, ok := strings.CutPrefix(expr, "$"); ok {
			if val, ok := r.lookupEnv(name); ok {
				return val
			}
			unresolved = append(unresolved, expr)
			return match
		}

		if builtin.IsCall(expr) {
			val, err := r.funcs.Call(expr)
			if err != nil {
				if callErr == nil {
					callErr = err
				}
				return match
			}
			return val
		}

		if val, ok := r.GetVariable(expr); ok {
			return val
		}
		unresolved = append(unresolved, expr)
		return match
	})

	if callErr != nil {
		return "", callErr
	}
	if len(unresolved) > 0 {
		return "", &UnresolvedError{Names: unresolved}
	}
	return out, nil
}

// ResolveAll expands every value of values into a new map
func (r *Resolver) ResolveAll(values map[string]string) (map[string]string, error) {
	result := make(map[string]string, len(values))
	for k, v := range values {
		resolved, err := r.Resolve(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		result[k] = resolved
	}
	return result, nil
}

// Clone returns a resolver with a copy of the variables sharing the
// function registry
func (r *Resolver) Clone() *Resolver {
	r.mu.RLock()
	defer r.mu.RUnlock()
	clone := NewResolver(WithRegistry(r.funcs), WithLookupEnv(r.lookupEnv))
	for k, v := range r.variables {
		clone.variables[k] = v
	}
	return clone
}
