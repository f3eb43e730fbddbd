package env

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/abdul-hamid-achik/formstream/packages/builtin"
)

func fakeEnv(vars map[string]string) func(string) (string, bool) {
	return func(name string) (string, bool) {
		v, ok := vars[name]
		return v, ok
	}
}

func TestResolverResolve(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		variables map[string]string
		env       map[string]string
		expected  string
	}{
		{
			name:     "no placeholders",
			input:    "hello world",
			expected: "hello world",
		},
		{
			name:      "variable",
			input:     "report-{{year}}.pdf",
			variables: map[string]string{"year": "2024"},
			expected:  "report-2024.pdf",
		},
		{
			name:      "several variables with spaces",
			input:     "{{ greeting }} {{name}}!",
			variables: map[string]string{"greeting": "Hello", "name": "World"},
			expected:  "Hello World!",
		},
		{
			name:     "environment variable",
			input:    "Bearer {{$TOKEN}}",
			env:      map[string]string{"TOKEN": "abc"},
			expected: "Bearer abc",
		},
		{
			name:     "empty environment variable is resolved",
			input:    "[{{$EMPTY}}]",
			env:      map[string]string{"EMPTY": ""},
			expected: "[]",
		},
		{
			name:     "function call",
			input:    "{{base64(hi)}}",
			expected: "aGk=",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewResolver(WithLookupEnv(fakeEnv(tt.env)))
			r.SetVariables(tt.variables)

			got, err := r.Resolve(tt.input)
			if err != nil {
				t.Fatalf("Resolve(%q) error = %v", tt.input, err)
			}
			if got != tt.expected {
				t.Errorf("Resolve(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestResolverUnresolved(t *testing.T) {
	r := NewResolver(WithLookupEnv(fakeEnv(nil)))

	_, err := r.Resolve("{{missing}} and {{$HOME_DIR}}")

	var unresolved *UnresolvedError
	if !errors.As(err, &unresolved) {
		t.Fatalf("Resolve() error = %v, want *UnresolvedError", err)
	}
	if want := []string{"missing", "$HOME_DIR"}; !reflect.DeepEqual(unresolved.Names, want) {
		t.Errorf("Names = %v, want %v", unresolved.Names, want)
	}
}

func TestResolverFunctionError(t *testing.T) {
	r := NewResolver()

	_, err := r.Resolve("{{random(x, 2)}}")
	if err == nil || !strings.Contains(err.Error(), "random()") {
		t.Fatalf("Resolve() error = %v, want random() failure", err)
	}

	_, err = r.Resolve("{{nope()}}")
	if err == nil || !strings.Contains(err.Error(), "unknown function") {
		t.Fatalf("Resolve() error = %v, want unknown function", err)
	}
}

func TestResolverCustomRegistry(t *testing.T) {
	reg := builtin.NewRegistry()
	reg.Register("id", func([]string) (string, error) { return "fixed", nil })
	r := NewResolver(WithRegistry(reg))

	got, err := r.Resolve("upload-{{id()}}")
	if err != nil {
		t.Fatal(err)
	}
	if got != "upload-fixed" {
		t.Errorf("Resolve() = %q, want %q", got, "upload-fixed")
	}

	clone := r.Clone()
	clone.SetVariable("only", "clone")
	if _, ok := r.GetVariable("only"); ok {
		t.Error("Clone() shares variables with the original")
	}
	if got, _ := clone.Resolve("{{id()}}"); got != "fixed" {
		t.Errorf("clone lost the registry: %q", got)
	}
}

func TestResolveAll(t *testing.T) {
	r := NewResolver()
	r.SetVariable("v", "1")

	got, err := r.ResolveAll(map[string]string{"X-Version": "{{v}}", "Accept": "*/*"})
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]string{"X-Version": "1", "Accept": "*/*"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ResolveAll() = %v, want %v", got, want)
	}

	_, err = r.ResolveAll(map[string]string{"X-Missing": "{{nope}}"})
	if err == nil || !strings.HasPrefix(err.Error(), "X-Missing:") {
		t.Errorf("ResolveAll() error = %v, want it to name the key", err)
	}
}

func TestParseVariables(t *testing.T) {
	vars, err := ParseVariables([]string{"a=1", "b=x=y", "empty="})
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]string{"a": "1", "b": "x=y", "empty": ""}
	if !reflect.DeepEqual(vars, want) {
		t.Errorf("ParseVariables() = %v, want %v", vars, want)
	}

	for _, bad := range []string{"novalue", "=1"} {
		if _, err := ParseVariables([]string{bad}); err == nil {
			t.Errorf("ParseVariables(%q) expected error", bad)
		}
	}

	merged := MergeVariables(map[string]string{"a": "1", "b": "1"}, map[string]string{"b": "2"})
	if !reflect.DeepEqual(merged, map[string]string{"a": "1", "b": "2"}) {
		t.Errorf("MergeVariables() = %v", merged)
	}
}
