package env

import (
	"fmt"
	"strings"
)

// ParseVariables parses name=value assignments as given on the command line
func ParseVariables(assignments []string) (map[string]string, error) {
	vars := make(map[string]string, len(assignments))
	for _, a := range assignments {
		name, value, ok := strings.Cut(a, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid variable %q: expected name=value", a)
		}
		vars[name] = value
	}
	return vars, nil
}

// MergeVariables combines sources, later ones taking precedence
func MergeVariables(sources ...map[string]string) map[string]string {
	result := make(map[string]string)
	for _, src := range sources {
		for k, v := range src {
			result[k] = v
		}
	}
	return result
}
