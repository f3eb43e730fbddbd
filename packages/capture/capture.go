package capture

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/abdul-hamid-achik/formstream/packages/http"
)

// Source names the part of a response a capture reads
type Source string

const (
	SourceBody     Source = "body"
	SourceHeader   Source = "header"
	SourceStatus   Source = "status"
	SourceDuration Source = "duration"
)

// Spec describes one value to extract
type Spec struct {
	Name   string
	Source Source
	Path   string
}

// ParseSpec parses name=source[:path]. A bare path without a source, as in
// id=data.id, reads from the body.
func ParseSpec(raw string) (Spec, error) {
	name, expr, ok := strings.Cut(raw, "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return Spec{}, fmt.Errorf("invalid capture %q: expected name=source:path", raw)
	}

	source, path, hasPath := strings.Cut(strings.TrimSpace(expr), ":")
	switch Source(source) {
	case SourceBody, SourceHeader:
		if Source(source) == SourceHeader && path == "" {
			return Spec{}, fmt.Errorf("invalid capture %q: header capture needs a header name", raw)
		}
		return Spec{Name: name, Source: Source(source), Path: path}, nil
	case SourceStatus, SourceDuration:
		if hasPath {
			return Spec{}, fmt.Errorf("invalid capture %q: %s takes no path", raw, source)
		}
		return Spec{Name: name, Source: Source(source)}, nil
	default:
		if hasPath {
			return Spec{}, fmt.Errorf("invalid capture %q: unknown source %q", raw, source)
		}
		return Spec{Name: name, Source: SourceBody, Path: source}, nil
	}
}

type Extractor struct {
	response *http.Response
	bodyJSON gjson.Result
}

func NewExtractor(resp *http.Response) *Extractor {
	e := &Extractor{
		response: resp,
	}
	if resp.IsJSON() || gjson.ValidBytes(resp.Body) {
		e.bodyJSON = gjson.ParseBytes(resp.Body)
	}
	return e
}

func (e *Extractor) Extract(spec Spec) (any, bool) {
	switch spec.Source {
	case SourceBody:
		return e.extractFromBody(spec.Path)
	case SourceHeader:
		return e.extractFromHeader(spec.Path)
	case SourceStatus:
		return e.response.StatusCode, true
	case SourceDuration:
		return e.response.DurationMs(), true
	default:
		return nil, false
	}
}

func (e *Extractor) extractFromBody(path string) (any, bool) {
	if !e.bodyJSON.Exists() {
		if path == "" {
			return e.response.BodyString(), true
		}
		return nil, false
	}

	if path == "" {
		return e.bodyJSON.Value(), true
	}

	result := e.bodyJSON.Get(path)
	if !result.Exists() {
		return nil, false
	}
	return result.Value(), true
}

func (e *Extractor) extractFromHeader(name string) (any, bool) {
	value := e.response.Header(name)
	if value == "" {
		return nil, false
	}
	return value, true
}

// ExtractAll runs every spec and returns the values that were found, keyed
// by capture name, plus the names that were not.
func ExtractAll(resp *http.Response, specs []Spec) (map[string]any, []string) {
	extractor := NewExtractor(resp)
	results := make(map[string]any)
	var missing []string

	for _, s := range specs {
		if value, ok := extractor.Extract(s); ok {
			results[s.Name] = value
		} else {
			missing = append(missing, s.Name)
		}
	}

	return results, missing
}
