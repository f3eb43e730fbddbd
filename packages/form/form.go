package form

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/abdul-hamid-achik/formstream/packages/body"
	"github.com/abdul-hamid-achik/formstream/packages/cooperate"
	"github.com/abdul-hamid-achik/formstream/packages/multipart"
)

// Definition is a parsed form file
type Definition struct {
	Boundary string     `yaml:"boundary"`
	Fields   []FieldDef `yaml:"fields"`

	// BaseDir is the directory file paths are resolved against
	BaseDir string `yaml:"-"`
}

// FieldDef is one entry of a form file. Exactly one of Value and File is
// set.
type FieldDef struct {
	Name        string `yaml:"name"`
	Value       any    `yaml:"value"`
	File        string `yaml:"file"`
	Filename    string `yaml:"filename"`
	ContentType string `yaml:"contentType"`
	Streaming   bool   `yaml:"streaming"`
}

// IsFile reports whether the field attaches a file
func (f FieldDef) IsFile() bool {
	return f.File != ""
}

// SchemaError lists every schema violation of a definition
type SchemaError struct {
	Path     string
	Problems []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("invalid form %s: %s", e.Path, strings.Join(e.Problems, "; "))
}

// Load reads and validates the definition at path.
func Load(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read form: %w", err)
	}

	baseDir, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("resolve form directory: %w", err)
	}

	def, err := Parse(data, baseDir)
	if err != nil {
		var serr *SchemaError
		if errors.As(err, &serr) {
			serr.Path = path
		}
		return nil, err
	}
	return def, nil
}

// Parse validates and decodes a definition. Relative file paths are
// resolved against baseDir.
func Parse(data []byte, baseDir string) (*Definition, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse form: %w", err)
	}
	if err := validate(raw); err != nil {
		return nil, err
	}

	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parse form: %w", err)
	}
	def.BaseDir = baseDir

	for _, f := range def.Fields {
		if !f.IsFile() {
			continue
		}
		if err := validatePathWithinBase(def.resolve(f.File), baseDir); err != nil {
			return nil, fmt.Errorf("field %q: %w", f.Name, err)
		}
	}
	return &def, nil
}

func validate(raw any) error {
	doc, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("parse form: %w", err)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(definitionSchema),
		gojsonschema.NewBytesLoader(doc),
	)
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}
	if result.Valid() {
		return nil
	}

	serr := &SchemaError{}
	for _, desc := range result.Errors() {
		serr.Problems = append(serr.Problems, desc.String())
	}
	return serr
}

func (d *Definition) resolve(path string) string {
	if filepath.IsAbs(path) || d.BaseDir == "" {
		return path
	}
	return filepath.Join(d.BaseDir, path)
}

// Files returns the resolved path of every attached file
func (d *Definition) Files() []string {
	var out []string
	for _, f := range d.Fields {
		if f.IsFile() {
			out = append(out, d.resolve(f.File))
		}
	}
	return out
}

// BuildOption configures how files are streamed
type BuildOption func(*buildConfig)

type buildConfig struct {
	scheduler cooperate.Scheduler
	chunkSize int
	producer  []multipart.Option
	resolver  Resolver
}

// Resolver expands placeholders in values and filenames
type Resolver interface {
	Resolve(input string) (string, error)
}

// WithResolver expands placeholders in scalar values and filenames on every
// Build, so each producer sees fresh function results.
func WithResolver(r Resolver) BuildOption {
	return func(c *buildConfig) {
		c.resolver = r
	}
}

// WithScheduler drives both the form and its files on s
func WithScheduler(s cooperate.Scheduler) BuildOption {
	return func(c *buildConfig) {
		c.scheduler = s
	}
}

// WithChunkSize sets the file read size per scheduler step
func WithChunkSize(n int) BuildOption {
	return func(c *buildConfig) {
		c.chunkSize = n
	}
}

// WithProducerOptions passes extra options to the multipart producer.
// They are applied after the definition's boundary, so they may override
// it.
func WithProducerOptions(opts ...multipart.Option) BuildOption {
	return func(c *buildConfig) {
		c.producer = append(c.producer, opts...)
	}
}

// Build opens every file and returns a producer for the form. Files are
// closed when production ends or is stopped.
func (d *Definition) Build(opts ...BuildOption) (*multipart.Producer, error) {
	cfg := buildConfig{chunkSize: body.DefaultChunkSize}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.scheduler == nil {
		cfg.scheduler = cooperate.Default()
	}

	fileOpts := []body.FileOption{
		body.WithScheduler(cfg.scheduler),
		body.WithChunkSize(cfg.chunkSize),
	}

	var opened []*body.FileProducer
	release := func() {
		for _, p := range opened {
			p.Stop()
		}
	}

	expand := func(s string) (string, error) {
		if cfg.resolver == nil {
			return s, nil
		}
		return cfg.resolver.Resolve(s)
	}

	pairs := make([]multipart.Pair, 0, len(d.Fields))
	for _, f := range d.Fields {
		if !f.IsFile() {
			value, err := expand(scalarString(f.Value))
			if err != nil {
				release()
				return nil, fmt.Errorf("field %q: %w", f.Name, err)
			}
			pairs = append(pairs, multipart.Pair{Name: f.Name, Value: value})
			continue
		}

		filename, err := expand(f.Filename)
		if err != nil {
			release()
			return nil, fmt.Errorf("field %q: %w", f.Name, err)
		}

		path := d.resolve(f.File)
		fopts := fileOpts
		if f.Streaming {
			fopts = append(fopts[:len(fopts):len(fopts)], body.WithUnknownLength())
		}
		src, err := body.Open(path, fopts...)
		if err != nil {
			release()
			return nil, fmt.Errorf("field %q: %w", f.Name, err)
		}
		opened = append(opened, src)

		if filename == "" {
			filename = filepath.Base(path)
		}
		pairs = append(pairs, multipart.Pair{
			Name:  f.Name,
			Value: multipart.FileWithType(filename, f.ContentType, src),
		})
	}

	popts := []multipart.Option{multipart.WithScheduler(cfg.scheduler)}
	if d.Boundary != "" {
		popts = append(popts, multipart.WithBoundary(d.Boundary))
	}
	popts = append(popts, cfg.producer...)

	p, err := multipart.NewProducer(pairs, popts...)
	if err != nil {
		release()
		return nil, err
	}
	return p, nil
}

func scalarString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	default:
		return fmt.Sprint(val)
	}
}

// validatePathWithinBase checks that the resolved path stays within the base directory
// to prevent path traversal attacks
func validatePathWithinBase(path, baseDir string) error {
	if baseDir == "" {
		return nil
	}

	cleanBase, err := filepath.Abs(baseDir)
	if err != nil {
		return fmt.Errorf("failed to resolve base directory: %w", err)
	}

	cleanPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	if !strings.HasPrefix(cleanPath, cleanBase+string(filepath.Separator)) && cleanPath != cleanBase {
		return fmt.Errorf("path traversal detected: %s is outside allowed directory %s", path, baseDir)
	}

	return nil
}
