package form

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdul-hamid-achik/formstream/packages/body"
	"github.com/abdul-hamid-achik/formstream/packages/cooperate"
	"github.com/abdul-hamid-achik/formstream/packages/core/env"
	"github.com/abdul-hamid-achik/formstream/packages/multipart"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "assets/photo.png", "PNGDATA")
	path := writeFile(t, dir, "upload.yaml", `
boundary: fixed
fields:
  - name: title
    value: hello
  - name: count
    value: 3
  - name: photo
    file: assets/photo.png
    filename: me.png
    contentType: image/png
  - name: log
    file: assets/photo.png
    streaming: true
`)

	def, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "fixed", def.Boundary)
	require.Len(t, def.Fields, 4)
	assert.Equal(t, "hello", def.Fields[0].Value)
	assert.True(t, def.Fields[2].IsFile())
	assert.True(t, def.Fields[3].Streaming)

	abs, err := filepath.Abs(filepath.Join(dir, "assets/photo.png"))
	require.NoError(t, err)
	assert.Equal(t, []string{abs, abs}, def.Files())
}

func TestParse_SchemaViolations(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{name: "no fields", yaml: "boundary: x\n"},
		{name: "value and file", yaml: "fields:\n  - name: a\n    value: v\n    file: f.txt\n"},
		{name: "neither value nor file", yaml: "fields:\n  - name: a\n"},
		{name: "missing name", yaml: "fields:\n  - value: v\n"},
		{name: "unknown key", yaml: "fields:\n  - name: a\n    value: v\n    colour: red\n"},
		{name: "streaming scalar", yaml: "fields:\n  - name: a\n    value: v\n    streaming: true\n"},
		{name: "long boundary", yaml: "boundary: " + strings.Repeat("b", 71) + "\nfields: []\n"},
		{name: "empty document", yaml: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml), t.TempDir())
			var serr *SchemaError
			require.ErrorAs(t, err, &serr)
			assert.NotEmpty(t, serr.Problems)
		})
	}
}

func TestParse_RejectsPathTraversal(t *testing.T) {
	dir := t.TempDir()
	_, err := Parse([]byte("fields:\n  - name: secret\n    file: ../../etc/passwd\n"), dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "path traversal")
	assert.Contains(t, err.Error(), `field "secret"`)
}

func TestLoad_SchemaErrorNamesFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "bad.yaml", "fields:\n  - name: a\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), path)
}

func TestBuild(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "notes.html", "some notes")
	def, err := Parse([]byte(`
boundary: B
fields:
  - name: z
    file: notes.html
  - name: a
    value: first
`), dir)
	require.NoError(t, err)

	c := cooperate.NewCooperator()
	p, err := def.Build(WithScheduler(c), WithChunkSize(4))
	require.NoError(t, err)

	assert.Equal(t, "B", p.Boundary())
	require.True(t, p.Length().IsKnown())

	var buf bytes.Buffer
	sig := p.Start(&buf)
	c.Drain()
	require.True(t, sig.IsResolved())
	require.NoError(t, sig.Err())

	want := "--B\r\n" +
		"Content-Disposition: form-data; name=\"a\"\r\n\r\n" +
		"first\r\n" +
		"--B\r\n" +
		"Content-Disposition: form-data; name=\"z\"; filename=\"notes.html\"\r\n" +
		"Content-Type: text/html\r\n" +
		"Content-Length: 10\r\n\r\n" +
		"some notes\r\n" +
		"--B--\r\n"
	assert.Equal(t, want, buf.String())
	assert.Equal(t, p.Length().Int64(), int64(buf.Len()))
}

func TestBuild_StreamingHidesLength(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "data.bin", "1234")
	def, err := Parse([]byte("fields:\n  - name: d\n    file: data.bin\n    streaming: true\n"), dir)
	require.NoError(t, err)

	p, err := def.Build(WithScheduler(cooperate.NewCooperator()))
	require.NoError(t, err)
	assert.Equal(t, body.UnknownLength, p.Length())
	p.Stop()
}

func TestBuild_ProducerOptionsOverrideBoundary(t *testing.T) {
	def, err := Parse([]byte("boundary: fromfile\nfields: []\n"), t.TempDir())
	require.NoError(t, err)

	p, err := def.Build(
		WithScheduler(cooperate.NewCooperator()),
		WithProducerOptions(multipart.WithBoundary("fromflag")),
	)
	require.NoError(t, err)
	assert.Equal(t, "fromflag", p.Boundary())
}

func TestBuild_MissingFile(t *testing.T) {
	dir := t.TempDir()
	def, err := Parse([]byte("fields:\n  - name: f\n    file: nope.txt\n"), dir)
	require.NoError(t, err)

	_, err = def.Build(WithScheduler(cooperate.NewCooperator()))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Contains(t, err.Error(), `field "f"`)
}

func TestBuild_ResolvesPlaceholders(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "photo.png", "png")
	def, err := Parse([]byte(`
fields:
  - name: owner
    value: "{{user}}"
  - name: photo
    file: photo.png
    filename: "{{user}}-avatar.png"
`), dir)
	require.NoError(t, err)

	r := env.NewResolver()
	r.SetVariable("user", "alice")

	p, err := def.Build(WithScheduler(cooperate.NewCooperator()), WithResolver(r))
	require.NoError(t, err)
	defer p.Stop()

	fields := p.Fields()
	require.Len(t, fields, 2)
	assert.Equal(t, multipart.Scalar("alice"), fields[0].Value)
	assert.Equal(t, "alice-avatar.png", fields[1].Value.(*multipart.Attachment).Filename)
}

func TestBuild_UnresolvedPlaceholder(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "photo.png", "png")
	def, err := Parse([]byte(`
fields:
  - name: photo
    file: photo.png
  - name: owner
    value: "{{nobody}}"
`), dir)
	require.NoError(t, err)

	_, err = def.Build(WithScheduler(cooperate.NewCooperator()), WithResolver(env.NewResolver()))
	require.Error(t, err)

	var unresolved *env.UnresolvedError
	assert.ErrorAs(t, err, &unresolved)
	assert.Contains(t, err.Error(), `field "owner"`)
}
