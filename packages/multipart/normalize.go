package multipart

import (
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/abdul-hamid-achik/formstream/packages/body"
)

// Normalize converts a field collection into typed fields, preserving the
// input order. Accepted collections are map[string]any, map[string]string,
// map[string][]byte, url.Values, []Pair and []Field.
func Normalize(input any) ([]Field, error) {
	var pairs []Pair

	switch in := input.(type) {
	case nil:
		return nil, nil
	case []Pair:
		pairs = in
	case []Field:
		pairs = make([]Pair, 0, len(in))
		for _, f := range in {
			pairs = append(pairs, Pair{Name: f.Name, Value: f.Value})
		}
	case map[string]any:
		pairs = make([]Pair, 0, len(in))
		for name, v := range in {
			pairs = append(pairs, Pair{Name: name, Value: v})
		}
	case map[string]string:
		pairs = make([]Pair, 0, len(in))
		for name, v := range in {
			pairs = append(pairs, Pair{Name: name, Value: v})
		}
	case map[string][]byte:
		pairs = make([]Pair, 0, len(in))
		for name, v := range in {
			pairs = append(pairs, Pair{Name: name, Value: v})
		}
	case url.Values:
		for name, values := range in {
			for _, v := range values {
				pairs = append(pairs, Pair{Name: name, Value: v})
			}
		}
	default:
		return nil, invalid("", "unsupported field collection %T", input)
	}

	fields := make([]Field, 0, len(pairs))
	for _, p := range pairs {
		f, err := normalizePair(p)
		if err != nil {
			return nil, err
		}
		fields = append(fields, f)
	}
	return fields, nil
}

func normalizePair(p Pair) (Field, error) {
	if !utf8.ValidString(p.Name) {
		return Field{}, invalid(p.Name, "name is not valid UTF-8")
	}

	var (
		value Value
		err   error
	)
	switch v := p.Value.(type) {
	case string:
		if !utf8.ValidString(v) {
			return Field{}, invalid(p.Name, "value is not valid UTF-8")
		}
		value = Scalar(v)
	case []byte:
		value, err = scalarBytes(p.Name, v)
	case Scalar:
		value, err = scalarBytes(p.Name, v)
	case *Attachment:
		if v == nil {
			return Field{}, invalid(p.Name, "nil attachment")
		}
		value, err = normalizeAttachment(p.Name, *v)
	case Attachment:
		value, err = normalizeAttachment(p.Name, v)
	case []any:
		value, err = attachmentFromTuple(p.Name, v)
	default:
		return Field{}, invalid(p.Name, "unsupported value type %T", p.Value)
	}
	if err != nil {
		return Field{}, err
	}
	return Field{Name: p.Name, Value: value}, nil
}

func scalarBytes(name string, b []byte) (Scalar, error) {
	if !utf8.Valid(b) {
		return nil, invalid(name, "value is not valid UTF-8")
	}
	return Scalar(b), nil
}

func attachmentFromTuple(name string, tuple []any) (*Attachment, error) {
	var (
		filename, contentType any
		source                any
	)
	switch len(tuple) {
	case 2:
		filename, source = tuple[0], tuple[1]
	case 3:
		filename, contentType, source = tuple[0], tuple[1], tuple[2]
	default:
		return nil, invalid(name, "attachment tuple must have 2 or 3 elements, got %d", len(tuple))
	}

	a := Attachment{}
	switch fn := filename.(type) {
	case nil:
	case string:
		a.Filename = fn
	default:
		return nil, invalid(name, "attachment filename must be a string or nil, got %T", filename)
	}

	switch ct := contentType.(type) {
	case nil:
	case string:
		a.ContentType = ct
	default:
		return nil, invalid(name, "attachment content type must be a string, got %T", contentType)
	}

	b, ok := source.(body.Producer)
	if !ok {
		return nil, invalid(name, "attachment body must be a body.Producer, got %T", source)
	}
	a.Body = b
	return normalizeAttachment(name, a)
}

func normalizeAttachment(name string, a Attachment) (*Attachment, error) {
	if a.Body == nil {
		return nil, invalid(name, "attachment has no body")
	}
	if !utf8.ValidString(a.Filename) {
		return nil, invalid(name, "filename is not valid UTF-8")
	}
	if strings.ContainsAny(a.ContentType, "\r\n") {
		return nil, invalid(name, "content type contains a line break")
	}
	if a.ContentType == "" {
		if a.HasFilename() {
			a.ContentType = guessContentType(a.Filename)
		} else {
			a.ContentType = defaultContentType
		}
	}
	return &a, nil
}
