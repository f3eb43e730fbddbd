package multipart

import (
	"github.com/abdul-hamid-achik/formstream/packages/body"
)

// Value is the payload of a Field: either Scalar or *Attachment.
type Value interface {
	isValue()
}

// Scalar is an in-memory UTF-8 field value.
type Scalar []byte

func (Scalar) isValue() {}

// Attachment is a file-like field value streamed from Body.
type Attachment struct {
	Filename    string
	ContentType string
	Body        body.Producer
}

func (*Attachment) isValue() {}

// HasFilename reports whether the Content-Disposition header carries a
// filename parameter. An empty filename is treated as absent.
func (a *Attachment) HasFilename() bool {
	return a.Filename != ""
}

// File creates an attachment whose content type is guessed from filename.
func File(filename string, b body.Producer) *Attachment {
	return &Attachment{Filename: filename, Body: b}
}

// FileWithType creates an attachment with an explicit content type.
func FileWithType(filename, contentType string, b body.Producer) *Attachment {
	return &Attachment{Filename: filename, ContentType: contentType, Body: b}
}

// Blob creates an attachment without a filename parameter. An empty
// contentType defaults to application/octet-stream.
func Blob(contentType string, b body.Producer) *Attachment {
	return &Attachment{ContentType: contentType, Body: b}
}

// Field is a named, normalized form value.
type Field struct {
	Name  string
	Value Value
}

// IsAttachment reports whether the field streams a body.
func (f Field) IsAttachment() bool {
	_, ok := f.Value.(*Attachment)
	return ok
}

// Pair is an unnormalized name/value input. Value may be a string, a
// []byte, a Scalar, an Attachment, or a 2- or 3-element []any tuple of
// (filename, body) or (filename, contentType, body).
type Pair struct {
	Name  string
	Value any
}
