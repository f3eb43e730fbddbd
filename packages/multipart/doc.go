// Package multipart produces multipart/form-data request bodies.
//
// A Producer serializes scalar fields and streaming attachments into the
// exact RFC 2046 wire format without materializing the body:
//   - fields are normalized once, at construction, into Scalar or Attachment values
//   - scalar fields are written before attachments, each group sorted by name
//   - the total length is computed up front when every attachment knows its size
//   - production runs as a cooperative task and honors Pause, Resume and Stop
//
// Example:
//
//	p, err := multipart.NewProducer(map[string]any{
//		"title":  "holiday",
//		"upload": multipart.File("beach.png", photo),
//	})
//	if err != nil {
//		return err
//	}
//	req.Header.Set("Content-Type", p.ContentType())
//	req.ContentLength = p.Length().Int64()
//	req.Body = body.NewReader(p)
//
// Stopping a producer is not an error: the signal returned by Start is
// never resolved after Stop, so callers must not wait on it.
package multipart
