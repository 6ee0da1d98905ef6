// Package filter contains optional frame transforms applied by the
// capture pipeline before a frame is published. Filters work on encoded
// JPEG payloads so the pipeline stays a plain byte stream.
package filter

// Filter transforms one encoded frame into another. A filter must not
// retain or modify its input, and a failed transform must not take the
// pipeline down: callers fall back to the unfiltered frame.
type Filter interface {
	Apply(jpegData []byte) ([]byte, error)
}
