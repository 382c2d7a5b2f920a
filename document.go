package cairn

// Document pairs a document identifier with its stored payload. Storage
// carries no document-layer metadata; the identifier is derived from the
// engine key and attached here at read time.
type Document struct {
	ID      string
	Payload map[string]any
}
