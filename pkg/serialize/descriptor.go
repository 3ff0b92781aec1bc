package serialize

import "github.com/gabriel-vasile/mimetype"

// PayloadKind tags what a packed payload represents so the receiving side can
// rebuild the right value shape. The kind is decided once, at encode time,
// and travels with every chunk of the transfer.
type PayloadKind string

const (
	// KindPlain is a structured value with no attached metadata.
	KindPlain PayloadKind = "plain"
	// KindNamed is a file-like payload carrying a name (and usually a
	// content type).
	KindNamed PayloadKind = "named"
	// KindTyped is a blob-like payload carrying a declared content type.
	KindTyped PayloadKind = "typed"
)

// Descriptor describes a packed payload. Name is set only for KindNamed;
// MIME is set for KindNamed and KindTyped.
type Descriptor struct {
	Kind PayloadKind
	Name string
	MIME string
}

// Blob is a byte payload with a declared content type. A zero MIME is
// sniffed from the content at encode time.
type Blob struct {
	MIME string
	Data []byte
}

// File is a named byte payload, the file-like value shape.
type File struct {
	Name string
	MIME string
	Data []byte
}

// describe builds the payload descriptor for a value, sniffing the content
// type of blobs that do not declare one.
func describe(value any) Descriptor {
	switch v := value.(type) {
	case File:
		mime := v.MIME
		if mime == "" {
			mime = mimetype.Detect(v.Data).String()
		}
		return Descriptor{Kind: KindNamed, Name: v.Name, MIME: mime}
	case Blob:
		mime := v.MIME
		if mime == "" {
			mime = mimetype.Detect(v.Data).String()
		}
		return Descriptor{Kind: KindTyped, MIME: mime}
	default:
		return Descriptor{Kind: KindPlain}
	}
}
