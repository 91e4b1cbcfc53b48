package server

import (
	"context"
	"encoding/base64"

	"github.com/hyphasys/mcp-go/protocol"
)

// ResourceHandler serves reads for one registered resource and is told when
// subscribers come and go, so it can start or stop watching the underlying
// source. Listing metadata lives on the Resource itself.
type ResourceHandler interface {
	Read(ctx context.Context, uri string, params map[string]string) ([]protocol.ResourceContent, error)
	Subscribe(ctx context.Context, uri string) error
	Unsubscribe(ctx context.Context, uri string) error
}

// ResourceReadFunc adapts a read-only function to ResourceHandler. Subscribe
// and Unsubscribe are accepted and ignored.
type ResourceReadFunc func(ctx context.Context, uri string, params map[string]string) ([]protocol.ResourceContent, error)

// Read implements ResourceHandler.
func (f ResourceReadFunc) Read(ctx context.Context, uri string, params map[string]string) ([]protocol.ResourceContent, error) {
	return f(ctx, uri, params)
}

// Subscribe implements ResourceHandler.
func (f ResourceReadFunc) Subscribe(ctx context.Context, uri string) error { return nil }

// Unsubscribe implements ResourceHandler.
func (f ResourceReadFunc) Unsubscribe(ctx context.Context, uri string) error { return nil }

// Resource pairs listing metadata with the handler that serves reads. The
// URI doubles as registry key: reads resolve by exact match first, then by
// the longest registered prefix, so a resource rooted at "file:///logs/"
// serves every URI beneath it.
type Resource struct {
	URI         string
	Name        string
	Description string
	MimeType    string
	Annotations *protocol.Annotations
	Handler     ResourceHandler
}

// TextResource builds a single text content block for a read result.
func TextResource(uri, mimeType, text string) []protocol.ResourceContent {
	return []protocol.ResourceContent{{
		URI:      uri,
		MimeType: mimeType,
		Text:     text,
	}}
}

// BlobResource builds a single binary content block, base64-encoding data.
func BlobResource(uri, mimeType string, data []byte) []protocol.ResourceContent {
	return []protocol.ResourceContent{{
		URI:      uri,
		MimeType: mimeType,
		Blob:     base64.StdEncoding.EncodeToString(data),
	}}
}

// info renders the registry entry advertised by resources/list.
func (r Resource) info() protocol.ResourceInfo {
	return protocol.ResourceInfo{
		URI:         r.URI,
		Name:        r.Name,
		Description: r.Description,
		MimeType:    r.MimeType,
		Annotations: r.Annotations,
	}
}
