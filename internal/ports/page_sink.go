package ports

import "github.com/bft-labs/walfp/internal/domain"

// PageSink stores reconstructed pages.
type PageSink interface {
	// Path returns where the page identified by key is stored.
	Path(key domain.PageKey) string

	// Write stores page under key and returns the number of bytes written.
	// The implementation should write atomically so a partial page is never
	// visible under the final name.
	Write(key domain.PageKey, page []byte) (int, error)
}
