package port

import "context"

// ExportArchive keeps a copy of every generated export under a stable name
type ExportArchive interface {
	// Save replaces name with content atomically
	Save(ctx context.Context, name string, content []byte) error
	// GetFullPath is where name lives, for logs
	GetFullPath(name string) string
}
