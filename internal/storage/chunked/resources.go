package chunked

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/OCAP2/inspector/internal/storage"
	"github.com/OCAP2/inspector/pkg/core"
)

// ErrOutsideRoot is returned for a relative path that escapes its root.
var ErrOutsideRoot = errors.New("path escapes recording root")

// Extractor unpacks a recording archive into dstDir. It either extracts
// everything or returns an error; progress is called with bytes done so far.
type Extractor interface {
	Extract(ctx context.Context, src, dstDir string, progress func(done, total int64)) error
}

// ResolvePath joins a slash separated relative path onto root, refusing
// paths that leave it.
func ResolvePath(root, rel string) (string, error) {
	if rel == "" || filepath.IsAbs(rel) || strings.HasPrefix(rel, "/") {
		return "", fmt.Errorf("%w: %q", ErrOutsideRoot, rel)
	}
	clean := filepath.Clean(filepath.FromSlash(rel))
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrOutsideRoot, rel)
	}
	return filepath.Join(root, clean), nil
}

// DirResolver resolves resources from files under Root.
type DirResolver struct {
	Root string
}

var _ storage.Resolver = DirResolver{}

// Resolve reads the file at path. Text files fill TextData, others Data.
func (d DirResolver) Resolve(ctx context.Context, path string) (*core.Resource, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name, err := ResolvePath(d.Root, path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("failed to read resource: %w", err)
	}

	kind := http.DetectContentType(data)
	res := &core.Resource{Path: path, Type: &kind}
	if strings.HasPrefix(kind, "text/") && utf8.Valid(data) {
		text := string(data)
		res.TextData = &text
	} else {
		res.Data = data
	}
	return res, nil
}

// ResolveResources fills every stub of the recording through res. Resources
// that fail to resolve stay stubs; the first error is returned.
func (r *Recording) ResolveResources(ctx context.Context, res storage.Resolver) error {
	var first error
	for _, p := range r.resources.Paths() {
		cur, ok := r.resources.Get(p)
		if !ok || !cur.IsStub() {
			continue
		}
		got, err := res.Resolve(ctx, p)
		if err != nil {
			if first == nil {
				first = err
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}
		r.resources.Set(got)
	}
	return first
}
