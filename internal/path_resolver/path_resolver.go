package path_resolver

import (
	"context"
	"fmt"
	"strings"

	ds "github.com/AnishMulay/capfs/internal/directory_service"
	"github.com/AnishMulay/capfs/internal/file_service"
)

// SplitPath returns the components of an absolute path. Repeated and
// trailing slashes and "." components are dropped, so "/" has none.
func SplitPath(path string) ([]string, error) {
	if !strings.HasPrefix(path, "/") {
		return nil, fmt.Errorf("%w: path %q is not absolute", file_service.ErrInvalidArgument, path)
	}
	var parts []string
	for _, part := range strings.Split(path, "/") {
		if part == "" || part == "." {
			continue
		}
		if err := ds.ValidateName(part); err != nil {
			return nil, fmt.Errorf("path %q: %w", path, err)
		}
		parts = append(parts, part)
	}
	return parts, nil
}

type PathResolver struct {
	dirs *ds.DirectoryService
}

func NewPathResolver(dirs *ds.DirectoryService) *PathResolver {
	return &PathResolver{dirs: dirs}
}

// ResolveParent opens the directory that holds the last component of path
// and returns it with that component, unopened. For "/" the root itself is
// returned with an empty name. The caller closes the directory.
func (r *PathResolver) ResolveParent(ctx context.Context, path string) (*ds.Directory, string, error) {
	parts, err := SplitPath(path)
	if err != nil {
		return nil, "", err
	}

	cur, err := r.dirs.OpenRoot(ctx)
	if err != nil {
		return nil, "", err
	}
	if len(parts) == 0 {
		return cur, "", nil
	}

	for _, part := range parts[:len(parts)-1] {
		next, err := r.dirs.OpenDir(ctx, cur, part)
		cur.Close()
		if err != nil {
			return nil, "", fmt.Errorf("resolve %q at %q: %w", path, part, err)
		}
		cur = next
	}
	return cur, parts[len(parts)-1], nil
}

// ResolveDir opens path itself as a directory.
func (r *PathResolver) ResolveDir(ctx context.Context, path string) (*ds.Directory, error) {
	parent, name, err := r.ResolveParent(ctx, path)
	if err != nil {
		return nil, err
	}
	if name == "" {
		return parent, nil
	}
	defer parent.Close()
	return r.dirs.OpenDir(ctx, parent, name)
}
