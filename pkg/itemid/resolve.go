package itemid

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrNotFound is returned when an item does not exist on disk.
	ErrNotFound = errors.New("item not found")
	// ErrNotDirectory is returned when an item exists but is not a directory.
	ErrNotDirectory = errors.New("item is not a directory")
)

// Resolver maps identifiers onto concrete directories and back.
type Resolver interface {
	// ResolveDir returns the directory id names, failing with ErrNotFound
	// or ErrNotDirectory.
	ResolveDir(id ItemID) (string, error)
	// ItemFor returns the identifier of a filesystem path.
	ItemFor(path string) (ItemID, error)
}

// FSResolver roots the item namespace at a directory of the local
// filesystem. An empty Root means the filesystem root.
type FSResolver struct {
	Root string
}

// NewFSResolver creates a resolver rooted at root.
func NewFSResolver(root string) (*FSResolver, error) {
	if root == "" {
		return &FSResolver{}, nil
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root %s: %w", root, err)
	}
	return &FSResolver{Root: abs}, nil
}

func (r *FSResolver) root() string {
	if r.Root == "" {
		return string(filepath.Separator)
	}
	return r.Root
}

// ResolveDir implements Resolver.
func (r *FSResolver) ResolveDir(id ItemID) (string, error) {
	if id == nil {
		return "", fmt.Errorf("%w: empty identifier", ErrNotFound)
	}
	dir := filepath.Join(append([]string{r.root()}, id...)...)
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, dir)
		}
		return "", fmt.Errorf("failed to stat %s: %w", dir, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrNotDirectory, dir)
	}
	return dir, nil
}

// ItemFor implements Resolver. Paths outside Root are rejected.
func (r *FSResolver) ItemFor(path string) (ItemID, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	rel, err := filepath.Rel(r.root(), abs)
	if err != nil {
		return nil, fmt.Errorf("failed to relate %s to %s: %w", abs, r.root(), err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil, fmt.Errorf("%s is outside %s", abs, r.root())
	}
	return FromSlash(filepath.ToSlash(rel)), nil
}
