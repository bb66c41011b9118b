package files

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"magnetstream/internal/domain"
)

// Resolver confines client-supplied relative paths to a fixed downloads root.
// Every filesystem read in the HTTP layer goes through Resolve first.
type Resolver struct {
	// root is the lexical absolute root; resolved paths are built under it.
	root string
	// realRoot is root with symlinks evaluated; containment is checked
	// against it so a symlinked root still confines correctly.
	realRoot string
}

func NewResolver(root string) (*Resolver, error) {
	base := strings.TrimSpace(root)
	if base == "" {
		return nil, domain.ErrInvalidPath
	}
	base = filepath.Clean(base)
	if abs, err := filepath.Abs(base); err == nil {
		base = abs
	}
	realRoot := base
	if real, err := filepath.EvalSymlinks(base); err == nil {
		realRoot = real
	}
	return &Resolver{root: base, realRoot: realRoot}, nil
}

func (r *Resolver) Root() string {
	return r.root
}

// Resolve joins rel onto the root and verifies the result stays under it,
// both lexically and after evaluating symlinks. The separator is part of the
// prefix check so a sibling directory like "downloads-evil" can never match
// a "downloads" root.
func (r *Resolver) Resolve(rel string) (string, error) {
	if strings.TrimSpace(rel) == "" {
		return "", domain.ErrInvalidPath
	}
	if filepath.IsAbs(rel) || strings.HasPrefix(rel, "/") {
		return "", domain.ErrInvalidPath
	}

	joined := filepath.Join(r.root, filepath.FromSlash(rel))
	joined = filepath.Clean(joined)
	if abs, err := filepath.Abs(joined); err == nil {
		joined = abs
	}

	if joined == r.root {
		return "", domain.ErrInvalidPath
	}
	if !strings.HasPrefix(joined, r.root+string(filepath.Separator)) {
		return "", domain.ErrInvalidPath
	}

	real, err := evalExisting(joined)
	if err != nil {
		return "", domain.ErrInvalidPath
	}
	if real == r.realRoot {
		return "", domain.ErrInvalidPath
	}
	if !strings.HasPrefix(real, r.realRoot+string(filepath.Separator)) {
		return "", domain.ErrInvalidPath
	}
	return joined, nil
}

// evalExisting evaluates symlinks on p. Trailing segments that do not exist
// yet are tolerated: the deepest existing ancestor is resolved and the
// missing suffix re-joined, so a path inside a not-yet-downloaded session
// directory still validates.
func evalExisting(p string) (string, error) {
	suffix := ""
	for {
		real, err := filepath.EvalSymlinks(p)
		if err == nil {
			return filepath.Join(real, suffix), nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(p)
		if parent == p {
			return "", err
		}
		suffix = filepath.Join(filepath.Base(p), suffix)
		p = parent
	}
}
