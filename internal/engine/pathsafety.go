package engine

import (
	"path/filepath"
	"strings"

	"github.com/normanking/docgraph/pkg/types"
)

// PathSafety resolves caller-supplied filesystem paths (document ingest
// sources) to absolute form and restricts them to a configured allow-list
// of base directories, rejecting null bytes along the way.
type PathSafety struct {
	allowedDirs []string
}

// NewPathSafety constructs a PathSafety restricted to allowedDirs. An empty
// list allows any absolute path once resolved (no restriction configured).
func NewPathSafety(allowedDirs []string) *PathSafety {
	resolved := make([]string, 0, len(allowedDirs))
	for _, d := range allowedDirs {
		resolved = append(resolved, filepath.Clean(d))
	}
	return &PathSafety{allowedDirs: resolved}
}

// Resolve validates and absolutizes path, returning VALIDATION_ERROR for a
// null byte, an unresolvable path, or a path outside the allow-list.
func (p *PathSafety) Resolve(path string) (string, error) {
	if strings.ContainsRune(path, 0) {
		return "", types.NewAppError(types.ErrValidation, "path contains a null byte", nil)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", types.NewAppError(types.ErrValidation, "cannot resolve path: "+err.Error(), nil)
	}
	abs = filepath.Clean(abs)

	if len(p.allowedDirs) == 0 {
		return abs, nil
	}
	for _, dir := range p.allowedDirs {
		if abs == dir || strings.HasPrefix(abs, dir+string(filepath.Separator)) {
			return abs, nil
		}
	}
	return "", types.NewAppError(types.ErrValidation, "path is outside the configured allow-list: "+abs, nil)
}
