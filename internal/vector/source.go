package vector

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DirSource serves documents from a directory, one file per document id.
// It tries <id>.md, <id>.txt, and <id> in that order.
type DirSource struct {
	dir string
}

// NewDirSource creates a source rooted at dir.
func NewDirSource(dir string) *DirSource {
	return &DirSource{dir: dir}
}

func (s *DirSource) Document(ctx context.Context, id string) (string, map[string]interface{}, error) {
	if strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return "", nil, fmt.Errorf("invalid document id %q", id)
	}

	for _, name := range []string{id + ".md", id + ".txt", id} {
		path := filepath.Join(s.dir, name)
		content, err := os.ReadFile(path)
		if err == nil {
			return string(content), map[string]interface{}{"path": path}, nil
		}
		if !os.IsNotExist(err) {
			return "", nil, fmt.Errorf("read document %s: %w", id, err)
		}
	}
	return "", nil, fmt.Errorf("document %q not found under %s", id, s.dir)
}

// MapSource is a fixed in-memory document set, handy for tests and embedded
// use.
type MapSource map[string]string

func (s MapSource) Document(ctx context.Context, id string) (string, map[string]interface{}, error) {
	content, ok := s[id]
	if !ok {
		return "", nil, fmt.Errorf("document %q not found", id)
	}
	return content, nil, nil
}
