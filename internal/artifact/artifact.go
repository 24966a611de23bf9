// Package artifact writes the dated CSV outputs of a run to a local
// directory, an S3 bucket or memory.
package artifact

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Sink stores named artifacts. Put replaces any existing artifact of the
// same name and returns where it was written.
type Sink interface {
	Put(ctx context.Context, name string, data []byte) (string, error)
}

// Open returns the sink for target: s3://bucket/prefix selects S3 (see
// S3ConfigFromEnv), anything else is a local directory.
func Open(ctx context.Context, target string) (Sink, error) {
	if bucket, prefix, ok := ParseS3URL(target); ok {
		cfg, err := S3ConfigFromEnv()
		if err != nil {
			return nil, err
		}
		cfg.Bucket = bucket
		cfg.Prefix = prefix
		return NewS3(ctx, cfg)
	}
	if target == "" {
		return nil, fmt.Errorf("artifact target is empty")
	}
	return NewDir(target), nil
}

// ParseS3URL splits s3://bucket/prefix. ok is false for other targets.
func ParseS3URL(target string) (bucket, prefix string, ok bool) {
	rest, found := strings.CutPrefix(target, "s3://")
	if !found {
		return "", "", false
	}
	bucket, prefix, _ = strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", false
	}
	return bucket, strings.Trim(prefix, "/"), true
}

// Dir writes artifacts as files under Root.
type Dir struct {
	Root string
}

// NewDir returns a Dir sink rooted at root.
func NewDir(root string) *Dir {
	return &Dir{Root: root}
}

// Put writes data to a temp file in Root and renames it into place, so a
// reader never sees a partial artifact.
func (d *Dir) Put(_ context.Context, name string, data []byte) (string, error) {
	if err := os.MkdirAll(d.Root, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", d.Root, err)
	}
	tmp, err := os.CreateTemp(d.Root, "."+name+"-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", name, err)
	}
	dst := filepath.Join(d.Root, name)
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return "", fmt.Errorf("rename %s: %w", name, err)
	}
	return dst, nil
}

// Memory keeps artifacts in a map.
type Memory struct {
	mu      sync.Mutex
	objects map[string][]byte
}

// NewMemory returns an empty Memory sink.
func NewMemory() *Memory {
	return &Memory{objects: make(map[string][]byte)}
}

func (m *Memory) Put(_ context.Context, name string, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[name] = append([]byte(nil), data...)
	return "mem://" + name, nil
}

// Get returns the artifact stored under name.
func (m *Memory) Get(name string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[name]
	return b, ok
}

// Names lists stored artifact names, sorted.
func (m *Memory) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.objects))
	for n := range m.objects {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
