package governance

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// FileResolver loads the tool catalog from a JSON file on disk. The file is
// read once and cached; Reload picks up edits without a restart.
type FileResolver struct {
	path string

	mu    sync.RWMutex
	tools []ToolDefinition
}

func NewFileResolver(path string) (*FileResolver, error) {
	r := &FileResolver{path: path}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload re-reads the catalog file.
func (r *FileResolver) Reload() error {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return fmt.Errorf("read tool catalog: %w", err)
	}

	var tools []ToolDefinition
	if err := json.Unmarshal(data, &tools); err != nil {
		return fmt.Errorf("parse tool catalog: %w", err)
	}

	// Compile once so a broken schema fails the reload, not a turn.
	if _, err := NewCatalog(tools); err != nil {
		return err
	}

	r.mu.Lock()
	r.tools = tools
	r.mu.Unlock()
	return nil
}

func (r *FileResolver) GetResolvedTools(ctx context.Context) ([]ToolDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ToolDefinition, len(r.tools))
	copy(out, r.tools)
	return out, nil
}
