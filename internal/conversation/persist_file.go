package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FilePersister writes each snapshot as an indented JSON file in a directory.
type FilePersister struct {
	dir string
}

func NewFilePersister(dir string) (*FilePersister, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("snapshot directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}
	return &FilePersister{dir: dir}, nil
}

func (p *FilePersister) SaveSnapshot(_ context.Context, key string, conv Conversation) error {
	path, err := p.path(key)
	if err != nil {
		return err
	}
	raw, err := json.MarshalIndent(conv, "", "    ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return os.Rename(tmp, path)
}

func (p *FilePersister) LoadSnapshot(_ context.Context, key string) (Conversation, error) {
	path, err := p.path(key)
	if err != nil {
		return Conversation{}, err
	}
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Conversation{}, ErrNotFound
	}
	if err != nil {
		return Conversation{}, fmt.Errorf("read snapshot: %w", err)
	}
	var conv Conversation
	if err := json.Unmarshal(raw, &conv); err != nil {
		return Conversation{}, fmt.Errorf("decode snapshot %s: %w", filepath.Base(path), err)
	}
	return conv, nil
}

func (p *FilePersister) Close() error { return nil }

func (p *FilePersister) path(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" || strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return "", fmt.Errorf("invalid snapshot name %q", key)
	}
	return filepath.Join(p.dir, key+".json"), nil
}
