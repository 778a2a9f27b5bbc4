package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// FileBackend stores the chain as one JSON array on disk.
type FileBackend struct {
	path string
}

// NewFileBackend returns a backend writing to path.
func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: path}
}

// Path returns the file the chain is written to.
func (f *FileBackend) Path() string {
	return f.path
}

// Load implements Backend. A missing file is an empty chain.
func (f *FileBackend) Load(ctx context.Context) ([]Block, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read chain file: %w", err)
	}
	return DecodeChain(data)
}

// Save implements Backend. The chain is written to a temporary file and
// renamed over the previous one.
func (f *FileBackend) Save(ctx context.Context, blocks []Block) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := EncodeChain(blocks)
	if err != nil {
		return err
	}

	if dir := filepath.Dir(f.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create chain directory: %w", err)
		}
	}

	tempPath := f.path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		return fmt.Errorf("write temporary chain file: %w", err)
	}
	if err := os.Rename(tempPath, f.path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("rename temporary chain file: %w", err)
	}
	return nil
}

// EncodeChain serializes blocks in the persisted ledger format.
func EncodeChain(blocks []Block) ([]byte, error) {
	if blocks == nil {
		blocks = []Block{}
	}
	data, err := json.Marshal(blocks)
	if err != nil {
		return nil, fmt.Errorf("encode chain: %w", err)
	}
	return data, nil
}

// DecodeChain parses the persisted ledger format.
func DecodeChain(data []byte) ([]Block, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var blocks []Block
	if err := json.Unmarshal(data, &blocks); err != nil {
		return nil, fmt.Errorf("decode chain: %w", err)
	}
	return blocks, nil
}
