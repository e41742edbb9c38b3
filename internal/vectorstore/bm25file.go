package vectorstore

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dshills/semindex-mcp/internal/bm25"
)

// bm25Path returns the companion model file for a hybrid collection.
func (s *SQLiteStore) bm25Path(name string) string {
	return filepath.Join(s.dir, name+"_bm25.json")
}

// loadModel reads the persisted BM25 model for a collection.
func (s *SQLiteStore) loadModel(name string) (*bm25.Model, error) {
	data, err := os.ReadFile(s.bm25Path(name))
	if err != nil {
		return nil, fmt.Errorf("failed to read bm25 model: %w", err)
	}
	model, err := bm25.Deserialize(data)
	if err != nil {
		return nil, err
	}
	return model, nil
}

// saveModel persists a BM25 model via temp-file + rename so readers
// never observe a partial write.
func (s *SQLiteStore) saveModel(name string, model *bm25.Model) error {
	data, err := model.Serialize()
	if err != nil {
		return err
	}
	path := s.bm25Path(name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write bm25 model: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace bm25 model: %w", err)
	}
	return nil
}
