package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
)

var legacyCollections = []string{Developers, Projects, Cameras, Inventory, DeviceTypes, Memories}

// ImportLegacy loads <collection>.json arrays from dir into collections that are
// still empty. Records keep their _id; records without one get a new id.
// Missing files are skipped. It returns the number of records imported.
func (s *Store) ImportLegacy(ctx context.Context, dir string) (int, error) {
	total := 0
	err := s.InTx(ctx, func(tx *Tx) error {
		for _, coll := range legacyCollections {
			path := filepath.Join(dir, coll+".json")
			data, err := os.ReadFile(path)
			if os.IsNotExist(err) {
				continue
			}
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", path, err)
			}

			existing, err := tx.Count(ctx, coll)
			if err != nil {
				return err
			}
			if existing > 0 {
				log.Printf("Skipping import of %s: collection already has %d records", coll, existing)
				continue
			}

			var records []map[string]json.RawMessage
			if err := json.Unmarshal(data, &records); err != nil {
				return fmt.Errorf("failed to parse %s: %w", path, err)
			}
			for _, rec := range records {
				var id string
				if raw, ok := rec["_id"]; ok {
					json.Unmarshal(raw, &id)
				}
				if id == "" {
					id = NewID()
				}
				if err := tx.Insert(ctx, coll, id, rec); err != nil {
					return err
				}
			}
			total += len(records)
			log.Printf("Imported %d %s records from %s", len(records), coll, path)
		}
		return nil
	})
	return total, err
}
