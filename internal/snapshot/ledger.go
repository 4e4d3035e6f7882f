package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	_const "swgconf/internal/const"
	"swgconf/model"
)

func (s *Store) ledgerPath() string {
	return filepath.Join(s.root, _const.LedgerFileName)
}

// readLedger loads the ledger. A missing file is an empty ledger.
func (s *Store) readLedger() (*model.Ledger, error) {
	data, err := s.fs.ReadFile(s.ledgerPath())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &model.Ledger{Configurations: []model.SnapshotMetadata{}}, nil
		}
		return nil, fmt.Errorf("read ledger: %w", err)
	}

	var ledger model.Ledger
	if err := json.Unmarshal(data, &ledger); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLedgerCorrupt, err)
	}
	if ledger.Configurations == nil {
		ledger.Configurations = []model.SnapshotMetadata{}
	}
	for i := range ledger.Configurations {
		if ledger.Configurations[i].Files == nil {
			ledger.Configurations[i].Files = []string{}
		}
	}
	return &ledger, nil
}

func (s *Store) writeLedger(ledger *model.Ledger) error {
	data, err := json.MarshalIndent(ledger, "", "  ")
	if err != nil {
		return err
	}
	if err := s.fs.WriteFileAtomic(s.ledgerPath(), data, _const.FilePerm); err != nil {
		return fmt.Errorf("write ledger: %w", err)
	}
	return nil
}

func findSnapshot(ledger *model.Ledger, id string) int {
	for i, meta := range ledger.Configurations {
		if meta.ID == id {
			return i
		}
	}
	return -1
}
