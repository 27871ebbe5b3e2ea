package backfill

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Checkpoint records how far a backfill got for one contract.
type Checkpoint struct {
	Contract  string `json:"contract"`
	LastBlock uint64 `json:"last_block"`
	UpdatedAt string `json:"updated_at"`
}

// CheckpointStore keeps a single checkpoint file. A disabled store loads
// nothing and saves nothing.
type CheckpointStore struct {
	path     string
	contract common.Address
	enabled  bool
	now      func() time.Time
}

func NewCheckpointStore(path string, contract common.Address, enabled bool) *CheckpointStore {
	return &CheckpointStore{
		path:     path,
		contract: contract,
		enabled:  enabled && path != "",
		now:      time.Now,
	}
}

// Load returns the stored checkpoint. ok is false when there is none yet.
// A checkpoint written for another contract is an error so a stale file
// never skips blocks silently.
func (c *CheckpointStore) Load() (cp Checkpoint, ok bool, err error) {
	if !c.enabled {
		return Checkpoint{}, false, nil
	}

	data, err := os.ReadFile(c.path)
	if errors.Is(err, os.ErrNotExist) {
		return Checkpoint{}, false, nil
	}
	if err != nil {
		return Checkpoint{}, false, fmt.Errorf("read checkpoint: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return Checkpoint{}, false, nil
	}

	if err := json.Unmarshal(data, &cp); err != nil {
		return Checkpoint{}, false, fmt.Errorf("parse checkpoint %s: %w", c.path, err)
	}
	if cp.Contract != "" && !strings.EqualFold(cp.Contract, c.contract.Hex()) {
		return Checkpoint{}, false, fmt.Errorf("checkpoint %s belongs to contract %s, not %s", c.path, cp.Contract, c.contract.Hex())
	}
	return cp, true, nil
}

// Save replaces the checkpoint file through a rename.
func (c *CheckpointStore) Save(lastBlock uint64) error {
	if !c.enabled {
		return nil
	}

	if dir := filepath.Dir(c.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create checkpoint dir: %w", err)
		}
	}

	data, err := json.Marshal(Checkpoint{
		Contract:  c.contract.Hex(),
		LastBlock: lastBlock,
		UpdatedAt: c.now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		return fmt.Errorf("replace checkpoint: %w", err)
	}
	return nil
}
