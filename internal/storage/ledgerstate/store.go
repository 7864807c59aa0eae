// Package ledgerstate persists the engine ledger together with the balances
// of the reference tokens, so a restarted process resumes where it stopped.
package ledgerstate

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/vadiminshakov/cdpengine/internal/domain"
)

const DefaultPath = "./data/state.json"

// State is everything written to disk.
type State struct {
	SavedAt time.Time             `json:"saved_at"`
	Ledger  domain.LedgerSnapshot `json:"ledger"`
	// Collateral holds reference token balances: asset hex -> owner hex -> amount.
	Collateral map[string]map[string]string `json:"collateral,omitempty"`
	Stablecoin map[string]string            `json:"stablecoin,omitempty"`
}

// Store reads and writes State as a JSON file.
type Store struct {
	mu   sync.Mutex
	path string
}

// NewStore creates the parent directory of path.
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = DefaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "create state dir")
	}

	return &Store{path: path}, nil
}

func (s *Store) Path() string { return s.path }

// Load reads the state. It returns nil, nil if nothing was saved yet.
func (s *Store) Load() (*State, error) {
	if s == nil || s.path == "" {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}

		return nil, errors.Wrap(err, "read ledger state")
	}

	if len(payload) == 0 {
		return nil, nil
	}

	var state State
	if err := json.Unmarshal(payload, &state); err != nil {
		return nil, errors.Wrap(err, "decode ledger state")
	}

	return &state, nil
}

// Save writes the state atomically via a temp file.
func (s *Store) Save(state State) error {
	if s == nil || s.path == "" {
		return nil
	}

	payload, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode ledger state")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return errors.Wrap(err, "write ledger state temp file")
	}

	if err := os.Rename(tmp, s.path); err != nil {
		return errors.Wrap(err, "persist ledger state")
	}

	return nil
}
