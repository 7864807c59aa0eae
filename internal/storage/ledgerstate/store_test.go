package ledgerstate

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/cdpengine/internal/domain"
)

func TestStore_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")
	s, err := NewStore(path)
	require.NoError(t, err)

	loaded, err := s.Load()
	require.NoError(t, err)
	assert.Nil(t, loaded, "nothing saved yet")

	alice := common.HexToAddress("0x00000000000000000000000000000000000000b1")
	weth := common.HexToAddress("0x00000000000000000000000000000000000000a1")
	state := State{
		SavedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Ledger: domain.LedgerSnapshot{Accounts: []domain.AccountSnapshot{{
			Account:    alice,
			Debt:       "5000000000000000000000",
			Collateral: map[string]string{weth.Hex(): "10000000000000000000"},
		}}},
		Collateral: map[string]map[string]string{weth.Hex(): {alice.Hex(): "1"}},
		Stablecoin: map[string]string{alice.Hex(): "5000000000000000000000"},
	}
	require.NoError(t, s.Save(state))

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file is renamed away")

	loaded, err = s.Load()
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, state.Ledger, loaded.Ledger)
	assert.Equal(t, state.Collateral, loaded.Collateral)
	assert.Equal(t, state.Stablecoin, loaded.Stablecoin)
	assert.True(t, state.SavedAt.Equal(loaded.SavedAt))
}

func TestStore_LoadCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	s, err := NewStore(path)
	require.NoError(t, err)
	_, err = s.Load()
	require.Error(t, err)

	require.NoError(t, os.WriteFile(path, nil, 0o644))
	loaded, err := s.Load()
	require.NoError(t, err)
	assert.Nil(t, loaded)
}
