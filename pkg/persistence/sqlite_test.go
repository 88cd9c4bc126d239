package persistence

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSQLiteStore_SatisfiesStoreContract(t *testing.T) {
	runStoreContractTests(t, func() Store {
		dsn := filepath.Join(t.TempDir(), "aegis.db")
		s, err := OpenSQLiteStore(dsn)
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		return s
	})
}
