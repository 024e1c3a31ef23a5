package recorder

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore(t *testing.T) {
	st, err := Open(filepath.Join(t.TempDir(), "r.db"))
	require.NoError(t, err)
	defer st.Close()

	_, err = st.Latest("temperature", 0)
	assert.ErrorIs(t, err, ErrNoReading)

	require.NoError(t, st.Insert(Row{TsMs: 1, Kind: "temperature", CapID: 0, Value: 250}))
	require.NoError(t, st.Insert(Row{TsMs: 2, Kind: "temperature", CapID: 0, Value: 251}))
	require.NoError(t, st.Insert(Row{TsMs: 3, Kind: "temperature", CapID: 1, Value: 199}))
	require.NoError(t, st.Insert(Row{TsMs: 3, Kind: "pressure", CapID: 0, Value: 1006567}))

	r, err := st.Latest("temperature", 0)
	require.NoError(t, err)
	assert.Equal(t, Row{TsMs: 2, Kind: "temperature", CapID: 0, Value: 251}, r)

	r, err = st.Latest("pressure", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1006567), r.Value)

	n, err := st.Count("temperature")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestStoreReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "r.db")
	st, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, st.Insert(Row{TsMs: 5, Kind: "humidity", Value: 5500}))
	require.NoError(t, st.Close())

	st, err = Open(path)
	require.NoError(t, err)
	defer st.Close()
	r, err := st.Latest("humidity", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(5500), r.Value)
}
