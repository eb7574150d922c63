package wal

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/corvusdb/corvusdb/core/storage/page"
)

func TestLogManager_AppendAssignsIncreasingLSN(t *testing.T) {
	lm, err := Open(t.TempDir(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { lm.Close() })

	lsn1, err := lm.Append(&Record{PageID: 1, Type: RecordTypeNewPage})
	require.NoError(t, err)
	lsn2, err := lm.Append(&Record{PageID: 2, Type: RecordTypeUpdate, Data: []byte("hello")})
	require.NoError(t, err)

	require.Greater(t, lsn2, lsn1)
}

func TestLogManager_SyncIsDurable(t *testing.T) {
	dir := t.TempDir()
	lm, err := Open(dir, nil)
	require.NoError(t, err)

	_, err = lm.Append(&Record{PageID: page.ID(7), Type: RecordTypeFreePage})
	require.NoError(t, err)
	require.NoError(t, lm.Sync())
	require.NoError(t, lm.Close())

	reopened, err := Open(dir, nil)
	require.NoError(t, err)
	t.Cleanup(func() { reopened.Close() })
	require.Greater(t, reopened.nextLSN, LSN(1))
}

func TestLogManager_CloseFlushesUnsyncedRecords(t *testing.T) {
	dir := t.TempDir()
	lm, err := Open(dir, nil)
	require.NoError(t, err)

	_, err = lm.Append(&Record{PageID: 3, Type: RecordTypeUpdate})
	require.NoError(t, err)
	require.NoError(t, lm.Close())

	reopened, err := Open(dir, nil)
	require.NoError(t, err)
	defer reopened.Close()
	require.Greater(t, reopened.nextLSN, LSN(1))
}
