package filestore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aspiranek/sim/internal/database/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func testStore(t *testing.T) (*Store, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.InternalFile{}))

	store, err := New(t.TempDir())
	require.NoError(t, err)
	return store, db
}

func TestReserveWriteRead(t *testing.T) {
	store, db := testStore(t)

	id, err := store.Reserve(db)
	require.NoError(t, err)
	assert.NotZero(t, id)

	// Reserved but unwritten: the path exists logically, the bytes do not.
	_, statErr := os.Stat(store.Path(id))
	assert.True(t, os.IsNotExist(statErr))

	require.NoError(t, store.WriteBytes(id, []byte("content")))
	got, err := store.Read(id)
	require.NoError(t, err)
	assert.Equal(t, []byte("content"), got)
}

func TestWriteFromReader(t *testing.T) {
	store, db := testStore(t)

	id, err := store.Reserve(db)
	require.NoError(t, err)
	require.NoError(t, store.Write(id, strings.NewReader("streamed")))

	got, err := store.Read(id)
	require.NoError(t, err)
	assert.Equal(t, []byte("streamed"), got)
}

func TestWriteLeavesNoStagingFiles(t *testing.T) {
	store, db := testStore(t)

	id, err := store.Reserve(db)
	require.NoError(t, err)
	require.NoError(t, store.WriteBytes(id, []byte("x")))

	entries, err := os.ReadDir(filepath.Dir(store.Path(id)))
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasPrefix(e.Name(), ".staging-"),
			"staging file %s survived a successful write", e.Name())
	}
}

func TestRemoveIsIdempotent(t *testing.T) {
	store, db := testStore(t)

	id, err := store.Reserve(db)
	require.NoError(t, err)
	require.NoError(t, store.WriteBytes(id, []byte("x")))

	require.NoError(t, store.Remove(id))
	require.NoError(t, store.Remove(id), "removing already-removed bytes must not error")
}

func TestReserveRollsBackWithTransaction(t *testing.T) {
	store, db := testStore(t)

	var reserved uint64
	err := db.Transaction(func(tx *gorm.DB) error {
		id, err := store.Reserve(tx)
		if err != nil {
			return err
		}
		reserved = id
		return assert.AnError
	})
	require.Error(t, err)

	var count int64
	require.NoError(t, db.Model(&models.InternalFile{}).
		Where("id = ?", reserved).Count(&count).Error)
	assert.Zero(t, count, "rolled-back reservation must not survive")
}
