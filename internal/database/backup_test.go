package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"grillbook/internal/config"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackupService(t *testing.T) {
	tempDir := t.TempDir()
	storagePath := filepath.Join(tempDir, "backups")

	logger := zerolog.Nop()
	db, err := NewDB(filepath.Join(tempDir, "source.db"), &logger)
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	require.NoError(t, db.Insert(ctx, sampleReservation(time.Date(2030, 5, 1, 10, 0, 0, 0, time.UTC), time.Hour)))

	cfg := config.BackupConfig{
		Enabled:       true,
		StoragePath:   storagePath,
		RetentionDays: 1,
	}
	s := NewBackupService(db, cfg, &logger)

	var backupPath string
	t.Run("PerformBackup", func(t *testing.T) {
		backupPath, err = s.PerformBackup(ctx)
		require.NoError(t, err)
		assert.FileExists(t, backupPath)

		restored, err := NewDB(backupPath, &logger)
		require.NoError(t, err)
		defer restored.Close()

		list, err := restored.ListAll(ctx)
		require.NoError(t, err)
		assert.Len(t, list, 1)
	})

	t.Run("CleanupOldBackups", func(t *testing.T) {
		oldFile := filepath.Join(storagePath, "backup_old.db")
		require.NoError(t, os.WriteFile(oldFile, []byte("old"), 0o644))
		unrelated := filepath.Join(storagePath, "notes.txt")
		require.NoError(t, os.WriteFile(unrelated, []byte("keep"), 0o644))

		oldTime := time.Now().AddDate(0, 0, -2)
		require.NoError(t, os.Chtimes(oldFile, oldTime, oldTime))
		require.NoError(t, os.Chtimes(unrelated, oldTime, oldTime))

		assert.Equal(t, 1, s.CleanupOldBackups())
		assert.NoFileExists(t, oldFile)
		assert.FileExists(t, unrelated)
		assert.FileExists(t, backupPath)
	})
}

func TestBackupService_Disabled(_ *testing.T) {
	logger := zerolog.Nop()
	s := NewBackupService(nil, config.BackupConfig{Enabled: false}, &logger)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.Start(ctx)
}

func TestBackupService_NoRetention(t *testing.T) {
	logger := zerolog.Nop()
	s := NewBackupService(nil, config.BackupConfig{StoragePath: t.TempDir()}, &logger)
	assert.Zero(t, s.CleanupOldBackups())
}
