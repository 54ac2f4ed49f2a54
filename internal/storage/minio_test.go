package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestExportKey(t *testing.T) {
	at := time.Date(2024, 1, 2, 15, 4, 5, 0, time.UTC)
	require.Equal(t, "exports/d1/20240102T150405Z.js", ExportKey("d1", "JavaScript", at))
	require.Equal(t, "exports/d1/20240102T150405Z.py", ExportKey("d1", "python", at))
	require.Equal(t, "exports/d1/20240102T150405Z.txt", ExportKey("d1", "plaintext", at))
}

func TestNewMinIOStorageRequiresEndpoint(t *testing.T) {
	_, err := NewMinIOStorage(context.Background(), &MinIOConfig{})
	require.Error(t, err)
	require.False(t, (*MinIOConfig)(nil).Enabled())
}
