package training

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"deltagate/internal/domain"
)

func TestFSArtifactsWritesUnderArtifactRef(t *testing.T) {
	root := t.TempDir()
	store := NewFSArtifacts(root)

	model := domain.ModelVersion{
		ID:          domain.ModelID("tabular-logreg-00112233445566aa"),
		Version:     domain.VersionName("v1700000000000"),
		ArtifactRef: "models/tabular-logreg-00112233445566aa/v1700000000000/model.bin",
	}
	require.NoError(t, store.Put(context.Background(), model))

	payload, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(model.ArtifactRef)))
	require.NoError(t, err)
	require.Equal(t, "DELTA1v1700000000000", string(payload))
}
