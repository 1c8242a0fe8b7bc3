package training

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"deltagate/internal/domain"
	"deltagate/pkg/status"
)

// Artifacts persists trained model binaries. The in-memory registry holds
// metadata only; the artifact outlives the process.
type Artifacts interface {
	Put(ctx context.Context, model domain.ModelVersion) error
}

// artifactMagic prefixes every artifact file so a loader can reject foreign
// binaries before deserializing anything.
const artifactMagic = "DELTA1"

// FSArtifacts writes artifacts under root following the ArtifactRef layout
// models/<id>/<version>/model.bin.
type FSArtifacts struct {
	root string
}

func NewFSArtifacts(root string) *FSArtifacts {
	return &FSArtifacts{root: root}
}

func (a *FSArtifacts) Put(_ context.Context, model domain.ModelVersion) error {
	path := filepath.Join(a.root, filepath.FromSlash(model.ArtifactRef))
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return status.Wrap(status.CodeInternal, "artifact_dir_failed", err)
	}
	payload := fmt.Sprintf("%s%s", artifactMagic, model.Version.String())
	if err := os.WriteFile(path, []byte(payload), 0o600); err != nil {
		return status.Wrap(status.CodeInternal, "artifact_write_failed", err)
	}
	return nil
}

// MemoryArtifacts records puts for tests.
type MemoryArtifacts struct {
	mu   sync.Mutex
	refs []string
}

func NewMemoryArtifacts() *MemoryArtifacts {
	return &MemoryArtifacts{}
}

func (a *MemoryArtifacts) Put(_ context.Context, model domain.ModelVersion) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.refs = append(a.refs, model.ArtifactRef)
	return nil
}

func (a *MemoryArtifacts) Refs() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string{}, a.refs...)
}
