// Package file implements snapshot persistence on the local filesystem.
// Snapshots are JSON files under <base>/<scene_id>/<snapshot_id>.json.
package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/masltov-creations/opencommotion/pkg/ports"
	"github.com/masltov-creations/opencommotion/pkg/scene"
)

// Archive implements ports.SnapshotArchive using the local filesystem.
type Archive struct {
	BasePath string
}

// New creates an Archive rooted at basePath, defaulting to
// ".opencommotion/snapshots".
func New(basePath string) *Archive {
	if basePath == "" {
		basePath = filepath.Join(".opencommotion", "snapshots")
	}
	return &Archive{BasePath: basePath}
}

var _ ports.SnapshotArchive = (*Archive)(nil)

func safeID(id string) error {
	if id == "" {
		return fmt.Errorf("id cannot be empty")
	}
	if strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return fmt.Errorf("id %q contains path separators", id)
	}
	return nil
}

func (a *Archive) path(sceneID, snapshotID string) string {
	return filepath.Join(a.BasePath, sceneID, snapshotID+".json")
}

// Save writes the blob atomically: temp file, fsync, rename.
func (a *Archive) Save(ctx context.Context, sceneID, snapshotID string, blob []byte) error {
	if err := safeID(sceneID); err != nil {
		return err
	}
	if err := safeID(snapshotID); err != nil {
		return err
	}

	dir := filepath.Join(a.BasePath, sceneID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to ensure snapshot directory: %w", err)
	}

	destPath := a.path(sceneID, snapshotID)

	// Temp file in the same directory so the rename stays on one filesystem.
	tmpFile, err := os.CreateTemp(dir, "tmp-"+snapshotID+"-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath) // No-op once renamed.
	}()

	if _, err := tmpFile.Write(blob); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to fsync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	// os.Rename on Windows fails when the destination exists, so clear it
	// first. The brief window is acceptable compared to a torn write.
	if _, err := os.Stat(destPath); err == nil {
		if err := os.Remove(destPath); err != nil {
			return fmt.Errorf("failed to remove existing snapshot for overwrite: %w", err)
		}
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file into place: %w", err)
	}
	return nil
}

// Load reads a snapshot blob.
func (a *Archive) Load(ctx context.Context, sceneID, snapshotID string) ([]byte, error) {
	if err := safeID(sceneID); err != nil {
		return nil, err
	}
	if err := safeID(snapshotID); err != nil {
		return nil, err
	}

	blob, err := os.ReadFile(a.path(sceneID, snapshotID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("scene %s snapshot %s: %w", sceneID, snapshotID, scene.ErrSnapshotNotFound)
		}
		return nil, fmt.Errorf("failed to read snapshot file: %w", err)
	}
	return blob, nil
}

// List reports the scene's snapshots, newest first by file modification time.
func (a *Archive) List(ctx context.Context, sceneID string) ([]ports.SnapshotInfo, error) {
	if err := safeID(sceneID); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(filepath.Join(a.BasePath, sceneID))
	if err != nil {
		if os.IsNotExist(err) {
			return []ports.SnapshotInfo{}, nil
		}
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}

	infos := make([]ports.SnapshotInfo, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".json" || strings.HasPrefix(name, "tmp-") {
			continue
		}
		fi, err := entry.Info()
		if err != nil {
			continue
		}
		infos = append(infos, ports.SnapshotInfo{
			SnapshotID: strings.TrimSuffix(name, ".json"),
			SavedAt:    fi.ModTime().UTC(),
		})
	}
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].SavedAt.Equal(infos[j].SavedAt) {
			return infos[i].SnapshotID < infos[j].SnapshotID
		}
		return infos[i].SavedAt.After(infos[j].SavedAt)
	})
	return infos, nil
}
