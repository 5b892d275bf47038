package photo

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"camera-fleet/pkg/apperr"
	"camera-fleet/pkg/models"
)

func writeImages(t *testing.T, names ...string) []string {
	dir := t.TempDir()
	var paths []string
	for _, n := range names {
		p := filepath.Join(dir, n)
		require.NoError(t, os.WriteFile(p, []byte("jpeg:"+n), 0644))
		paths = append(paths, p)
	}
	return paths
}

func TestArchiveKeepsListOrder(t *testing.T) {
	a := NewArchiver(t.TempDir())
	req := &models.RenderRequest{ID: "p1", DeveloperTag: "acme", ProjectTag: "tower", Camera: "cam1"}
	images := writeImages(t, "20250102120000.jpg", "20250101120000.jpg", "20250103120000.jpg")

	res, err := a.Archive(context.Background(), req, images)
	require.NoError(t, err)
	assert.Equal(t, "photos_acme_tower_cam1_p1.zip", res.FileName)
	assert.Equal(t, 3, res.FrameCount)
	assert.Positive(t, res.Size)

	zr, err := zip.OpenReader(res.OutputPath)
	require.NoError(t, err)
	defer zr.Close()
	require.Len(t, zr.File, 3)
	assert.Equal(t, "20250102120000.jpg", zr.File[0].Name)
	assert.Equal(t, "20250101120000.jpg", zr.File[1].Name)
	assert.Equal(t, "20250103120000.jpg", zr.File[2].Name)

	_, err = os.Stat(res.OutputPath + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestArchiveMissingImageLeavesNothing(t *testing.T) {
	out := t.TempDir()
	a := NewArchiver(out)
	req := &models.RenderRequest{ID: "p2", DeveloperTag: "acme", ProjectTag: "tower", Camera: "cam1"}
	images := writeImages(t, "20250101120000.jpg")
	images = append(images, filepath.Join(out, "gone.jpg"))

	_, err := a.Archive(context.Background(), req, images)
	require.Error(t, err)

	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestArchiveEmpty(t *testing.T) {
	a := NewArchiver(t.TempDir())
	_, err := a.Archive(context.Background(), &models.RenderRequest{ID: "p3"}, nil)
	assert.True(t, apperr.Is(err, apperr.NoImagesMatched))
}
