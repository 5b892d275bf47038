package photo

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"camera-fleet/pkg/apperr"
	"camera-fleet/pkg/models"
)

// Archiver packs a request's images into one zip file.
type Archiver struct {
	OutputDir string
}

// NewArchiver returns an Archiver writing into outputDir.
func NewArchiver(outputDir string) *Archiver {
	return &Archiver{OutputDir: outputDir}
}

// OutputName is the final archive name for a request.
func OutputName(req *models.RenderRequest) string {
	return fmt.Sprintf("photos_%s_%s_%s_%s.zip", req.DeveloperTag, req.ProjectTag, req.Camera, req.ID)
}

// Archive writes images, in order, into the request's zip. The archive is
// built under a temporary name and only renamed into place when complete.
func (a *Archiver) Archive(ctx context.Context, req *models.RenderRequest, images []string) (*models.RenderResult, error) {
	if len(images) == 0 {
		return nil, apperr.New(apperr.NoImagesMatched, "request %s has no images to archive", req.ID)
	}
	if err := os.MkdirAll(a.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create photo output directory: %w", err)
	}

	finalPath := filepath.Join(a.OutputDir, OutputName(req))
	tmpPath := finalPath + ".tmp"
	if err := writeZip(ctx, tmpPath, images); err != nil {
		if rmErr := os.Remove(tmpPath); rmErr != nil && !os.IsNotExist(rmErr) {
			log.Printf("Warning: failed to remove partial archive %s: %v", tmpPath, rmErr)
		}
		return nil, err
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("failed to move archive into place: %w", err)
	}

	info, err := os.Stat(finalPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat archive: %w", err)
	}
	log.Printf("Request %s: archived %d photos (%d bytes)", req.ID, len(images), info.Size())
	return &models.RenderResult{
		OutputPath: finalPath,
		FileName:   filepath.Base(finalPath),
		Size:       info.Size(),
		FrameCount: len(images),
	}, nil
}

func writeZip(ctx context.Context, path string, images []string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	for _, img := range images {
		if err := ctx.Err(); err != nil {
			zw.Close()
			return err
		}
		if err := addFile(zw, img); err != nil {
			zw.Close()
			return err
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to finish archive: %w", err)
	}
	return f.Close()
}

func addFile(zw *zip.Writer, path string) error {
	src, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open image %s: %w", filepath.Base(path), err)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return err
	}
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	hdr.Name = filepath.Base(path)
	// JPEGs are already compressed.
	hdr.Method = zip.Store

	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return fmt.Errorf("failed to add %s to archive: %w", hdr.Name, err)
	}
	if _, err := io.Copy(w, src); err != nil {
		return fmt.Errorf("failed to copy %s into archive: %w", hdr.Name, err)
	}
	return nil
}
