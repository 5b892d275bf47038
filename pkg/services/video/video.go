package video

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"camera-fleet/pkg/apperr"
	"camera-fleet/pkg/models"
)

// DefaultBatchSize is the number of images rendered per encoder invocation.
const DefaultBatchSize = 200

// Renderer turns an ordered image list into one video, one bounded batch at a time.
type Renderer struct {
	Encoder        Encoder
	OutputDir      string
	BatchSize      int
	TargetDuration int
	Codec          string
	CRF            string
	Threads        int
	FontPath       string
}

// Batches splits paths into consecutive groups of at most size.
func Batches(paths []string, size int) [][]string {
	if size < 1 {
		size = DefaultBatchSize
	}
	var out [][]string
	for start := 0; start < len(paths); start += size {
		end := start + size
		if end > len(paths) {
			end = len(paths)
		}
		out = append(out, paths[start:end])
	}
	return out
}

// OutputName is the final file name for a request.
func OutputName(req *models.RenderRequest) string {
	return fmt.Sprintf("video_%s_%s_%s_%s.mp4", req.DeveloperTag, req.ProjectTag, req.Camera, req.ID)
}

// Render encodes every batch in order, then joins the partial clips with a
// stream copy. The first failing batch aborts the render. Intermediate files
// are always removed, and the final file only appears once it is complete.
func (r *Renderer) Render(ctx context.Context, req *models.RenderRequest, images []string) (*models.RenderResult, error) {
	if len(images) == 0 {
		return nil, apperr.New(apperr.NoImagesMatched, "request %s has no images to render", req.ID)
	}

	fps := FrameRate(req.FrameRate, len(images), r.TargetDuration)
	resName, size := ResolveResolution(req.Resolution)
	graph := filterGraph{
		size:      size,
		frameRate: fps,
		overlay:   req.Overlay,
		fontPath:  r.FontPath,
		hasLogo:   req.Overlay.LogoPath != "",
	}

	workDir := filepath.Join(r.OutputDir, ".work", req.ID)
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create work directory: %w", err)
	}
	var intermediates []string
	defer func() { cleanup(workDir, intermediates) }()

	batches := Batches(images, r.BatchSize)
	log.Printf("Rendering request %s: %d images in %d batches at %d fps (%s)", req.ID, len(images), len(batches), fps, resName)

	var partials []string
	for i, batch := range batches {
		partial, files, err := r.renderBatch(ctx, workDir, i, batch, fps, graph, req.Overlay.LogoPath)
		intermediates = append(intermediates, files...)
		if err != nil {
			return nil, fmt.Errorf("batch %d/%d: %w", i+1, len(batches), err)
		}
		partials = append(partials, partial)
		log.Printf("Request %s: batch %d/%d rendered (%d images)", req.ID, i+1, len(batches), len(batch))
	}

	finalPath := filepath.Join(r.OutputDir, OutputName(req))
	tempPath := filepath.Join(workDir, "final.mp4")
	concatList := filepath.Join(workDir, "concat.txt")
	intermediates = append(intermediates, concatList, tempPath)
	if err := writeManifest(concatList, partials, 0); err != nil {
		return nil, err
	}
	args := []string{"-y", "-f", "concat", "-safe", "0", "-i", concatList, "-c", "copy", "-movflags", "+faststart", tempPath}
	if err := r.encode(ctx, args, tempPath); err != nil {
		return nil, fmt.Errorf("concatenate: %w", err)
	}

	if err := os.Rename(tempPath, finalPath); err != nil {
		return nil, fmt.Errorf("failed to move video into place: %w", err)
	}
	info, err := os.Stat(finalPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat video: %w", err)
	}

	return &models.RenderResult{
		OutputPath: finalPath,
		FileName:   filepath.Base(finalPath),
		Size:       info.Size(),
		Duration:   float64(len(images)) / float64(fps),
		FrameCount: len(images),
		FrameRate:  fps,
		Resolution: resName,
	}, nil
}

// renderBatch writes the batch manifest and filter script and encodes one partial clip.
// The manifest holds the last image for its duration, so the frame count is capped
// at one frame per image. It returns every file it created so the caller can remove them.
func (r *Renderer) renderBatch(ctx context.Context, workDir string, index int, batch []string, fps int, graph filterGraph, logo string) (string, []string, error) {
	manifest := filepath.Join(workDir, fmt.Sprintf("batch_%03d.txt", index))
	script := filepath.Join(workDir, fmt.Sprintf("batch_%03d.filter", index))
	partial := filepath.Join(workDir, fmt.Sprintf("batch_%03d.mp4", index))
	files := []string{manifest, script, partial}

	if err := writeManifest(manifest, batch, 1.0/float64(fps)); err != nil {
		return "", files, err
	}
	if err := os.WriteFile(script, []byte(graph.build(batch)), 0644); err != nil {
		return "", files, fmt.Errorf("failed to write filter script: %w", err)
	}

	args := []string{"-y", "-f", "concat", "-safe", "0", "-i", manifest}
	if logo != "" {
		args = append(args, "-i", logo)
	}
	args = append(args,
		"-filter_complex_script", script,
		"-map", "[out]",
		"-r", strconv.Itoa(fps),
		"-frames:v", strconv.Itoa(len(batch)),
		"-c:v", r.codec(),
		"-crf", r.crf(),
		"-pix_fmt", "yuv420p",
		"-threads", strconv.Itoa(r.threads()),
		"-an",
		partial,
	)
	if err := r.encode(ctx, args, partial); err != nil {
		return "", files, err
	}
	return partial, files, nil
}

// encode runs the encoder and confirms it produced a non-empty output file.
func (r *Renderer) encode(ctx context.Context, args []string, output string) error {
	if err := r.Encoder.Encode(ctx, args); err != nil {
		if apperr.KindOf(err) == "" {
			return apperr.Wrap(apperr.EncodeFailure, err, "encoder failed")
		}
		return err
	}
	info, err := os.Stat(output)
	if err != nil || info.Size() == 0 {
		return apperr.New(apperr.EncodeFailure, "encoder produced no output at %s", filepath.Base(output))
	}
	return nil
}

// writeManifest writes a concat demuxer list. With a frame duration, every
// entry is timed and the last file is repeated so its duration is honoured.
func writeManifest(path string, files []string, duration float64) error {
	var b strings.Builder
	for _, f := range files {
		fmt.Fprintf(&b, "file '%s'\n", quoteManifestPath(f))
		if duration > 0 {
			fmt.Fprintf(&b, "duration %f\n", duration)
		}
	}
	if duration > 0 && len(files) > 0 {
		fmt.Fprintf(&b, "file '%s'\n", quoteManifestPath(files[len(files)-1]))
	}
	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("failed to write concat list: %w", err)
	}
	return nil
}

func quoteManifestPath(p string) string {
	return strings.ReplaceAll(filepath.ToSlash(p), "'", `'\''`)
}

// cleanup removes intermediate files. Failures are logged and otherwise ignored.
func cleanup(workDir string, files []string) {
	for _, f := range files {
		if err := os.Remove(f); err != nil && !os.IsNotExist(err) {
			log.Printf("Warning: failed to remove %s: %v", f, err)
		}
	}
	if err := os.RemoveAll(workDir); err != nil {
		log.Printf("Warning: failed to remove work directory %s: %v", workDir, err)
	}
}

func (r *Renderer) codec() string {
	if r.Codec == "" {
		return "libx264"
	}
	return r.Codec
}

func (r *Renderer) crf() string {
	if r.CRF == "" {
		return "26"
	}
	return r.CRF
}

func (r *Renderer) threads() int {
	if r.Threads < 1 {
		return 1
	}
	return r.Threads
}
