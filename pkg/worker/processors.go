package worker

import (
	"context"
	"log"
	"path"

	"camera-fleet/pkg/blob"
	"camera-fleet/pkg/jobs"
	"camera-fleet/pkg/models"
)

// VideoRenderer renders a video from an ordered image list.
type VideoRenderer interface {
	Render(ctx context.Context, req *models.RenderRequest, images []string) (*models.RenderResult, error)
}

// PhotoArchiver packs an ordered image list into one archive.
type PhotoArchiver interface {
	Archive(ctx context.Context, req *models.RenderRequest, images []string) (*models.RenderResult, error)
}

// VideoProcessor renders the images recorded in a request's list file.
type VideoProcessor struct {
	Renderer VideoRenderer
	Blobs    blob.Store
}

func (p *VideoProcessor) Process(ctx context.Context, req *models.RenderRequest) (*models.RenderResult, error) {
	images, err := jobs.ReadListFile(req.ListFile)
	if err != nil {
		return nil, err
	}
	res, err := p.Renderer.Render(ctx, req, images)
	if err != nil {
		return nil, err
	}
	publish(ctx, p.Blobs, "videos", res)
	return res, nil
}

// PhotoProcessor zips the images recorded in a request's list file.
type PhotoProcessor struct {
	Archiver PhotoArchiver
	Blobs    blob.Store
}

func (p *PhotoProcessor) Process(ctx context.Context, req *models.RenderRequest) (*models.RenderResult, error) {
	images, err := jobs.ReadListFile(req.ListFile)
	if err != nil {
		return nil, err
	}
	res, err := p.Archiver.Archive(ctx, req, images)
	if err != nil {
		return nil, err
	}
	publish(ctx, p.Blobs, "photos", res)
	return res, nil
}

// publish uploads a finished artifact and records its URL. Upload failures
// leave the local file as the only copy.
func publish(ctx context.Context, store blob.Store, prefix string, res *models.RenderResult) {
	if store == nil {
		return
	}
	url, err := blob.PutFile(ctx, store, path.Join(prefix, res.FileName), res.OutputPath)
	if err != nil {
		log.Printf("Warning: failed to publish %s: %v", res.FileName, err)
		return
	}
	res.URL = url
}
