package resolver

import (
	"context"
	"encoding/json"

	"camera-fleet/pkg/apperr"
	"camera-fleet/pkg/archive"
	"camera-fleet/pkg/models"
	"camera-fleet/pkg/store"
)

// Documents is the read side of the document store.
type Documents interface {
	Get(ctx context.Context, collection, id string, out any) error
	List(ctx context.Context, collection string) ([]json.RawMessage, error)
}

// Target is a camera together with its owning records.
type Target struct {
	Developer models.Developer
	Project   models.Project
	Camera    models.Camera
}

// DeveloperTag, ProjectTag and CameraName address the camera's archive.
func (t Target) DeveloperTag() string { return t.Developer.DeveloperTag }
func (t Target) ProjectTag() string   { return t.Project.ProjectTag }
func (t Target) CameraName() string   { return t.Camera.Camera }

// Resolver maps archive tags to records and back.
type Resolver struct {
	docs   Documents
	reader *archive.Reader
}

// New returns a Resolver over docs and reader.
func New(docs Documents, reader *archive.Reader) *Resolver {
	return &Resolver{docs: docs, reader: reader}
}

// ArchiveDir returns the image directory for a camera address.
func (r *Resolver) ArchiveDir(developerTag, projectTag, camera string) string {
	return r.reader.CameraDir(developerTag, projectTag, camera)
}

// ByTags finds the developer, project and camera records addressed by tags.
func (r *Resolver) ByTags(ctx context.Context, developerTag, projectTag, camera string) (*Target, error) {
	devs, err := store.ListAs[models.Developer](ctx, r.docs, store.Developers)
	if err != nil {
		return nil, err
	}
	var t Target
	if !findFirst(devs, func(d models.Developer) bool { return d.DeveloperTag == developerTag }, &t.Developer) {
		return nil, apperr.New(apperr.LookupInconsistency, "developer %q not found", developerTag)
	}

	projects, err := store.ListAs[models.Project](ctx, r.docs, store.Projects)
	if err != nil {
		return nil, err
	}
	if !findFirst(projects, func(p models.Project) bool {
		return p.ProjectTag == projectTag && p.Developer == t.Developer.ID
	}, &t.Project) {
		return nil, apperr.New(apperr.LookupInconsistency, "project %q not found under developer %q", projectTag, developerTag)
	}

	cameras, err := store.ListAs[models.Camera](ctx, r.docs, store.Cameras)
	if err != nil {
		return nil, err
	}
	if !findFirst(cameras, func(c models.Camera) bool {
		return c.Camera == camera && c.Developer == t.Developer.ID && c.Project == t.Project.ID
	}, &t.Camera) {
		return nil, apperr.New(apperr.LookupInconsistency, "camera %q not found in %s/%s", camera, developerTag, projectTag)
	}
	return &t, nil
}

// ForCamera resolves the developer and project a camera record references.
func (r *Resolver) ForCamera(ctx context.Context, cam models.Camera) (*Target, error) {
	t := Target{Camera: cam}
	if err := r.docs.Get(ctx, store.Developers, cam.Developer, &t.Developer); err != nil {
		if apperr.Is(err, apperr.NotFound) {
			return nil, apperr.Wrap(apperr.LookupInconsistency, err, "camera %s references missing developer %s", cam.ID, cam.Developer)
		}
		return nil, err
	}
	if err := r.docs.Get(ctx, store.Projects, cam.Project, &t.Project); err != nil {
		if apperr.Is(err, apperr.NotFound) {
			return nil, apperr.Wrap(apperr.LookupInconsistency, err, "camera %s references missing project %s", cam.ID, cam.Project)
		}
		return nil, err
	}
	if t.Developer.DeveloperTag == "" || t.Project.ProjectTag == "" {
		return nil, apperr.New(apperr.LookupInconsistency, "camera %s has untagged developer or project", cam.ID)
	}
	return &t, nil
}

func findFirst[T any](items []T, match func(T) bool, out *T) bool {
	for _, it := range items {
		if match(it) {
			*out = it
			return true
		}
	}
	return false
}
