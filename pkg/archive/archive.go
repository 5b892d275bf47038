package archive

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"camera-fleet/pkg/apperr"
)

// ImageExt is the only extension listed from a camera archive.
const ImageExt = ".jpg"

// Reader lists timestamped images under <root>/<developer>/<project>/<camera>/<subdir>.
type Reader struct {
	root   string
	subdir string
}

// NewReader returns a Reader rooted at root.
func NewReader(root, subdir string) *Reader {
	return &Reader{root: root, subdir: subdir}
}

// CameraDir returns the archive directory for a camera.
func (r *Reader) CameraDir(developerTag, projectTag, camera string) string {
	return filepath.Join(r.root, developerTag, projectTag, camera, r.subdir)
}

// ImagePath returns the absolute path of one image by its timestamp.
func (r *Reader) ImagePath(developerTag, projectTag, camera, timestamp string) string {
	return filepath.Join(r.CameraDir(developerTag, projectTag, camera), timestamp+ImageExt)
}

// ListImages returns the camera's image timestamps in ascending order.
// A missing directory is ArchiveNotFound; an empty one is an empty slice.
func (r *Reader) ListImages(developerTag, projectTag, camera string) ([]string, error) {
	dir := r.CameraDir(developerTag, projectTag, camera)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperr.Wrap(apperr.ArchiveNotFound, err, "camera archive %s/%s/%s not found", developerTag, projectTag, camera)
		}
		return nil, err
	}

	images := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || filepath.Ext(name) != ImageExt {
			continue
		}
		images = append(images, strings.TrimSuffix(name, ImageExt))
	}
	// Fixed-width timestamps sort chronologically.
	sort.Strings(images)
	return images, nil
}

// FilterByDateHourRange keeps images whose YYYYMMDD prefix lies in [date1, date2]
// and whose HH lies in [hour1, hour2], both ends inclusive. Values are compared
// as strings, so callers must zero-pad them.
func FilterByDateHourRange(images []string, date1, date2, hour1, hour2 string) []string {
	out := make([]string, 0)
	for _, img := range images {
		if len(img) < 10 {
			continue
		}
		date, hour := img[:8], img[8:10]
		if date >= date1 && date <= date2 && hour >= hour1 && hour <= hour2 {
			out = append(out, img)
		}
	}
	return out
}

// FilterByDayWindow keeps images taken on the given YYYYMMDD day.
func FilterByDayWindow(images []string, day string) []string {
	out := make([]string, 0)
	for _, img := range images {
		if len(img) >= 8 && img[:8] == day {
			out = append(out, img)
		}
	}
	return out
}

// FilterByPrefix keeps images whose timestamp starts with prefix.
func FilterByPrefix(images []string, prefix string) []string {
	out := make([]string, 0)
	for _, img := range images {
		if strings.HasPrefix(img, prefix) {
			out = append(out, img)
		}
	}
	return out
}
