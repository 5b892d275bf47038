package archive

import (
	"time"

	"camera-fleet/pkg/apperr"
)

// PictureSet summarises a camera archive around two days of interest.
type PictureSet struct {
	FirstPhoto  string   `json:"firstPhoto"`
	LastPhoto   string   `json:"lastPhoto"`
	Date1Photos []string `json:"date1Photos"`
	Date2Photos []string `json:"date2Photos"`
}

// Pictures returns the first and last images plus every image taken on
// date1 and date2. Empty dates default to the first and last image days.
func Pictures(images []string, date1, date2 string) (*PictureSet, error) {
	if len(images) == 0 {
		return nil, apperr.New(apperr.NoImagesMatched, "No pictures found in camera directory")
	}
	first, last := images[0], images[len(images)-1]
	if date1 == "" {
		date1 = dayOf(first)
	}
	if date2 == "" {
		date2 = dayOf(last)
	}
	return &PictureSet{
		FirstPhoto:  first,
		LastPhoto:   last,
		Date1Photos: FilterByPrefix(images, date1),
		Date2Photos: FilterByPrefix(images, date2),
	}, nil
}

// PreviewHour is the hour a weekly preview image is taken from.
const PreviewHour = "12"

// WeeklyPreview picks the first image taken in the PreviewHour on the first
// image day and every seventh day after it, up to now.
func WeeklyPreview(images []string, now time.Time) ([]string, error) {
	if len(images) == 0 {
		return nil, apperr.New(apperr.NoImagesMatched, "No pictures found in camera directory")
	}
	start, err := time.Parse("20060102", dayOf(images[0]))
	if err != nil {
		return nil, apperr.New(apperr.ValidationError, "unexpected image name %q", images[0])
	}

	weekly := make([]string, 0)
	for day := start; !day.After(now); day = day.AddDate(0, 0, 7) {
		if match := FilterByPrefix(images, day.Format("20060102")+PreviewHour); len(match) > 0 {
			weekly = append(weekly, match[0])
		}
	}
	if len(weekly) == 0 {
		return nil, apperr.New(apperr.NoImagesMatched, "No weekly images found")
	}
	return weekly, nil
}

func dayOf(image string) string {
	if len(image) < 8 {
		return image
	}
	return image[:8]
}
