package video

import (
	"fmt"
	"math"
	"path/filepath"
	"strings"

	"camera-fleet/pkg/models"
)

// DefaultResolution is used for empty or unknown resolution names.
const DefaultResolution = "HD"

// Size is a frame size in pixels.
type Size struct {
	Width  int
	Height int
}

var resolutions = map[string]Size{
	"720": {1280, 720},
	"HD":  {1920, 1080},
	"4K":  {3840, 2160},
}

// ResolveResolution maps a symbolic name to its canonical name and frame size.
func ResolveResolution(name string) (string, Size) {
	key := strings.ToUpper(strings.TrimSpace(name))
	if size, ok := resolutions[key]; ok {
		return key, size
	}
	return DefaultResolution, resolutions[DefaultResolution]
}

// FrameRate returns explicit when positive, otherwise the rate that plays
// imageCount frames in roughly targetSeconds.
func FrameRate(explicit, imageCount, targetSeconds int) int {
	if explicit > 0 {
		return explicit
	}
	if targetSeconds <= 0 {
		targetSeconds = 30
	}
	fps := int(math.Ceil(float64(imageCount) / float64(targetSeconds)))
	if fps < 1 {
		fps = 1
	}
	return fps
}

const overlayMargin = 20

// logoOverlay returns the overlay expression for a corner position.
func logoOverlay(position string) string {
	switch position {
	case "top-left":
		return fmt.Sprintf("overlay=%d:%d", overlayMargin, overlayMargin)
	case "bottom-left":
		return fmt.Sprintf("overlay=%d:main_h-overlay_h-%d", overlayMargin, overlayMargin)
	case "bottom-right":
		return fmt.Sprintf("overlay=main_w-overlay_w-%d:main_h-overlay_h-%d", overlayMargin, overlayMargin)
	default:
		return fmt.Sprintf("overlay=main_w-overlay_w-%d:%d", overlayMargin, overlayMargin)
	}
}

// escapeText prepares a string for a quoted drawtext text option.
func escapeText(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, ":", `\:`)
	s = strings.ReplaceAll(s, "'", "’")
	s = strings.ReplaceAll(s, "\n", " ")
	return s
}

// stampText turns an image path such as .../20250102153000.jpg into its date label.
func stampText(imagePath, format string) string {
	ts := strings.TrimSuffix(filepath.Base(imagePath), filepath.Ext(imagePath))
	if len(ts) < 8 {
		return ts
	}
	date := ts[:4] + "-" + ts[4:6] + "-" + ts[6:8]
	if format == "datetime" && len(ts) >= 12 {
		return date + " " + ts[8:10] + ":" + ts[10:12]
	}
	return date
}

// filterGraph composes the per-batch filter chain. Frames are scaled and padded
// to size, then the text filters and the logo overlay are applied in order.
// The final pad is always labelled [out].
type filterGraph struct {
	size      Size
	frameRate int
	overlay   models.OverlayOptions
	fontPath  string
	hasLogo   bool
}

func (g filterGraph) fontOpt() string {
	if g.fontPath == "" {
		return ""
	}
	return "fontfile='" + escapeText(g.fontPath) + "':"
}

func (g filterGraph) base() string {
	w, h := g.size.Width, g.size.Height
	return fmt.Sprintf("[0:v]scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2,setsar=1,format=yuv420p",
		w, h, w, h)
}

// textFilters returns the drawtext filters for one batch, in composition order.
func (g filterGraph) textFilters(batch []string) []string {
	var out []string
	font := g.fontOpt()
	fontSize := g.size.Height / 24

	if g.overlay.ShowDate {
		frame := 1.0 / float64(g.frameRate)
		for i, img := range batch {
			start := float64(i) * frame
			end := start + frame - 0.0001
			out = append(out, fmt.Sprintf(
				"drawtext=%stext='%s':expansion=none:fontsize=%d:fontcolor=white:box=1:boxcolor=black@0.5:boxborderw=8:x=w-tw-%d:y=h-th-%d:enable='between(t,%.4f,%.4f)'",
				font, escapeText(stampText(img, g.overlay.DateFormat)), fontSize, overlayMargin, overlayMargin, start, end))
		}
	}
	if g.overlay.Caption != "" {
		out = append(out, fmt.Sprintf(
			"drawtext=%stext='%s':expansion=none:fontsize=%d:fontcolor=white:box=1:boxcolor=black@0.5:boxborderw=8:x=%d:y=h-th-%d",
			font, escapeText(g.overlay.Caption), fontSize, overlayMargin, overlayMargin))
	}
	if g.overlay.Watermark != "" {
		out = append(out, fmt.Sprintf(
			"drawtext=%stext='%s':expansion=none:fontsize=%d:fontcolor=white@0.35:x=(w-tw)/2:y=(h-th)/2",
			font, escapeText(g.overlay.Watermark), g.size.Height/8))
	}
	return out
}

// build returns the complete filter_complex script for a batch.
func (g filterGraph) build(batch []string) string {
	texts := g.textFilters(batch)
	logoScale := fmt.Sprintf("[1:v]scale=-1:%d,format=rgba[logo]", g.size.Height/8)

	switch {
	case g.hasLogo && len(texts) == 0:
		// Logo without any text filter.
		return g.base() + "[base];\n" + logoScale + ";\n[base][logo]" + logoOverlay(g.overlay.LogoPosition) + "[out]"
	case g.hasLogo:
		return g.base() + ",\n" + strings.Join(texts, ",\n") + "[txt];\n" + logoScale + ";\n[txt][logo]" + logoOverlay(g.overlay.LogoPosition) + "[out]"
	case len(texts) > 0:
		return g.base() + ",\n" + strings.Join(texts, ",\n") + "[out]"
	default:
		return g.base() + "[out]"
	}
}
