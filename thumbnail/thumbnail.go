// Package thumbnail produces small preview images for uploaded files.
// Generation is strictly best-effort: whatever goes wrong, callers get the
// default thumbnail back and the upload proceeds.
package thumbnail

import (
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

const (
	thumbWidth  = 200
	thumbHeight = 200

	defaultName = "default-thumbnail.png"
)

// Producer renders a preview for one media-type category.
type Producer interface {
	Render(srcPath, dstPath string) error
}

type Generator struct {
	producers   map[string]Producer
	defaultPath string
	log         *slog.Logger
}

// NewGenerator materializes the default thumbnail in uploadDir if it is not
// there yet and registers the built-in producers. PDF, video and audio have
// no in-process producer and fall through to the default.
func NewGenerator(uploadDir string, log *slog.Logger) (*Generator, error) {
	g := &Generator{
		producers: map[string]Producer{
			"image": imageProducer{},
		},
		defaultPath: filepath.Join(uploadDir, defaultName),
		log:         log,
	}
	if err := g.ensureDefault(); err != nil {
		return nil, err
	}
	return g, nil
}

// DefaultPath is the shared fallback thumbnail.
func (g *Generator) DefaultPath() string { return g.defaultPath }

// Generate renders a thumbnail next to the source file and returns its path.
// Unknown categories and producer failures yield the default path; this
// function never fails.
func (g *Generator) Generate(srcPath, mimeType string) string {
	p, ok := g.producers[category(mimeType)]
	if !ok {
		g.log.Info("no thumbnail producer for mime type, using default", "mime", mimeType)
		return g.defaultPath
	}

	dst := thumbPath(srcPath)
	if err := p.Render(srcPath, dst); err != nil {
		g.log.Warn("thumbnail generation failed, using default", "src", srcPath, "error", err)
		return g.defaultPath
	}
	return dst
}

// category collapses a mime type into a producer key.
func category(mimeType string) string {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return "image"
	case mimeType == "application/pdf":
		return "pdf"
	case strings.HasPrefix(mimeType, "video/"):
		return "video"
	case strings.HasPrefix(mimeType, "audio/"):
		return "audio"
	default:
		return ""
	}
}

func thumbPath(srcPath string) string {
	ext := filepath.Ext(srcPath)
	base := strings.TrimSuffix(filepath.Base(srcPath), ext)
	return filepath.Join(filepath.Dir(srcPath), base+"-thumbnail.png")
}

// ensureDefault writes a plain placeholder image once per deployment.
func (g *Generator) ensureDefault() error {
	if _, err := os.Stat(g.defaultPath); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(g.defaultPath), 0o755); err != nil {
		return err
	}

	img := image.NewRGBA(image.Rect(0, 0, thumbWidth, thumbHeight))
	grey := color.RGBA{R: 0xd0, G: 0xd0, B: 0xd0, A: 0xff}
	for y := 0; y < thumbHeight; y++ {
		for x := 0; x < thumbWidth; x++ {
			img.Set(x, y, grey)
		}
	}

	f, err := os.Create(g.defaultPath)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		return err
	}
	g.log.Info("default thumbnail created", "path", g.defaultPath)
	return nil
}
