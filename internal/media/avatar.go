// Package media decodes, normalises and re-encodes uploaded profile images.
package media

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif" // Register GIF decoder
	"image/jpeg"
	_ "image/png" // Register PNG decoder
	"net/http"
	"strings"

	"blogger/internal/models"

	"github.com/chai2010/webp"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // Register WebP decoder
)

const (
	DefaultMaxUploadMB = 5
	AvatarMaxSize      = 512
	JPEGQuality        = 82
	WebPQuality        = 70

	FormatJPEG = "jpeg"
	FormatWebP = "webp"

	avatarDir = "profile_images"
)

// Avatar is a processed, ready-to-store profile image.
type Avatar struct {
	Data        []byte
	Ext         string
	ContentType string
	Width       int
	Height      int
}

// AvatarProcessor turns raw upload bytes into a square avatar.
type AvatarProcessor struct {
	maxBytes int64
	format   string
}

// NewAvatarProcessor returns a processor. maxMB <= 0 uses DefaultMaxUploadMB,
// an unknown format falls back to JPEG.
func NewAvatarProcessor(maxMB int, format string) *AvatarProcessor {
	if maxMB <= 0 {
		maxMB = DefaultMaxUploadMB
	}
	format = strings.ToLower(strings.TrimSpace(format))
	if format != FormatWebP {
		format = FormatJPEG
	}
	return &AvatarProcessor{maxBytes: int64(maxMB) << 20, format: format}
}

// Process validates and re-encodes data. Every rejection is a VALIDATION_ERROR.
func (p *AvatarProcessor) Process(data []byte) (*Avatar, error) {
	if len(data) == 0 {
		return nil, models.NewValidationError("Image file is empty")
	}
	if int64(len(data)) > p.maxBytes {
		return nil, models.NewValidationError(fmt.Sprintf("Image exceeds %d MB", p.maxBytes>>20))
	}

	if !isAllowedImageMIME(http.DetectContentType(data)) {
		return nil, models.NewValidationError("Invalid image type")
	}

	decoded, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, models.NewValidationError("Invalid image file")
	}
	if !isSupportedDecodedFormat(format) {
		return nil, models.NewValidationError("Unsupported image format")
	}

	square := cropToSquare(decoded)
	out := resizeToFit(square, AvatarMaxSize, AvatarMaxSize)

	avatar := &Avatar{Width: out.Bounds().Dx(), Height: out.Bounds().Dy()}
	switch p.format {
	case FormatWebP:
		avatar.Data, err = encodeWebP(out, WebPQuality)
		avatar.Ext, avatar.ContentType = "webp", "image/webp"
	default:
		avatar.Data, err = encodeJPEG(out, JPEGQuality)
		avatar.Ext, avatar.ContentType = "jpg", "image/jpeg"
	}
	if err != nil {
		return nil, models.NewValidationError("Image could not be encoded")
	}
	return avatar, nil
}

// AvatarPath is the deterministic blob path of a user's avatar.
func AvatarPath(uid, ext string) string {
	return fmt.Sprintf("%s/%s.%s", avatarDir, uid, ext)
}

func cropToSquare(src image.Image) image.Image {
	b := src.Bounds()
	side := b.Dx()
	if b.Dy() < side {
		side = b.Dy()
	}
	x := b.Min.X + (b.Dx()-side)/2
	y := b.Min.Y + (b.Dy()-side)/2
	return cropToRect(src, x, y, side, side)
}

func cropToRect(src image.Image, x, y, w, h int) image.Image {
	if w <= 0 || h <= 0 {
		return src
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), src, image.Point{X: x, Y: y}, draw.Src)
	return dst
}

func resizeToFit(src image.Image, maxWidth, maxHeight int) image.Image {
	bounds := src.Bounds()
	w := bounds.Dx()
	h := bounds.Dy()
	if w <= 0 || h <= 0 {
		return src
	}
	if w <= maxWidth && h <= maxHeight {
		return src
	}

	scale := float64(maxWidth) / float64(w)
	if s := float64(maxHeight) / float64(h); s < scale {
		scale = s
	}
	newW := max(int(float64(w)*scale), 1)
	newH := max(int(float64(h)*scale), 1)

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, xdraw.Over, nil)
	return dst
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeWebP(img image.Image, quality int) ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	if err := webp.Encode(buf, img, &webp.Options{Quality: float32(quality)}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func isAllowedImageMIME(contentType string) bool {
	switch contentType {
	case "image/jpeg", "image/png", "image/gif", "image/webp":
		return true
	default:
		return false
	}
}

func isSupportedDecodedFormat(format string) bool {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "jpeg", "png", "gif", "webp":
		return true
	default:
		return false
	}
}
