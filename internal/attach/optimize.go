package attach

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"

	// Register additional image formats
	_ "golang.org/x/image/webp"

	. "github.com/hbruyere/pagemate/internal/logging"
)

// Encoding limits. Data URLs travel inline in the chat payload, so
// oversized images get downscaled and recompressed before encoding.
const (
	MaxDimension = 2000
	MaxBytes     = 5 * 1024 * 1024
)

// Quality levels to try (descending order)
var qualityLevels = []int{85, 75, 65, 55, 45, 35}

var supportedMIMETypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

// DetectMIME returns the MIME type from magic bytes (not file extension).
func DetectMIME(data []byte) string {
	return mimetype.Detect(data).String()
}

// encodeImage validates that data is a supported image and returns the
// bytes to embed plus their MIME type, downscaling when over limits.
func encodeImage(data []byte) ([]byte, string, error) {
	mime := DetectMIME(data)
	if !supportedMIMETypes[mime] {
		return nil, "", fmt.Errorf("unsupported attachment type: %s", mime)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := img.Bounds()
	if bounds.Dx() <= MaxDimension && bounds.Dy() <= MaxDimension && len(data) <= MaxBytes {
		return data, mime, nil
	}

	L_debug("attach: optimizing oversized image", "width", bounds.Dx(), "height", bounds.Dy(), "bytes", len(data))
	return shrink(img, mime)
}

// shrink fits the image inside MaxDimension and recompresses, walking
// down the quality ladder until the result is under MaxBytes.
func shrink(img image.Image, origMIME string) ([]byte, string, error) {
	fitted := imaging.Fit(img, MaxDimension, MaxDimension, imaging.Lanczos)

	// PNG stays PNG to keep transparency; everything else becomes JPEG.
	if origMIME == "image/png" {
		var buf bytes.Buffer
		if err := png.Encode(&buf, fitted); err != nil {
			return nil, "", fmt.Errorf("failed to encode png: %w", err)
		}
		if buf.Len() <= MaxBytes {
			return buf.Bytes(), "image/png", nil
		}
		// Too big even resized; fall through to JPEG.
	}

	for _, q := range qualityLevels {
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, fitted, &jpeg.Options{Quality: q}); err != nil {
			return nil, "", fmt.Errorf("failed to encode jpeg: %w", err)
		}
		if buf.Len() <= MaxBytes {
			return buf.Bytes(), "image/jpeg", nil
		}
	}

	return nil, "", fmt.Errorf("image too large even at minimum quality")
}
