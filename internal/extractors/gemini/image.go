package gemini

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/disintegration/imaging"
)

type preparedImage struct {
	data     []byte
	mimeType string
}

// prepareImage shrinks images whose longest edge exceeds maxDimension and re-encodes them as
// JPEG. Images that cannot be decoded locally are forwarded unchanged.
func prepareImage(data []byte, mimeType string, maxDimension int) preparedImage {
	mimeType = strings.TrimSpace(mimeType)
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = http.DetectContentType(data)
	}
	original := preparedImage{data: data, mimeType: mimeType}
	if maxDimension <= 0 {
		return original
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return original
	}
	bounds := img.Bounds()
	if bounds.Dx() <= maxDimension && bounds.Dy() <= maxDimension {
		return original
	}

	resized := imaging.Fit(img, maxDimension, maxDimension, imaging.Lanczos)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return original
	}
	return preparedImage{data: buf.Bytes(), mimeType: "image/jpeg"}
}
