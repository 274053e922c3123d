package tasks

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/disintegration/imaging"
)

const maxImageDimension = 1600

// NormalizeImage decodes an inbound message/image payload, bounds its
// largest dimension, and returns a content-addressed reference — the
// imageRef slot handleRecordContent persists instead of raw bytes.
// Grounded on the teacher's imaging.Decode/Resize/Encode pipeline for
// inbound WebP media.
func NormalizeImage(data []byte) (string, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("tasks: decode image: %w", err)
	}

	bounds := img.Bounds()
	if bounds.Dx() > maxImageDimension || bounds.Dy() > maxImageDimension {
		if bounds.Dx() >= bounds.Dy() {
			img = imaging.Resize(img, maxImageDimension, 0, imaging.Lanczos)
		} else {
			img = imaging.Resize(img, 0, maxImageDimension, imaging.Lanczos)
		}
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG); err != nil {
		return "", fmt.Errorf("tasks: encode image: %w", err)
	}

	sum := sha256.Sum256(buf.Bytes())
	return "img_" + hex.EncodeToString(sum[:])[:16], nil
}
