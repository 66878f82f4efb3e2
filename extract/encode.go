package extract

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	"strings"
)

// DataURLPrefix starts every encoded grid.
const DataURLPrefix = "data:image/jpeg;base64,"

// EncodeJPEG serializes img.
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("jpeg encode: %w", err)
	}
	return buf.Bytes(), nil
}

// DataURL wraps JPEG bytes as a data URL.
func DataURL(jpegData []byte) string {
	return DataURLPrefix + base64.StdEncoding.EncodeToString(jpegData)
}

// DecodeDataURL returns the JPEG bytes of a data URL produced by DataURL.
func DecodeDataURL(dataURL string) ([]byte, error) {
	payload, ok := strings.CutPrefix(dataURL, DataURLPrefix)
	if !ok {
		return nil, fmt.Errorf("extract: not a JPEG data URL")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("extract: invalid data URL payload: %w", err)
	}
	return data, nil
}
