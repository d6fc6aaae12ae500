package assets

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"os"

	// Decoders registered for DecodeConfig.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
)

// ErrInvalidImage is returned when bytes cannot be decoded as an image.
var ErrInvalidImage = errors.New("invalid image")

// Validate checks that data decodes as a supported image and returns its format.
func Validate(data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty file", ErrInvalidImage)
	}
	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	return format, nil
}

// Base64 encodes data with standard padding.
func Base64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// DataURL returns a JPEG data URL for data. The media type is always
// image/jpeg; vision models sniff the real format.
func DataURL(data []byte) string {
	return "data:image/jpeg;base64," + Base64(data)
}

// ReadDataURL reads the file at path and returns it as a data URL.
func ReadDataURL(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read image %s: %w", path, err)
	}
	return DataURL(data), nil
}

// ReadBase64 reads the file at path and returns its base64 encoding.
func ReadBase64(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read image %s: %w", path, err)
	}
	return Base64(data), nil
}
