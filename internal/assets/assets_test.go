package assets

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileName(t *testing.T) {
	tests := []struct {
		id     string
		want   string
		wantOK bool
	}{
		{"3020250000208-09-01-0-IMG-0", "3020250000208-09-01-0_000.jpg", true},
		{"3020190001234-IMG-12", "3020190001234_012.jpg", true},
		{"3020190001234-IMG-1234", "3020190001234_1234.jpg", true},
		{"3020190001234", "", false},
		{"A-IMG-1-IMG-2", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			got, ok := FileName(tt.id)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestZfill(t *testing.T) {
	assert.Equal(t, "007", zfill("7", 3))
	assert.Equal(t, "-07", zfill("-7", 3))
	assert.Equal(t, "000", zfill("", 3))
	assert.Equal(t, "1000", zfill("1000", 3))
}

func TestResolver_Resolve(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "3020190001234_001.jpg"), []byte("jpg"), 0o600))

	r := NewResolver(dir, nil)
	assert.Equal(t, dir, r.Dir())

	path, ok := r.Resolve("3020190001234-IMG-1")
	assert.True(t, ok)
	assert.Equal(t, filepath.Join(dir, "3020190001234_001.jpg"), path)

	_, ok = r.Resolve("3020190001234-IMG-2")
	assert.False(t, ok, "missing file is absent")

	_, ok = r.Resolve("no-separator")
	assert.False(t, ok)

	_, ok = r.Resolve("../secret-IMG-1")
	assert.False(t, ok, "ids that escape the images dir are absent")
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestValidate(t *testing.T) {
	format, err := Validate(pngBytes(t))
	require.NoError(t, err)
	assert.Equal(t, "png", format)

	_, err = Validate([]byte("definitely not an image"))
	assert.ErrorIs(t, err, ErrInvalidImage)

	_, err = Validate(nil)
	assert.ErrorIs(t, err, ErrInvalidImage)
}

func TestDataURL(t *testing.T) {
	url := DataURL([]byte("abc"))
	assert.Equal(t, "data:image/jpeg;base64,YWJj", url)

	path := filepath.Join(t.TempDir(), "x.jpg")
	require.NoError(t, os.WriteFile(path, []byte("abc"), 0o600))

	got, err := ReadDataURL(path)
	require.NoError(t, err)
	assert.Equal(t, url, got)

	b64, err := ReadBase64(path)
	require.NoError(t, err)
	assert.Equal(t, "YWJj", b64)

	_, err = ReadDataURL(filepath.Join(t.TempDir(), "missing.jpg"))
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "failed to read image"))
}
