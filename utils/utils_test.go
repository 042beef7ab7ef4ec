package utils

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashPassword(t *testing.T) {
	hash, err := HashPassword("s3cret-pass")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret-pass", hash)
	assert.True(t, CheckPassword(hash, "s3cret-pass"))
	assert.False(t, CheckPassword(hash, "wrong"))
}

func TestGenerateQRCode(t *testing.T) {
	data, err := GenerateQRCode("https://nairobiverified.co.ke/merchants/abc", 256)
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 256, img.Bounds().Dx())

	_, err = GenerateQRCode("", 256)
	assert.Error(t, err)
}

func TestProcessImage(t *testing.T) {
	src := imaging.New(2400, 1200, color.NRGBA{R: 200, G: 10, B: 10, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, src))

	out, err := ProcessImage(buf.Bytes(), "photo.png")
	require.NoError(t, err)

	full, _, err := image.Decode(bytes.NewReader(out.Full))
	require.NoError(t, err)
	assert.Equal(t, productImageWidth, full.Bounds().Dx())
	assert.Equal(t, 600, full.Bounds().Dy())

	thumb, _, err := image.Decode(bytes.NewReader(out.Thumbnail))
	require.NoError(t, err)
	assert.LessOrEqual(t, thumb.Bounds().Dx(), thumbnailWidth)

	_, err = ProcessImage(buf.Bytes(), "script.exe")
	assert.Error(t, err)
}

func TestUniqueKeyAndCleanFilename(t *testing.T) {
	assert.Equal(t, "evil.png", CleanFilename("../../etc/evil.png"))

	key := UniqueKey("/documents/123/", "My Permit.PDF")
	assert.True(t, strings.HasPrefix(key, "documents/123/"))
	assert.True(t, strings.HasSuffix(key, ".pdf"))
	assert.NotEqual(t, key, UniqueKey("documents/123", "My Permit.PDF"))
}
