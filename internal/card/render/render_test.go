package render

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campuscard/internal/card/models"
	dErrors "campuscard/pkg/domain-errors"
)

func testSubject() models.Subject {
	return models.Subject{
		MatricNo:   "CSC/2021/104",
		FirstName:  "Ada",
		LastName:   "Lovelace",
		Department: "Computer Science",
		Level:      "300",
		Phone:      "08010000000",
	}
}

func testPhoto(t *testing.T) []byte {
	t.Helper()
	img := imaging.New(400, 500, color.NRGBA{R: 180, G: 150, B: 120, A: 255})
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, img, imaging.JPEG))
	return buf.Bytes()
}

func testQR() image.Image {
	return imaging.New(220, 220, color.NRGBA{A: 255})
}

func TestRenderProducesFixedSizePNG(t *testing.T) {
	// Nonexistent assets dir: fonts fall back to the built-in glyph set and
	// the watermark degrades to none.
	r := New(t.TempDir())

	out, err := r.Render(testSubject(), testPhoto(t), testQR())
	require.NoError(t, err)

	decoded, err := png.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, cardWidth, decoded.Bounds().Dx())
	assert.Equal(t, cardHeight, decoded.Bounds().Dy())
}

func TestRenderDeterministic(t *testing.T) {
	r := New(t.TempDir())
	photo := testPhoto(t)

	first, err := r.Render(testSubject(), photo, testQR())
	require.NoError(t, err)
	second, err := r.Render(testSubject(), photo, testQR())
	require.NoError(t, err)

	assert.Equal(t, first, second, "identical inputs must reproduce identical bytes")
}

func TestRenderRejectsMissingPhoto(t *testing.T) {
	r := New(t.TempDir())
	_, err := r.Render(testSubject(), nil, testQR())
	require.Error(t, err)
	assert.True(t, dErrors.Is(err, dErrors.CodeInvalidInput))
}

func TestRenderRejectsUndecodablePhoto(t *testing.T) {
	r := New(t.TempDir())
	_, err := r.Render(testSubject(), []byte("not an image"), testQR())
	require.Error(t, err)
	assert.True(t, dErrors.Is(err, dErrors.CodeInvalidInput))
}

func TestRenderEmptyFieldsDoNotFail(t *testing.T) {
	r := New(t.TempDir())
	out, err := r.Render(models.Subject{}, testPhoto(t), testQR())
	require.NoError(t, err)
	assert.NotEmpty(t, out)
}

func TestRenderWithoutQR(t *testing.T) {
	r := New(t.TempDir())
	out, err := r.Render(testSubject(), testPhoto(t), nil)
	require.NoError(t, err)
	assert.NotEmpty(t, out)
}
