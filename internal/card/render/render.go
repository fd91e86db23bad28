// Package render composes the ID card image. It is a pure function of subject
// data, photo bytes, and the QR bitmap; the only I/O is asset loading at
// construction time.
package render

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"campuscard/internal/card/models"
	dErrors "campuscard/pkg/domain-errors"
)

// Card canvas: ID-1 format at 300dpi.
const (
	cardWidth  = 1011
	cardHeight = 638

	headerHeight = 120
	footerHeight = 80

	photoX, photoY          = 50, 170
	photoWidth, photoHeight = 220, 260

	textX, textY, textGap = 320, 200, 54

	qrX, qrY, qrSize = 800, 350, 180

	watermarkSize = 300
)

var (
	headerColor = color.NRGBA{R: 0, G: 102, B: 0, A: 255}
	textDark    = color.NRGBA{R: 15, G: 23, B: 42, A: 255}
	textMuted   = color.NRGBA{R: 100, G: 116, B: 139, A: 255}
	background  = color.NRGBA{R: 248, G: 250, B: 252, A: 255}
	white       = color.NRGBA{R: 255, G: 255, B: 255, A: 255}
)

// Renderer holds the loaded assets. Safe for concurrent use: all fields are
// read-only after construction.
type Renderer struct {
	title      string
	footerText string

	faceBig   font.Face
	faceMid   font.Face
	faceSmall font.Face

	// watermark is nil when the asset is missing or undecodable; rendering
	// then degrades to no watermark rather than failing.
	watermark image.Image
}

// Option tweaks renderer construction.
type Option func(*Renderer)

// WithTitle overrides the header text.
func WithTitle(title string) Option {
	return func(r *Renderer) { r.title = title }
}

// WithFooter overrides the footer text.
func WithFooter(text string) Option {
	return func(r *Renderer) { r.footerText = text }
}

// New loads fonts and the watermark logo from assetsDir. Missing optional
// assets are never fatal: fonts fall back to the built-in glyph set and the
// watermark degrades to none.
func New(assetsDir string, opts ...Option) *Renderer {
	r := &Renderer{
		title:      "STUDENT IDENTITY CARD",
		footerText: "Property of the issuing institution",
		faceBig:    basicfont.Face7x13,
		faceMid:    basicfont.Face7x13,
		faceSmall:  basicfont.Face7x13,
	}

	if ttf, err := os.ReadFile(filepath.Join(assetsDir, "fonts", "DejaVuSans-Bold.ttf")); err == nil {
		if parsed, err := truetype.Parse(ttf); err == nil {
			r.faceBig = truetype.NewFace(parsed, &truetype.Options{Size: 44})
			r.faceMid = truetype.NewFace(parsed, &truetype.Options{Size: 30})
			r.faceSmall = truetype.NewFace(parsed, &truetype.Options{Size: 22})
		}
	}

	if logo, err := imaging.Open(filepath.Join(assetsDir, "images", "logo.png")); err == nil {
		r.watermark = imaging.Resize(logo, watermarkSize, watermarkSize, imaging.Lanczos)
	}

	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Render composes the finished card. Output is deterministic for identical
// inputs; the QR bitmap is a function of the stable UID and token, so
// re-renders reproduce the same card unless the token rotates.
func (r *Renderer) Render(subject models.Subject, photo []byte, qr image.Image) ([]byte, error) {
	if len(photo) == 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "no photo bytes")
	}
	decoded, err := imaging.Decode(bytes.NewReader(photo))
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInvalidInput, "photo is not a decodable raster image", err)
	}

	card := imaging.New(cardWidth, cardHeight, background)

	// Header and footer bands.
	fillRect(card, image.Rect(0, 0, cardWidth, headerHeight), headerColor)
	fillRect(card, image.Rect(0, cardHeight-footerHeight, cardWidth, cardHeight), headerColor)

	// Watermark under the content, centered, already faded.
	if r.watermark != nil {
		pos := image.Pt((cardWidth-watermarkSize)/2, (cardHeight-watermarkSize)/2)
		card = imaging.Overlay(card, r.watermark, pos, 0.12)
	}

	r.drawText(card, 30, 75, r.title, r.faceBig, white)
	r.drawText(card, 40, cardHeight-30, r.footerText, r.faceSmall, white)

	// Photo region.
	portrait := imaging.Resize(decoded, photoWidth, photoHeight, imaging.Lanczos)
	card = imaging.Paste(card, portrait, image.Pt(photoX, photoY))

	// Text fields. Missing values render empty, never fail.
	fields := []struct {
		label string
		value string
		face  font.Face
		col   color.NRGBA
	}{
		{"", strings.ToUpper(subject.FullName()), r.faceMid, textDark},
		{"Matric No: ", subject.MatricNo, r.faceMid, textDark},
		{"Department: ", subject.Department, r.faceMid, textDark},
		{"Level: ", subject.Level, r.faceMid, textDark},
		{"Phone: ", subject.Phone, r.faceSmall, textMuted},
	}
	y := textY
	for _, f := range fields {
		r.drawText(card, textX, y, f.label+f.value, f.face, f.col)
		y += textGap
	}

	// QR bottom-right.
	if qr != nil {
		scaled := imaging.Resize(qr, qrSize, qrSize, imaging.NearestNeighbor)
		card = imaging.Paste(card, scaled, image.Pt(qrX, qrY))
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, card, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode card: %w", err)
	}
	return buf.Bytes(), nil
}

func (r *Renderer) drawText(dst draw.Image, x, y int, text string, face font.Face, col color.NRGBA) {
	drawer := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(col),
		Face: face,
		Dot:  fixed.P(x, y),
	}
	drawer.DrawString(text)
}

func fillRect(dst draw.Image, rect image.Rectangle, col color.NRGBA) {
	draw.Draw(dst, rect, image.NewUniform(col), image.Point{}, draw.Src)
}
