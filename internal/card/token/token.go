// Package token issues verification capabilities: the per-card secret token,
// the verification URL it is embedded in, and the scannable QR bitmap.
package token

import (
	"fmt"
	"image"
	"strings"

	qrcode "github.com/skip2/go-qrcode"

	"campuscard/internal/card/models"
	dErrors "campuscard/pkg/domain-errors"
	"campuscard/pkg/secrets"
)

// QRSizePx is the edge length of the generated QR bitmap, sized for the
// card's QR region.
const QRSizePx = 220

// Issuer resolves verification URLs against a configured site origin.
type Issuer struct {
	// siteOrigin is the configured fallback; may be empty, in which case
	// callers must supply a request-derived base URL.
	siteOrigin string
}

// NewIssuer constructs an Issuer. siteOrigin may be empty.
func NewIssuer(siteOrigin string) *Issuer {
	return &Issuer{siteOrigin: strings.TrimRight(siteOrigin, "/")}
}

// EnsureToken sets the card's verify token if absent and reports whether it
// changed. Idempotent: an existing token is reused so re-renders reproduce
// the same QR.
func EnsureToken(card *models.Artifact) (changed bool, err error) {
	if card.VerifyToken != "" {
		return false, nil
	}
	tok, err := secrets.GenerateToken()
	if err != nil {
		return false, err
	}
	card.VerifyToken = tok
	return true, nil
}

// BuildVerifyURL derives the URL the QR encodes. Resolution order: explicit
// request-derived base URL, then the configured site origin. With neither,
// this is a reported error; the pipeline never falls back to localhost and
// never embeds a broken QR.
func (i *Issuer) BuildVerifyURL(baseURL string, card *models.Artifact) (string, error) {
	origin := strings.TrimRight(baseURL, "/")
	if origin == "" {
		origin = i.siteOrigin
	}
	if origin == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "no base URL for verification link: configure site_origin")
	}
	if card.VerifyToken == "" {
		return "", dErrors.New(dErrors.CodeInternal, "card has no verify token")
	}
	return fmt.Sprintf("%s/verify/%s/%s", origin, card.UID, card.VerifyToken), nil
}

// BuildCode encodes url as a QR bitmap.
func BuildCode(url string) (image.Image, error) {
	qr, err := qrcode.New(url, qrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("encode QR: %w", err)
	}
	return qr.Image(QRSizePx), nil
}
