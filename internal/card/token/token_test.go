package token

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campuscard/internal/card/models"
	dErrors "campuscard/pkg/domain-errors"
)

func TestEnsureTokenIdempotent(t *testing.T) {
	card := &models.Artifact{UID: uuid.New()}

	changed, err := EnsureToken(card)
	require.NoError(t, err)
	assert.True(t, changed)
	first := card.VerifyToken
	require.NotEmpty(t, first)

	changed, err = EnsureToken(card)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, first, card.VerifyToken, "existing token must be reused")
}

func TestBuildVerifyURLResolutionOrder(t *testing.T) {
	card := &models.Artifact{UID: uuid.New(), VerifyToken: "tok123"}

	issuer := NewIssuer("https://id.example.edu/")
	url, err := issuer.BuildVerifyURL("", card)
	require.NoError(t, err)
	assert.Equal(t, "https://id.example.edu/verify/"+card.UID.String()+"/tok123", url)

	url, err = issuer.BuildVerifyURL("https://request.example.edu", card)
	require.NoError(t, err)
	assert.Equal(t, "https://request.example.edu/verify/"+card.UID.String()+"/tok123", url,
		"request-derived origin wins over configured origin")
}

func TestBuildVerifyURLNoOriginIsError(t *testing.T) {
	card := &models.Artifact{UID: uuid.New(), VerifyToken: "tok123"}
	issuer := NewIssuer("")

	_, err := issuer.BuildVerifyURL("", card)
	require.Error(t, err)
	assert.True(t, dErrors.Is(err, dErrors.CodeInvalidInput))
	assert.NotContains(t, err.Error(), "localhost")
}

func TestBuildVerifyURLRequiresToken(t *testing.T) {
	card := &models.Artifact{UID: uuid.New()}
	issuer := NewIssuer("https://id.example.edu")
	_, err := issuer.BuildVerifyURL("", card)
	assert.Error(t, err)
}

func TestBuildCode(t *testing.T) {
	img, err := BuildCode("https://id.example.edu/verify/x/y")
	require.NoError(t, err)
	bounds := img.Bounds()
	assert.Equal(t, QRSizePx, bounds.Dx())
	assert.Equal(t, QRSizePx, bounds.Dy())
}
