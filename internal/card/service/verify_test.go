package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/google/uuid"

	"campuscard/internal/card/models"
	dErrors "campuscard/pkg/domain-errors"
)

func TestVerifyWithTokenIsAuthenticated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	subjectID := f.approvedSubject(t)

	result, err := f.svc.Generate(ctx, subjectID, "")
	require.NoError(t, err)
	card := result.Card

	v, err := f.svc.Verify(ctx, card.UID, card.VerifyToken)
	require.NoError(t, err)
	assert.True(t, v.Authenticated)

	summary := v.Summary()
	assert.Equal(t, "Adaeze Okafor", summary["full_name"])
	assert.Equal(t, "CSC/2022/031", summary["matric_no"])
	assert.Equal(t, "08030000000", summary["phone"])
}

func TestVerifyWithoutTokenIsReducedView(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	subjectID := f.approvedSubject(t)

	result, err := f.svc.Generate(ctx, subjectID, "")
	require.NoError(t, err)

	v, err := f.svc.Verify(ctx, result.Card.UID, "")
	require.NoError(t, err)
	assert.False(t, v.Authenticated)

	summary := v.Summary()
	assert.Equal(t, "Adaeze Okafor", summary["full_name"])
	assert.NotContains(t, summary, "phone", "tokenless lookups never expose contact details")
}

func TestVerifyTokenMismatchRevealsNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	subjectID := f.approvedSubject(t)

	result, err := f.svc.Generate(ctx, subjectID, "")
	require.NoError(t, err)

	v, err := f.svc.Verify(ctx, result.Card.UID, "not-the-token")
	require.Error(t, err)
	assert.Nil(t, v)
	assert.True(t, dErrors.Is(err, dErrors.CodeInvalidToken))
	assert.NotContains(t, err.Error(), "Adaeze", "mismatch must not leak card data")
}

func TestVerifyUnknownUIDLooksLikeBadToken(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Verify(context.Background(), uuid.New(), "whatever")
	require.Error(t, err)
	assert.True(t, dErrors.Is(err, dErrors.CodeInvalidToken))
}

func TestVerifyRevokedBeatsTokenValidity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	subjectID := f.approvedSubject(t)

	result, err := f.svc.Generate(ctx, subjectID, "")
	require.NoError(t, err)
	require.NoError(t, f.svc.Revoke(ctx, subjectID, "disciplinary hold"))

	_, err = f.svc.Verify(ctx, result.Card.UID, result.Card.VerifyToken)
	require.Error(t, err)
	assert.True(t, dErrors.Is(err, dErrors.CodeRevoked))
}

func TestVerifyExpiredCard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	subjectID := f.approvedSubject(t)

	result, err := f.svc.Generate(ctx, subjectID, "")
	require.NoError(t, err)

	f.svc.WithClock(func() time.Time { return time.Now().Add(2 * time.Hour) })
	_, err = f.svc.Verify(ctx, result.Card.UID, result.Card.VerifyToken)
	require.Error(t, err)
	assert.True(t, dErrors.Is(err, dErrors.CodeExpired))
}

func TestVerifyHealsMissingArtifact(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	subjectID := f.approvedSubject(t)

	result, err := f.svc.Generate(ctx, subjectID, "")
	require.NoError(t, err)
	require.NoError(t, f.blobs.Delete(ctx, result.Ref))

	v, err := f.svc.Verify(ctx, result.Card.UID, result.Card.VerifyToken)
	require.NoError(t, err)
	assert.True(t, v.Authenticated)

	card, err := f.cards.Get(ctx, subjectID)
	require.NoError(t, err)
	require.NotNil(t, card.BlobRef)
	ok, err := f.blobs.Exists(ctx, *card.BlobRef)
	require.NoError(t, err)
	assert.True(t, ok, "verifying rebuilds the missing blob")
}

func TestVerifyUnresolvableArtifactIsUnavailable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	subjectID := f.approvedSubject(t)

	result, err := f.svc.Generate(ctx, subjectID, "")
	require.NoError(t, err)

	// The blob is gone and the photo was withdrawn: the artifact cannot be
	// produced anymore, so the card must not verify as valid.
	require.NoError(t, f.blobs.Delete(ctx, result.Ref))
	f.dir.SetApplication(subjectID, models.ApplicationApproved, nil)

	_, err = f.svc.Verify(ctx, result.Card.UID, result.Card.VerifyToken)
	require.Error(t, err)
	assert.True(t, dErrors.Is(err, dErrors.CodeUnavailable))
}

func TestFetchImageHealsMissingBlob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	subjectID := f.approvedSubject(t)

	result, err := f.svc.Generate(ctx, subjectID, "")
	require.NoError(t, err)

	// Simulate backend data loss behind a committed reference.
	require.NoError(t, f.blobs.Delete(ctx, result.Ref))

	healed, err := f.svc.FetchImage(ctx, result.Card.UID)
	require.NoError(t, err)
	assert.False(t, healed.Skipped)
	assert.NotEqual(t, result.Ref, healed.Ref, "heal commits a fresh reference")

	ok, err := f.blobs.Exists(ctx, healed.Ref)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFetchImageValidBlobIsCheap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	subjectID := f.approvedSubject(t)

	result, err := f.svc.Generate(ctx, subjectID, "")
	require.NoError(t, err)

	fetched, err := f.svc.FetchImage(ctx, result.Card.UID)
	require.NoError(t, err)
	assert.True(t, fetched.Skipped, "valid reference needs only an existence probe")
	assert.Equal(t, result.Ref, fetched.Ref)
	assert.Equal(t, 1, f.blobs.Len())
}
