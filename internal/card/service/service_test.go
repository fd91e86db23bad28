package service

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campuscard/internal/blob"
	"campuscard/internal/card/models"
	"campuscard/internal/card/render"
	"campuscard/internal/card/store"
	"campuscard/internal/card/token"
	"campuscard/internal/directory"
	dErrors "campuscard/pkg/domain-errors"
)

type fixture struct {
	svc   *Service
	cards *store.MemoryStore
	dir   *directory.MemoryDirectory
	blobs *blob.MemoryStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cards := store.NewMemory()
	dir := directory.NewMemory()
	blobs := blob.NewMemory()
	client := blob.NewClient(blobs, blob.RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond}, time.Second, nil)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := New(
		cards,
		dir,
		client,
		render.New(t.TempDir()),
		token.NewIssuer("https://id.example.edu"),
		logger,
		nil,
		time.Hour,
	)
	return &fixture{svc: svc, cards: cards, dir: dir, blobs: blobs}
}

// approvedSubject registers a subject with an approved application and photo,
// returning its ID.
func (f *fixture) approvedSubject(t *testing.T) uuid.UUID {
	t.Helper()
	id := uuid.New()
	f.dir.AddSubject(models.Subject{
		ID:         id,
		MatricNo:   "CSC/2022/031",
		FirstName:  "Adaeze",
		LastName:   "Okafor",
		Department: "Computer Science",
		Level:      "300",
		Phone:      "08030000000",
	})
	f.dir.SetApplication(id, models.ApplicationApproved, testPhoto(t))
	return id
}

func testPhoto(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 16, 16))
	for i := range img.Pix {
		img.Pix[i] = 0x7f
	}
	img.Set(0, 0, color.NRGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestGetOrCreateIssuesVerifyToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	subjectID := uuid.New()

	card, err := f.svc.GetOrCreate(ctx, subjectID)
	require.NoError(t, err)
	assert.NotEmpty(t, card.VerifyToken)

	again, err := f.svc.GetOrCreate(ctx, subjectID)
	require.NoError(t, err)
	assert.Equal(t, card.VerifyToken, again.VerifyToken, "existing row keeps its token")
}

func TestGenerateCommitsVerifiedBlob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	subjectID := f.approvedSubject(t)

	result, err := f.svc.Generate(ctx, subjectID, "")
	require.NoError(t, err)
	assert.False(t, result.Degraded)
	assert.False(t, result.Skipped)
	assert.NotEmpty(t, result.Ref)
	assert.Equal(t, 1, f.blobs.Len())

	card, err := f.cards.Get(ctx, subjectID)
	require.NoError(t, err)
	require.NotNil(t, card.BlobRef)
	assert.Equal(t, result.Ref, *card.BlobRef)
	assert.Equal(t, models.StateReady, card.State())
}

func TestGenerateIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	subjectID := f.approvedSubject(t)

	first, err := f.svc.Generate(ctx, subjectID, "")
	require.NoError(t, err)

	second, err := f.svc.Generate(ctx, subjectID, "")
	require.NoError(t, err)
	assert.True(t, second.Skipped, "second call should reuse the committed reference")
	assert.Equal(t, first.Ref, second.Ref)
	assert.Equal(t, 1, f.blobs.Len(), "no second render should reach the store")
}

func TestConcurrentGeneratesWriteOneBlob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	subjectID := f.approvedSubject(t)

	const goroutines = 25
	refs := make([]string, goroutines)
	var wg sync.WaitGroup
	for i := range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := f.svc.Generate(ctx, subjectID, "")
			if assert.NoError(t, err) {
				refs[i] = result.Ref
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, f.blobs.Len(), "exactly one blob write across all callers")
	for _, ref := range refs {
		assert.Equal(t, refs[0], ref, "every caller observes the winner's reference")
	}
}

func TestGenerateWithoutApprovalIsInputError(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := uuid.New()
	f.dir.AddSubject(models.Subject{ID: id, MatricNo: "CSC/2022/040", FirstName: "Bolu", LastName: "Adeyemi"})
	f.dir.SetApplication(id, models.ApplicationPending, nil)

	_, err := f.svc.Generate(ctx, id, "")
	require.Error(t, err)
	assert.True(t, dErrors.Is(err, dErrors.CodeInvalidInput))

	card, err := f.cards.Get(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, card.BlobRef, "failed generation must not commit a reference")
	assert.Equal(t, 0, f.blobs.Len())
}

func TestGenerateWithoutPhotoIsInputError(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := uuid.New()
	f.dir.AddSubject(models.Subject{ID: id, MatricNo: "CSC/2022/041", FirstName: "Chidi", LastName: "Eze"})
	f.dir.SetApplication(id, models.ApplicationApproved, nil)

	_, err := f.svc.Generate(ctx, id, "")
	require.Error(t, err)
	assert.True(t, dErrors.Is(err, dErrors.CodeInvalidInput))

	card, err := f.cards.Get(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, card.BlobRef)
}

func TestGenerateDegradesWhenStorageExhausted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	subjectID := f.approvedSubject(t)

	f.blobs.FailNextPuts(10)
	result, err := f.svc.Generate(ctx, subjectID, "")
	require.NoError(t, err, "exhausted storage degrades, it does not fail the caller")
	assert.True(t, result.Degraded)
	assert.NotEmpty(t, result.Bytes)
	assert.Empty(t, result.Ref)

	card, err := f.cards.Get(ctx, subjectID)
	require.NoError(t, err)
	assert.Nil(t, card.BlobRef, "degraded serve must not be recorded as success")
	assert.Equal(t, 0, f.blobs.Len())

	// Storage recovers: the next access runs the full cycle.
	recovered, err := f.svc.Generate(ctx, subjectID, "")
	require.NoError(t, err)
	assert.False(t, recovered.Degraded)
	assert.NotEmpty(t, recovered.Ref)
}

func TestGenerateRefusesRevokedCard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	subjectID := f.approvedSubject(t)

	_, err := f.svc.Generate(ctx, subjectID, "")
	require.NoError(t, err)
	require.NoError(t, f.svc.Revoke(ctx, subjectID, "reported lost"))

	_, err = f.svc.Generate(ctx, subjectID, "")
	require.Error(t, err)
	assert.True(t, dErrors.Is(err, dErrors.CodeRevoked))
}

func TestRotateTokenForcesRebuildWithNewLink(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	subjectID := f.approvedSubject(t)

	first, err := f.svc.Generate(ctx, subjectID, "")
	require.NoError(t, err)
	oldToken := first.Card.VerifyToken

	require.NoError(t, f.svc.RotateToken(ctx, subjectID))

	card, err := f.cards.Get(ctx, subjectID)
	require.NoError(t, err)
	assert.NotEqual(t, oldToken, card.VerifyToken)
	assert.True(t, card.Stale)

	second, err := f.svc.Generate(ctx, subjectID, "")
	require.NoError(t, err)
	assert.False(t, second.Skipped, "stale card must re-render")
	assert.NotEqual(t, first.Ref, second.Ref)
}

func TestMarkPhotoReplacedTriggersRebuild(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	subjectID := f.approvedSubject(t)

	first, err := f.svc.Generate(ctx, subjectID, "")
	require.NoError(t, err)

	require.NoError(t, f.svc.MarkPhotoReplaced(ctx, subjectID))
	second, err := f.svc.Generate(ctx, subjectID, "")
	require.NoError(t, err)
	assert.False(t, second.Skipped)
	assert.NotEqual(t, first.Ref, second.Ref)
}
