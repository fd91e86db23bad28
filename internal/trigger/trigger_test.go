package trigger

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"campuscard/internal/blob"
	"campuscard/internal/card/models"
	"campuscard/internal/card/render"
	"campuscard/internal/card/service"
	"campuscard/internal/card/store"
	"campuscard/internal/card/token"
	"campuscard/internal/directory"
)

func newTriggerFixture(t *testing.T) (*Triggers, *store.MemoryStore, *directory.MemoryDirectory) {
	t.Helper()
	cards := store.NewMemory()
	dir := directory.NewMemory()
	client := blob.NewClient(blob.NewMemory(), blob.RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond}, time.Second, nil)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := service.New(cards, dir, client, render.New(t.TempDir()), token.NewIssuer("https://id.example.edu"), logger, nil, time.Hour)
	return New(svc, logger), cards, dir
}

func approvedSubject(t *testing.T, dir *directory.MemoryDirectory) uuid.UUID {
	t.Helper()
	id := uuid.New()
	dir.AddSubject(models.Subject{ID: id, MatricNo: "CSC/2023/007", FirstName: "Ngozi", LastName: "Bello"})

	img := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	dir.SetApplication(id, models.ApplicationApproved, buf.Bytes())
	return id
}

func TestApprovalTriggerGeneratesCard(t *testing.T) {
	triggers, cards, dir := newTriggerFixture(t)
	subjectID := approvedSubject(t, dir)

	triggers.OnApprovalApproved(subjectID)
	triggers.Wait()

	card, err := cards.Get(context.Background(), subjectID)
	require.NoError(t, err)
	assert.Equal(t, models.StateReady, card.State())
}

func TestFailedTriggerIsSwallowed(t *testing.T) {
	triggers, cards, dir := newTriggerFixture(t)
	id := uuid.New()
	dir.AddSubject(models.Subject{ID: id, MatricNo: "CSC/2023/008"})
	dir.SetApplication(id, models.ApplicationPending, nil)

	// No approved photo: the background job fails, the caller never sees it.
	triggers.OnApprovalApproved(id)
	triggers.Wait()

	card, err := cards.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Nil(t, card.BlobRef)
}

func TestManualEditRebuilds(t *testing.T) {
	triggers, cards, dir := newTriggerFixture(t)
	subjectID := approvedSubject(t, dir)

	triggers.OnApprovalApproved(subjectID)
	triggers.Wait()
	first, err := cards.Get(context.Background(), subjectID)
	require.NoError(t, err)
	require.NotNil(t, first.BlobRef)

	triggers.OnManualEdit(subjectID)
	triggers.Wait()
	second, err := cards.Get(context.Background(), subjectID)
	require.NoError(t, err)
	require.NotNil(t, second.BlobRef)
	assert.NotEqual(t, *first.BlobRef, *second.BlobRef)
}

func TestConsumerHandleFiltersEvents(t *testing.T) {
	triggers, cards, dir := newTriggerFixture(t)
	subjectID := approvedSubject(t, dir)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := &Consumer{triggers: triggers, logger: logger, topic: "card-approvals"}

	rejected, err := json.Marshal(ApprovalEvent{SubjectID: subjectID, Status: "REJECTED"})
	require.NoError(t, err)
	c.handle(&kgo.Record{Topic: "card-approvals", Value: rejected})

	c.handle(&kgo.Record{Topic: "card-approvals", Value: []byte("not json")})

	approved, err := json.Marshal(ApprovalEvent{SubjectID: subjectID, Status: "APPROVED", At: time.Now()})
	require.NoError(t, err)
	c.handle(&kgo.Record{Topic: "card-approvals", Value: approved})
	triggers.Wait()

	card, err := cards.Get(context.Background(), subjectID)
	require.NoError(t, err)
	assert.Equal(t, models.StateReady, card.State(), "only the approved event generates")
}
