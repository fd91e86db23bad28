package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestSubjectFullName(t *testing.T) {
	assert.Equal(t, "Ada Grace Lovelace", Subject{FirstName: "Ada", MiddleName: "Grace", LastName: "Lovelace"}.FullName())
	assert.Equal(t, "Ada Lovelace", Subject{FirstName: "Ada", LastName: "Lovelace"}.FullName())
	assert.Equal(t, "", Subject{}.FullName())
}

func TestArtifactState(t *testing.T) {
	ref := "blobs/abc"

	var nilCard *Artifact
	assert.Equal(t, StateNoArtifact, nilCard.State())

	card := &Artifact{SubjectID: uuid.New(), UID: uuid.New(), IsActive: true}
	assert.Equal(t, StatePendingBuild, card.State())

	card.BlobRef = &ref
	assert.Equal(t, StateReady, card.State())

	card.Stale = true
	assert.Equal(t, StateStale, card.State())
	assert.True(t, card.NeedsBuild())

	card.IsRevoked = true
	assert.Equal(t, StateRevoked, card.State())
	assert.False(t, card.NeedsBuild(), "revocation blocks regeneration")
}

func TestArtifactExpiry(t *testing.T) {
	now := time.Now()
	card := &Artifact{IsActive: true, ExpiresAt: now.Add(time.Hour)}
	assert.False(t, card.Expired(now))
	assert.True(t, card.Expired(now.Add(2*time.Hour)))
	assert.True(t, card.Valid(now))
	assert.False(t, card.Valid(now.Add(2*time.Hour)))

	noExpiry := &Artifact{IsActive: true}
	assert.False(t, noExpiry.Expired(now))
}
