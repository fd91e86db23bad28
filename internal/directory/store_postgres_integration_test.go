//go:build integration

package directory_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"campuscard/internal/card/models"
	"campuscard/internal/directory"
	"campuscard/pkg/platform/sentinel"
	"campuscard/pkg/testutil/containers"
)

type PostgresDirectorySuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	dir      *directory.PostgresDirectory
}

func TestPostgresDirectorySuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresDirectorySuite))
}

func (s *PostgresDirectorySuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T())
	s.dir = directory.NewPostgres(s.postgres.DB.SQL)
}

func (s *PostgresDirectorySuite) SetupTest() {
	s.Require().NoError(s.postgres.Truncate(context.Background()))
}

func (s *PostgresDirectorySuite) seed(status models.ApplicationStatus, photo []byte) uuid.UUID {
	ctx := context.Background()
	id := uuid.New()
	_, err := s.postgres.DB.SQL.ExecContext(ctx,
		`INSERT INTO subjects (id, matric_no, first_name, middle_name, last_name, department, level, phone)
		 VALUES ($1, $2, 'Amina', 'K', 'Yusuf', 'Physics', '200', '08011111111')`,
		id, "PHY/"+id.String()[:8],
	)
	s.Require().NoError(err)
	_, err = s.postgres.DB.SQL.ExecContext(ctx,
		`INSERT INTO applications (subject_id, status, photo) VALUES ($1, $2, $3)`,
		id, status, photo,
	)
	s.Require().NoError(err)
	return id
}

func (s *PostgresDirectorySuite) TestSubjectRoundTrip() {
	id := s.seed(models.ApplicationApproved, []byte{0x89, 0x50})

	subject, err := s.dir.Subject(context.Background(), id)
	s.Require().NoError(err)
	s.Equal("Amina K Yusuf", subject.FullName())
	s.Equal("Physics", subject.Department)
}

func (s *PostgresDirectorySuite) TestApprovedPhoto() {
	id := s.seed(models.ApplicationApproved, []byte{0x89, 0x50, 0x4e, 0x47})

	photo, err := s.dir.ApprovedPhoto(context.Background(), id)
	s.Require().NoError(err)
	s.Len(photo, 4)
}

func (s *PostgresDirectorySuite) TestPendingApplicationHasNoApprovedPhoto() {
	id := s.seed(models.ApplicationPending, []byte{0x01})

	_, err := s.dir.ApprovedPhoto(context.Background(), id)
	s.Require().Error(err)
	s.ErrorIs(err, sentinel.ErrNotFound)

	status, err := s.dir.ApplicationStatus(context.Background(), id)
	s.Require().NoError(err)
	s.Equal(models.ApplicationPending, status)
}

func (s *PostgresDirectorySuite) TestUnknownSubject() {
	_, err := s.dir.Subject(context.Background(), uuid.New())
	s.ErrorIs(err, sentinel.ErrNotFound)
}
