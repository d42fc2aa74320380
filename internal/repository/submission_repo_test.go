package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/edukita/assessment-engine/internal/models"
)

func TestSubmissionRepositoryTransitionStateIsConditional(t *testing.T) {
	db := setupTestDB(t, &models.Assignment{}, &models.Question{}, &models.Submission{})
	repo := NewSubmissionRepository(db)

	assignment := models.Assignment{Title: "Quiz 1", DueDate: time.Now().Add(24 * time.Hour), MaxScore: 100, CreatedBy: 7}
	require.NoError(t, db.Create(&assignment).Error)

	submission := models.Submission{
		AssignmentID:  assignment.ID,
		StudentID:     3,
		AttemptNumber: 1,
		State:         models.SubmissionStateInProgress,
	}
	require.NoError(t, db.Create(&submission).Error)

	ok, err := repo.TransitionState(context.Background(), submission.ID, models.SubmissionStateInProgress, models.SubmissionStateSubmitted)
	require.NoError(t, err)
	require.True(t, ok)

	// A second actor racing on the same transition must lose.
	ok, err = repo.TransitionState(context.Background(), submission.ID, models.SubmissionStateInProgress, models.SubmissionStateSubmitted)
	require.NoError(t, err)
	require.False(t, ok)

	stored, err := repo.GetByID(context.Background(), submission.ID)
	require.NoError(t, err)
	require.Equal(t, models.SubmissionStateSubmitted, stored.State)
}

func TestSubmissionRepositoryAttemptQueries(t *testing.T) {
	db := setupTestDB(t, &models.Assignment{}, &models.Question{}, &models.Submission{})
	repo := NewSubmissionRepository(db)

	assignment := models.Assignment{Title: "Quiz 2", DueDate: time.Now().Add(24 * time.Hour), MaxScore: 100, CreatedBy: 7}
	require.NoError(t, db.Create(&assignment).Error)

	for attempt := 1; attempt <= 3; attempt++ {
		submission := models.Submission{
			AssignmentID:  assignment.ID,
			StudentID:     5,
			AttemptNumber: attempt,
			State:         models.SubmissionStateGraded,
		}
		require.NoError(t, db.Create(&submission).Error)
	}

	count, err := repo.CountAttempts(context.Background(), assignment.ID, 5)
	require.NoError(t, err)
	require.Equal(t, int64(3), count)

	latest, err := repo.LatestAttempt(context.Background(), assignment.ID, 5)
	require.NoError(t, err)
	require.Equal(t, 3, latest.AttemptNumber)

	count, err = repo.CountAttempts(context.Background(), assignment.ID, 99)
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestSubmissionRepositoryHasReleased(t *testing.T) {
	db := setupTestDB(t, &models.Assignment{}, &models.Question{}, &models.Submission{})
	repo := NewSubmissionRepository(db)

	assignment := models.Assignment{Title: "Prereq", DueDate: time.Now().Add(time.Hour), MaxScore: 100, CreatedBy: 1}
	require.NoError(t, db.Create(&assignment).Error)

	released, err := repo.HasReleased(context.Background(), assignment.ID, 8)
	require.NoError(t, err)
	require.False(t, released)

	submission := models.Submission{AssignmentID: assignment.ID, StudentID: 8, AttemptNumber: 1, State: models.SubmissionStateReleased}
	require.NoError(t, db.Create(&submission).Error)

	released, err = repo.HasReleased(context.Background(), assignment.ID, 8)
	require.NoError(t, err)
	require.True(t, released)
}
