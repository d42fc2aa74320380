package service

import (
	"context"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/edukita/assessment-engine/internal/dto"
	"github.com/edukita/assessment-engine/internal/models"
)

func floatPtr(v float64) *float64 { return &v }

func TestAggregateScore(t *testing.T) {
	question := func(id uint, max, weight float64) models.Question {
		return models.Question{ID: id, MaxScore: max, Weight: weight}
	}

	cases := []struct {
		name     string
		answers  []models.Answer
		want     float64
		hasScore bool
		wantErr  error
	}{
		{
			name: "equal weights average",
			answers: []models.Answer{
				{Score: floatPtr(10), Question: question(1, 10, 1)},
				{Score: floatPtr(0), Question: question(2, 10, 1)},
			},
			want:     50,
			hasScore: true,
		},
		{
			name: "weight skews the result",
			answers: []models.Answer{
				{Score: floatPtr(10), Question: question(1, 10, 3)},
				{Score: floatPtr(0), Question: question(2, 10, 1)},
			},
			want:     75,
			hasScore: true,
		},
		{
			name: "unscored answers excluded from both sums",
			answers: []models.Answer{
				{Score: floatPtr(10), Question: question(1, 10, 1)},
				{Score: nil, Question: question(2, 10, 5)},
			},
			want:     100,
			hasScore: true,
		},
		{
			name: "rounded to two decimals",
			answers: []models.Answer{
				{Score: floatPtr(1), Question: question(1, 3, 1)},
			},
			want:     33.33,
			hasScore: true,
		},
		{
			name: "nothing scored",
			answers: []models.Answer{
				{Score: nil, Question: question(1, 10, 1)},
			},
			hasScore: false,
		},
		{
			name: "zero max score rejected",
			answers: []models.Answer{
				{Score: floatPtr(5), Question: question(1, 0, 1)},
			},
			wantErr: ErrZeroMaxScore,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, hasScore, err := AggregateScore(tc.answers)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.hasScore, hasScore)
			if tc.hasScore {
				require.InDelta(t, tc.want, got, 0.001)
			}
		})
	}
}

type gradingFixture struct {
	submissions *fakeSubmissionRepo
	answers     *fakeAnswerRepo
	questions   *fakeQuestionRepo
	grades      *fakeGradeRepo
	audit       *recorderStub
	events      *capturePublisher
	service     GradingService
}

func newGradingFixture(t *testing.T) *gradingFixture {
	t.Helper()
	questions := newFakeQuestionRepo()
	f := &gradingFixture{
		submissions: newFakeSubmissionRepo(nil),
		answers:     newFakeAnswerRepo(questions),
		questions:   questions,
		grades:      newFakeGradeRepo(),
		audit:       &recorderStub{},
		events:      &capturePublisher{},
	}
	f.service = NewGradingService(
		f.submissions, f.answers, f.grades,
		validator.New(), f.audit, f.events, zerolog.Nop(),
	)
	return f
}

// seedSubmission creates a submitted submission with one answer per question.
func (f *gradingFixture) seedSubmission(t *testing.T, ctx context.Context, kinds []models.QuestionKind, contents []string) uint {
	t.Helper()
	submission := models.Submission{AssignmentID: 1, StudentID: 7, State: models.SubmissionStateSubmitted}
	require.NoError(t, f.submissions.Create(ctx, &submission))

	for i, kind := range kinds {
		question := models.Question{
			AssignmentID: 1,
			Kind:         kind,
			MaxScore:     10,
			Weight:       1,
			Position:     i,
		}
		if kind == models.QuestionKindMultipleChoice {
			question.AnswerKey = datatypes.JSON(`{"correct":"B"}`)
		}
		require.NoError(t, f.questions.Create(ctx, &question))

		answer := models.Answer{
			SubmissionID: submission.ID,
			QuestionID:   question.ID,
			Content:      datatypes.JSON(contents[i]),
		}
		require.NoError(t, f.answers.Upsert(ctx, &answer))
	}

	return submission.ID
}

func TestAutoGradeAllAutoGradable(t *testing.T) {
	ctx := context.Background()
	f := newGradingFixture(t)
	id := f.seedSubmission(t, ctx,
		[]models.QuestionKind{models.QuestionKindMultipleChoice, models.QuestionKindMultipleChoice},
		[]string{`{"selected":"B"}`, `{"selected":"A"}`},
	)

	submission, err := f.service.AutoGrade(ctx, id)
	require.NoError(t, err)
	require.Equal(t, models.SubmissionStateAutoGraded, submission.State)
	require.NotNil(t, submission.Score)
	require.InDelta(t, 50, *submission.Score, 0.001)

	grade, err := f.grades.GetBySubmission(ctx, id)
	require.NoError(t, err)
	require.Equal(t, models.GradeSourceAuto, grade.SourceKind)
	require.False(t, grade.IsDraft)

	require.Equal(t, []string{SubjectSubmissionGraded}, f.events.subjects)
}

func TestAutoGradeMixedKindsNeedsManual(t *testing.T) {
	ctx := context.Background()
	f := newGradingFixture(t)
	id := f.seedSubmission(t, ctx,
		[]models.QuestionKind{models.QuestionKindMultipleChoice, models.QuestionKindEssay},
		[]string{`{"selected":"B"}`, `{"text":"my essay"}`},
	)

	submission, err := f.service.AutoGrade(ctx, id)
	require.NoError(t, err)
	require.Equal(t, models.SubmissionStatePendingManual, submission.State)

	// No grade and no event until the manual pass completes.
	_, err = f.grades.GetBySubmission(ctx, id)
	require.Error(t, err)
	require.Empty(t, f.events.subjects)
}

func TestAutoGradeRejectsWrongState(t *testing.T) {
	ctx := context.Background()
	f := newGradingFixture(t)
	submission := models.Submission{State: models.SubmissionStateInProgress}
	require.NoError(t, f.submissions.Create(ctx, &submission))

	_, err := f.service.AutoGrade(ctx, submission.ID)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestManualGradeTransitionsAndSanitizes(t *testing.T) {
	ctx := context.Background()
	f := newGradingFixture(t)
	id := f.seedSubmission(t, ctx,
		[]models.QuestionKind{models.QuestionKindMultipleChoice, models.QuestionKindEssay},
		[]string{`{"selected":"B"}`, `{"text":"my essay"}`},
	)
	_, err := f.service.AutoGrade(ctx, id)
	require.NoError(t, err)

	answers, err := f.answers.ListBySubmission(ctx, id)
	require.NoError(t, err)
	essayQuestion := answers[1].QuestionID

	submission, err := f.service.ManualGrade(ctx, id, dto.ManualGradeRequest{
		Scores:   map[uint]float64{essayQuestion: 8},
		Feedback: `good work <script>alert("x")</script>`,
	}, Actor{ID: 42, Type: "instructor"})
	require.NoError(t, err)
	require.Equal(t, models.SubmissionStateGraded, submission.State)
	require.NotNil(t, submission.Score)
	require.InDelta(t, 90, *submission.Score, 0.001)

	grade, err := f.grades.GetBySubmission(ctx, id)
	require.NoError(t, err)
	require.NotContains(t, grade.Feedback, "<script>")
	require.Contains(t, grade.Feedback, "good work")

	require.Contains(t, f.audit.actions(), models.AuditActionGrading)
}

func TestManualGradeRejectsOutOfRangeScore(t *testing.T) {
	ctx := context.Background()
	f := newGradingFixture(t)
	id := f.seedSubmission(t, ctx,
		[]models.QuestionKind{models.QuestionKindEssay},
		[]string{`{"text":"hi"}`},
	)
	_, err := f.service.AutoGrade(ctx, id)
	require.NoError(t, err)

	answers, err := f.answers.ListBySubmission(ctx, id)
	require.NoError(t, err)

	_, err = f.service.ManualGrade(ctx, id, dto.ManualGradeRequest{
		Scores: map[uint]float64{answers[0].QuestionID: 11},
	}, Actor{ID: 42, Type: "instructor"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "out of range")
}

func TestManualGradeRefusesOverriddenGrade(t *testing.T) {
	ctx := context.Background()
	f := newGradingFixture(t)
	id := f.seedSubmission(t, ctx,
		[]models.QuestionKind{models.QuestionKindMultipleChoice},
		[]string{`{"selected":"B"}`},
	)
	_, err := f.service.AutoGrade(ctx, id)
	require.NoError(t, err)

	instructor := Actor{ID: 42, Type: "instructor"}
	_, err = f.service.OverrideGrade(ctx, id, dto.OverrideGradeRequest{Score: 70, Reason: "partial credit"}, instructor)
	require.NoError(t, err)

	answers, err := f.answers.ListBySubmission(ctx, id)
	require.NoError(t, err)
	eventsBefore := len(f.events.subjects)

	_, err = f.service.ManualGrade(ctx, id, dto.ManualGradeRequest{
		Scores: map[uint]float64{answers[0].QuestionID: 1},
	}, instructor)
	require.ErrorIs(t, err, ErrGradeOverridden)

	// Neither the grade, the submission score, nor the event stream moved.
	grade, err := f.grades.GetBySubmission(ctx, id)
	require.NoError(t, err)
	require.InDelta(t, 70, grade.Score, 0.001)

	submission, err := f.submissions.GetByID(ctx, id)
	require.NoError(t, err)
	require.Equal(t, models.SubmissionStateAutoGraded, submission.State)
	require.NotNil(t, submission.Score)
	require.InDelta(t, 100, *submission.Score, 0.001)

	require.Len(t, f.events.subjects, eventsBefore)
}

func TestOverridePreservesOriginalScoreOnce(t *testing.T) {
	ctx := context.Background()
	f := newGradingFixture(t)
	id := f.seedSubmission(t, ctx,
		[]models.QuestionKind{models.QuestionKindMultipleChoice},
		[]string{`{"selected":"B"}`},
	)
	_, err := f.service.AutoGrade(ctx, id)
	require.NoError(t, err)

	instructor := Actor{ID: 42, Type: "instructor"}
	grade, err := f.service.OverrideGrade(ctx, id, dto.OverrideGradeRequest{Score: 70, Reason: "partial credit"}, instructor)
	require.NoError(t, err)
	require.True(t, grade.IsOverride)
	require.NotNil(t, grade.OriginalScore)
	require.InDelta(t, 100, *grade.OriginalScore, 0.001)
	require.InDelta(t, 70, grade.Score, 0.001)

	// A second override moves the score but not the preserved original.
	grade, err = f.service.OverrideGrade(ctx, id, dto.OverrideGradeRequest{Score: 55, Reason: "recount"}, instructor)
	require.NoError(t, err)
	require.InDelta(t, 100, *grade.OriginalScore, 0.001)
	require.InDelta(t, 55, grade.Score, 0.001)

	require.Contains(t, f.audit.actions(), models.AuditActionGradeOverride)
}

func TestOverrideRequiresReason(t *testing.T) {
	ctx := context.Background()
	f := newGradingFixture(t)

	_, err := f.service.OverrideGrade(ctx, 1, dto.OverrideGradeRequest{Score: 70}, Actor{ID: 42})
	require.Error(t, err)
}

func TestReleaseRefusesDraftGrade(t *testing.T) {
	ctx := context.Background()
	f := newGradingFixture(t)
	id := f.seedSubmission(t, ctx,
		[]models.QuestionKind{models.QuestionKindEssay},
		[]string{`{"text":"hi"}`},
	)
	_, err := f.service.AutoGrade(ctx, id)
	require.NoError(t, err)

	answers, err := f.answers.ListBySubmission(ctx, id)
	require.NoError(t, err)
	instructor := Actor{ID: 42, Type: "instructor"}

	require.NoError(t, f.service.SaveDraft(ctx, id, dto.DraftGradeRequest{
		Scores: map[uint]float64{answers[0].QuestionID: 6},
	}, instructor))

	_, err = f.service.ReleaseGrade(ctx, id, instructor)
	require.ErrorIs(t, err, ErrDraftGrade)
}

func TestReleaseIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newGradingFixture(t)
	id := f.seedSubmission(t, ctx,
		[]models.QuestionKind{models.QuestionKindMultipleChoice},
		[]string{`{"selected":"B"}`},
	)
	_, err := f.service.AutoGrade(ctx, id)
	require.NoError(t, err)

	instructor := Actor{ID: 42, Type: "instructor"}
	first, err := f.service.ReleaseGrade(ctx, id, instructor)
	require.NoError(t, err)
	require.NotNil(t, first.ReleasedAt)

	second, err := f.service.ReleaseGrade(ctx, id, instructor)
	require.NoError(t, err)
	require.Equal(t, first.ReleasedAt.Unix(), second.ReleasedAt.Unix())

	submission, err := f.submissions.GetByID(ctx, id)
	require.NoError(t, err)
	require.Equal(t, models.SubmissionStateReleased, submission.State)
}
