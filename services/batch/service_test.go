package batch

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/customeros/mailprobe/config"
	"github.com/customeros/mailprobe/interfaces"
	"github.com/customeros/mailprobe/internal/enum"
	mperrors "github.com/customeros/mailprobe/internal/errors"
	"github.com/customeros/mailprobe/internal/logger"
	"github.com/customeros/mailprobe/internal/models"
	"github.com/customeros/mailprobe/internal/repository"
	"github.com/customeros/mailprobe/services/notifier"
)

type MockValidator struct {
	mock.Mock
}

func (m *MockValidator) Validate(ctx context.Context, email string, flags models.ValidationFlags) *models.ValidationResult {
	args := m.Called(ctx, email, flags)
	return args.Get(0).(*models.ValidationResult)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishValidationBatch(ctx context.Context, message models.BatchMessage) error {
	args := m.Called(ctx, message)
	return args.Error(0)
}

func (m *MockPublisher) Close() error {
	return nil
}

type fixture struct {
	mr        *miniredis.Miniredis
	repo      interfaces.BatchRepository
	validator *MockValidator
	publisher *MockPublisher
	service   *Service
}

func newFixture(t *testing.T) *fixture {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	log := logger.NewAppLogger(&logger.Config{LogLevel: "error"})
	log.InitLogger()

	repo := repository.NewBatchRepository(client, time.Hour)
	tracker := NewTracker(repo, notifier.NewService(client, "email_validation_results", log), log)
	validator := new(MockValidator)
	publisher := new(MockPublisher)

	return &fixture{
		mr:        mr,
		repo:      repo,
		validator: validator,
		publisher: publisher,
		service:   NewService(&config.AppConfig{SmallBatchThreshold: 5}, validator, publisher, repo, tracker, log),
	}
}

func emailList(n int) []string {
	emails := make([]string, n)
	for i := range emails {
		emails[i] = fmt.Sprintf("user%d@example.org", i)
	}
	return emails
}

func TestSplit_Tiers(t *testing.T) {
	cases := []struct {
		total     int
		batches   int
		firstSize int
	}{
		{total: 1, batches: 1, firstSize: 1},
		{total: 20, batches: 1, firstSize: 20},
		{total: 21, batches: 1, firstSize: 21},
		{total: 75, batches: 3, firstSize: 30},
		{total: 150, batches: 3, firstSize: 50},
		{total: 450, batches: 5, firstSize: 100},
		{total: 1000, batches: 7, firstSize: 150},
		{total: 2001, batches: 11, firstSize: 200},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("%d emails", tc.total), func(t *testing.T) {
			batches := Split(emailList(tc.total))

			require.Len(t, batches, tc.batches)
			assert.Len(t, batches[0], tc.firstSize)
			count := 0
			for _, b := range batches {
				count += len(b)
			}
			assert.Equal(t, tc.total, count)
		})
	}
	assert.Nil(t, Split(nil))
}

func TestSplit_PreservesOrder(t *testing.T) {
	emails := emailList(75)

	batches := Split(emails)

	var joined []string
	for _, b := range batches {
		joined = append(joined, b...)
	}
	assert.Equal(t, emails, joined)
}

func TestEstimatedTime(t *testing.T) {
	assert.Equal(t, "1 minutes", EstimatedTime(6))
	assert.Equal(t, "3 minutes", EstimatedTime(25))
}

func TestSubmit_NoEmails(t *testing.T) {
	f := newFixture(t)

	handle, err := f.service.Submit(context.Background(), nil, models.AllChecks())

	assert.Nil(t, handle)
	assert.ErrorIs(t, err, mperrors.ErrNoEmails)
}

func TestSubmit_SmallBatchIsInline(t *testing.T) {
	// Arrange
	f := newFixture(t)
	flags := models.AllChecks()
	for _, email := range emailList(3) {
		f.validator.On("Validate", mock.Anything, email, flags).
			Return(&models.ValidationResult{Email: email, Status: enum.StatusDeliverable}).Once()
	}

	// Act
	handle, err := f.service.Submit(context.Background(), emailList(3), flags)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, enum.BatchCompleted, handle.Status)
	assert.Equal(t, 3, handle.TotalEmails)
	assert.Equal(t, 3, handle.ProcessedEmails)
	require.Len(t, handle.Results, 3)
	assert.Equal(t, "user0@example.org", handle.Results[0].Email)
	assert.Equal(t, "user2@example.org", handle.Results[2].Email)
	assert.NotEmpty(t, handle.BatchId)
	f.publisher.AssertNotCalled(t, "PublishValidationBatch", mock.Anything, mock.Anything)
	f.validator.AssertExpectations(t)
}

func TestSubmit_SingleQueuedBatch(t *testing.T) {
	// Arrange
	f := newFixture(t)
	flags := models.ValidationFlags{CheckMX: true}
	var published models.BatchMessage
	f.publisher.On("PublishValidationBatch", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { published = args.Get(1).(models.BatchMessage) }).
		Return(nil).Once()

	// Act
	handle, err := f.service.Submit(context.Background(), emailList(12), flags)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, enum.BatchProcessing, handle.Status)
	assert.Equal(t, 12, handle.TotalEmails)
	assert.Equal(t, 0, handle.ProcessedEmails)
	assert.Equal(t, "2 minutes", handle.EstimatedTime)
	assert.Nil(t, handle.Results)
	assert.Equal(t, handle.BatchId, published.BatchId)
	assert.Len(t, published.Emails, 12)
	assert.Equal(t, flags, published.ValidationFlags)

	status, err := f.service.Status(context.Background(), handle.BatchId)
	require.NoError(t, err)
	assert.Equal(t, enum.BatchQueued, status.Status)
	assert.Equal(t, 12, status.TotalEmails)
}

func TestSubmit_MultiBatchReturnsRequestHandle(t *testing.T) {
	// Arrange
	f := newFixture(t)
	var published []models.BatchMessage
	f.publisher.On("PublishValidationBatch", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { published = append(published, args.Get(1).(models.BatchMessage)) }).
		Return(nil)
	ctx := context.Background()

	// Act
	handle, err := f.service.Submit(ctx, emailList(75), models.AllChecks())

	// Assert
	require.NoError(t, err)
	require.Len(t, published, 3)
	assert.Equal(t, "8 minutes", handle.EstimatedTime)

	request, err := f.repo.GetMultiBatch(ctx, handle.BatchId)
	require.NoError(t, err)
	require.NotNil(t, request)
	assert.Equal(t, 75, request.TotalEmails)
	for i, message := range published {
		assert.Equal(t, request.BatchIds[i], message.BatchId)
		parent, err := f.repo.GetParent(ctx, message.BatchId)
		require.NoError(t, err)
		assert.Equal(t, handle.BatchId, parent)
	}
}

func TestSubmit_QueueFailure(t *testing.T) {
	f := newFixture(t)
	f.publisher.On("PublishValidationBatch", mock.Anything, mock.Anything).Return(assert.AnError)

	handle, err := f.service.Submit(context.Background(), emailList(10), models.AllChecks())

	assert.Nil(t, handle)
	assert.ErrorIs(t, err, mperrors.ErrQueueUnavailable)
}

func TestStatus_UnknownId(t *testing.T) {
	f := newFixture(t)

	status, err := f.service.Status(context.Background(), "missing")

	require.NoError(t, err)
	assert.Equal(t, enum.BatchProcessing, status.Status)
	assert.Equal(t, "Validation in progress", status.Message)
}

func TestStatus_CompletedBatch(t *testing.T) {
	// Arrange
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.repo.SaveProgress(ctx, &models.BatchProgress{
		BatchId:         "b-1",
		Status:          enum.BatchProcessing,
		IsComplete:      true,
		TotalEmails:     2,
		ProcessedCount:  2,
		ValidatedEmails: []*models.ValidationResult{{Email: "a@x.io"}, {Email: "b@x.io"}},
		LastUpdated:     "2026-01-01T00:00:00Z",
	}))

	// Act
	status, err := f.service.Status(ctx, "b-1")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, enum.BatchCompleted, status.Status)
	assert.Equal(t, 2, status.ProcessedEmails)
	assert.Len(t, status.Results, 2)
	assert.Equal(t, "2026-01-01T00:00:00Z", status.LastUpdated)
}

func TestStatus_ChildRedirectsToParentAggregate(t *testing.T) {
	// Arrange
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.service.tracker.Create(ctx, "r-1", []string{"b-1", "b-2", "b-3"}, 70)
	require.NoError(t, err)
	require.NoError(t, f.repo.SaveProgress(ctx, &models.BatchProgress{BatchId: "b-1", IsComplete: true, TotalEmails: 30, ProcessedCount: 30}))
	require.NoError(t, f.repo.SaveProgress(ctx, &models.BatchProgress{BatchId: "b-2", TotalEmails: 30, ProcessedCount: 5}))

	// Act
	byChild, err := f.service.Status(ctx, "b-2")
	require.NoError(t, err)
	byRequest, err := f.service.Status(ctx, "r-1")
	require.NoError(t, err)

	// Assert
	assert.Equal(t, "r-1", byChild.BatchId)
	assert.Equal(t, byRequest.ProcessedEmails, byChild.ProcessedEmails)
	assert.Equal(t, enum.BatchProcessing, byRequest.Status)
	assert.Equal(t, 35, byRequest.ProcessedEmails)
	require.NotNil(t, byRequest.MultiBatch)
	assert.Equal(t, "35/70 (50%)", byRequest.MultiBatch.Progress)
	require.Len(t, byRequest.MultiBatch.Batches, 3)
	assert.Equal(t, enum.BatchCompleted, byRequest.MultiBatch.Batches[0].Status)
	assert.Equal(t, enum.BatchProcessing, byRequest.MultiBatch.Batches[2].Status)
	assert.Equal(t, 0, byRequest.MultiBatch.Batches[2].TotalEmails)
}

func TestTracker_AggregateCompletesWhenAllChildrenComplete(t *testing.T) {
	// Arrange
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.service.tracker.Create(ctx, "r-2", []string{"b-1", "b-2"}, 40)
	require.NoError(t, err)
	require.NoError(t, f.repo.SaveProgress(ctx, &models.BatchProgress{BatchId: "b-1", IsComplete: true, TotalEmails: 20, ProcessedCount: 20}))
	require.NoError(t, f.repo.SaveProgress(ctx, &models.BatchProgress{BatchId: "b-2", IsComplete: true, TotalEmails: 20, ProcessedCount: 20}))

	// Act
	request, err := f.service.tracker.Aggregate(ctx, "r-2")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, enum.BatchCompleted, request.Status)
	assert.Equal(t, "40/40 (100%)", request.Progress)

	stored, err := f.repo.GetMultiBatch(ctx, "r-2")
	require.NoError(t, err)
	assert.Equal(t, enum.BatchCompleted, stored.Status)
	assert.Equal(t, 40, stored.ProcessedEmails)
}

func TestTracker_AggregateUnknownRequest(t *testing.T) {
	f := newFixture(t)

	request, err := f.service.tracker.Aggregate(context.Background(), "nope")

	assert.Nil(t, request)
	assert.ErrorIs(t, err, mperrors.ErrBatchNotFound)
}
