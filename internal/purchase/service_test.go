package purchase

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"

	"coursemart/internal/domain"
	"coursemart/internal/gateway"
	"coursemart/internal/repository/memory"
	"coursemart/pkg/config"
	"coursemart/pkg/errors"
	"coursemart/pkg/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) CreateCheckoutSession(ctx context.Context, req gateway.CheckoutRequest) (*gateway.CheckoutSession, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.CheckoutSession), args.Error(1)
}

func setup(t *testing.T) (*Service, *memory.Store, *MockGateway) {
	t.Helper()
	ctx := context.Background()

	store := memory.NewStore()
	store.PutCourse(ctx, &domain.Course{
		ID:          "course_1",
		Title:       "Go in Production",
		Price:       decimal.NewFromInt(100),
		Discount:    decimal.NewFromInt(20),
		IsPublished: true,
	})
	require.NoError(t, store.UpsertUser(ctx, &domain.User{ID: "user_1", Name: "Ada"}))

	gw := new(MockGateway)
	svc := NewService(store, gw, config.StripeConfig{
		Currency:  "inr",
		ClientURL: "http://localhost:5173/",
	}, logger.NewNop())
	return svc, store, gw
}

func TestInitiatePurchase_CreatesPendingPurchase(t *testing.T) {
	svc, store, gw := setup(t)
	ctx := context.Background()

	gw.On("CreateCheckoutSession", mock.Anything, mock.MatchedBy(func(req gateway.CheckoutRequest) bool {
		return req.UserID == "user_1" &&
			req.CourseID == "course_1" &&
			req.Amount.Equal(decimal.RequireFromString("80.00")) &&
			req.Currency == "inr" &&
			req.SuccessURL == "https://shop.example.com/loading/my-enrollments" &&
			req.CancelURL == "https://shop.example.com/"
	})).Return(&gateway.CheckoutSession{ID: "cs_1", URL: "https://checkout.example/cs_1"}, nil)

	res, err := svc.InitiatePurchase(ctx, InitiateRequest{
		UserID:   "user_1",
		CourseID: "course_1",
		Origin:   "https://shop.example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.example/cs_1", res.RedirectURL)
	assert.False(t, res.Reused)

	p, err := store.FindPurchaseByID(ctx, res.PurchaseID)
	require.NoError(t, err)
	assert.Equal(t, domain.PurchaseStatusPending, p.Status)
	assert.True(t, decimal.RequireFromString("80.00").Equal(p.Amount))
	require.NotNil(t, p.SessionID)
	assert.Equal(t, "cs_1", *p.SessionID)
	gw.AssertExpectations(t)
}

func TestInitiatePurchase_DefaultsToClientURL(t *testing.T) {
	svc, _, gw := setup(t)

	gw.On("CreateCheckoutSession", mock.Anything, mock.MatchedBy(func(req gateway.CheckoutRequest) bool {
		return req.SuccessURL == "http://localhost:5173/loading/my-enrollments" &&
			req.CancelURL == "http://localhost:5173/"
	})).Return(&gateway.CheckoutSession{ID: "cs_1", URL: "u"}, nil)

	_, err := svc.InitiatePurchase(context.Background(), InitiateRequest{UserID: "user_1", CourseID: "course_1"})
	require.NoError(t, err)
	gw.AssertExpectations(t)
}

func TestInitiatePurchase_NotFound(t *testing.T) {
	svc, _, gw := setup(t)
	ctx := context.Background()

	_, err := svc.InitiatePurchase(ctx, InitiateRequest{UserID: "nobody", CourseID: "course_1"})
	assert.ErrorIs(t, err, errors.ErrUserNotFound)

	_, err = svc.InitiatePurchase(ctx, InitiateRequest{UserID: "user_1", CourseID: "missing"})
	assert.ErrorIs(t, err, errors.ErrCourseNotFound)
	assert.True(t, errors.IsNotFound(err))

	gw.AssertNotCalled(t, "CreateCheckoutSession", mock.Anything, mock.Anything)
}

func TestInitiatePurchase_AlreadyEnrolled(t *testing.T) {
	svc, store, gw := setup(t)
	ctx := context.Background()
	require.NoError(t, store.AddEnrolledCourse(ctx, "user_1", "course_1"))

	_, err := svc.InitiatePurchase(ctx, InitiateRequest{UserID: "user_1", CourseID: "course_1"})
	assert.ErrorIs(t, err, errors.ErrAlreadyEnrolled)
	gw.AssertNotCalled(t, "CreateCheckoutSession", mock.Anything, mock.Anything)
}

func TestInitiatePurchase_GatewayFailureKeepsPendingAndRetryReuses(t *testing.T) {
	svc, store, gw := setup(t)
	ctx := context.Background()

	gw.On("CreateCheckoutSession", mock.Anything, mock.Anything).
		Return(nil, errors.ErrGatewayUnavailable).Once()

	_, err := svc.InitiatePurchase(ctx, InitiateRequest{UserID: "user_1", CourseID: "course_1"})
	require.ErrorIs(t, err, errors.ErrGatewayUnavailable)

	pending, err := store.FindPendingPurchase(ctx, "user_1", "course_1")
	require.NoError(t, err)
	assert.Nil(t, pending.SessionID)

	gw.On("CreateCheckoutSession", mock.Anything, mock.MatchedBy(func(req gateway.CheckoutRequest) bool {
		return req.PurchaseID == pending.ID
	})).Return(&gateway.CheckoutSession{ID: "cs_2", URL: "u2"}, nil).Once()

	res, err := svc.InitiatePurchase(ctx, InitiateRequest{UserID: "user_1", CourseID: "course_1"})
	require.NoError(t, err)
	assert.Equal(t, pending.ID, res.PurchaseID)
	assert.True(t, res.Reused)

	list, err := store.ListPurchasesByUser(ctx, "user_1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
	gw.AssertExpectations(t)
}

func TestInitiatePurchase_WrapsUnexpectedGatewayError(t *testing.T) {
	svc, _, gw := setup(t)
	gw.On("CreateCheckoutSession", mock.Anything, mock.Anything).Return(nil, stderrors.New("boom"))

	_, err := svc.InitiatePurchase(context.Background(), InitiateRequest{UserID: "user_1", CourseID: "course_1"})
	assert.ErrorIs(t, err, errors.ErrGatewayUnavailable)
}

func TestInitiatePurchase_AmountFixedAtCreation(t *testing.T) {
	svc, store, gw := setup(t)
	ctx := context.Background()

	gw.On("CreateCheckoutSession", mock.Anything, mock.Anything).
		Return(&gateway.CheckoutSession{ID: "cs_1", URL: "u"}, nil)

	first, err := svc.InitiatePurchase(ctx, InitiateRequest{UserID: "user_1", CourseID: "course_1"})
	require.NoError(t, err)

	// price change after the purchase was recorded
	store.PutCourse(ctx, &domain.Course{ID: "course_1", Title: "Go", Price: decimal.NewFromInt(500)})

	second, err := svc.InitiatePurchase(ctx, InitiateRequest{UserID: "user_1", CourseID: "course_1"})
	require.NoError(t, err)
	assert.Equal(t, first.PurchaseID, second.PurchaseID)
	assert.True(t, decimal.NewFromInt(80).Equal(second.Amount))

	p, err := store.FindPurchaseByID(ctx, first.PurchaseID)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(80).Equal(p.Amount))
}

func TestInitiatePurchase_ConcurrentRequestsShareOnePurchase(t *testing.T) {
	svc, store, gw := setup(t)
	ctx := context.Background()

	gw.On("CreateCheckoutSession", mock.Anything, mock.Anything).
		Return(&gateway.CheckoutSession{ID: "cs_1", URL: "u"}, nil)

	var wg sync.WaitGroup
	ids := make(chan uuid.UUID, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.InitiatePurchase(ctx, InitiateRequest{UserID: "user_1", CourseID: "course_1"})
			if assert.NoError(t, err) {
				ids <- res.PurchaseID
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := map[uuid.UUID]bool{}
	for id := range ids {
		seen[id] = true
	}
	assert.Len(t, seen, 1)

	list, err := store.ListPurchasesByUser(ctx, "user_1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestGetPurchase_OwnerOnly(t *testing.T) {
	svc, _, gw := setup(t)
	ctx := context.Background()
	gw.On("CreateCheckoutSession", mock.Anything, mock.Anything).
		Return(&gateway.CheckoutSession{ID: "cs_1", URL: "u"}, nil)

	res, err := svc.InitiatePurchase(ctx, InitiateRequest{UserID: "user_1", CourseID: "course_1"})
	require.NoError(t, err)

	p, err := svc.GetPurchase(ctx, "user_1", res.PurchaseID)
	require.NoError(t, err)
	assert.Equal(t, res.PurchaseID, p.ID)

	_, err = svc.GetPurchase(ctx, "user_2", res.PurchaseID)
	assert.ErrorIs(t, err, errors.ErrPurchaseNotFound)
}

func TestEnrolledCoursesAndSyncUser(t *testing.T) {
	svc, store, _ := setup(t)
	ctx := context.Background()

	u, err := svc.SyncUser(ctx, &domain.User{ID: "user_2", Name: "Grace", Email: "grace@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "Grace", u.Name)
	assert.Empty(t, u.EnrolledCourses)

	require.NoError(t, store.AddEnrolledCourse(ctx, "user_2", "course_1"))
	courses, err := svc.EnrolledCourses(ctx, "user_2")
	require.NoError(t, err)
	require.Len(t, courses, 1)
	assert.Equal(t, "course_1", courses[0].ID)

	_, err = svc.EnrolledCourses(ctx, "nobody")
	assert.ErrorIs(t, err, errors.ErrUserNotFound)
}
