// ==============================================================================
// PURCHASE LIFECYCLE SERVICE - internal/purchase/service.go
// ==============================================================================
package purchase

import (
	"context"
	stderrors "errors"
	"strconv"
	"strings"
	"time"

	"coursemart/internal/domain"
	"coursemart/internal/gateway"
	"coursemart/internal/metrics"
	"coursemart/pkg/config"
	"coursemart/pkg/errors"
	"coursemart/pkg/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	successPath = "/loading/my-enrollments"
	cancelPath  = "/"
)

type Service struct {
	store     Store
	gateway   Gateway
	currency  string
	clientURL string
	logger    logger.Logger
	now       func() time.Time
}

func NewService(store Store, gw Gateway, cfg config.StripeConfig, log logger.Logger) *Service {
	return &Service{
		store:     store,
		gateway:   gw,
		currency:  cfg.Currency,
		clientURL: strings.TrimRight(cfg.ClientURL, "/"),
		logger:    log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

type InitiateRequest struct {
	UserID   string
	CourseID string
	// Origin is the storefront base URL the customer returns to; empty means
	// the configured client URL.
	Origin string
}

type InitiateResult struct {
	PurchaseID  uuid.UUID
	RedirectURL string
	Amount      decimal.Decimal
	Currency    string
	Reused      bool
}

// InitiatePurchase records (or reuses) a pending purchase and opens a hosted
// checkout for it. If the gateway fails the purchase stays pending and the
// next attempt reuses it with its original amount.
func (s *Service) InitiatePurchase(ctx context.Context, req InitiateRequest) (*InitiateResult, error) {
	user, err := s.store.FindUserByID(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	course, err := s.store.FindCourseByID(ctx, req.CourseID)
	if err != nil {
		return nil, err
	}
	if user.IsEnrolledIn(course.ID) {
		return nil, errors.ErrAlreadyEnrolled
	}

	p, reused, err := s.pendingPurchase(ctx, user.ID, course)
	if err != nil {
		return nil, err
	}

	origin := strings.TrimRight(req.Origin, "/")
	if origin == "" {
		origin = s.clientURL
	}

	sess, err := s.gateway.CreateCheckoutSession(ctx, gateway.CheckoutRequest{
		PurchaseID:  p.ID,
		UserID:      p.UserID,
		CourseID:    p.CourseID,
		Title:       course.Title,
		Description: course.Description,
		Amount:      p.Amount,
		Currency:    p.Currency,
		SuccessURL:  origin + successPath,
		CancelURL:   origin + cancelPath,
	})
	if err != nil {
		metrics.CheckoutSessionFailures.Inc()
		s.logger.Error("Checkout session creation failed", map[string]interface{}{
			"purchase_id": p.ID,
			"user_id":     p.UserID,
			"course_id":   p.CourseID,
			"error":       err.Error(),
		})
		if !stderrors.Is(err, errors.ErrGatewayUnavailable) {
			err = errors.Wrap(errors.ErrGatewayUnavailable, err.Error())
		}
		return nil, err
	}

	if err := s.store.SetPurchaseSession(ctx, p.ID, sess.ID); err != nil {
		// the session id is informational; settlement keys on metadata
		s.logger.Warn("Failed to record checkout session", map[string]interface{}{
			"purchase_id": p.ID,
			"session_id":  sess.ID,
			"error":       err.Error(),
		})
	}

	metrics.PurchasesInitiated.WithLabelValues(strconv.FormatBool(reused)).Inc()
	s.logger.Info("Purchase initiated", map[string]interface{}{
		"purchase_id": p.ID,
		"user_id":     p.UserID,
		"course_id":   p.CourseID,
		"amount":      p.Amount.StringFixed(2),
		"currency":    p.Currency,
		"reused":      reused,
	})

	return &InitiateResult{
		PurchaseID:  p.ID,
		RedirectURL: sess.URL,
		Amount:      p.Amount,
		Currency:    p.Currency,
		Reused:      reused,
	}, nil
}

// pendingPurchase returns the outstanding pending purchase for the pair, or
// creates one priced from the current catalog entry.
func (s *Service) pendingPurchase(ctx context.Context, userID string, course *domain.Course) (*domain.Purchase, bool, error) {
	existing, err := s.store.FindPendingPurchase(ctx, userID, course.ID)
	if err == nil {
		return existing, true, nil
	}
	if !stderrors.Is(err, errors.ErrPurchaseNotFound) {
		return nil, false, err
	}

	now := s.now()
	p := &domain.Purchase{
		ID:        uuid.New(),
		CourseID:  course.ID,
		UserID:    userID,
		Amount:    course.ChargeAmount(),
		Currency:  s.currency,
		Status:    domain.PurchaseStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = s.store.CreatePurchase(ctx, p)
	if stderrors.Is(err, errors.ErrPendingPurchaseExists) {
		// a concurrent request won the insert
		existing, err = s.store.FindPendingPurchase(ctx, userID, course.ID)
		if err != nil {
			return nil, false, err
		}
		return existing, true, nil
	}
	if err != nil {
		return nil, false, err
	}
	return p, false, nil
}

// GetPurchase returns a purchase owned by userID. Other users' purchases are
// reported as not found.
func (s *Service) GetPurchase(ctx context.Context, userID string, id uuid.UUID) (*domain.Purchase, error) {
	p, err := s.store.FindPurchaseByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.UserID != userID {
		return nil, errors.ErrPurchaseNotFound
	}
	return p, nil
}

func (s *Service) ListPurchases(ctx context.Context, userID string) ([]*domain.Purchase, error) {
	return s.store.ListPurchasesByUser(ctx, userID)
}

// EnrolledCourses lists the catalog entries in the user's enrollment set.
func (s *Service) EnrolledCourses(ctx context.Context, userID string) ([]*domain.Course, error) {
	user, err := s.store.FindUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.store.ListCoursesByIDs(ctx, user.EnrolledCourses)
}

// SyncUser is the first-login create-or-update of a user's profile.
func (s *Service) SyncUser(ctx context.Context, u *domain.User) (*domain.User, error) {
	if err := s.store.UpsertUser(ctx, u); err != nil {
		return nil, err
	}
	return s.store.FindUserByID(ctx, u.ID)
}

func (s *Service) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	return s.store.FindUserByID(ctx, userID)
}

type Store interface {
	CreatePurchase(ctx context.Context, p *domain.Purchase) error
	FindPurchaseByID(ctx context.Context, id uuid.UUID) (*domain.Purchase, error)
	FindPendingPurchase(ctx context.Context, userID, courseID string) (*domain.Purchase, error)
	SetPurchaseSession(ctx context.Context, id uuid.UUID, sessionID string) error
	ListPurchasesByUser(ctx context.Context, userID string) ([]*domain.Purchase, error)
	FindCourseByID(ctx context.Context, id string) (*domain.Course, error)
	ListCoursesByIDs(ctx context.Context, ids []string) ([]*domain.Course, error)
	FindUserByID(ctx context.Context, id string) (*domain.User, error)
	UpsertUser(ctx context.Context, u *domain.User) error
	AddLectureCompleted(ctx context.Context, userID, courseID, lectureID string) (bool, error)
	FindCourseProgress(ctx context.Context, userID, courseID string) (*domain.CourseProgress, error)
	UpsertCourseRating(ctx context.Context, r *domain.CourseRating) error
}

type Gateway interface {
	CreateCheckoutSession(ctx context.Context, req gateway.CheckoutRequest) (*gateway.CheckoutSession, error)
}
