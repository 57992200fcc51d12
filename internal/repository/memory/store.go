// Package memory is an in-process ledger store for local development and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"coursemart/internal/domain"
	"coursemart/pkg/errors"

	"github.com/google/uuid"
)

type Store struct {
	mu        sync.RWMutex
	purchases map[uuid.UUID]domain.Purchase
	courses   map[string]domain.Course
	users     map[string]domain.User
	progress  map[activityKey]domain.CourseProgress
	ratings   map[activityKey]domain.CourseRating
	now       func() time.Time
}

type activityKey struct {
	userID   string
	courseID string
}

func NewStore() *Store {
	return &Store{
		purchases: make(map[uuid.UUID]domain.Purchase),
		courses:   make(map[string]domain.Course),
		users:     make(map[string]domain.User),
		progress:  make(map[activityKey]domain.CourseProgress),
		ratings:   make(map[activityKey]domain.CourseRating),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// PutCourse seeds or replaces a catalog entry. The catalog is owned elsewhere;
// this exists for development fixtures and tests.
func (s *Store) PutCourse(_ context.Context, c *domain.Course) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	cp.EnrolledStudents = append(domain.IDSet(nil), c.EnrolledStudents...)
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = s.now()
	}
	cp.UpdatedAt = cp.CreatedAt
	s.courses[c.ID] = cp
}

func (s *Store) CreatePurchase(ctx context.Context, p *domain.Purchase) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.Status == domain.PurchaseStatusPending {
		for _, existing := range s.purchases {
			if existing.Status == domain.PurchaseStatusPending &&
				existing.UserID == p.UserID && existing.CourseID == p.CourseID {
				return errors.ErrPendingPurchaseExists
			}
		}
	}
	if _, ok := s.purchases[p.ID]; ok {
		return errors.Wrap(errors.ErrDuplicateRequest, "purchase id already used")
	}

	s.purchases[p.ID] = *p
	return nil
}

func (s *Store) FindPurchaseByID(ctx context.Context, id uuid.UUID) (*domain.Purchase, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.purchases[id]
	if !ok {
		return nil, errors.ErrPurchaseNotFound
	}
	return &p, nil
}

func (s *Store) FindPendingPurchase(ctx context.Context, userID, courseID string) (*domain.Purchase, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.purchases {
		if p.Status == domain.PurchaseStatusPending && p.UserID == userID && p.CourseID == courseID {
			found := p
			return &found, nil
		}
	}
	return nil, errors.ErrPurchaseNotFound
}

// TransitionPurchase swaps status only when the stored status equals from.
func (s *Store) TransitionPurchase(ctx context.Context, id uuid.UUID, from, to domain.PurchaseStatus) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.purchases[id]
	if !ok {
		return false, errors.ErrPurchaseNotFound
	}
	if p.Status != from {
		return false, nil
	}
	p.Status = to
	p.UpdatedAt = s.now()
	s.purchases[id] = p
	return true, nil
}

func (s *Store) SetPurchaseSession(ctx context.Context, id uuid.UUID, sessionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.purchases[id]
	if !ok {
		return errors.ErrPurchaseNotFound
	}
	p.SessionID = &sessionID
	p.UpdatedAt = s.now()
	s.purchases[id] = p
	return nil
}

func (s *Store) ListPurchasesByUser(ctx context.Context, userID string) ([]*domain.Purchase, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Purchase
	for _, p := range s.purchases {
		if p.UserID == userID {
			found := p
			result = append(result, &found)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (s *Store) FindCourseByID(ctx context.Context, id string) (*domain.Course, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.courses[id]
	if !ok {
		return nil, errors.ErrCourseNotFound
	}
	c.EnrolledStudents = append(domain.IDSet(nil), c.EnrolledStudents...)
	return &c, nil
}

// ListCoursesByIDs skips ids with no catalog entry.
func (s *Store) ListCoursesByIDs(ctx context.Context, ids []string) ([]*domain.Course, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Course, 0, len(ids))
	for _, id := range ids {
		c, ok := s.courses[id]
		if !ok {
			continue
		}
		c.EnrolledStudents = append(domain.IDSet(nil), c.EnrolledStudents...)
		result = append(result, &c)
	}
	return result, nil
}

func (s *Store) AddEnrolledStudent(ctx context.Context, courseID, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.courses[courseID]
	if !ok {
		return errors.ErrCourseNotFound
	}
	if c.EnrolledStudents.Contains(userID) {
		return nil
	}
	c.EnrolledStudents = c.EnrolledStudents.With(userID)
	c.UpdatedAt = s.now()
	s.courses[courseID] = c
	return nil
}

func (s *Store) FindUserByID(ctx context.Context, id string) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, errors.ErrUserNotFound
	}
	u.EnrolledCourses = append(domain.IDSet(nil), u.EnrolledCourses...)
	return &u, nil
}

// UpsertUser writes profile fields; an existing enrollment set is preserved.
func (s *Store) UpsertUser(ctx context.Context, u *domain.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	existing, ok := s.users[u.ID]
	if !ok {
		existing = domain.User{ID: u.ID, EnrolledCourses: domain.IDSet{}, CreatedAt: now}
	}
	existing.Name = u.Name
	existing.Email = u.Email
	existing.ImageURL = u.ImageURL
	existing.UpdatedAt = now
	s.users[u.ID] = existing
	return nil
}

func (s *Store) AddEnrolledCourse(ctx context.Context, userID, courseID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return errors.ErrUserNotFound
	}
	if u.EnrolledCourses.Contains(courseID) {
		return nil
	}
	u.EnrolledCourses = u.EnrolledCourses.With(courseID)
	u.UpdatedAt = s.now()
	s.users[userID] = u
	return nil
}

func (s *Store) AddLectureCompleted(ctx context.Context, userID, courseID, lectureID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := activityKey{userID: userID, courseID: courseID}
	now := s.now()
	p, ok := s.progress[key]
	if !ok {
		p = domain.CourseProgress{UserID: userID, CourseID: courseID, CreatedAt: now}
	}
	if p.LectureCompleted.Contains(lectureID) {
		return false, nil
	}
	p.LectureCompleted = p.LectureCompleted.With(lectureID)
	p.UpdatedAt = now
	s.progress[key] = p
	return true, nil
}

func (s *Store) FindCourseProgress(ctx context.Context, userID, courseID string) (*domain.CourseProgress, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.progress[activityKey{userID: userID, courseID: courseID}]
	if !ok {
		return nil, errors.ErrProgressNotFound
	}
	p.LectureCompleted = append(domain.IDSet(nil), p.LectureCompleted...)
	return &p, nil
}

func (s *Store) UpsertCourseRating(ctx context.Context, r *domain.CourseRating) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := activityKey{userID: r.UserID, courseID: r.CourseID}
	now := s.now()
	cp := *r
	if existing, ok := s.ratings[key]; ok {
		cp.CreatedAt = existing.CreatedAt
	} else {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	s.ratings[key] = cp
	return nil
}

func (s *Store) ListCourseRatings(ctx context.Context, courseID string) ([]*domain.CourseRating, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.CourseRating
	for key, r := range s.ratings {
		if key.courseID != courseID {
			continue
		}
		cp := r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) Close() error { return nil }
