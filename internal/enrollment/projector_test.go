package enrollment

import (
	"context"
	stderrors "errors"
	"testing"

	"coursemart/internal/domain"
	"coursemart/internal/repository/memory"
	"coursemart/pkg/errors"
	"coursemart/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) AddEnrolledStudent(ctx context.Context, courseID, userID string) error {
	args := m.Called(ctx, courseID, userID)
	return args.Error(0)
}

func (m *MockStore) AddEnrolledCourse(ctx context.Context, userID, courseID string) error {
	args := m.Called(ctx, userID, courseID)
	return args.Error(0)
}

func TestGrant_BothSides(t *testing.T) {
	store := new(MockStore)
	store.On("AddEnrolledStudent", mock.Anything, "c1", "u1").Return(nil)
	store.On("AddEnrolledCourse", mock.Anything, "u1", "c1").Return(nil)

	p := NewProjector(store, logger.NewNop())
	require.NoError(t, p.Grant(context.Background(), "u1", "c1"))
	store.AssertExpectations(t)
}

func TestGrant_UserSideFails(t *testing.T) {
	store := new(MockStore)
	dbErr := stderrors.New("connection reset")
	store.On("AddEnrolledStudent", mock.Anything, "c1", "u1").Return(nil)
	store.On("AddEnrolledCourse", mock.Anything, "u1", "c1").Return(dbErr)

	p := NewProjector(store, logger.NewNop())
	err := p.Grant(context.Background(), "u1", "c1")

	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrPartialEnrollment)
	assert.ErrorIs(t, err, dbErr)
	store.AssertExpectations(t)
}

func TestGrant_VanishedCourseKeepsNotFound(t *testing.T) {
	store := new(MockStore)
	store.On("AddEnrolledStudent", mock.Anything, "c1", "u1").Return(errors.ErrCourseNotFound)
	store.On("AddEnrolledCourse", mock.Anything, "u1", "c1").Return(nil)

	p := NewProjector(store, logger.NewNop())
	err := p.Grant(context.Background(), "u1", "c1")

	assert.ErrorIs(t, err, errors.ErrPartialEnrollment)
	assert.ErrorIs(t, err, errors.ErrCourseNotFound)
	assert.True(t, errors.IsNotFound(err))
}

func TestGrant_ReplayConverges(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	store.PutCourse(ctx, &domain.Course{ID: "c1"})
	require.NoError(t, store.UpsertUser(ctx, &domain.User{ID: "u1"}))

	p := NewProjector(store, logger.NewNop())
	for i := 0; i < 5; i++ {
		require.NoError(t, p.Grant(ctx, "u1", "c1"))
	}

	c, err := store.FindCourseByID(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, domain.IDSet{"u1"}, c.EnrolledStudents)

	u, err := store.FindUserByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.IDSet{"c1"}, u.EnrolledCourses)
}
