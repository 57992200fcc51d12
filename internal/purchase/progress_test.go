package purchase

import (
	"context"
	"testing"

	"coursemart/internal/domain"
	"coursemart/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateCourseProgress_RequiresEnrollment(t *testing.T) {
	svc, store, _ := setup(t)
	ctx := context.Background()

	_, err := svc.UpdateCourseProgress(ctx, "user_1", "course_1", "lec_1")
	assert.ErrorIs(t, err, errors.ErrNotEnrolled)

	_, err = store.FindCourseProgress(ctx, "user_1", "course_1")
	assert.ErrorIs(t, err, errors.ErrProgressNotFound)

	_, err = svc.UpdateCourseProgress(ctx, "user_1", "missing", "lec_1")
	assert.ErrorIs(t, err, errors.ErrCourseNotFound)
}

func TestUpdateCourseProgress_Idempotent(t *testing.T) {
	svc, store, _ := setup(t)
	ctx := context.Background()
	require.NoError(t, store.AddEnrolledCourse(ctx, "user_1", "course_1"))

	added, err := svc.UpdateCourseProgress(ctx, "user_1", "course_1", "lec_1")
	require.NoError(t, err)
	assert.True(t, added)

	added, err = svc.UpdateCourseProgress(ctx, "user_1", "course_1", "lec_1")
	require.NoError(t, err)
	assert.False(t, added)

	p, err := svc.CourseProgress(ctx, "user_1", "course_1")
	require.NoError(t, err)
	assert.Equal(t, domain.IDSet{"lec_1"}, p.LectureCompleted)
}

func TestCourseProgress_EmptyWhenNone(t *testing.T) {
	svc, _, _ := setup(t)

	p, err := svc.CourseProgress(context.Background(), "user_1", "course_1")
	require.NoError(t, err)
	assert.Equal(t, "course_1", p.CourseID)
	assert.Empty(t, p.LectureCompleted)
	assert.False(t, p.Completed)
}

func TestAddRating(t *testing.T) {
	svc, store, _ := setup(t)
	ctx := context.Background()

	_, err := svc.AddRating(ctx, "user_1", "course_1", 4)
	assert.ErrorIs(t, err, errors.ErrNotEnrolled)

	require.NoError(t, store.AddEnrolledCourse(ctx, "user_1", "course_1"))

	for _, bad := range []int{0, 6, -1} {
		_, err := svc.AddRating(ctx, "user_1", "course_1", bad)
		assert.ErrorIs(t, err, errors.ErrInvalidRating, "rating %d", bad)
	}

	_, err = svc.AddRating(ctx, "user_1", "missing", 4)
	assert.ErrorIs(t, err, errors.ErrCourseNotFound)
	_, err = svc.AddRating(ctx, "ghost", "course_1", 4)
	assert.ErrorIs(t, err, errors.ErrUserNotFound)

	_, err = svc.AddRating(ctx, "user_1", "course_1", 2)
	require.NoError(t, err)
	r, err := svc.AddRating(ctx, "user_1", "course_1", 5)
	require.NoError(t, err)
	assert.Equal(t, 5, r.Rating)

	ratings, err := store.ListCourseRatings(ctx, "course_1")
	require.NoError(t, err)
	require.Len(t, ratings, 1)
	assert.Equal(t, 5, ratings[0].Rating)
}
