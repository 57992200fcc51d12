package handler

import (
	"bytes"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"coursemart/internal/domain"
	"coursemart/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func post(router http.Handler, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body)))
	return w
}

func TestUpdateCourseProgress(t *testing.T) {
	svc := new(MockPurchaseService)
	router := newRouter(svc, new(MockReconciler), nil)

	svc.On("UpdateCourseProgress", mock.Anything, "user_1", "course_1", "lec_1").Return(true, nil).Once()
	svc.On("UpdateCourseProgress", mock.Anything, "user_1", "course_1", "lec_1").Return(false, nil).Once()

	w := post(router, "/api/user/update-course-progress", `{"course_id":"course_1","lecture_id":"lec_1"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Progress Updated", decodeBody(t, w)["message"])

	w = post(router, "/api/user/update-course-progress", `{"course_id":"course_1","lecture_id":"lec_1"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Lecture Already Completed", decodeBody(t, w)["message"])

	w = post(router, "/api/user/update-course-progress", `{"course_id":"course_1"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	svc.AssertExpectations(t)
}

func TestGetCourseProgress(t *testing.T) {
	svc := new(MockPurchaseService)
	router := newRouter(svc, new(MockReconciler), nil)

	svc.On("CourseProgress", mock.Anything, "user_1", "course_1").Return(&domain.CourseProgress{
		UserID:           "user_1",
		CourseID:         "course_1",
		LectureCompleted: domain.IDSet{"lec_1"},
	}, nil)

	w := post(router, "/api/user/get-course-progress", `{"course_id":"course_1"}`)
	require.Equal(t, http.StatusOK, w.Code)
	data := decodeBody(t, w)["progressData"].(map[string]interface{})
	assert.Equal(t, []interface{}{"lec_1"}, data["lecture_completed"])
}

func TestAddRating(t *testing.T) {
	svc := new(MockPurchaseService)
	router := newRouter(svc, new(MockReconciler), nil)

	svc.On("AddRating", mock.Anything, "user_1", "course_1", 4).
		Return(&domain.CourseRating{CourseID: "course_1", UserID: "user_1", Rating: 4}, nil)

	w := post(router, "/api/user/add-rating", `{"course_id":"course_1","rating":4}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decodeBody(t, w)["success"])

	for _, body := range []string{`{"course_id":"course_1","rating":0}`, `{"course_id":"course_1","rating":6}`, `{"course_id":"course_1"}`} {
		w := post(router, "/api/user/add-rating", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}
	svc.AssertNumberOfCalls(t, "AddRating", 1)
}

func TestLearnerActivity_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"not enrolled", errors.ErrNotEnrolled, http.StatusForbidden},
		{"bad rating", errors.ErrInvalidRating, http.StatusBadRequest},
		{"course missing", errors.ErrCourseNotFound, http.StatusNotFound},
		{"user missing", errors.ErrUserNotFound, http.StatusNotFound},
		{"storage fault", stderrors.New("connection reset"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockPurchaseService)
			router := newRouter(svc, new(MockReconciler), nil)
			svc.On("AddRating", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, tt.err)
			svc.On("UpdateCourseProgress", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(false, tt.err)

			w := post(router, "/api/user/add-rating", `{"course_id":"course_1","rating":3}`)
			assert.Equal(t, tt.code, w.Code)
			assert.Equal(t, false, decodeBody(t, w)["success"])

			w = post(router, "/api/user/update-course-progress", `{"course_id":"course_1","lecture_id":"lec_1"}`)
			assert.Equal(t, tt.code, w.Code)
		})
	}
}
