package mongo

import (
	"context"
	"time"

	"coursemart/internal/domain"
	"coursemart/pkg/errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type progressDoc struct {
	UserID           string    `bson:"user_id"`
	CourseID         string    `bson:"course_id"`
	Completed        bool      `bson:"completed"`
	LectureCompleted []string  `bson:"lecture_completed"`
	CreatedAt        time.Time `bson:"created_at"`
	UpdatedAt        time.Time `bson:"updated_at"`
}

type ratingDoc struct {
	CourseID  string    `bson:"course_id"`
	UserID    string    `bson:"user_id"`
	Rating    int       `bson:"rating"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// AddLectureCompleted only matches records that lack lectureID. A miss then
// falls through to the upsert, and the unique (user_id, course_id) index
// rejects it when the record already holds the lecture.
func (s *Store) AddLectureCompleted(ctx context.Context, userID, courseID, lectureID string) (bool, error) {
	filter := bson.M{
		"user_id":           userID,
		"course_id":         courseID,
		"lecture_completed": bson.M{"$ne": lectureID},
	}

	// second attempt covers two first-time writers racing on the insert
	for attempt := 0; attempt < 2; attempt++ {
		now := time.Now().UTC()
		update := bson.M{
			"$addToSet":    bson.M{"lecture_completed": lectureID},
			"$set":         bson.M{"updated_at": now},
			"$setOnInsert": bson.M{"completed": false, "created_at": now},
		}
		result, err := s.progress.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
		if mongo.IsDuplicateKeyError(err) {
			continue
		}
		if err != nil {
			return false, errors.Wrap(err, "failed to record completed lecture")
		}
		return result.ModifiedCount == 1 || result.UpsertedCount == 1, nil
	}

	// the record exists; it either holds the lecture or a concurrent writer is mid-flight
	n, err := s.progress.CountDocuments(ctx, bson.M{"user_id": userID, "course_id": courseID, "lecture_completed": lectureID})
	if err != nil {
		return false, errors.Wrap(err, "failed to check course progress")
	}
	if n == 1 {
		return false, nil
	}
	return false, errors.Wrap(errors.ErrDuplicateRequest, "course progress write contended")
}

func (s *Store) FindCourseProgress(ctx context.Context, userID, courseID string) (*domain.CourseProgress, error) {
	var doc progressDoc
	err := s.progress.FindOne(ctx, bson.M{"user_id": userID, "course_id": courseID}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, errors.ErrProgressNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find course progress")
	}
	return &domain.CourseProgress{
		UserID:           doc.UserID,
		CourseID:         doc.CourseID,
		Completed:        doc.Completed,
		LectureCompleted: domain.IDSet(doc.LectureCompleted),
		CreatedAt:        doc.CreatedAt,
		UpdatedAt:        doc.UpdatedAt,
	}, nil
}

func (s *Store) UpsertCourseRating(ctx context.Context, r *domain.CourseRating) error {
	now := time.Now().UTC()
	_, err := s.ratings.UpdateOne(ctx,
		bson.M{"course_id": r.CourseID, "user_id": r.UserID},
		bson.M{
			"$set":         bson.M{"rating": r.Rating, "updated_at": now},
			"$setOnInsert": bson.M{"created_at": now},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return errors.Wrap(err, "failed to upsert course rating")
	}
	return nil
}

func (s *Store) ListCourseRatings(ctx context.Context, courseID string) ([]*domain.CourseRating, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cursor, err := s.ratings.Find(ctx, bson.M{"course_id": courseID}, opts)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list course ratings")
	}
	defer cursor.Close(ctx)

	var docs []ratingDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, "failed to decode course ratings")
	}

	ratings := make([]*domain.CourseRating, 0, len(docs))
	for _, d := range docs {
		ratings = append(ratings, &domain.CourseRating{
			CourseID:  d.CourseID,
			UserID:    d.UserID,
			Rating:    d.Rating,
			CreatedAt: d.CreatedAt,
			UpdatedAt: d.UpdatedAt,
		})
	}
	return ratings, nil
}
