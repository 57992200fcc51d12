// Package mongo is the document-store ledger backend.
package mongo

import (
	"context"
	"fmt"
	"time"

	"coursemart/internal/domain"
	"coursemart/pkg/errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const onePendingIndex = "one_pending_per_user_course"

type Store struct {
	client    *mongo.Client
	purchases *mongo.Collection
	courses   *mongo.Collection
	users     *mongo.Collection
	progress  *mongo.Collection
	ratings   *mongo.Collection
}

// NewStore connects, pings and ensures indexes.
func NewStore(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	db := client.Database(database)
	s := &Store{
		client:    client,
		purchases: db.Collection("purchases"),
		courses:   db.Collection("courses"),
		users:     db.Collection("users"),
		progress:  db.Collection("course_progress"),
		ratings:   db.Collection("course_ratings"),
	}
	if err := s.createIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

func (s *Store) createIndexes(ctx context.Context) error {
	_, err := s.purchases.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "course_id", Value: 1}},
			Options: options.Index().
				SetName(onePendingIndex).
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"status": string(domain.PurchaseStatusPending)}),
		},
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("create purchase indexes: %w", err)
	}

	pair := bson.D{{Key: "user_id", Value: 1}, {Key: "course_id", Value: 1}}
	if _, err := s.progress.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: pair, Options: options.Index().SetUnique(true),
	}); err != nil {
		return fmt.Errorf("create progress indexes: %w", err)
	}
	if _, err := s.ratings.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "course_id", Value: 1}, {Key: "user_id", Value: 1}}, Options: options.Index().SetUnique(true),
	}); err != nil {
		return fmt.Errorf("create rating indexes: %w", err)
	}
	return nil
}

type purchaseDoc struct {
	ID        string               `bson:"_id"`
	CourseID  string               `bson:"course_id"`
	UserID    string               `bson:"user_id"`
	Amount    primitive.Decimal128 `bson:"amount"`
	Currency  string               `bson:"currency"`
	Status    string               `bson:"status"`
	SessionID *string              `bson:"session_id,omitempty"`
	CreatedAt time.Time            `bson:"created_at"`
	UpdatedAt time.Time            `bson:"updated_at"`
}

type courseDoc struct {
	ID               string               `bson:"_id"`
	Title            string               `bson:"title"`
	Description      string               `bson:"description"`
	Price            primitive.Decimal128 `bson:"price"`
	Discount         primitive.Decimal128 `bson:"discount"`
	IsPublished      bool                 `bson:"is_published"`
	EnrolledStudents []string             `bson:"enrolled_students"`
	CreatedAt        time.Time            `bson:"created_at"`
	UpdatedAt        time.Time            `bson:"updated_at"`
}

type userDoc struct {
	ID              string    `bson:"_id"`
	Name            string    `bson:"name"`
	Email           string    `bson:"email"`
	ImageURL        string    `bson:"image_url"`
	EnrolledCourses []string  `bson:"enrolled_courses"`
	CreatedAt       time.Time `bson:"created_at"`
	UpdatedAt       time.Time `bson:"updated_at"`
}

func toDecimal128(d decimal.Decimal) (primitive.Decimal128, error) {
	return primitive.ParseDecimal128(d.String())
}

func fromDecimal128(d primitive.Decimal128) (decimal.Decimal, error) {
	return decimal.NewFromString(d.String())
}

func (d purchaseDoc) toDomain() (*domain.Purchase, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("purchase id %q: %w", d.ID, err)
	}
	amount, err := fromDecimal128(d.Amount)
	if err != nil {
		return nil, fmt.Errorf("purchase amount: %w", err)
	}
	return &domain.Purchase{
		ID:        id,
		CourseID:  d.CourseID,
		UserID:    d.UserID,
		Amount:    amount,
		Currency:  d.Currency,
		Status:    domain.PurchaseStatus(d.Status),
		SessionID: d.SessionID,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}, nil
}

func (d courseDoc) toDomain() (*domain.Course, error) {
	price, err := fromDecimal128(d.Price)
	if err != nil {
		return nil, fmt.Errorf("course price: %w", err)
	}
	discount, err := fromDecimal128(d.Discount)
	if err != nil {
		return nil, fmt.Errorf("course discount: %w", err)
	}
	return &domain.Course{
		ID:               d.ID,
		Title:            d.Title,
		Description:      d.Description,
		Price:            price,
		Discount:         discount,
		IsPublished:      d.IsPublished,
		EnrolledStudents: domain.IDSet(d.EnrolledStudents),
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
	}, nil
}

func (d userDoc) toDomain() *domain.User {
	return &domain.User{
		ID:              d.ID,
		Name:            d.Name,
		Email:           d.Email,
		ImageURL:        d.ImageURL,
		EnrolledCourses: domain.IDSet(d.EnrolledCourses),
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}
}

func (s *Store) CreatePurchase(ctx context.Context, p *domain.Purchase) error {
	amount, err := toDecimal128(p.Amount)
	if err != nil {
		return errors.Wrap(err, "failed to encode purchase amount")
	}

	_, err = s.purchases.InsertOne(ctx, purchaseDoc{
		ID:        p.ID.String(),
		CourseID:  p.CourseID,
		UserID:    p.UserID,
		Amount:    amount,
		Currency:  p.Currency,
		Status:    string(p.Status),
		SessionID: p.SessionID,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	})
	if mongo.IsDuplicateKeyError(err) {
		if p.Status == domain.PurchaseStatusPending {
			if _, findErr := s.FindPendingPurchase(ctx, p.UserID, p.CourseID); findErr == nil {
				return errors.ErrPendingPurchaseExists
			}
		}
		return errors.Wrap(errors.ErrDuplicateRequest, "purchase id already used")
	}
	if err != nil {
		return errors.Wrap(err, "failed to create purchase")
	}
	return nil
}

func (s *Store) findPurchase(ctx context.Context, filter bson.M) (*domain.Purchase, error) {
	var doc purchaseDoc
	err := s.purchases.FindOne(ctx, filter).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, errors.ErrPurchaseNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find purchase")
	}
	return doc.toDomain()
}

func (s *Store) FindPurchaseByID(ctx context.Context, id uuid.UUID) (*domain.Purchase, error) {
	return s.findPurchase(ctx, bson.M{"_id": id.String()})
}

func (s *Store) FindPendingPurchase(ctx context.Context, userID, courseID string) (*domain.Purchase, error) {
	return s.findPurchase(ctx, bson.M{
		"user_id":   userID,
		"course_id": courseID,
		"status":    string(domain.PurchaseStatusPending),
	})
}

// TransitionPurchase matches on both id and the expected status, so only one
// concurrent caller can observe MatchedCount == 1.
func (s *Store) TransitionPurchase(ctx context.Context, id uuid.UUID, from, to domain.PurchaseStatus) (bool, error) {
	filter := bson.M{"_id": id.String(), "status": string(from)}
	update := bson.M{"$set": bson.M{"status": string(to), "updated_at": time.Now().UTC()}}

	result, err := s.purchases.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, errors.Wrap(err, "failed to transition purchase")
	}
	if result.MatchedCount == 1 {
		return true, nil
	}

	n, err := s.purchases.CountDocuments(ctx, bson.M{"_id": id.String()})
	if err != nil {
		return false, errors.Wrap(err, "failed to check purchase")
	}
	if n == 0 {
		return false, errors.ErrPurchaseNotFound
	}
	return false, nil
}

func (s *Store) SetPurchaseSession(ctx context.Context, id uuid.UUID, sessionID string) error {
	result, err := s.purchases.UpdateOne(ctx,
		bson.M{"_id": id.String()},
		bson.M{"$set": bson.M{"session_id": sessionID, "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return errors.Wrap(err, "failed to record checkout session")
	}
	if result.MatchedCount == 0 {
		return errors.ErrPurchaseNotFound
	}
	return nil
}

func (s *Store) ListPurchasesByUser(ctx context.Context, userID string) ([]*domain.Purchase, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := s.purchases.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list purchases")
	}
	defer cursor.Close(ctx)

	var docs []purchaseDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, "failed to decode purchases")
	}

	purchases := make([]*domain.Purchase, 0, len(docs))
	for _, doc := range docs {
		p, err := doc.toDomain()
		if err != nil {
			return nil, err
		}
		purchases = append(purchases, p)
	}
	return purchases, nil
}

func (s *Store) FindCourseByID(ctx context.Context, id string) (*domain.Course, error) {
	var doc courseDoc
	err := s.courses.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, errors.ErrCourseNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find course")
	}
	return doc.toDomain()
}

func (s *Store) ListCoursesByIDs(ctx context.Context, ids []string) ([]*domain.Course, error) {
	courses := []*domain.Course{}
	if len(ids) == 0 {
		return courses, nil
	}

	opts := options.Find().SetSort(bson.D{{Key: "title", Value: 1}})
	cursor, err := s.courses.Find(ctx, bson.M{"_id": bson.M{"$in": ids}}, opts)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list courses")
	}
	defer cursor.Close(ctx)

	var docs []courseDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, "failed to decode courses")
	}
	for _, doc := range docs {
		c, err := doc.toDomain()
		if err != nil {
			return nil, err
		}
		courses = append(courses, c)
	}
	return courses, nil
}

func (s *Store) AddEnrolledStudent(ctx context.Context, courseID, userID string) error {
	result, err := s.courses.UpdateOne(ctx,
		bson.M{"_id": courseID},
		bson.M{
			"$addToSet": bson.M{"enrolled_students": userID},
			"$set":      bson.M{"updated_at": time.Now().UTC()},
		},
	)
	if err != nil {
		return errors.Wrap(err, "failed to add enrolled student")
	}
	if result.MatchedCount == 0 {
		return errors.ErrCourseNotFound
	}
	return nil
}

func (s *Store) FindUserByID(ctx context.Context, id string) (*domain.User, error) {
	var doc userDoc
	err := s.users.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, errors.ErrUserNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find user")
	}
	return doc.toDomain(), nil
}

func (s *Store) UpsertUser(ctx context.Context, u *domain.User) error {
	now := time.Now().UTC()
	update := bson.M{
		"$set": bson.M{
			"name":       u.Name,
			"email":      u.Email,
			"image_url":  u.ImageURL,
			"updated_at": now,
		},
		"$setOnInsert": bson.M{
			"enrolled_courses": []string{},
			"created_at":       now,
		},
	}

	_, err := s.users.UpdateOne(ctx, bson.M{"_id": u.ID}, update, options.Update().SetUpsert(true))
	if err != nil {
		return errors.Wrap(err, "failed to upsert user")
	}
	return nil
}

func (s *Store) AddEnrolledCourse(ctx context.Context, userID, courseID string) error {
	result, err := s.users.UpdateOne(ctx,
		bson.M{"_id": userID},
		bson.M{
			"$addToSet": bson.M{"enrolled_courses": courseID},
			"$set":      bson.M{"updated_at": time.Now().UTC()},
		},
	)
	if err != nil {
		return errors.Wrap(err, "failed to add enrolled course")
	}
	if result.MatchedCount == 0 {
		return errors.ErrUserNotFound
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
