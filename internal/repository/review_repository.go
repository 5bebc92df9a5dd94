package repository

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"remittance-engine/internal/domain"
)

// ReviewCollectionName holds items skipped by batch operations
const ReviewCollectionName = "reconciliation_review"

const defaultReviewLimit = 100

// ReviewRepository keeps skipped items in MongoDB
type ReviewRepository struct {
	db     *mongo.Database
	logger logrus.FieldLogger
}

func NewReviewRepository(db *mongo.Database, logger logrus.FieldLogger) *ReviewRepository {
	return &ReviewRepository{
		db:     db,
		logger: logger,
	}
}

func (r *ReviewRepository) Record(ctx context.Context, item domain.SkippedItem) error {
	collection := r.db.Collection(ReviewCollectionName)

	if _, err := collection.InsertOne(ctx, item); err != nil {
		r.logger.WithError(err).WithField("remittance_id", item.RemittanceID).Error("Failed to record review item")
		return fmt.Errorf("failed to record review item: %w", err)
	}
	return nil
}

// ListByRemittance returns the newest items first
func (r *ReviewRepository) ListByRemittance(ctx context.Context, remittanceID string, limit int) ([]domain.SkippedItem, error) {
	if limit <= 0 {
		limit = defaultReviewLimit
	}
	collection := r.db.Collection(ReviewCollectionName)

	filter := bson.M{"remittance_id": remittanceID}
	opts := options.Find().
		SetSort(bson.D{{Key: "occurred_at", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := collection.Find(ctx, filter, opts)
	if err != nil {
		r.logger.WithError(err).WithField("remittance_id", remittanceID).Error("Failed to list review items")
		return nil, fmt.Errorf("failed to list review items: %w", err)
	}
	defer cursor.Close(ctx)

	items := make([]domain.SkippedItem, 0)
	if err := cursor.All(ctx, &items); err != nil {
		return nil, fmt.Errorf("failed to decode review items: %w", err)
	}
	return items, nil
}
