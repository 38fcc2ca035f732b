package mongodb

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/kledara/authtrail/audit"
)

// AuditRepository implements audit.Repository on the audit_logs
// collection.
type AuditRepository struct {
	col *mongo.Collection
}

func (r *AuditRepository) Insert(ctx context.Context, event audit.Event) error {
	_, err := r.col.InsertOne(ctx, event)
	return err
}

func (r *AuditRepository) Find(ctx context.Context, filter audit.Filter, page, pageSize int) (*audit.Page, error) {
	query := filterQuery(filter)

	total, err := r.col.CountDocuments(ctx, query)
	if err != nil {
		return nil, err
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetSkip(int64((page - 1) * pageSize)).
		SetLimit(int64(pageSize))

	cursor, err := r.col.Find(ctx, query, opts)
	if err != nil {
		return nil, err
	}

	events := []audit.Event{}
	if err := cursor.All(ctx, &events); err != nil {
		return nil, err
	}

	return &audit.Page{
		Events:   events,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	}, nil
}

func (r *AuditRepository) History(ctx context.Context, userID string, limit int) ([]audit.Event, error) {
	query := bson.M{"$or": bson.A{
		bson.M{"actorUserId": userID},
		bson.M{"targetId": userID},
	}}

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := r.col.Find(ctx, query, opts)
	if err != nil {
		return nil, err
	}

	events := []audit.Event{}
	if err := cursor.All(ctx, &events); err != nil {
		return nil, err
	}
	return events, nil
}

func (r *AuditRepository) ActivitySince(ctx context.Context, since time.Time) (*audit.ActivitySummary, error) {
	match := bson.M{"createdAt": bson.M{"$gte": since}}

	total, err := r.col.CountDocuments(ctx, match)
	if err != nil {
		return nil, err
	}

	actors, err := r.col.Distinct(ctx, "actorUserId", match)
	if err != nil {
		return nil, err
	}

	byAction, err := r.countByAction(ctx, match)
	if err != nil {
		return nil, err
	}

	return &audit.ActivitySummary{
		Total:        total,
		UniqueActors: int64(len(actors)),
		ByAction:     byAction,
	}, nil
}

func (r *AuditRepository) ActionDistribution(ctx context.Context) ([]audit.ActionCount, error) {
	return r.countByAction(ctx, bson.M{})
}

func (r *AuditRepository) countByAction(ctx context.Context, match bson.M) ([]audit.ActionCount, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$group", Value: bson.M{
			"_id":   "$action",
			"count": bson.M{"$sum": 1},
		}}},
		{{Key: "$sort", Value: bson.M{"count": -1}}},
	}

	cursor, err := r.col.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}

	counts := []audit.ActionCount{}
	if err := cursor.All(ctx, &counts); err != nil {
		return nil, err
	}
	return counts, nil
}

func filterQuery(filter audit.Filter) bson.M {
	query := bson.M{}
	if filter.ActorID != "" {
		query["actorUserId"] = filter.ActorID
	}
	if filter.Action != "" {
		query["action"] = filter.Action
	}
	if filter.TargetID != "" {
		query["targetId"] = filter.TargetID
	}

	created := bson.M{}
	if !filter.From.IsZero() {
		created["$gte"] = filter.From
	}
	if !filter.To.IsZero() {
		created["$lte"] = filter.To
	}
	if len(created) > 0 {
		query["createdAt"] = created
	}

	return query
}
