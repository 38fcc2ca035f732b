package mongodb

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/kledara/authtrail/device"
)

// DeviceRepository implements device.Repository on the user_devices
// collection.
type DeviceRepository struct {
	col *mongo.Collection
}

func (r *DeviceRepository) Upsert(ctx context.Context, record device.Record) (*device.Record, error) {
	filter := bson.M{
		"userId":      record.UserID,
		"fingerprint": record.Fingerprint,
	}
	update := bson.M{
		"$set": bson.M{
			"ipAddress":  record.IPAddress,
			"lastUsedAt": record.LastUsedAt,
			"isActive":   true,
		},
		"$setOnInsert": bson.M{
			"_id":       record.ID,
			"userId":    record.UserID,
			"name":      record.Name,
			"type":      record.Type,
			"browser":   record.Browser,
			"os":        record.OS,
			"userAgent": record.UserAgent,
			"isTrusted": false,
			"createdAt": record.CreatedAt,
		},
	}

	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var stored device.Record
	if err := r.col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&stored); err != nil {
		return nil, err
	}
	return &stored, nil
}

func (r *DeviceRepository) Recent(ctx context.Context, userID string, limit int) ([]device.Record, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "lastUsedAt", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := r.col.Find(ctx, bson.M{"userId": userID}, opts)
	if err != nil {
		return nil, err
	}

	var records []device.Record
	if err := cursor.All(ctx, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (r *DeviceRepository) ByID(ctx context.Context, userID, deviceID string) (*device.Record, error) {
	var record device.Record
	err := r.col.FindOne(ctx, bson.M{"_id": deviceID, "userId": userID}).Decode(&record)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, device.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *DeviceRepository) ByUser(ctx context.Context, userID string) ([]device.Record, error) {
	opts := options.Find().SetSort(bson.D{{Key: "lastUsedAt", Value: -1}})

	cursor, err := r.col.Find(ctx, bson.M{"userId": userID, "isActive": true}, opts)
	if err != nil {
		return nil, err
	}

	var records []device.Record
	if err := cursor.All(ctx, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (r *DeviceRepository) SetTrusted(ctx context.Context, userID, deviceID string, trusted bool) error {
	return r.updateOne(ctx, userID, deviceID, bson.M{"$set": bson.M{"isTrusted": trusted}})
}

func (r *DeviceRepository) Rename(ctx context.Context, userID, deviceID, name string) error {
	return r.updateOne(ctx, userID, deviceID, bson.M{"$set": bson.M{"name": name}})
}

func (r *DeviceRepository) Deactivate(ctx context.Context, userID, deviceID string) error {
	return r.updateOne(ctx, userID, deviceID, bson.M{"$set": bson.M{
		"isActive":  false,
		"isTrusted": false,
	}})
}

func (r *DeviceRepository) updateOne(ctx context.Context, userID, deviceID string, update bson.M) error {
	res, err := r.col.UpdateOne(ctx, bson.M{"_id": deviceID, "userId": userID}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return device.ErrNotFound
	}
	return nil
}
