package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/kledara/authtrail/credential"
)

// UserRepository implements credential.Repository on the users
// collection.
type UserRepository struct {
	col *mongo.Collection
}

func (r *UserRepository) Insert(ctx context.Context, user *credential.User) error {
	_, err := r.col.InsertOne(ctx, user)
	if mongo.IsDuplicateKeyError(err) {
		return credential.ErrDuplicate
	}
	return err
}

func (r *UserRepository) ByID(ctx context.Context, id string) (*credential.User, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *UserRepository) ByEmail(ctx context.Context, email string) (*credential.User, error) {
	return r.findOne(ctx, bson.M{"email": email})
}

func (r *UserRepository) findOne(ctx context.Context, filter bson.M) (*credential.User, error) {
	var user credential.User
	err := r.col.FindOne(ctx, filter).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, credential.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) SetCounters(ctx context.Context, id string, attempts int, locked bool, lockUntil *time.Time) error {
	set := bson.M{
		"loginAttempts": attempts,
		"isLocked":      locked,
		"updatedAt":     time.Now(),
	}
	update := bson.M{"$set": set}
	if lockUntil != nil {
		set["lockUntil"] = *lockUntil
	} else {
		update["$unset"] = bson.M{"lockUntil": ""}
	}

	return r.updateOne(ctx, id, update)
}

func (r *UserRepository) SetRefreshToken(ctx context.Context, id, token string, lastLoginAt *time.Time) error {
	set := bson.M{"updatedAt": time.Now()}
	update := bson.M{"$set": set}
	if token == "" {
		update["$unset"] = bson.M{"refreshToken": ""}
	} else {
		set["refreshToken"] = token
	}
	if lastLoginAt != nil {
		set["lastLoginAt"] = *lastLoginAt
	}

	return r.updateOne(ctx, id, update)
}

func (r *UserRepository) SetPassword(ctx context.Context, id, hash string, changedAt time.Time) error {
	return r.updateOne(ctx, id, bson.M{"$set": bson.M{
		"passwordHash":      hash,
		"passwordChangedAt": changedAt,
		"updatedAt":         time.Now(),
	}})
}

func (r *UserRepository) SetVerified(ctx context.Context, id string) error {
	return r.updateOne(ctx, id, bson.M{"$set": bson.M{
		"isVerified": true,
		"updatedAt":  time.Now(),
	}})
}

func (r *UserRepository) SetMFAEnabled(ctx context.Context, id string, enabled bool) error {
	return r.updateOne(ctx, id, bson.M{"$set": bson.M{
		"mfaEnabled": enabled,
		"updatedAt":  time.Now(),
	}})
}

func (r *UserRepository) Update(ctx context.Context, id string, update credential.Update) (*credential.User, error) {
	set := updateFields(update)
	if len(set) == 1 {
		return r.ByID(ctx, id)
	}

	res, err := r.col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if mongo.IsDuplicateKeyError(err) {
		return nil, credential.ErrDuplicate
	}
	if err != nil {
		return nil, err
	}
	if res.MatchedCount == 0 {
		return nil, credential.ErrNotFound
	}

	return r.ByID(ctx, id)
}

func (r *UserRepository) Delete(ctx context.Context, id string) error {
	res, err := r.col.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return credential.ErrNotFound
	}
	return nil
}

func (r *UserRepository) UpdateManyExcludingRole(ctx context.Context, ids []string, update credential.Update, excludedRole string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	filter := bson.M{
		"_id":  bson.M{"$in": ids},
		"role": bson.M{"$ne": excludedRole},
	}

	res, err := r.col.UpdateMany(ctx, filter, bson.M{"$set": updateFields(update)})
	if err != nil {
		return 0, fmt.Errorf("batch update users: %w", err)
	}
	return res.ModifiedCount, nil
}

func updateFields(update credential.Update) bson.M {
	set := bson.M{"updatedAt": time.Now()}
	if update.Username != nil {
		set["username"] = *update.Username
	}
	if update.Email != nil {
		set["email"] = *update.Email
	}
	if update.Role != nil {
		set["role"] = *update.Role
	}
	if update.IsVerified != nil {
		set["isVerified"] = *update.IsVerified
	}
	return set
}

func (r *UserRepository) updateOne(ctx context.Context, id string, update bson.M) error {
	res, err := r.col.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return credential.ErrNotFound
	}
	return nil
}
