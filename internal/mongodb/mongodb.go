// Package mongodb implements the credential, device and audit
// repositories on a MongoDB database.
package mongodb

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	usersCollection   = "users"
	devicesCollection = "user_devices"
	auditCollection   = "audit_logs"
)

// Store bundles the three repositories over one database handle.
type Store struct {
	Users   *UserRepository
	Devices *DeviceRepository
	Audit   *AuditRepository
}

// New returns a Store over db. Call EnsureIndexes once at startup.
func New(db *mongo.Database) *Store {
	return &Store{
		Users:   &UserRepository{col: db.Collection(usersCollection)},
		Devices: &DeviceRepository{col: db.Collection(devicesCollection)},
		Audit:   &AuditRepository{col: db.Collection(auditCollection)},
	}
}

// EnsureIndexes creates the unique and query indexes the repositories
// rely on. Safe to call on every startup.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, err := s.Users.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "username", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	})
	if err != nil {
		return err
	}

	_, err = s.Devices.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "userId", Value: 1}, {Key: "fingerprint", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "userId", Value: 1}, {Key: "lastUsedAt", Value: -1}},
		},
	})
	if err != nil {
		return err
	}

	_, err = s.Audit.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "createdAt", Value: -1}},
		},
		{
			Keys: bson.D{{Key: "actorUserId", Value: 1}, {Key: "createdAt", Value: -1}},
		},
		{
			Keys: bson.D{{Key: "action", Value: 1}, {Key: "createdAt", Value: -1}},
		},
	})
	return err
}
