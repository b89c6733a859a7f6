package storage

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"domus-ia/models"
)

// MongoOptions describes how to reach the listings collection.
type MongoOptions struct {
	URI            string
	Database       string
	Collection     string
	ConnectTimeout time.Duration
	MaxPoolSize    uint64
}

// MongoStore owns the client shared by every writer of a run.
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// ConnectMongo opens a client and pings the primary. Both steps are bounded
// by ConnectTimeout so an unreachable server fails fast.
func ConnectMongo(ctx context.Context, o MongoOptions) (*MongoStore, error) {
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 5 * time.Second
	}

	clientOpts := options.Client().
		ApplyURI(o.URI).
		SetAppName("domus-ia").
		SetConnectTimeout(o.ConnectTimeout).
		SetServerSelectionTimeout(o.ConnectTimeout)
	if o.MaxPoolSize > 0 {
		clientOpts.SetMaxPoolSize(o.MaxPoolSize)
	}

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("mongo: connect: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, o.ConnectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo: ping: %w", err)
	}

	return &MongoStore{
		client: client,
		coll:   client.Database(o.Database).Collection(o.Collection),
	}, nil
}

// Collection returns the listings collection.
func (s *MongoStore) Collection() *mongo.Collection {
	return s.coll
}

// Count returns the number of stored listings.
func (s *MongoStore) Count(ctx context.Context) (int64, error) {
	n, err := s.coll.CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("mongo: count: %w", err)
	}
	return n, nil
}

// Sample returns up to limit stored listings in natural order.
func (s *MongoStore) Sample(ctx context.Context, limit int64) ([]models.Record, error) {
	cur, err := s.coll.Find(ctx, bson.D{}, options.Find().SetLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("mongo: find: %w", err)
	}

	var docs []models.Record
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongo: decode sample: %w", err)
	}
	return docs, nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
