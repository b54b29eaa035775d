package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Defaults for [DialMongo].
const (
	DefaultDatabase   = "npms"
	DefaultCollection = "analyses"
)

// MongoStore stores analyses in a MongoDB collection, keyed by package name.
//
// Documents are converted through relaxed extended JSON so they keep the
// JSON shape of [Analysis], including degraded signals stored as false.
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
	owned  bool
}

// NewMongoStore wraps an existing collection. Close does not disconnect the
// client.
func NewMongoStore(coll *mongo.Collection) *MongoStore {
	return &MongoStore{client: coll.Database().Client(), coll: coll}
}

// DialMongo connects to uri and uses the analyses collection of the
// database named in the URI, or [DefaultDatabase].
func DialMongo(ctx context.Context, uri string) (*MongoStore, error) {
	opts := options.Client().ApplyURI(uri)
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	db := databaseName(uri)
	if db == "" {
		db = DefaultDatabase
	}
	return &MongoStore{
		client: client,
		coll:   client.Database(db).Collection(DefaultCollection),
		owned:  true,
	}, nil
}

// Save implements Store.
func (s *MongoStore) Save(ctx context.Context, a *Analysis) error {
	doc, err := toDocument(a)
	if err != nil {
		return err
	}
	_, err = s.coll.ReplaceOne(ctx, bson.D{{Key: "_id", Value: a.Name}}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save analysis %s: %w", a.Name, err)
	}
	return nil
}

// Get implements Store.
func (s *MongoStore) Get(ctx context.Context, name string) (*Analysis, error) {
	var doc bson.D
	err := s.coll.FindOne(ctx, bson.D{{Key: "_id", Value: name}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get analysis %s: %w", name, err)
	}
	return fromDocument(doc)
}

// Close implements Store.
func (s *MongoStore) Close(ctx context.Context) error {
	if !s.owned {
		return nil
	}
	return s.client.Disconnect(ctx)
}

// databaseName returns the database in the path of a connection URI.
func databaseName(uri string) string {
	_, rest, ok := strings.Cut(uri, "://")
	if !ok {
		return ""
	}
	_, path, ok := strings.Cut(rest, "/")
	if !ok {
		return ""
	}
	db, _, _ := strings.Cut(path, "?")
	return db
}

func toDocument(a *Analysis) (bson.D, error) {
	b, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("encode analysis %s: %w", a.Name, err)
	}
	var doc bson.D
	if err := bson.UnmarshalExtJSON(b, false, &doc); err != nil {
		return nil, fmt.Errorf("encode analysis %s: %w", a.Name, err)
	}
	return append(bson.D{{Key: "_id", Value: a.Name}}, doc...), nil
}

func fromDocument(doc bson.D) (*Analysis, error) {
	b, err := bson.MarshalExtJSON(doc, false, false)
	if err != nil {
		return nil, fmt.Errorf("decode analysis: %w", err)
	}
	var a Analysis
	if err := json.Unmarshal(b, &a); err != nil {
		return nil, fmt.Errorf("decode analysis: %w", err)
	}
	return &a, nil
}
