package database

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// MongoDB wraps the MongoDB client and database
type MongoDB struct {
	client   *mongo.Client
	database *mongo.Database
	dbName   string
}

// NewMongoDB creates a new MongoDB connection with connection pooling
func NewMongoDB(uri string) (*MongoDB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	clientOptions := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(50).
		SetMinPoolSize(5).
		SetMaxConnIdleTime(30 * time.Second).
		SetServerSelectionTimeout(5 * time.Second).
		SetConnectTimeout(10 * time.Second)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	dbName := extractDBName(uri)

	db := &MongoDB{
		client:   client,
		database: client.Database(dbName),
		dbName:   dbName,
	}

	log.Printf("✅ Connected to MongoDB database: %s", dbName)

	return db, nil
}

// extractDBName extracts the database name from MongoDB URI
// mongodb://localhost:27017/warmth?authSource=admin -> warmth
func extractDBName(uri string) string {
	lastSlash := -1
	questionMark := -1

	for i, c := range uri {
		if c == '/' {
			lastSlash = i
		}
		if c == '?' && questionMark == -1 {
			questionMark = i
		}
	}

	if lastSlash != -1 {
		start := lastSlash + 1
		end := len(uri)
		if questionMark != -1 && questionMark > lastSlash {
			end = questionMark
		}
		if start < end {
			return uri[start:end]
		}
	}

	return "warmth"
}

// Initialize creates indexes for all collections
func (m *MongoDB) Initialize(ctx context.Context) error {
	log.Println("📦 Initializing MongoDB indexes...")

	if err := m.createIndexes(ctx, TableFacts, []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)},
	}); err != nil {
		return fmt.Errorf("failed to create facts indexes: %w", err)
	}

	if err := m.createIndexes(ctx, TableMoodLogs, []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
	}); err != nil {
		return fmt.Errorf("failed to create mood_logs indexes: %w", err)
	}

	if err := m.createIndexes(ctx, TableMessages, []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: 1}}},
	}); err != nil {
		return fmt.Errorf("failed to create messages indexes: %w", err)
	}

	if err := m.createIndexes(ctx, TableJournals, []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
	}); err != nil {
		return fmt.Errorf("failed to create journals indexes: %w", err)
	}

	if err := m.createIndexes(ctx, TablePreferences, []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_id", Value: 1}}, Options: options.Index().SetUnique(true)},
	}); err != nil {
		return fmt.Errorf("failed to create user_preferences indexes: %w", err)
	}

	log.Println("✅ MongoDB indexes initialized")
	return nil
}

func (m *MongoDB) createIndexes(ctx context.Context, collectionName string, indexes []mongo.IndexModel) error {
	_, err := m.database.Collection(collectionName).Indexes().CreateMany(ctx, indexes)
	return err
}

// Collection returns a collection by name
func (m *MongoDB) Collection(name string) *mongo.Collection {
	return m.database.Collection(name)
}

// Client returns the underlying client
func (m *MongoDB) Client() *mongo.Client {
	return m.client
}

// Database returns the underlying database
func (m *MongoDB) Database() *mongo.Database {
	return m.database
}

// Close disconnects from MongoDB
func (m *MongoDB) Close(ctx context.Context) error {
	log.Println("🔌 Closing MongoDB connection...")
	return m.client.Disconnect(ctx)
}

// Ping checks the connection
func (m *MongoDB) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, readpref.Primary())
}

// MongoRowStore implements RowStore with one collection per table
type MongoRowStore struct {
	db *MongoDB
}

// NewMongoRowStore creates a row store over an open MongoDB connection
func NewMongoRowStore(db *MongoDB) *MongoRowStore {
	return &MongoRowStore{db: db}
}

var mongoOps = map[Op]string{
	OpGt:  "$gt",
	OpGte: "$gte",
	OpLt:  "$lt",
	OpLte: "$lte",
}

func mongoFilter(filters []Filter) (bson.M, error) {
	if err := validateFilters(filters); err != nil {
		return nil, err
	}
	doc := bson.M{}
	for _, f := range filters {
		if f.Op == OpEq {
			doc[f.Column] = f.Value
			continue
		}
		cond, ok := doc[f.Column].(bson.M)
		if !ok {
			cond = bson.M{}
			doc[f.Column] = cond
		}
		cond[mongoOps[f.Op]] = f.Value
	}
	return doc, nil
}

// Insert adds a row to the table's collection
func (s *MongoRowStore) Insert(ctx context.Context, table string, row Row) error {
	if err := validateIdentifier(table); err != nil {
		return err
	}
	if _, err := s.db.Collection(table).InsertOne(ctx, bson.M(row)); err != nil {
		return fmt.Errorf("failed to insert into %s: %w", table, err)
	}
	return nil
}

// Select returns rows matching all filters
func (s *MongoRowStore) Select(ctx context.Context, table string, filters []Filter, order *Order, limit int) ([]Row, error) {
	if err := validateIdentifier(table); err != nil {
		return nil, err
	}
	filter, err := mongoFilter(filters)
	if err != nil {
		return nil, err
	}

	opts := options.Find()
	if order != nil {
		if err := validateIdentifier(order.Column); err != nil {
			return nil, err
		}
		direction := 1
		if order.Desc {
			direction = -1
		}
		opts.SetSort(bson.D{{Key: order.Column, Value: direction}})
	}
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := s.db.Collection(table).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", table, err)
	}
	defer cursor.Close(ctx)

	var docs []bson.M
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode %s rows: %w", table, err)
	}

	rows := make([]Row, 0, len(docs))
	for _, doc := range docs {
		delete(doc, "_id")
		rows = append(rows, Row(doc))
	}
	return rows, nil
}

// Update applies patch to every matching row
func (s *MongoRowStore) Update(ctx context.Context, table string, filters []Filter, patch Row) (int64, error) {
	if err := validateIdentifier(table); err != nil {
		return 0, err
	}
	if len(patch) == 0 {
		return 0, errors.New("empty update patch")
	}
	filter, err := mongoFilter(filters)
	if err != nil {
		return 0, err
	}
	result, err := s.db.Collection(table).UpdateMany(ctx, filter, bson.M{"$set": bson.M(patch)})
	if err != nil {
		return 0, fmt.Errorf("failed to update %s: %w", table, err)
	}
	return result.MatchedCount, nil
}

// Delete removes every matching row
func (s *MongoRowStore) Delete(ctx context.Context, table string, filters []Filter) (int64, error) {
	if err := validateIdentifier(table); err != nil {
		return 0, err
	}
	filter, err := mongoFilter(filters)
	if err != nil {
		return 0, err
	}
	result, err := s.db.Collection(table).DeleteMany(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to delete from %s: %w", table, err)
	}
	return result.DeletedCount, nil
}
