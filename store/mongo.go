package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/rankpro/backend/analyzer"
)

const collectionName = "analyses"

// newestFirstSort orders by creation time, then by the time-ordered id
var newestFirstSort = bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}

// MongoStore persists records in the "analyses" collection
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
	now    func() time.Time
}

// NewMongoStore connects to uri, checks the connection and ensures the
// created_at index exists.
func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	opts := options.Client().
		ApplyURI(uri).
		SetServerSelectionTimeout(5 * time.Second).
		SetConnectTimeout(5 * time.Second)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	s := &MongoStore{
		client: client,
		coll:   client.Database(database).Collection(collectionName),
		now:    time.Now,
	}

	_, err = s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "created_at", Value: -1}},
	})
	if err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to create index: %w", err)
	}

	return s, nil
}

func (s *MongoStore) Save(ctx context.Context, record *analyzer.AnalysisRecord) (*analyzer.AnalysisRecord, error) {
	stored := prepare(record, s.now())
	if _, err := s.coll.InsertOne(ctx, stored); err != nil {
		return nil, fmt.Errorf("failed to insert analysis: %w", err)
	}
	return stored, nil
}

func (s *MongoStore) List(ctx context.Context) ([]*analyzer.AnalysisRecord, error) {
	return s.find(ctx, options.Find().SetSort(newestFirstSort))
}

func (s *MongoStore) Page(ctx context.Context, page, limit int) (*Page, error) {
	total, err := s.coll.CountDocuments(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("failed to count analyses: %w", err)
	}

	skip, ok := pageOffset(page, limit, total)
	if !ok {
		return &Page{Total: total, Page: page, Limit: limit, Items: []*analyzer.AnalysisRecord{}}, nil
	}
	items, err := s.find(ctx, options.Find().
		SetSort(newestFirstSort).
		SetSkip(skip).
		SetLimit(int64(limit)))
	if err != nil {
		return nil, err
	}

	return &Page{Total: total, Page: page, Limit: limit, Items: items}, nil
}

func (s *MongoStore) find(ctx context.Context, opts *options.FindOptions) ([]*analyzer.AnalysisRecord, error) {
	cursor, err := s.coll.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query analyses: %w", err)
	}
	defer cursor.Close(ctx)

	records := make([]*analyzer.AnalysisRecord, 0)
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("failed to decode analyses: %w", err)
	}
	return records, nil
}

func (s *MongoStore) Latest(ctx context.Context) (*analyzer.AnalysisRecord, error) {
	return s.findOne(ctx, bson.D{}, options.FindOne().SetSort(newestFirstSort))
}

func (s *MongoStore) Get(ctx context.Context, id string) (*analyzer.AnalysisRecord, error) {
	return s.findOne(ctx, bson.D{{Key: "_id", Value: id}})
}

func (s *MongoStore) findOne(ctx context.Context, filter bson.D, opts ...*options.FindOneOptions) (*analyzer.AnalysisRecord, error) {
	var record analyzer.AnalysisRecord
	err := s.coll.FindOne(ctx, filter, opts...).Decode(&record)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load analysis: %w", err)
	}
	return &record, nil
}

func (s *MongoStore) Trend(ctx context.Context, metric string, days int) ([]TrendPoint, error) {
	field, ok := trendFields[metric]
	if !ok || days <= 0 {
		return []TrendPoint{}, nil
	}
	since := trendSince(s.now(), days)

	cursor, err := s.coll.Aggregate(ctx, trendPipeline(field, since))
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate trend: %w", err)
	}
	defer cursor.Close(ctx)

	points := make([]TrendPoint, 0)
	if err := cursor.All(ctx, &points); err != nil {
		return nil, fmt.Errorf("failed to decode trend: %w", err)
	}
	for i := range points {
		points[i].AvgScore = roundAverage(points[i].AvgScore)
	}
	return points, nil
}

// trendPipeline groups records created since by UTC day and averages field
func trendPipeline(field string, since time.Time) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$match", Value: bson.D{
			{Key: "created_at", Value: bson.D{{Key: "$gte", Value: since}}},
		}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: bson.D{{Key: "$dateToString", Value: bson.D{
				{Key: "format", Value: "%Y-%m-%d"},
				{Key: "date", Value: "$created_at"},
			}}}},
			{Key: "avg_score", Value: bson.D{{Key: "$avg", Value: "$" + field}}},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "_id", Value: 1}}}},
	}
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
