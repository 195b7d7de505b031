package mongostore

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/smukkama/traffic-monitor/internal/traffic"
)

const (
	DefaultDatabase   = "TrafficManagementDB"
	DefaultCollection = "RealTimeTraffic"
)

// document is the stored shape of a record
type document struct {
	BatchID         string    `bson:"batch_id"`
	Timestamp       time.Time `bson:"timestamp"`
	Location        string    `bson:"location"`
	VehicleCount    int       `bson:"vehicle_count"`
	AvgSpeed        int       `bson:"avg_speed"`
	CongestionLevel string    `bson:"congestion_level"`
	SensorID        string    `bson:"sensor_id"`
}

func toDocument(r traffic.Record) document {
	return document{
		BatchID:         r.BatchID,
		Timestamp:       r.Timestamp,
		Location:        r.Location,
		VehicleCount:    r.VehicleCount,
		AvgSpeed:        r.AvgSpeed,
		CongestionLevel: string(r.CongestionLevel),
		SensorID:        r.SensorID,
	}
}

func (d document) record() traffic.Record {
	return traffic.Record{
		BatchID:         d.BatchID,
		Timestamp:       d.Timestamp,
		Location:        d.Location,
		VehicleCount:    d.VehicleCount,
		AvgSpeed:        d.AvgSpeed,
		CongestionLevel: traffic.CongestionLevel(d.CongestionLevel),
		SensorID:        d.SensorID,
	}
}

// Store keeps records in a MongoDB collection
type Store struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// Connect dials uri, verifies the primary is reachable and ensures the
// timestamp index exists.
func Connect(ctx context.Context, uri, database, collection string) (*Store, error) {
	if database == "" {
		database = DefaultDatabase
	}
	if collection == "" {
		collection = DefaultCollection
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	s := newStore(client, client.Database(database).Collection(collection))
	if err := s.ensureIndex(ctx); err != nil {
		client.Disconnect(context.Background())
		return nil, err
	}

	return s, nil
}

func newStore(client *mongo.Client, coll *mongo.Collection) *Store {
	return &Store{client: client, coll: coll}
}

// ensureIndex creates the descending timestamp index QueryRecent sorts on
func (s *Store) ensureIndex(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "timestamp", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create timestamp index: %w", err)
	}
	return nil
}

// InsertBatch inserts the batch with one InsertMany call
func (s *Store) InsertBatch(ctx context.Context, records []traffic.Record) error {
	if len(records) == 0 {
		return nil
	}

	docs := make([]interface{}, 0, len(records))
	for _, r := range records {
		docs = append(docs, toDocument(r))
	}

	if _, err := s.coll.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("failed to insert batch: %w", err)
	}
	return nil
}

// QueryRecent returns up to limit records sorted by timestamp descending
func (s *Store) QueryRecent(ctx context.Context, limit int) ([]traffic.Record, error) {
	if limit <= 0 {
		return []traffic.Record{}, nil
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := s.coll.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent records: %w", err)
	}

	var docs []document
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode records: %w", err)
	}

	records := make([]traffic.Record, 0, len(docs))
	for _, d := range docs {
		records = append(records, d.record())
	}
	return records, nil
}

// Close disconnects the client
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
