package sink

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/nrandal/microlab/internal/model"
)

// researchRecordDoc mirrors a retired Observation for the reduced research
// ladder, the same "typed doc mirrors domain struct" shape as the
// teacher's persist.tradeDoc.
type researchRecordDoc struct {
	ObsID      uint64             `bson:"obs_id"`
	Symbol     string             `bson:"symbol"`
	T0Wall     time.Time          `bson:"t0_wall"`
	T0Price    float64            `bson:"t0_price"`
	Nrg        float64            `bson:"nrg"`
	Regime     string             `bson:"regime"`
	Returns    map[string]float64 `bson:"returns"`
	Complete   bool               `bson:"complete"`
	RetiredAt  time.Time          `bson:"retired_at"`
}

// MongoResearchSink appends CompleteRecords built with the reduced
// research ladder {5,10,30,60} into MongoDB, alongside (not instead of)
// the required FileSink. The caller is expected to retire those records
// from a Chronos instance constructed with that same reduced ladder
// (cmd/engine drives one via Sampler.WithResearch) rather than filtering
// down from the live full-ladder clock; toResearchDoc still restricts
// whatever it's handed to this sink's configured ladder as a second line
// of defense. Grounded directly on internal/persist.Store's connect/Migrate
// shape and internal/persist.EnsureIndexes's idempotent index creation.
type MongoResearchSink struct {
	client *mongo.Client
	coll   *mongo.Collection
	ladder []int

	mu      sync.Mutex
	pending []researchRecordDoc
}

// NewMongoResearchSink connects to uri (same convention as the teacher's
// persist.NewStore: database name taken from the URI path, defaulting to
// "microlab") and ensures the collection's indexes exist.
func NewMongoResearchSink(ctx context.Context, uri string, ladder []int) (*MongoResearchSink, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("research sink: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("research sink: ping: %w", err)
	}

	dbName := "microlab"
	if u, err := url.Parse(uri); err == nil {
		if name := strings.TrimPrefix(u.Path, "/"); name != "" {
			dbName = name
		}
	}

	coll := client.Database(dbName).Collection("research_records")
	if _, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "symbol", Value: 1}, {Key: "t0_wall", Value: -1}},
	}); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("research sink: ensure index: %w", err)
	}

	log.Printf("research sink: connected to MongoDB (db=%s)", dbName)
	return &MongoResearchSink{client: client, coll: coll, ladder: ladder}, nil
}

// Append buffers records for the next Flush; research records are
// append-only so an ordered bulk insert (rather than the teacher's
// upsert-in-transaction Snapshotter.Save) is sufficient.
func (m *MongoResearchSink) Append(_ context.Context, records []model.Observation) error {
	if len(records) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range records {
		m.pending = append(m.pending, toResearchDoc(rec, m.ladder))
	}
	return nil
}

func toResearchDoc(rec model.Observation, ladder []int) researchRecordDoc {
	wanted := make(map[int]bool, len(ladder))
	for _, h := range ladder {
		wanted[h] = true
	}

	returns := make(map[string]float64, len(ladder))
	for _, r := range rec.Returns {
		if r.Set && wanted[r.HorizonSeconds] {
			returns[fmt.Sprintf("h%d", r.HorizonSeconds)] = r.Value
		}
	}
	return researchRecordDoc{
		ObsID:     rec.ObsID,
		Symbol:    rec.Symbol,
		T0Wall:    rec.T0Wall,
		T0Price:   rec.T0Price,
		Nrg:       rec.Physics.Nrg,
		Regime:    rec.Regime.Regime.String(),
		Returns:   returns,
		Complete:  rec.Complete,
		RetiredAt: rec.CreatedAt,
	}
}

// Flush bulk-inserts everything buffered since the last Flush.
func (m *MongoResearchSink) Flush(ctx context.Context) error {
	m.mu.Lock()
	batch := m.pending
	m.pending = nil
	m.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	docs := make([]interface{}, len(batch))
	for i, d := range batch {
		docs[i] = d
	}
	if _, err := m.coll.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("research sink: insert many: %w", err)
	}
	return nil
}

// Close flushes any remaining buffered records and disconnects.
func (m *MongoResearchSink) Close(ctx context.Context) error {
	if err := m.Flush(ctx); err != nil {
		log.Printf("research sink: final flush failed: %v", err)
	}
	return m.client.Disconnect(ctx)
}
