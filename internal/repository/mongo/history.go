// Package mongo persists finished downloads so the history survives a
// restart. Live session state never touches the database.
package mongo

import (
	"context"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"magnetstream/internal/domain"
)

type HistoryEntry struct {
	ID           string    `bson:"_id" json:"id"`
	Name         string    `bson:"name" json:"name"`
	Status       string    `bson:"status" json:"status"`
	TotalBytes   int64     `bson:"totalBytes" json:"totalBytes"`
	FileCount    int       `bson:"fileCount" json:"fileCount"`
	ErrorMessage string    `bson:"errorMessage,omitempty" json:"errorMessage,omitempty"`
	FinishedAt   time.Time `bson:"finishedAt" json:"finishedAt"`
}

type HistoryRepository struct {
	collection *mongo.Collection
	logger     *slog.Logger
}

func NewHistoryRepository(client *mongo.Client, dbName, collectionName string, logger *slog.Logger) *HistoryRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &HistoryRepository{
		collection: client.Database(dbName).Collection(collectionName),
		logger:     logger,
	}
}

func Connect(ctx context.Context, uri string, extra ...*options.ClientOptions) (*mongo.Client, error) {
	opts := append([]*options.ClientOptions{options.Client().ApplyURI(uri)}, extra...)
	client, err := mongo.Connect(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return client, nil
}

func (r *HistoryRepository) EnsureIndexes(ctx context.Context) error {
	if r == nil || r.collection == nil {
		return nil
	}
	models := []mongo.IndexModel{
		{Keys: bson.D{{Key: "finishedAt", Value: -1}}},
		{Keys: bson.D{{Key: "status", Value: 1}}},
	}
	_, err := r.collection.Indexes().CreateMany(ctx, models)
	return err
}

// Record upserts a terminal session. Persistence is best effort; a write
// failure is logged and never surfaced to the session flow.
func (r *HistoryRepository) Record(ctx context.Context, snap domain.Snapshot) {
	doc := HistoryEntry{
		ID:           snap.ID,
		Name:         snap.DisplayName,
		Status:       string(snap.Status),
		TotalBytes:   snap.TotalBytes,
		FileCount:    len(snap.Files),
		ErrorMessage: snap.ErrorMessage,
		FinishedAt:   time.Now().UTC(),
	}
	_, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": doc.ID},
		bson.M{"$set": doc},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		r.logger.Warn("history write failed",
			slog.String("id", snap.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (r *HistoryRepository) ListRecent(ctx context.Context, limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "finishedAt", Value: -1}}).
		SetLimit(int64(limit))
	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	entries := []HistoryEntry{}
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}
