package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"crmimport/internal/logging"
	"crmimport/internal/models"
	"crmimport/internal/normalize"
	"crmimport/internal/textnorm"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Match strategies reported per row.
const (
	StrategyVAT     = "vat_number"
	StrategyEmail   = "email"
	StrategyNameKey = "name_key"
	StrategyNew     = "new"
)

const (
	fieldNameKey   = "name_key"
	fieldVATKey    = "vat_key"
	fieldCreatedAt = "created_at"
	fieldUpdatedAt = "updated_at"
)

// MongoDB is the contact store. Collection names the target collection for
// ApplyChunk.
type MongoDB struct {
	Client     *mongo.Client
	Database   *mongo.Database
	Collection string
}

func NewMongoDB(ctx context.Context, uri, dbName, collection string) (*MongoDB, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	logging.FromContext(ctx).Info().Str("database", dbName).Str("collection", collection).Msg("connected to MongoDB")

	return &MongoDB{
		Client:     client,
		Database:   client.Database(dbName),
		Collection: collection,
	}, nil
}

func (m *MongoDB) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.Client.Disconnect(ctx)
}

func (m *MongoDB) collection() *mongo.Collection {
	return m.Database.Collection(m.Collection)
}

// EnsureIndexes creates the lookup indexes used by ApplyChunk.
func (m *MongoDB) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	sparse := options.Index().SetSparse(true)
	_, err := m.collection().Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: fieldVATKey, Value: 1}}, Options: sparse},
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: sparse},
		{Keys: bson.D{{Key: fieldNameKey, Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create indexes on %s: %w", m.Collection, err)
	}
	return nil
}

// ApplyChunk inserts or updates each row, matching existing documents by
// VAT number, then email, then normalized name. Updates only $set the
// imported fields so anything else on the document is preserved. Every row
// is counted exactly once as inserted, updated or skipped.
func (m *MongoDB) ApplyChunk(ctx context.Context, rows []models.ImportRow) (*models.ChunkResponse, error) {
	log := logging.FromContext(ctx)
	resp := &models.ChunkResponse{}

	for i, row := range rows {
		res := models.ChunkResult{Index: i}

		if row.Name == "" {
			res.Action = models.ActionSkipped
			res.Errors = []string{"name is required"}
			resp.Skipped++
			resp.Errors = append(resp.Errors, models.ChunkIssue{Index: i, Reason: "name is required"})
			resp.Results = append(resp.Results, res)
			continue
		}

		action, strategy, err := m.upsertRow(ctx, row)
		if err != nil {
			return nil, fmt.Errorf("failed to apply row %d: %w", i, err)
		}
		res.Action = action
		res.MatchStrategy = strategy

		switch action {
		case models.ActionInserted:
			resp.Inserted++
		case models.ActionUpdated:
			resp.Updated++
		}

		if row.Flagged {
			msg := "imported with validation errors, flagged for review"
			res.Warnings = append(res.Warnings, msg)
			resp.Warnings = append(resp.Warnings, models.ChunkIssue{Index: i, Reason: msg})
		}
		if strategy == StrategyNameKey {
			msg := "matched an existing contact by name only"
			res.Warnings = append(res.Warnings, msg)
			resp.Warnings = append(resp.Warnings, models.ChunkIssue{Index: i, Reason: msg})
		}
		resp.Results = append(resp.Results, res)
	}

	log.Debug().Int("rows", len(rows)).Int("inserted", resp.Inserted).Int("updated", resp.Updated).Int("skipped", resp.Skipped).Msg("chunk applied")
	return resp, nil
}

type lookup struct {
	strategy string
	filter   bson.M
}

// matchFilters lists the lookups for row in priority order.
func matchFilters(row models.ImportRow) []lookup {
	var out []lookup
	if k := normalize.VATKey(row.VATNumber); k != "" {
		out = append(out, lookup{StrategyVAT, bson.M{fieldVATKey: k}})
	}
	if row.Email != "" && normalize.ValidEmail(row.Email) {
		out = append(out, lookup{StrategyEmail, bson.M{"email": row.Email}})
	}
	out = append(out, lookup{StrategyNameKey, bson.M{fieldNameKey: textnorm.NameKey(row.Name)}})
	return out
}

func (m *MongoDB) upsertRow(ctx context.Context, row models.ImportRow) (models.Action, string, error) {
	collection := m.collection()
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	doc, err := toDocument(row)
	if err != nil {
		return "", "", err
	}
	now := time.Now().UTC()
	doc[fieldUpdatedAt] = now

	for _, l := range matchFilters(row) {
		var existing struct {
			ID any `bson:"_id"`
		}
		err := collection.FindOne(ctx, l.filter, options.FindOne().SetProjection(bson.M{"_id": 1})).Decode(&existing)
		if errors.Is(err, mongo.ErrNoDocuments) {
			continue
		}
		if err != nil {
			return "", "", fmt.Errorf("failed to look up by %s: %w", l.strategy, err)
		}

		if _, err := collection.UpdateByID(ctx, existing.ID, bson.M{"$set": doc}); err != nil {
			return "", "", fmt.Errorf("failed to update contact %v: %w", existing.ID, err)
		}
		return models.ActionUpdated, l.strategy, nil
	}

	doc[fieldCreatedAt] = now
	if _, err := collection.InsertOne(ctx, doc); err != nil {
		return "", "", fmt.Errorf("failed to insert contact: %w", err)
	}
	return models.ActionInserted, StrategyNew, nil
}

// toDocument converts row to the stored shape, adding the derived lookup
// keys. Empty fields are absent.
func toDocument(row models.ImportRow) (bson.M, error) {
	raw, err := bson.Marshal(row)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal row: %w", err)
	}
	var doc bson.M
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal row: %w", err)
	}
	doc[fieldNameKey] = textnorm.NameKey(row.Name)
	if k := normalize.VATKey(row.VATNumber); k != "" {
		doc[fieldVATKey] = k
	}
	return doc, nil
}

func (m *MongoDB) ListCollections(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	names, err := m.Database.ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}
	return names, nil
}

// Count returns the number of documents in the target collection.
func (m *MongoDB) Count(ctx context.Context) (int64, error) {
	n, err := m.collection().CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", m.Collection, err)
	}
	return n, nil
}
