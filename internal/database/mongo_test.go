package database

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"crmimport/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func TestMatchFiltersOrder(t *testing.T) {
	filters := matchFilters(models.ImportRow{Name: "Acme S.r.l.", Email: "info@acme.it", VATNumber: "IT12345678901"})
	require.Len(t, filters, 3)
	assert.Equal(t, StrategyVAT, filters[0].strategy)
	assert.Equal(t, bson.M{fieldVATKey: "12345678901"}, filters[0].filter)
	assert.Equal(t, StrategyEmail, filters[1].strategy)
	assert.Equal(t, StrategyNameKey, filters[2].strategy)
	assert.Equal(t, bson.M{fieldNameKey: "acme s r l"}, filters[2].filter)

	only := matchFilters(models.ImportRow{Name: "Acme", Email: "not-an-email"})
	require.Len(t, only, 1)
	assert.Equal(t, StrategyNameKey, only[0].strategy)
}

func TestToDocumentOmitsEmptyFields(t *testing.T) {
	doc, err := toDocument(models.ImportRow{Name: "Beta", City: "Roma", Status: models.StatusWarning, Flagged: true})
	require.NoError(t, err)

	assert.Equal(t, "Beta", doc["name"])
	assert.Equal(t, "Roma", doc["city"])
	assert.Equal(t, "beta", doc[fieldNameKey])
	assert.Equal(t, true, doc["import_flagged"])
	assert.NotContains(t, doc, "email")
	assert.NotContains(t, doc, fieldVATKey)
}

func TestSnapshotReaders(t *testing.T) {
	var buf bytes.Buffer
	for _, d := range []bson.D{{{Key: "name", Value: "A"}}, {{Key: "name", Value: "B"}, {Key: "n", Value: int32(2)}}} {
		raw, err := bson.Marshal(d)
		require.NoError(t, err)
		buf.Write(raw)
	}

	next := bsonReader(bufio.NewReader(&buf))
	var names []string
	for {
		doc, err := next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		names = append(names, doc.(bson.Raw).Lookup("name").StringValue())
	}
	assert.Equal(t, []string{"A", "B"}, names)

	_, err := bsonReader(bufio.NewReader(bytes.NewReader([]byte{0x10, 0, 0, 0, 1})))()
	assert.Error(t, err)

	js := jsonReader(bufio.NewScanner(strings.NewReader("{\"name\":\"A\"}\n\n{\"name\":\"B\"}\n")))
	first, err := js()
	require.NoError(t, err)
	assert.Equal(t, bson.D{{Key: "name", Value: "A"}}, first)
	_, err = js()
	require.NoError(t, err)
	_, err = js()
	assert.ErrorIs(t, err, io.EOF)

	_, err = jsonReader(bufio.NewScanner(strings.NewReader("{oops")))()
	assert.ErrorContains(t, err, "line 1")
}

// testStore connects to TEST_DB_URI and uses a throwaway collection.
func testStore(t *testing.T) *MongoDB {
	t.Helper()
	uri := os.Getenv("TEST_DB_URI")
	if uri == "" {
		t.Skip("TEST_DB_URI not set")
	}
	ctx := context.Background()
	db, err := NewMongoDB(ctx, uri, "crmimport_test", "contacts_"+uuid.NewString()[:8])
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.collection().Drop(context.Background())
		_ = db.Close()
	})
	require.NoError(t, db.EnsureIndexes(ctx))
	return db
}

func TestApplyChunkInsertThenUpdate(t *testing.T) {
	db := testStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	resp, err := db.ApplyChunk(ctx, []models.ImportRow{
		{Name: "Acme", VATNumber: "IT12345678901", City: "Milano"},
		{Name: "Mario Rossi", Email: "mario@rossi.it"},
		{Name: ""},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Inserted)
	assert.Equal(t, 1, resp.Skipped)
	assert.Equal(t, 3, resp.Inserted+resp.Updated+resp.Skipped)
	assert.Equal(t, models.ActionSkipped, resp.Results[2].Action)

	// Extra fields on stored documents must survive an update.
	_, err = db.collection().UpdateOne(ctx, bson.M{"email": "mario@rossi.it"}, bson.M{"$set": bson.M{"owner": "sales"}})
	require.NoError(t, err)

	resp, err = db.ApplyChunk(ctx, []models.ImportRow{
		{Name: "ACME srl", VATNumber: "12345678901"},
		{Name: "M. Rossi", Email: "mario@rossi.it", Phone: "+39 333 1234567", Flagged: true},
		{Name: "Acme SRL"},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, resp.Updated)
	assert.Equal(t, StrategyVAT, resp.Results[0].MatchStrategy)
	assert.Equal(t, StrategyEmail, resp.Results[1].MatchStrategy)
	assert.Equal(t, StrategyNameKey, resp.Results[2].MatchStrategy)
	assert.NotEmpty(t, resp.Results[1].Warnings)

	var stored bson.M
	require.NoError(t, db.collection().FindOne(ctx, bson.M{"email": "mario@rossi.it"}).Decode(&stored))
	assert.Equal(t, "sales", stored["owner"])
	assert.Equal(t, "+39 333 1234567", stored["phone"])

	var acme bson.M
	require.NoError(t, db.collection().FindOne(ctx, bson.M{fieldVATKey: "12345678901"}).Decode(&acme))
	assert.Equal(t, "Milano", acme["city"], "empty fields never blank stored values")

	n, err := db.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}

func TestBackupRestoreRoundTrip(t *testing.T) {
	db := testStore(t)
	ctx := context.Background()

	_, err := db.ApplyChunk(ctx, []models.ImportRow{{Name: "Uno"}, {Name: "Due", Email: "due@x.it"}})
	require.NoError(t, err)

	for _, format := range []string{FormatBSON, FormatJSON} {
		var buf bytes.Buffer
		n, err := db.BackupCollection(ctx, db.Collection, &buf, format)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		restored, err := db.RestoreCollection(ctx, db.Collection, &buf, format, true)
		require.NoError(t, err, format)
		assert.Equal(t, 2, restored)

		count, err := db.Count(ctx)
		require.NoError(t, err)
		assert.EqualValues(t, 2, count)
	}
}
