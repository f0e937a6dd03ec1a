package database

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"crmimport/internal/logging"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// Snapshot formats.
const (
	FormatBSON = "bson"
	FormatJSON = "json"
)

const restoreBatchSize = 1000

// BackupCollection streams every document of collectionName to w, as raw
// BSON documents or as one relaxed extended JSON document per line.
func (m *MongoDB) BackupCollection(ctx context.Context, collectionName string, w io.Writer, format string) (int, error) {
	log := logging.FromContext(ctx)
	collection := m.Database.Collection(collectionName)
	ctx, cancel := context.WithTimeout(ctx, 30*time.Minute)
	defer cancel()

	cursor, err := collection.Find(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("failed to find documents: %w", err)
	}
	defer cursor.Close(ctx)

	count := 0
	for cursor.Next(ctx) {
		data := []byte(cursor.Current)
		if format == FormatJSON {
			var doc bson.D
			if err := cursor.Decode(&doc); err != nil {
				return count, fmt.Errorf("failed to decode document: %w", err)
			}
			data, err = bson.MarshalExtJSON(doc, false, false)
			if err != nil {
				return count, fmt.Errorf("failed to marshal to JSON: %w", err)
			}
			data = append(data, '\n')
		}

		if _, err := w.Write(data); err != nil {
			return count, fmt.Errorf("failed to write backup data: %w", err)
		}
		count++

		if count%1000 == 0 {
			log.Debug().Int("documents", count).Msg("backup in progress")
		}
	}

	if err := cursor.Err(); err != nil {
		return count, fmt.Errorf("cursor error: %w", err)
	}

	log.Info().Int("documents", count).Str("collection", collectionName).Msg("backup completed")
	return count, nil
}

// RestoreCollection loads a snapshot written by BackupCollection into
// collectionName, optionally dropping the collection first.
func (m *MongoDB) RestoreCollection(ctx context.Context, collectionName string, r io.Reader, format string, dropExisting bool) (int, error) {
	log := logging.FromContext(ctx)
	collection := m.Database.Collection(collectionName)
	ctx, cancel := context.WithTimeout(ctx, 30*time.Minute)
	defer cancel()

	if dropExisting {
		if err := collection.Drop(ctx); err != nil {
			log.Warn().Err(err).Str("collection", collectionName).Msg("failed to drop collection")
		}
	}

	var next func() (any, error)
	if format == FormatJSON {
		next = jsonReader(bufio.NewScanner(r))
	} else {
		next = bsonReader(bufio.NewReader(r))
	}

	var (
		documents []any
		count     int
	)
	for {
		doc, err := next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return count, err
		}
		documents = append(documents, doc)

		if len(documents) >= restoreBatchSize {
			if err := insertBatch(ctx, collection, documents); err != nil {
				return count, err
			}
			count += len(documents)
			documents = documents[:0]
		}
	}

	if len(documents) > 0 {
		if err := insertBatch(ctx, collection, documents); err != nil {
			return count, err
		}
		count += len(documents)
	}

	log.Info().Int("documents", count).Str("collection", collectionName).Msg("restore completed")
	return count, nil
}

func bsonReader(r *bufio.Reader) func() (any, error) {
	return func() (any, error) {
		var size [4]byte
		if _, err := io.ReadFull(r, size[:]); err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, fmt.Errorf("failed to read BSON data: truncated document header")
			}
			return nil, err
		}
		n := int(binary.LittleEndian.Uint32(size[:]))
		if n < 5 {
			return nil, fmt.Errorf("failed to read BSON data: invalid document size %d", n)
		}
		doc := make([]byte, n)
		copy(doc, size[:])
		if _, err := io.ReadFull(r, doc[4:]); err != nil {
			return nil, fmt.Errorf("failed to read BSON data: %w", err)
		}
		raw := bson.Raw(doc)
		if err := raw.Validate(); err != nil {
			return nil, fmt.Errorf("failed to unmarshal BSON: %w", err)
		}
		return raw, nil
	}
}

func jsonReader(sc *bufio.Scanner) func() (any, error) {
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	line := 0
	return func() (any, error) {
		for sc.Scan() {
			line++
			text := sc.Bytes()
			if len(text) == 0 {
				continue
			}
			var doc bson.D
			if err := bson.UnmarshalExtJSON(text, false, &doc); err != nil {
				return nil, fmt.Errorf("failed to decode JSON on line %d: %w", line, err)
			}
			return doc, nil
		}
		if err := sc.Err(); err != nil {
			return nil, fmt.Errorf("failed to read JSON data: %w", err)
		}
		return nil, io.EOF
	}
}

func insertBatch(ctx context.Context, collection *mongo.Collection, documents []any) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if _, err := collection.InsertMany(ctx, documents); err != nil {
		return fmt.Errorf("failed to insert batch: %w", err)
	}

	logging.FromContext(ctx).Debug().Int("documents", len(documents)).Msg("inserted batch")
	return nil
}
