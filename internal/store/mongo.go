package store

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/devrev/designer/internal/errors"
	"github.com/devrev/designer/internal/model"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Connect opens a MongoDB client and verifies the deployment is reachable
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, errors.NewDesignerError(errors.ErrCodeInvalidConfiguration, "invalid mongo uri", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, errors.Unavailable("mongo deployment unreachable", err)
	}
	return client, nil
}

// MongoSessionSource reads the trace from a sessions collection, in session id
// order
type MongoSessionSource struct {
	Client     *mongo.Client
	Database   string
	Collection string
}

// Sessions implements SessionSource
func (m *MongoSessionSource) Sessions(ctx context.Context) ([]model.Session, error) {
	coll := m.Client.Database(m.Database).Collection(m.Collection)
	cursor, err := coll.Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "session_id", Value: 1}}))
	if err != nil {
		return nil, errors.Unavailable(fmt.Sprintf("failed to query %s.%s", m.Database, m.Collection), err)
	}
	defer cursor.Close(ctx)

	var sessions []model.Session
	for cursor.Next(ctx) {
		var s model.Session
		if err := cursor.Decode(&s); err != nil {
			return nil, errors.NewDesignerError(errors.ErrCodeInvalidWorkload, "malformed session document", err)
		}
		sessions = append(sessions, s)
	}
	if err := cursor.Err(); err != nil {
		return nil, errors.Unavailable("session cursor failed", err)
	}
	return sessions, nil
}

// MongoDocumentSampler reads dataset documents straight from a MongoDB database
type MongoDocumentSampler struct {
	Client   *mongo.Client
	Database string
}

// Collections implements DocumentSampler. System collections are skipped.
func (m *MongoDocumentSampler) Collections(ctx context.Context) ([]string, error) {
	names, err := m.Client.Database(m.Database).ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return nil, errors.Unavailable(fmt.Sprintf("failed to list collections of %s", m.Database), err)
	}

	out := names[:0]
	for _, name := range names {
		if !strings.HasPrefix(name, "system.") {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Documents implements DocumentSampler
func (m *MongoDocumentSampler) Documents(ctx context.Context, collection string, visit func(bson.D) error) error {
	cursor, err := m.Client.Database(m.Database).Collection(collection).Find(ctx, bson.D{})
	if err != nil {
		return errors.Unavailable(fmt.Sprintf("failed to scan %s.%s", m.Database, collection), err)
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var doc bson.D
		if err := cursor.Decode(&doc); err != nil {
			return errors.InternalError("failed to decode document", err)
		}
		if err := visit(doc); err != nil {
			return err
		}
	}
	if err := cursor.Err(); err != nil {
		return errors.Unavailable(fmt.Sprintf("cursor over %s.%s failed", m.Database, collection), err)
	}
	return nil
}
