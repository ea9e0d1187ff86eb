package catalog

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"opportunity-recommender/internal/models"
)

// Mongo reads the scraper's collections directly. Store order is natural
// order. Embeddings are stored as BSON doubles.
type Mongo struct {
	coll *mongo.Collection
}

func NewMongo(db *mongo.Database, collection string) (*Mongo, error) {
	if db == nil {
		return nil, fmt.Errorf("%w: mongodb", ErrMissingClient)
	}
	if collection == "" {
		return nil, fmt.Errorf("mongodb collection name is required")
	}
	return &Mongo{coll: db.Collection(collection)}, nil
}

func (m *Mongo) Backend() string { return "mongodb" }

// mongoDoc is the stored shape of a record. _id may be an ObjectID or a string.
type mongoDoc struct {
	StoreID            interface{} `bson:"_id,omitempty"`
	models.Opportunity `bson:",inline"`
	Embedding          []float64 `bson:"embedding,omitempty"`
}

// buildMongoFilter renders f. $lte/$gte never match a missing field, and the
// region alternation is anchored and quoted so it is an exact match.
func buildMongoFilter(f Filter) bson.M {
	filter := bson.M{
		"age_min": bson.M{"$lte": f.Age},
		"age_max": bson.M{"$gte": f.Age},
	}

	if len(f.Regions) > 0 {
		quoted := make([]string, len(f.Regions))
		for i, r := range f.Regions {
			quoted[i] = regexp.QuoteMeta(r)
		}
		filter["region"] = primitive.Regex{
			Pattern: "^(" + strings.Join(quoted, "|") + ")$",
			Options: "i",
		}
	}

	if f.RequireEmbedding {
		filter["embedding"] = bson.M{"$exists": true, "$ne": nil}
	}
	return filter
}

func fromMongoDoc(doc mongoDoc) models.Opportunity {
	rec := doc.Opportunity
	switch id := doc.StoreID.(type) {
	case primitive.ObjectID:
		rec.StoreID = id.Hex()
	case string:
		rec.StoreID = id
	case nil:
	default:
		rec.StoreID = fmt.Sprint(id)
	}
	if rec.ID == "" {
		rec.ID = rec.StoreID
	}
	if len(doc.Embedding) > 0 {
		rec.Embedding = make([]float32, len(doc.Embedding))
		for i, v := range doc.Embedding {
			rec.Embedding[i] = float32(v)
		}
	}
	return rec
}

func toMongoDoc(rec models.Opportunity) mongoDoc {
	rec.StoreID = ""
	doc := mongoDoc{Opportunity: rec}
	if rec.HasEmbedding() {
		doc.Embedding = make([]float64, len(rec.Embedding))
		for i, v := range rec.Embedding {
			doc.Embedding[i] = float64(v)
		}
	}
	return doc
}

func (m *Mongo) Find(ctx context.Context, f Filter) ([]models.Opportunity, error) {
	cursor, err := m.coll.Find(ctx, buildMongoFilter(f))
	if err != nil {
		return nil, fmt.Errorf("find in %s: %w", m.coll.Name(), err)
	}
	defer cursor.Close(ctx)

	out := make([]models.Opportunity, 0)
	for cursor.Next(ctx) {
		var doc mongoDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode from %s: %w", m.coll.Name(), err)
		}
		out = append(out, fromMongoDoc(doc))
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor on %s: %w", m.coll.Name(), err)
	}
	return out, nil
}

// EnsureSchema creates the unique id index upserts are keyed on.
func (m *Mongo) EnsureSchema(ctx context.Context) error {
	_, err := m.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "id", Value: 1}},
		Options: options.Index().SetUnique(true).SetPartialFilterExpression(bson.M{"id": bson.M{"$type": "string"}}),
	})
	if err != nil {
		return fmt.Errorf("ensure id index on %s: %w", m.coll.Name(), err)
	}
	return nil
}

// Upsert replaces each document matching the record id, inserting if absent.
func (m *Mongo) Upsert(ctx context.Context, records []models.Opportunity) error {
	if err := requireIDs(records); err != nil {
		return err
	}
	opts := options.Replace().SetUpsert(true)
	for _, rec := range records {
		if _, err := m.coll.ReplaceOne(ctx, bson.M{"id": rec.ID}, toMongoDoc(rec), opts); err != nil {
			return fmt.Errorf("upsert %s into %s: %w", rec.ID, m.coll.Name(), err)
		}
	}
	return nil
}
