// Package mongostore is a store.DocumentStore backed by MongoDB.
//
// Updates are translated to native operators ($push/$addToSet with $each,
// $set, $unset, $pull) on dotted paths, so MongoDB applies them atomically on the
// server. Objects are written as bson.D with canonically ordered keys so
// server-side $addToSet equality agrees with ir.Equal.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/roach88/docsync/internal/ir"
	"github.com/roach88/docsync/internal/store"
)

// Store implements store.DocumentStore using MongoDB.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
	logger *slog.Logger
}

var _ store.DocumentStore = (*Store)(nil)

// Open connects to uri and selects database.
func Open(ctx context.Context, uri, database string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		if derr := client.Disconnect(ctx); derr != nil {
			logger.Warn("disconnect after failed ping", "error", derr)
		}
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	return &Store{client: client, db: client.Database(database), logger: logger}, nil
}

func (s *Store) coll(name string) *mongo.Collection {
	return s.db.Collection(name)
}

// FindDocument returns the body of a root document.
func (s *Store) FindDocument(ctx context.Context, collection, id string) (ir.IRObject, error) {
	var raw bson.D
	err := s.coll(collection).FindOne(ctx, bson.M{"_id": id}).Decode(&raw)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("find %s/%s: %w", collection, id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find %s/%s: %w", collection, id, err)
	}
	doc, err := FromBSON(raw)
	if err != nil {
		return nil, fmt.Errorf("find %s/%s: %w", collection, id, err)
	}
	return doc, nil
}

// FindBy runs an equality query on a top-level field, sorted by _id.
func (s *Store) FindBy(ctx context.Context, collection, field string, value ir.IRValue) ([]ir.IRObject, error) {
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	cur, err := s.coll(collection).Find(ctx, bson.D{{Key: field, Value: ToBSON(value)}}, opts)
	if err != nil {
		return nil, fmt.Errorf("query %s by %s: %w", collection, field, err)
	}
	var raws []bson.D
	if err := cur.All(ctx, &raws); err != nil {
		return nil, fmt.Errorf("query %s by %s: %w", collection, field, err)
	}

	docs := make([]ir.IRObject, 0, len(raws))
	for _, raw := range raws {
		doc, err := FromBSON(raw)
		if err != nil {
			return nil, fmt.Errorf("query %s by %s: %w", collection, field, err)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// InsertDocument stores a new root document.
func (s *Store) InsertDocument(ctx context.Context, collection string, doc ir.IRObject) error {
	id, err := store.DocID(doc)
	if err != nil {
		return fmt.Errorf("insert into %s: %w", collection, err)
	}
	if _, err := s.coll(collection).InsertOne(ctx, ToBSON(doc)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("insert %s/%s: %w", collection, id, store.ErrDuplicate)
		}
		return fmt.Errorf("insert %s/%s: %w", collection, id, err)
	}
	return nil
}

// UpdateDocument sends upd as one UpdateOne call. The acknowledgement is
// the server's matched count.
func (s *Store) UpdateDocument(ctx context.Context, sel store.Selector, upd store.Update) (bool, error) {
	doc, err := BuildUpdate(upd)
	if err != nil {
		return false, fmt.Errorf("update %s/%s: %w", sel.Collection, sel.ID, err)
	}
	res, err := s.coll(sel.Collection).UpdateOne(ctx, bson.M{"_id": sel.ID}, doc)
	if err != nil {
		return false, fmt.Errorf("update %s/%s: %w", sel.Collection, sel.ID, err)
	}
	s.logger.Debug("document update",
		"collection", sel.Collection, "id", sel.ID,
		"op", string(upd.Operator), "matched", res.MatchedCount)
	return res.MatchedCount > 0, nil
}

// DeleteDocument removes a root document.
func (s *Store) DeleteDocument(ctx context.Context, collection, id string) error {
	res, err := s.coll(collection).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("delete %s/%s: %w", collection, id, store.ErrNotFound)
	}
	return nil
}

// Close disconnects the client.
func (s *Store) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(context.Background())
}

// BuildUpdate translates an Update into a MongoDB update document.
// Paths must be fully resolved.
func BuildUpdate(upd store.Update) (bson.D, error) {
	if err := upd.Validate(); err != nil {
		return nil, err
	}

	fields := make(bson.D, 0, len(upd.Fields))
	for _, f := range upd.Fields {
		if f.Path.Placeholders() > 0 {
			return nil, &store.PathError{Path: f.Path, Message: "unresolved positional placeholder"}
		}
		key := f.Path.String()

		switch upd.Operator {
		case store.OpPush, store.OpAddToSet:
			each := make(bson.A, len(f.Values))
			for i, v := range f.Values {
				each[i] = ToBSON(v)
			}
			fields = append(fields, bson.E{Key: key, Value: bson.D{{Key: "$each", Value: each}}})
		case store.OpSet, store.OpPull:
			fields = append(fields, bson.E{Key: key, Value: ToBSON(f.Values[0])})
		case store.OpUnset:
			fields = append(fields, bson.E{Key: key, Value: ""})
		}
	}
	return bson.D{{Key: string(upd.Operator), Value: fields}}, nil
}

// ToBSON converts an IR value to its BSON form. Objects become bson.D with
// keys in canonical order.
func ToBSON(v ir.IRValue) any {
	switch val := v.(type) {
	case ir.IRString:
		return string(val)
	case ir.IRInt:
		return int64(val)
	case ir.IRBool:
		return bool(val)
	case ir.IRArray:
		out := make(bson.A, len(val))
		for i, elem := range val {
			out[i] = ToBSON(elem)
		}
		return out
	case ir.IRObject:
		out := make(bson.D, 0, len(val))
		for _, k := range val.SortedKeys() {
			out = append(out, bson.E{Key: k, Value: ToBSON(val[k])})
		}
		return out
	default:
		return nil
	}
}

// FromBSON converts a decoded BSON document into an IR object.
func FromBSON(doc bson.D) (ir.IRObject, error) {
	v, err := fromBSONValue(doc)
	if err != nil {
		return nil, err
	}
	return v.(ir.IRObject), nil
}

func fromBSONValue(v any) (ir.IRValue, error) {
	switch val := v.(type) {
	case bson.D:
		obj := make(ir.IRObject, len(val))
		for _, e := range val {
			elem, err := fromBSONValue(e.Value)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", e.Key, err)
			}
			obj[e.Key] = elem
		}
		return obj, nil
	case bson.M:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		obj := make(ir.IRObject, len(val))
		for _, k := range keys {
			elem, err := fromBSONValue(val[k])
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", k, err)
			}
			obj[k] = elem
		}
		return obj, nil
	case bson.A:
		return fromBSONArray([]any(val))
	case []any:
		return fromBSONArray(val)
	case bson.ObjectID:
		return ir.IRString(val.Hex()), nil
	default:
		return ir.FromGo(v)
	}
}

func fromBSONArray(vals []any) (ir.IRValue, error) {
	arr := make(ir.IRArray, len(vals))
	for i, elem := range vals {
		v, err := fromBSONValue(elem)
		if err != nil {
			return nil, fmt.Errorf("array[%d]: %w", i, err)
		}
		arr[i] = v
	}
	return arr, nil
}
