// Package mongo provides a MongoDB-backed flow/store.FlowStore, storing
// each flow's serialized document as a single collection entry keyed by
// flow id.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	flowerrs "github.com/flowmesh/flowengine/flow/errs"
	"github.com/flowmesh/flowengine/flow/serialize"
)

const (
	defaultCollection = "flow_documents"
	defaultOpTimeout  = 5 * time.Second
)

// Options configures the Mongo-backed store.
type Options struct {
	Client     *mongodriver.Client
	Database   string
	Collection string
	Timeout    time.Duration
}

// Store implements flow/store.FlowStore against a MongoDB collection.
type Store struct {
	coll    *mongodriver.Collection
	timeout time.Duration
}

// New returns a Store backed by MongoDB, creating the unique index on
// flow_id the first time it's called.
func New(opts Options) (*Store, error) {
	if opts.Client == nil {
		return nil, errors.New("mongo store: client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("mongo store: database name is required")
	}
	collection := opts.Collection
	if collection == "" {
		collection = defaultCollection
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}
	coll := opts.Client.Database(opts.Database).Collection(collection)
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	index := mongodriver.IndexModel{
		Keys:    bson.D{{Key: "flow_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := coll.Indexes().CreateOne(ctx, index); err != nil {
		return nil, fmt.Errorf("mongo store: ensure index: %w", err)
	}
	return &Store{coll: coll, timeout: timeout}, nil
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, s.timeout)
}

type flowDocument struct {
	FlowID string `bson:"flow_id"`
	Body   []byte `bson:"body"`
}

func (s *Store) Save(ctx context.Context, doc *serialize.Document) error {
	if doc.FlowID == "" {
		return errors.New("mongo store: flow id is required")
	}
	body, err := serialize.Marshal(doc)
	if err != nil {
		return fmt.Errorf("mongo store: marshal: %w", err)
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	filter := bson.M{"flow_id": doc.FlowID}
	update := bson.M{"$set": flowDocument{FlowID: doc.FlowID, Body: body}}
	_, err = s.coll.UpdateOne(ctx, filter, update, options.UpdateOne().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("mongo store: save %q: %w", doc.FlowID, err)
	}
	return nil
}

func (s *Store) Load(ctx context.Context, flowID string) (*serialize.Document, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var fd flowDocument
	err := s.coll.FindOne(ctx, bson.M{"flow_id": flowID}).Decode(&fd)
	if errors.Is(err, mongodriver.ErrNoDocuments) {
		return nil, fmt.Errorf("mongo store: load %q: %w", flowID, flowerrs.ErrFlowNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("mongo store: load %q: %w", flowID, err)
	}
	doc, err := serialize.Unmarshal(fd.Body)
	if err != nil {
		return nil, fmt.Errorf("mongo store: decode %q: %w", flowID, err)
	}
	return doc, nil
}

func (s *Store) Delete(ctx context.Context, flowID string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	res, err := s.coll.DeleteOne(ctx, bson.M{"flow_id": flowID})
	if err != nil {
		return fmt.Errorf("mongo store: delete %q: %w", flowID, err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("mongo store: delete %q: %w", flowID, flowerrs.ErrFlowNotFound)
	}
	return nil
}

func (s *Store) List(ctx context.Context) ([]string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	cur, err := s.coll.Find(ctx, bson.M{}, options.Find().SetProjection(bson.M{"flow_id": 1}))
	if err != nil {
		return nil, fmt.Errorf("mongo store: list: %w", err)
	}
	defer cur.Close(ctx)
	var ids []string
	for cur.Next(ctx) {
		var fd flowDocument
		if err := cur.Decode(&fd); err != nil {
			return nil, fmt.Errorf("mongo store: list: decode: %w", err)
		}
		ids = append(ids, fd.FlowID)
	}
	return ids, cur.Err()
}
