package news

import (
	"context"
	"errors"
	"fmt"
	"log"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrNotFound is returned when no document matches the given message id.
var ErrNotFound = errors.New("news: document not found")

// ErrAlreadyStored is returned by Insert when the unique message_id index
// rejects the document. On an at-least-once queue this is the normal
// signature of a redelivery whose first acknowledgment was lost, so
// callers treat it as terminal rather than retryable.
var ErrAlreadyStored = errors.New("news: article already stored")

// Counter names accepted by IncrementCounter.
const (
	CounterLikes     = "likes"
	CounterFakeFlags = "fakeflags"
)

type Repository interface {
	Insert(ctx context.Context, doc *Document) error
	FindByMessageID(ctx context.Context, messageID string) (*Document, error)
	// IncrementCounter atomically bumps one of the feedback counters and
	// returns the document as it looks after the increment.
	IncrementCounter(ctx context.Context, messageID, counter string) (*Document, error)
}

type UserRepository interface {
	// Credibility returns the stored score, or DefaultCredibility when the
	// user has no record yet.
	Credibility(ctx context.Context, userID string) (float64, error)
	SetCredibility(ctx context.Context, userID string, score float64) error
}

const messageIDField = "features.0.properties.message_id"

type mongoRepository struct {
	col    *mongo.Collection
	logger *log.Logger
}

func NewMongoRepository(db *mongo.Database, logger *log.Logger) (Repository, error) {
	repo := &mongoRepository{
		col:    db.Collection("news"),
		logger: logger,
	}
	if err := repo.ensureIndexes(context.Background()); err != nil {
		return nil, err
	}
	return repo, nil
}

// ensureIndexes guarantees one stored article per message_id and keeps the
// collection ordered by enrichment time.
func (r *mongoRepository) ensureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: messageIDField, Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "features.0.properties.timestamp", Value: 1}},
		},
	}
	_, err := r.col.Indexes().CreateMany(ctx, indexes)

	if err != nil && r.logger != nil {
		r.logger.Printf("failed to create news indexes: %v", err)
	}
	return err
}

func (r *mongoRepository) Insert(ctx context.Context, doc *Document) error {
	_, err := r.col.InsertOne(ctx, doc)
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("article %s: %w", doc.Props().MessageID, ErrAlreadyStored)
	}
	return err
}

func (r *mongoRepository) FindByMessageID(ctx context.Context, messageID string) (*Document, error) {
	var doc Document
	err := r.col.FindOne(ctx, bson.M{messageIDField: messageID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// IncrementCounter uses $inc rather than read-modify-write so concurrent
// feedback on the same article cannot lose an increment.
func (r *mongoRepository) IncrementCounter(ctx context.Context, messageID, counter string) (*Document, error) {
	res := r.col.FindOneAndUpdate(
		ctx,
		bson.M{messageIDField: messageID},
		bson.M{"$inc": bson.M{"features.0.properties." + counter: 1}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	)
	if errors.Is(res.Err(), mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if res.Err() != nil {
		return nil, res.Err()
	}

	var doc Document
	if err := res.Decode(&doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

type mongoUserRepository struct {
	col    *mongo.Collection
	logger *log.Logger
}

func NewMongoUserRepository(db *mongo.Database, logger *log.Logger) (UserRepository, error) {
	repo := &mongoUserRepository{
		col:    db.Collection("users"),
		logger: logger,
	}

	_, err := repo.col.Indexes().CreateOne(context.Background(), mongo.IndexModel{
		Keys:    bson.D{{Key: "userid", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		if repo.logger != nil {
			repo.logger.Printf("failed to create users index: %v", err)
		}
		return nil, err
	}
	return repo, nil
}

func (r *mongoUserRepository) Credibility(ctx context.Context, userID string) (float64, error) {
	var user UserCredibility
	err := r.col.FindOne(ctx, bson.M{"userid": userID}).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return DefaultCredibility, nil
	}
	if err != nil {
		return 0, err
	}
	return user.CredibilityScore, nil
}

func (r *mongoUserRepository) SetCredibility(ctx context.Context, userID string, score float64) error {
	_, err := r.col.UpdateOne(
		ctx,
		bson.M{"userid": userID},
		bson.M{"$set": bson.M{"credibility_score": score}},
		options.Update().SetUpsert(true),
	)
	return err
}
