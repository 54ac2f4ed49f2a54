package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/codecollab/collab-server/internal/document"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoRepo implements Repository on two collections: documents (versions
// embedded) and chat messages (referencing the document by id). Every
// mutation is a single-document atomic update, so concurrent saves on one
// document are serialized by the server.
type MongoRepo struct {
	docs     *mongo.Collection
	messages *mongo.Collection
	now      nowFunc
}

func NewMongoRepo(docs, messages *mongo.Collection) *MongoRepo {
	return &MongoRepo{docs: docs, messages: messages, now: func() time.Time { return time.Now().UTC() }}
}

// EnsureIndexes creates the lookup indexes. The share token index is sparse
// so documents without a token never collide.
func (m *MongoRepo) EnsureIndexes(ctx context.Context) error {
	_, err := m.docs.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "shareToken", Value: 1}}, Options: options.Index().SetUnique(true).SetSparse(true)},
		{Keys: bson.D{{Key: "ownerId", Value: 1}}},
		{Keys: bson.D{{Key: "collaborators", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("document indexes: %w", err)
	}
	_, err = m.messages.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "documentId", Value: 1}, {Key: "seq", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("message indexes: %w", err)
	}
	return nil
}

func (m *MongoRepo) Create(ctx context.Context, doc *document.Document) (*document.Document, error) {
	if err := prepareNew(doc, uuid.NewString(), m.now); err != nil {
		return nil, err
	}
	if _, err := m.docs.InsertOne(ctx, doc); err != nil {
		return nil, document.Transient("insert document", err)
	}
	return doc.Clone(), nil
}

func (m *MongoRepo) Get(ctx context.Context, id string) (*document.Document, error) {
	return m.findOne(ctx, bson.M{"_id": id})
}

func (m *MongoRepo) GetByShareToken(ctx context.Context, token string) (*document.Document, error) {
	if token == "" {
		return nil, document.ErrDocumentNotFound
	}
	return m.findOne(ctx, bson.M{"shareToken": token})
}

func (m *MongoRepo) findOne(ctx context.Context, filter bson.M) (*document.Document, error) {
	var d document.Document
	if err := m.docs.FindOne(ctx, filter).Decode(&d); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, document.ErrDocumentNotFound
		}
		return nil, document.Transient("find document", err)
	}
	return normalize(&d), nil
}

// findAndModify applies update to the document matching filter and returns
// the post-update state. ok is false when nothing matched.
func (m *MongoRepo) findAndModify(ctx context.Context, filter bson.M, update interface{}) (*document.Document, bool, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var d document.Document
	if err := m.docs.FindOneAndUpdate(ctx, filter, update, opts).Decode(&d); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, false, nil
		}
		if mongo.IsDuplicateKeyError(err) {
			return nil, false, document.ErrShareTokenTaken
		}
		return nil, false, document.Transient("update document", err)
	}
	return normalize(&d), true, nil
}

func (m *MongoRepo) Update(ctx context.Context, id, content, editorID string) (*document.Document, error) {
	now := m.now()
	update := bson.M{
		"$set":  bson.M{"content": content, "updatedAt": now},
		"$push": bson.M{"versions": document.Version{Content: content, EditedBy: editorID, Timestamp: now}},
	}
	d, ok, err := m.findAndModify(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, document.ErrDocumentNotFound
	}
	return d, nil
}

func (m *MongoRepo) Revert(ctx context.Context, id string, versionIndex int) (*document.Document, error) {
	if versionIndex < 0 {
		return nil, m.missOr(ctx, id, document.ErrVersionOutOfRange)
	}
	filter := bson.M{"_id": id, fmt.Sprintf("versions.%d", versionIndex): bson.M{"$exists": true}}
	// pipeline update so the snapshot is read and applied in one step
	update := mongo.Pipeline{{{Key: "$set", Value: bson.D{
		{Key: "content", Value: bson.D{{Key: "$arrayElemAt", Value: bson.A{"$versions.content", versionIndex}}}},
		{Key: "updatedAt", Value: m.now()},
	}}}}
	d, ok, err := m.findAndModify(ctx, filter, update)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, m.missOr(ctx, id, document.ErrVersionOutOfRange)
	}
	return d, nil
}

func (m *MongoRepo) AddCollaborator(ctx context.Context, id, userID string) (*document.Document, error) {
	filter := bson.M{"_id": id, "ownerId": bson.M{"$ne": userID}, "collaborators": bson.M{"$ne": userID}}
	update := bson.M{"$push": bson.M{"collaborators": userID}, "$set": bson.M{"updatedAt": m.now()}}
	d, ok, err := m.findAndModify(ctx, filter, update)
	if err != nil {
		return nil, err
	}
	if ok {
		return d, nil
	}
	cur, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if cur.OwnerID == userID && !cur.IsCollaborator(userID) {
		return nil, document.ErrOwnerCollaborator
	}
	return nil, document.ErrAlreadyCollaborator
}

func (m *MongoRepo) RemoveCollaborator(ctx context.Context, id, userID string) (*document.Document, error) {
	filter := bson.M{"_id": id, "collaborators": userID}
	update := bson.M{"$pull": bson.M{"collaborators": userID}, "$set": bson.M{"updatedAt": m.now()}}
	d, ok, err := m.findAndModify(ctx, filter, update)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, m.missOr(ctx, id, document.ErrNotCollaborator)
	}
	return d, nil
}

func (m *MongoRepo) SetShareToken(ctx context.Context, id, token string) (*document.Document, error) {
	update := bson.M{"$set": bson.M{"shareToken": token, "updatedAt": m.now()}}
	if token == "" {
		update = bson.M{"$unset": bson.M{"shareToken": ""}, "$set": bson.M{"updatedAt": m.now()}}
	}
	d, ok, err := m.findAndModify(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, document.ErrDocumentNotFound
	}
	return d, nil
}

func (m *MongoRepo) ListForUser(ctx context.Context, userID string) ([]*document.Document, error) {
	filter := bson.M{"$or": bson.A{bson.M{"ownerId": userID}, bson.M{"collaborators": userID}}}
	cur, err := m.docs.Find(ctx, filter)
	if err != nil {
		return nil, document.Transient("list documents", err)
	}
	defer cur.Close(ctx)
	out := []*document.Document{}
	for cur.Next(ctx) {
		var d document.Document
		if err := cur.Decode(&d); err != nil {
			return nil, document.Transient("decode document", err)
		}
		out = append(out, normalize(&d))
	}
	if err := cur.Err(); err != nil {
		return nil, document.Transient("list documents", err)
	}
	return out, nil
}

// AppendChatMessage numbers each message from a counter kept on the
// document, so history order does not depend on timestamp resolution.
func (m *MongoRepo) AppendChatMessage(ctx context.Context, documentID, authorID, text string) (*document.ChatMessage, error) {
	seq, err := m.nextChatSeq(ctx, documentID)
	if err != nil {
		return nil, err
	}
	msg := &document.ChatMessage{
		ID:         uuid.NewString(),
		DocumentID: documentID,
		User:       authorID,
		Message:    text,
		Timestamp:  m.now(),
		Seq:        seq,
	}
	if _, err := m.messages.InsertOne(ctx, msg); err != nil {
		return nil, document.Transient("insert chat message", err)
	}
	return msg, nil
}

func (m *MongoRepo) nextChatSeq(ctx context.Context, documentID string) (int64, error) {
	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetProjection(bson.M{"chatSeq": 1})
	var counter struct {
		Seq int64 `bson:"chatSeq"`
	}
	err := m.docs.FindOneAndUpdate(ctx, bson.M{"_id": documentID}, bson.M{"$inc": bson.M{"chatSeq": 1}}, opts).Decode(&counter)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, document.ErrDocumentNotFound
	}
	if err != nil {
		return 0, document.Transient("number chat message", err)
	}
	return counter.Seq, nil
}

func (m *MongoRepo) ListChatMessages(ctx context.Context, documentID string) ([]*document.ChatMessage, error) {
	opts := options.Find().SetSort(bson.D{{Key: "seq", Value: 1}, {Key: "timestamp", Value: 1}})
	cur, err := m.messages.Find(ctx, bson.M{"documentId": documentID}, opts)
	if err != nil {
		return nil, document.Transient("list chat messages", err)
	}
	defer cur.Close(ctx)
	out := []*document.ChatMessage{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, document.Transient("decode chat messages", err)
	}
	return out, nil
}

// missOr distinguishes a missing document from a failed precondition.
func (m *MongoRepo) missOr(ctx context.Context, id string, precondition error) error {
	n, err := m.docs.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return document.Transient("count documents", err)
	}
	if n == 0 {
		return document.ErrDocumentNotFound
	}
	return precondition
}

func normalize(d *document.Document) *document.Document {
	if d.Collaborators == nil {
		d.Collaborators = []string{}
	}
	if d.Versions == nil {
		d.Versions = []document.Version{}
	}
	return d
}
