package store

import (
	"context"
	"errors"
	"time"

	"github.com/samber/oops"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/neftie/neftie/backend/internal/models"
)

type commentDoc struct {
	ID            primitive.ObjectID `bson:"_id"`
	CommentText   string             `bson:"commentText"`
	CommentAuthor string             `bson:"commentAuthor"`
	CreatedAt     time.Time          `bson:"createdAt"`
}

type postDoc struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	Message      string             `bson:"message"`
	Creator      string             `bson:"creator"`
	SelectedFile string             `bson:"selectedFile,omitempty"`
	Comments     []commentDoc       `bson:"comments"`
	CreatedAt    time.Time          `bson:"createdAt"`
}

func (d *postDoc) model() *models.Post {
	p := &models.Post{
		ID:           d.ID.Hex(),
		Message:      d.Message,
		Creator:      d.Creator,
		SelectedFile: d.SelectedFile,
		Comments:     make([]models.Comment, 0, len(d.Comments)),
		CreatedAt:    d.CreatedAt,
	}
	for _, c := range d.Comments {
		p.Comments = append(p.Comments, models.Comment{
			ID:            c.ID.Hex(),
			CommentText:   c.CommentText,
			CommentAuthor: c.CommentAuthor,
			CreatedAt:     c.CreatedAt,
		})
	}
	return p
}

// MongoPostStore handles post documents and their embedded comments.
type MongoPostStore struct {
	col *mongo.Collection
}

func NewMongoPostStore(db *mongo.Database) *MongoPostStore {
	return &MongoPostStore{col: db.Collection("posts")}
}

// EnsureIndexes creates the creator/createdAt listing index.
func (s *MongoPostStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "creator", Value: 1}, {Key: "createdAt", Value: -1}},
	})
	if err != nil {
		return oops.In("mongo").With("collection", "posts").Wrapf(err, "create indexes")
	}
	return nil
}

func parseObjectID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, ErrInvalidID
	}
	return oid, nil
}

func parseObjectIDs(ids []string) []primitive.ObjectID {
	oids := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		if oid, err := primitive.ObjectIDFromHex(id); err == nil {
			oids = append(oids, oid)
		}
	}
	return oids
}

func (s *MongoPostStore) CreatePost(ctx context.Context, p *models.Post) error {
	doc := postDoc{
		ID:           primitive.NewObjectID(),
		Message:      p.Message,
		Creator:      p.Creator,
		SelectedFile: p.SelectedFile,
		Comments:     []commentDoc{},
		CreatedAt:    time.Now().UTC(),
	}
	if _, err := s.col.InsertOne(ctx, doc); err != nil {
		return oops.In("mongo").With("collection", "posts").Wrapf(err, "insert post")
	}
	*p = *doc.model()
	return nil
}

func (s *MongoPostStore) GetPost(ctx context.Context, id string) (*models.Post, error) {
	oid, err := parseObjectID(id)
	if err != nil {
		return nil, ErrNotFound
	}
	var doc postDoc
	if err := s.col.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		return nil, notFoundOr(err, "find post")
	}
	return doc.model(), nil
}

func (s *MongoPostStore) GetPosts(ctx context.Context, ids []string) ([]models.Post, error) {
	oids := parseObjectIDs(ids)
	if len(oids) == 0 {
		return []models.Post{}, nil
	}
	found, err := s.find(ctx, bson.M{"_id": bson.M{"$in": oids}}, options.Find())
	if err != nil {
		return nil, err
	}

	// $in returns natural order; callers get the order of ids.
	byID := make(map[string]models.Post, len(found))
	for _, p := range found {
		byID[p.ID] = p
	}
	posts := make([]models.Post, 0, len(found))
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			posts = append(posts, p)
			delete(byID, id)
		}
	}
	return posts, nil
}

func (s *MongoPostStore) ListPosts(ctx context.Context, creator string) ([]models.Post, error) {
	filter := bson.M{}
	if creator != "" {
		filter["creator"] = creator
	}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	return s.find(ctx, filter, opts)
}

func (s *MongoPostStore) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]models.Post, error) {
	cur, err := s.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, oops.In("mongo").With("collection", "posts").Wrapf(err, "find posts")
	}
	defer cur.Close(ctx)

	var docs []postDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, oops.In("mongo").With("collection", "posts").Wrapf(err, "decode posts")
	}
	posts := make([]models.Post, 0, len(docs))
	for i := range docs {
		posts = append(posts, *docs[i].model())
	}
	return posts, nil
}

// DeletePost removes the post only when creator matches.
func (s *MongoPostStore) DeletePost(ctx context.Context, id, creator string) (*models.Post, error) {
	oid, err := parseObjectID(id)
	if err != nil {
		return nil, ErrNotFound
	}
	var doc postDoc
	err = s.col.FindOneAndDelete(ctx, bson.M{"_id": oid, "creator": creator}).Decode(&doc)
	if err != nil {
		return nil, notFoundOr(err, "delete post")
	}
	return doc.model(), nil
}

func (s *MongoPostStore) AddComment(ctx context.Context, postID string, c *models.Comment) (*models.Post, error) {
	oid, err := parseObjectID(postID)
	if err != nil {
		return nil, ErrNotFound
	}
	comment := commentDoc{
		ID:            primitive.NewObjectID(),
		CommentText:   c.CommentText,
		CommentAuthor: c.CommentAuthor,
		CreatedAt:     time.Now().UTC(),
	}
	update := bson.M{"$addToSet": bson.M{"comments": comment}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc postDoc
	if err := s.col.FindOneAndUpdate(ctx, bson.M{"_id": oid}, update, opts).Decode(&doc); err != nil {
		return nil, notFoundOr(err, "add comment")
	}
	c.ID = comment.ID.Hex()
	c.CreatedAt = comment.CreatedAt
	return doc.model(), nil
}

// RemoveComment pulls the comment only when author matches and returns the
// post either way.
func (s *MongoPostStore) RemoveComment(ctx context.Context, postID, commentID, author string) (*models.Post, error) {
	oid, err := parseObjectID(postID)
	if err != nil {
		return nil, ErrNotFound
	}
	cid, err := parseObjectID(commentID)
	if err != nil {
		return s.GetPost(ctx, postID)
	}
	update := bson.M{"$pull": bson.M{"comments": bson.M{"_id": cid, "commentAuthor": author}}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc postDoc
	if err := s.col.FindOneAndUpdate(ctx, bson.M{"_id": oid}, update, opts).Decode(&doc); err != nil {
		return nil, notFoundOr(err, "remove comment")
	}
	return doc.model(), nil
}

func notFoundOr(err error, op string) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	return oops.In("mongo").Wrapf(err, "%s", op)
}
