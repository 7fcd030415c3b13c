package store

import (
	"context"
	"strings"
	"time"

	"github.com/samber/oops"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/neftie/neftie/backend/internal/models"
)

type userDoc struct {
	ID        primitive.ObjectID   `bson:"_id,omitempty"`
	Username  string               `bson:"username"`
	Email     string               `bson:"email"`
	FirstName string               `bson:"firstName,omitempty"`
	LastName  string               `bson:"lastName,omitempty"`
	Password  string               `bson:"password"`
	CreatedAt time.Time            `bson:"createdAt"`
	Posts     []primitive.ObjectID `bson:"posts"`
}

func (d *userDoc) model() *models.User {
	u := &models.User{
		ID:        d.ID.Hex(),
		Username:  d.Username,
		Email:     d.Email,
		FirstName: d.FirstName,
		LastName:  d.LastName,
		Password:  d.Password,
		CreatedAt: d.CreatedAt,
		Posts:     make([]string, 0, len(d.Posts)),
	}
	for _, p := range d.Posts {
		u.Posts = append(u.Posts, p.Hex())
	}
	return u
}

// MongoUserStore is the credential store on MongoDB. Uniqueness of
// username and email is enforced by unique indexes.
type MongoUserStore struct {
	col *mongo.Collection
}

func NewMongoUserStore(db *mongo.Database) *MongoUserStore {
	return &MongoUserStore{col: db.Collection("users")}
}

// EnsureIndexes creates the unique username and email indexes.
func (s *MongoUserStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
	})
	if err != nil {
		return oops.In("mongo").With("collection", "users").Wrapf(err, "create indexes")
	}
	return nil
}

func (s *MongoUserStore) CreateUser(ctx context.Context, u *models.User) error {
	doc := userDoc{
		ID:        primitive.NewObjectID(),
		Username:  u.Username,
		Email:     strings.ToLower(u.Email),
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Password:  u.Password,
		CreatedAt: time.Now().UTC(),
		Posts:     []primitive.ObjectID{},
	}
	if _, err := s.col.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicate
		}
		return oops.In("mongo").With("collection", "users").Wrapf(err, "insert user")
	}
	u.ID = doc.ID.Hex()
	u.Email = doc.Email
	u.CreatedAt = doc.CreatedAt
	u.Posts = []string{}
	return nil
}

// UpdateUser writes the mutable profile fields and the password hash.
func (s *MongoUserStore) UpdateUser(ctx context.Context, u *models.User) error {
	oid, err := parseObjectID(u.ID)
	if err != nil {
		return ErrNotFound
	}
	update := bson.M{"$set": bson.M{
		"firstName": u.FirstName,
		"lastName":  u.LastName,
		"password":  u.Password,
	}}
	res, err := s.col.UpdateOne(ctx, bson.M{"_id": oid}, update)
	if err != nil {
		return oops.In("mongo").With("collection", "users").Wrapf(err, "update user")
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoUserStore) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	oid, err := parseObjectID(id)
	if err != nil {
		return nil, ErrNotFound
	}
	return s.findOne(ctx, bson.M{"_id": oid})
}

func (s *MongoUserStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.findOne(ctx, bson.M{"email": strings.ToLower(email)})
}

func (s *MongoUserStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.findOne(ctx, bson.M{"username": username})
}

func (s *MongoUserStore) findOne(ctx context.Context, filter bson.M) (*models.User, error) {
	var doc userDoc
	if err := s.col.FindOne(ctx, filter).Decode(&doc); err != nil {
		return nil, notFoundOr(err, "find user")
	}
	return doc.model(), nil
}

func (s *MongoUserStore) ListUsers(ctx context.Context) ([]models.User, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})
	cur, err := s.col.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, oops.In("mongo").With("collection", "users").Wrapf(err, "find users")
	}
	defer cur.Close(ctx)

	var docs []userDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, oops.In("mongo").With("collection", "users").Wrapf(err, "decode users")
	}
	users := make([]models.User, 0, len(docs))
	for i := range docs {
		users = append(users, *docs[i].model())
	}
	return users, nil
}

func (s *MongoUserStore) AddPostRef(ctx context.Context, userID, postID string) error {
	uid, err := parseObjectID(userID)
	if err != nil {
		return ErrNotFound
	}
	pid, err := parseObjectID(postID)
	if err != nil {
		return err
	}
	return s.updateRefs(ctx, uid, bson.M{"$addToSet": bson.M{"posts": pid}})
}

func (s *MongoUserStore) RemovePostRefs(ctx context.Context, userID string, postIDs ...string) error {
	uid, err := parseObjectID(userID)
	if err != nil {
		return ErrNotFound
	}
	return s.updateRefs(ctx, uid, bson.M{"$pull": bson.M{"posts": bson.M{"$in": parseObjectIDs(postIDs)}}})
}

func (s *MongoUserStore) updateRefs(ctx context.Context, uid primitive.ObjectID, update bson.M) error {
	res, err := s.col.UpdateOne(ctx, bson.M{"_id": uid}, update)
	if err != nil {
		return oops.In("mongo").With("collection", "users").With("user_id", uid.Hex()).Wrapf(err, "update post refs")
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
