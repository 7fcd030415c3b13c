package store

import (
	"context"

	"github.com/samber/oops"
	"go.mongodb.org/mongo-driver/mongo"
)

// MongoTransactor runs a unit of work inside a multi-document transaction.
// It needs a replica set or sharded cluster.
type MongoTransactor struct {
	client *mongo.Client
}

func NewMongoTransactor(client *mongo.Client) *MongoTransactor {
	return &MongoTransactor{client: client}
}

// WithTransaction calls fn with a session context; every store call made
// with that context joins the transaction.
func (t *MongoTransactor) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	sess, err := t.client.StartSession()
	if err != nil {
		return oops.In("mongo").Wrapf(err, "start session")
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	return err
}

// DirectTransactor runs fn without a transaction: each write inside it
// commits on its own.
type DirectTransactor struct{}

func (DirectTransactor) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
