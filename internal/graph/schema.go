// Package graph exposes the account and post services as a GraphQL schema.
package graph

import (
	"context"
	"errors"
	"log/slog"

	"github.com/graphql-go/graphql"

	"github.com/neftie/neftie/backend/internal/apperr"
	"github.com/neftie/neftie/backend/internal/auth"
	"github.com/neftie/neftie/backend/internal/metrics"
	"github.com/neftie/neftie/backend/internal/models"
	"github.com/neftie/neftie/backend/internal/posts"
)

// Resolver holds the services the schema's resolvers compose.
type Resolver struct {
	accounts *auth.Service
	posts    *posts.Service
	log      *slog.Logger
}

// NewSchema builds the executable schema.
func NewSchema(accounts *auth.Service, postSvc *posts.Service, log *slog.Logger) (graphql.Schema, error) {
	r := &Resolver{accounts: accounts, posts: postSvc, log: log}
	userType := newUserType(r)
	authType := newAuthType(userType)

	query := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"users": {
				Type: graphql.NewList(userType),
				Resolve: r.resolve("users", func(p graphql.ResolveParams) (any, error) {
					return r.accounts.Users(p.Context)
				}),
			},
			"user": {
				Type: userType,
				Args: graphql.FieldConfigArgument{
					"username": {Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: r.resolve("user", func(p graphql.ResolveParams) (any, error) {
					return nilable(r.accounts.User(p.Context, str(p, "username")))
				}),
			},
			"posts": {
				Type: graphql.NewList(postType),
				Args: graphql.FieldConfigArgument{
					"username": {Type: graphql.String},
				},
				Resolve: r.resolve("posts", func(p graphql.ResolveParams) (any, error) {
					return r.posts.List(p.Context, str(p, "username"))
				}),
			},
			"post": {
				Type: postType,
				Args: graphql.FieldConfigArgument{
					"postId": {Type: graphql.NewNonNull(graphql.ID)},
				},
				Resolve: r.resolve("post", func(p graphql.ResolveParams) (any, error) {
					return nilable(r.posts.Get(p.Context, str(p, "postId")))
				}),
			},
			"me": {
				Type: userType,
				Resolve: r.gated("me", func(p graphql.ResolveParams, id auth.Identity) (any, error) {
					return r.accounts.Me(p.Context, id)
				}),
			},
		},
	})

	mutation := graphql.NewObject(graphql.ObjectConfig{
		Name: "Mutation",
		Fields: graphql.Fields{
			"addUser": {
				Type: authType,
				Args: graphql.FieldConfigArgument{
					"username":  {Type: graphql.String},
					"firstName": {Type: graphql.String},
					"lastName":  {Type: graphql.String},
					"email":     {Type: graphql.NewNonNull(graphql.String)},
					"password":  {Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: r.resolve("addUser", func(p graphql.ResolveParams) (any, error) {
					return r.accounts.Register(p.Context, models.RegisterInput{
						Username:  str(p, "username"),
						FirstName: str(p, "firstName"),
						LastName:  str(p, "lastName"),
						Email:     str(p, "email"),
						Password:  str(p, "password"),
					})
				}),
			},
			"login": {
				Type: authType,
				Args: graphql.FieldConfigArgument{
					"email":    {Type: graphql.NewNonNull(graphql.String)},
					"password": {Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: r.resolve("login", func(p graphql.ResolveParams) (any, error) {
					return r.accounts.Login(p.Context, models.LoginInput{
						Email:    str(p, "email"),
						Password: str(p, "password"),
					})
				}),
			},
			"addPostMessage": {
				Type: postType,
				Args: graphql.FieldConfigArgument{
					"message":      {Type: graphql.NewNonNull(graphql.String)},
					"selectedFile": {Type: graphql.String},
				},
				Resolve: r.gated("addPostMessage", func(p graphql.ResolveParams, id auth.Identity) (any, error) {
					return r.posts.CreatePost(p.Context, id, str(p, "message"), str(p, "selectedFile"))
				}),
			},
			"addComment": {
				Type: postType,
				Args: graphql.FieldConfigArgument{
					"postId":      {Type: graphql.NewNonNull(graphql.ID)},
					"commentText": {Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: r.gated("addComment", func(p graphql.ResolveParams, id auth.Identity) (any, error) {
					return r.posts.AddComment(p.Context, id, str(p, "postId"), str(p, "commentText"))
				}),
			},
			"removePostMessage": {
				Type: postType,
				Args: graphql.FieldConfigArgument{
					"postId": {Type: graphql.NewNonNull(graphql.ID)},
				},
				Resolve: r.gated("removePostMessage", func(p graphql.ResolveParams, id auth.Identity) (any, error) {
					return r.posts.RemovePost(p.Context, id, str(p, "postId"))
				}),
			},
			"removeComment": {
				Type: postType,
				Args: graphql.FieldConfigArgument{
					"postId":    {Type: graphql.NewNonNull(graphql.ID)},
					"commentId": {Type: graphql.NewNonNull(graphql.ID)},
				},
				Resolve: r.gated("removeComment", func(p graphql.ResolveParams, id auth.Identity) (any, error) {
					return r.posts.RemoveComment(p.Context, id, str(p, "postId"), str(p, "commentId"))
				}),
			},
			"changePassword": {
				Type: authType,
				Args: graphql.FieldConfigArgument{
					"currentPassword": {Type: graphql.NewNonNull(graphql.String)},
					"newPassword":     {Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: r.gated("changePassword", func(p graphql.ResolveParams, id auth.Identity) (any, error) {
					return r.accounts.ChangePassword(p.Context, id, str(p, "currentPassword"), str(p, "newPassword"))
				}),
			},
			"updateProfile": {
				Type: userType,
				Args: graphql.FieldConfigArgument{
					"firstName": {Type: graphql.String},
					"lastName":  {Type: graphql.String},
				},
				Resolve: r.gated("updateProfile", func(p graphql.ResolveParams, id auth.Identity) (any, error) {
					return r.accounts.UpdateProfile(p.Context, id, optStr(p, "firstName"), optStr(p, "lastName"))
				}),
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{Query: query, Mutation: mutation})
}

// resolve maps service errors onto what the client sees. Coded errors keep
// their code and message; anything else is logged and reported as internal.
func (r *Resolver) resolve(op string, fn graphql.FieldResolveFn) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (any, error) {
		out, err := fn(p)
		if err == nil {
			return out, nil
		}
		if e, ok := apperr.As(err); ok && !errors.Is(e, apperr.ErrInternal) {
			if cause := e.Unwrap(); cause != nil {
				r.log.DebugContext(p.Context, "operation rejected", "operation", op, "code", e.Code(), "cause", cause)
			}
			return nil, apperr.New(e.Code(), e.Message())
		}
		r.log.ErrorContext(p.Context, "operation failed", "operation", op, "error", err)
		return nil, apperr.ErrInternal
	}
}

// gated wraps a resolver that needs a verified identity. fn never runs for
// an anonymous request.
func (r *Resolver) gated(op string, fn func(p graphql.ResolveParams, id auth.Identity) (any, error)) graphql.FieldResolveFn {
	return r.resolve(op, func(p graphql.ResolveParams) (any, error) {
		admitted := false
		out, err := auth.Gate(p.Context, func(ctx context.Context, id auth.Identity) (any, error) {
			admitted = true
			p.Context = ctx
			return fn(p, id)
		})
		if !admitted {
			metrics.GateRejections.WithLabelValues(op).Inc()
		}
		return out, err
	})
}

// nilable turns a typed nil pointer into an untyped nil so the field
// resolves to null.
func nilable[T any](v *T, err error) (any, error) {
	if err != nil || v == nil {
		return nil, err
	}
	return v, nil
}

func str(p graphql.ResolveParams, name string) string {
	s, _ := p.Args[name].(string)
	return s
}

func optStr(p graphql.ResolveParams, name string) *string {
	s, ok := p.Args[name].(string)
	if !ok {
		return nil
	}
	return &s
}
