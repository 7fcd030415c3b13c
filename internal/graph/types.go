package graph

import (
	"time"

	"github.com/graphql-go/graphql"

	"github.com/neftie/neftie/backend/internal/auth"
	"github.com/neftie/neftie/backend/internal/models"
)

func asUser(src any) *models.User {
	switch v := src.(type) {
	case *models.User:
		return v
	case models.User:
		return &v
	}
	return nil
}

func asPost(src any) *models.Post {
	switch v := src.(type) {
	case *models.Post:
		return v
	case models.Post:
		return &v
	}
	return nil
}

func asComment(src any) *models.Comment {
	switch v := src.(type) {
	case *models.Comment:
		return v
	case models.Comment:
		return &v
	}
	return nil
}

func timestamp(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func optional(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func field[T any](typ graphql.Output, cast func(any) *T, get func(*T) any) *graphql.Field {
	return &graphql.Field{
		Type: typ,
		Resolve: func(p graphql.ResolveParams) (any, error) {
			v := cast(p.Source)
			if v == nil {
				return nil, nil
			}
			return get(v), nil
		},
	}
}

var commentType = graphql.NewObject(graphql.ObjectConfig{
	Name: "Comment",
	Fields: graphql.Fields{
		"_id":           field(graphql.ID, asComment, func(c *models.Comment) any { return c.ID }),
		"commentText":   field(graphql.String, asComment, func(c *models.Comment) any { return c.CommentText }),
		"commentAuthor": field(graphql.String, asComment, func(c *models.Comment) any { return c.CommentAuthor }),
		"createdAt":     field(graphql.String, asComment, func(c *models.Comment) any { return timestamp(c.CreatedAt) }),
	},
})

var postType = graphql.NewObject(graphql.ObjectConfig{
	Name: "Post",
	Fields: graphql.Fields{
		"_id":          field(graphql.ID, asPost, func(p *models.Post) any { return p.ID }),
		"message":      field(graphql.String, asPost, func(p *models.Post) any { return p.Message }),
		"creator":      field(graphql.String, asPost, func(p *models.Post) any { return p.Creator }),
		"selectedFile": field(graphql.String, asPost, func(p *models.Post) any { return optional(p.SelectedFile) }),
		"createdAt":    field(graphql.String, asPost, func(p *models.Post) any { return timestamp(p.CreatedAt) }),
		"comments": field(graphql.NewList(commentType), asPost, func(p *models.Post) any {
			if p.Comments == nil {
				return []models.Comment{}
			}
			return p.Comments
		}),
		"commentCount": field(graphql.Int, asPost, func(p *models.Post) any { return len(p.Comments) }),
	},
})

// newUserType builds User with its posts field resolved through r.
func newUserType(r *Resolver) *graphql.Object {
	return graphql.NewObject(graphql.ObjectConfig{
		Name: "User",
		Fields: graphql.Fields{
			"_id":       field(graphql.ID, asUser, func(u *models.User) any { return u.ID }),
			"username":  field(graphql.String, asUser, func(u *models.User) any { return u.Username }),
			"email":     field(graphql.String, asUser, func(u *models.User) any { return u.Email }),
			"firstName": field(graphql.String, asUser, func(u *models.User) any { return optional(u.FirstName) }),
			"lastName":  field(graphql.String, asUser, func(u *models.User) any { return optional(u.LastName) }),
			"createdAt": field(graphql.String, asUser, func(u *models.User) any { return timestamp(u.CreatedAt) }),
			"posts": {
				Type: graphql.NewList(postType),
				Resolve: r.resolve("User.posts", func(p graphql.ResolveParams) (any, error) {
					u := asUser(p.Source)
					if u == nil {
						return nil, nil
					}
					return r.posts.ByIDs(p.Context, u.Posts)
				}),
			},
		},
	})
}

func newAuthType(userType *graphql.Object) *graphql.Object {
	return graphql.NewObject(graphql.ObjectConfig{
		Name: "Auth",
		Fields: graphql.Fields{
			"token": field(graphql.NewNonNull(graphql.ID), asPayload, func(a *auth.Payload) any { return a.Token }),
			"user":  field(userType, asPayload, func(a *auth.Payload) any { return a.User }),
		},
	})
}

func asPayload(src any) *auth.Payload {
	a, _ := src.(*auth.Payload)
	return a
}
