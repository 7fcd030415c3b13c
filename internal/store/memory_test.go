package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neftie/neftie/backend/internal/models"
)

func TestMemoryStoreUsers(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	alice := &models.User{Username: "alice", Email: "alice@x.com", Password: "hash"}
	require.NoError(t, s.CreateUser(ctx, alice))
	assert.NotEmpty(t, alice.ID)
	assert.False(t, alice.CreatedAt.IsZero())

	t.Run("enforces unique username and email", func(t *testing.T) {
		err := s.CreateUser(ctx, &models.User{Username: "alice", Email: "other@x.com"})
		assert.ErrorIs(t, err, ErrDuplicate)

		err = s.CreateUser(ctx, &models.User{Username: "other", Email: "ALICE@x.com"})
		assert.ErrorIs(t, err, ErrDuplicate)
	})

	t.Run("lookups", func(t *testing.T) {
		u, err := s.GetUserByEmail(ctx, "alice@x.com")
		require.NoError(t, err)
		assert.Equal(t, alice.ID, u.ID)

		u, err = s.GetUserByUsername(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, "hash", u.Password)

		_, err = s.GetUserByID(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("post refs behave as a set", func(t *testing.T) {
		require.NoError(t, s.AddPostRef(ctx, alice.ID, "p1"))
		require.NoError(t, s.AddPostRef(ctx, alice.ID, "p1"))
		require.NoError(t, s.AddPostRef(ctx, alice.ID, "p2"))

		u, err := s.GetUserByID(ctx, alice.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{"p1", "p2"}, u.Posts)

		require.NoError(t, s.RemovePostRefs(ctx, alice.ID, "p1", "nope"))
		u, err = s.GetUserByID(ctx, alice.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{"p2"}, u.Posts)

		assert.ErrorIs(t, s.AddPostRef(ctx, "missing", "p1"), ErrNotFound)
	})

	t.Run("returned records are copies", func(t *testing.T) {
		u, err := s.GetUserByID(ctx, alice.ID)
		require.NoError(t, err)
		u.Posts = append(u.Posts, "tampered")
		u.Password = "tampered"

		again, err := s.GetUserByID(ctx, alice.ID)
		require.NoError(t, err)
		assert.NotContains(t, again.Posts, "tampered")
		assert.Equal(t, "hash", again.Password)
	})
}

func TestMemoryStorePosts(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	first := &models.Post{Message: "first", Creator: "alice"}
	second := &models.Post{Message: "second", Creator: "bob"}
	require.NoError(t, s.CreatePost(ctx, first))
	require.NoError(t, s.CreatePost(ctx, second))

	t.Run("lists newest first and filters by creator", func(t *testing.T) {
		all, err := s.ListPosts(ctx, "")
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, "second", all[0].Message)

		mine, err := s.ListPosts(ctx, "alice")
		require.NoError(t, err)
		require.Len(t, mine, 1)
		assert.Equal(t, first.ID, mine[0].ID)
	})

	t.Run("comments", func(t *testing.T) {
		c := &models.Comment{CommentText: "nice", CommentAuthor: "bob"}
		p, err := s.AddComment(ctx, first.ID, c)
		require.NoError(t, err)
		require.Len(t, p.Comments, 1)
		assert.NotEmpty(t, c.ID)

		p, err = s.RemoveComment(ctx, first.ID, c.ID, "alice")
		require.NoError(t, err)
		assert.Len(t, p.Comments, 1, "only the author removes a comment")

		p, err = s.RemoveComment(ctx, first.ID, c.ID, "bob")
		require.NoError(t, err)
		assert.Empty(t, p.Comments)

		_, err = s.AddComment(ctx, "missing", &models.Comment{CommentText: "x"})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("delete requires the creator", func(t *testing.T) {
		_, err := s.DeletePost(ctx, second.ID, "alice")
		assert.ErrorIs(t, err, ErrNotFound)

		deleted, err := s.DeletePost(ctx, second.ID, "bob")
		require.NoError(t, err)
		assert.Equal(t, second.ID, deleted.ID)

		got, err := s.GetPosts(ctx, []string{first.ID, second.ID})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, first.ID, got[0].ID)
	})

	t.Run("get posts keeps reference order", func(t *testing.T) {
		third := &models.Post{Message: "third", Creator: "alice"}
		require.NoError(t, s.CreatePost(ctx, third))

		got, err := s.GetPosts(ctx, []string{third.ID, "missing", first.ID})
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, third.ID, got[0].ID)
		assert.Equal(t, first.ID, got[1].ID)

		got, err = s.GetPosts(ctx, []string{first.ID, third.ID})
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, first.ID, got[0].ID)
		assert.Equal(t, third.ID, got[1].ID)
	})
}
