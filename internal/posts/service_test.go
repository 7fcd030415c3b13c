package posts_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/neftie/neftie/backend/internal/apperr"
	"github.com/neftie/neftie/backend/internal/auth"
	"github.com/neftie/neftie/backend/internal/logging"
	"github.com/neftie/neftie/backend/internal/models"
	"github.com/neftie/neftie/backend/internal/posts"
	"github.com/neftie/neftie/backend/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// countingTx records how many units of work ran.
type countingTx struct{ calls int }

func (t *countingTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	t.calls++
	return fn(ctx)
}

// flakyOwners fails the next AddPostRef call.
type flakyOwners struct {
	*store.MemoryStore
	failAdd bool
}

func (o *flakyOwners) AddPostRef(ctx context.Context, userID, postID string) error {
	if o.failAdd {
		o.failAdd = false
		return errors.New("connection reset")
	}
	return o.MemoryStore.AddPostRef(ctx, userID, postID)
}

func newUser(t *testing.T, mem *store.MemoryStore, username string) auth.Identity {
	t.Helper()
	u := &models.User{Username: username, Email: username + "@x.com", Password: "hash"}
	require.NoError(t, mem.CreateUser(context.Background(), u))
	return auth.Identity{UserID: u.ID, Username: u.Username, Email: u.Email}
}

func setup(t *testing.T) (*posts.Service, *store.MemoryStore, *countingTx) {
	t.Helper()
	mem := store.NewMemoryStore()
	tx := &countingTx{}
	return posts.NewService(mem, mem, tx, logging.Discard()), mem, tx
}

func TestCreatePost(t *testing.T) {
	ctx := context.Background()
	svc, mem, tx := setup(t)
	alice := newUser(t, mem, "alice")

	p, err := svc.CreatePost(ctx, alice, "  hello  ", "alice/cat.png")
	require.NoError(t, err)
	assert.Equal(t, "hello", p.Message)
	assert.Equal(t, "alice", p.Creator)
	assert.Equal(t, "alice/cat.png", p.SelectedFile)
	assert.Empty(t, p.Comments)
	assert.Equal(t, 1, tx.calls)

	u, err := mem.GetUserByID(ctx, alice.UserID)
	require.NoError(t, err)
	assert.Equal(t, []string{p.ID}, u.Posts)

	list, err := svc.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, p.ID, list[0].ID)

	t.Run("empty message", func(t *testing.T) {
		_, err := svc.CreatePost(ctx, alice, "   ", "")
		assert.ErrorIs(t, err, apperr.ErrBadUserInput)
	})

	t.Run("account gone", func(t *testing.T) {
		before, err := svc.List(ctx, "")
		require.NoError(t, err)

		for _, uid := range []string{"missing", "000000000000000000000000"} {
			_, err := svc.CreatePost(ctx, auth.Identity{UserID: uid, Username: "ghost"}, "hi", "")
			assert.ErrorIs(t, err, apperr.ErrNotAuthenticated)
		}

		after, err := svc.List(ctx, "")
		require.NoError(t, err)
		assert.Len(t, after, len(before), "a rejected create leaves no post behind")
		ghost, err := svc.List(ctx, "ghost")
		require.NoError(t, err)
		assert.Empty(t, ghost)
	})
}

func TestListNewestFirst(t *testing.T) {
	ctx := context.Background()
	svc, mem, _ := setup(t)
	alice := newUser(t, mem, "alice")
	bob := newUser(t, mem, "bob")

	_, err := svc.CreatePost(ctx, alice, "first", "")
	require.NoError(t, err)
	_, err = svc.CreatePost(ctx, bob, "second", "")
	require.NoError(t, err)
	_, err = svc.CreatePost(ctx, alice, "third", "")
	require.NoError(t, err)

	all, err := svc.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "third", all[0].Message)
	assert.Equal(t, "first", all[2].Message)

	mine, err := svc.List(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, mine, 2)
	for _, p := range mine {
		assert.Equal(t, "alice", p.Creator)
	}
}

func TestRemovePost(t *testing.T) {
	ctx := context.Background()
	svc, mem, _ := setup(t)
	alice := newUser(t, mem, "alice")
	bob := newUser(t, mem, "bob")

	bobs, err := svc.CreatePost(ctx, bob, "bob's post", "")
	require.NoError(t, err)

	t.Run("someone else's post is not found and remains", func(t *testing.T) {
		_, err := svc.RemovePost(ctx, alice, bobs.ID)
		assert.ErrorIs(t, err, apperr.ErrPostNotFound)

		p, err := svc.Get(ctx, bobs.ID)
		require.NoError(t, err)
		require.NotNil(t, p)
		u, err := mem.GetUserByID(ctx, bob.UserID)
		require.NoError(t, err)
		assert.Contains(t, u.Posts, bobs.ID)
	})

	t.Run("own post is deleted and unlinked", func(t *testing.T) {
		removed, err := svc.RemovePost(ctx, bob, bobs.ID)
		require.NoError(t, err)
		assert.Equal(t, bobs.ID, removed.ID)

		p, err := svc.Get(ctx, bobs.ID)
		require.NoError(t, err)
		assert.Nil(t, p)
		u, err := mem.GetUserByID(ctx, bob.UserID)
		require.NoError(t, err)
		assert.NotContains(t, u.Posts, bobs.ID)
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := svc.RemovePost(ctx, bob, "nope")
		assert.ErrorIs(t, err, apperr.ErrPostNotFound)
	})
}

func TestComments(t *testing.T) {
	ctx := context.Background()
	svc, mem, _ := setup(t)
	alice := newUser(t, mem, "alice")
	bob := newUser(t, mem, "bob")

	p, err := svc.CreatePost(ctx, alice, "hello", "")
	require.NoError(t, err)

	p, err = svc.AddComment(ctx, bob, p.ID, "nice")
	require.NoError(t, err)
	require.Len(t, p.Comments, 1)
	c := p.Comments[0]
	assert.Equal(t, "bob", c.CommentAuthor)
	assert.Equal(t, "nice", c.CommentText)
	assert.NotEmpty(t, c.ID)

	p, err = svc.AddComment(ctx, bob, p.ID, "nice")
	require.NoError(t, err)
	require.Len(t, p.Comments, 2)
	assert.NotEqual(t, p.Comments[0].ID, p.Comments[1].ID)

	t.Run("missing post", func(t *testing.T) {
		_, err := svc.AddComment(ctx, bob, "nope", "hi")
		assert.ErrorIs(t, err, apperr.ErrPostNotFound)
		_, err = svc.RemoveComment(ctx, bob, "nope", c.ID)
		assert.ErrorIs(t, err, apperr.ErrPostNotFound)
	})

	t.Run("empty comment", func(t *testing.T) {
		_, err := svc.AddComment(ctx, bob, p.ID, " ")
		assert.ErrorIs(t, err, apperr.ErrBadUserInput)
	})

	t.Run("only the author can remove a comment", func(t *testing.T) {
		got, err := svc.RemoveComment(ctx, alice, p.ID, c.ID)
		require.NoError(t, err)
		assert.Len(t, got.Comments, 2)

		got, err = svc.RemoveComment(ctx, bob, p.ID, c.ID)
		require.NoError(t, err)
		require.Len(t, got.Comments, 1)
		assert.NotEqual(t, c.ID, got.Comments[0].ID)
	})
}

func TestByIDsSkipsDanglingRefs(t *testing.T) {
	ctx := context.Background()
	svc, mem, _ := setup(t)
	alice := newUser(t, mem, "alice")

	p, err := svc.CreatePost(ctx, alice, "hello", "")
	require.NoError(t, err)

	got, err := svc.ByIDs(ctx, []string{p.ID, "gone"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, p.ID, got[0].ID)

	got, err = svc.ByIDs(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestReconcile(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	owners := &flakyOwners{MemoryStore: mem}
	svc := posts.NewService(mem, owners, store.DirectTransactor{}, logging.Discard())
	alice := newUser(t, mem, "alice")

	// interrupted create: post stored, ref never added
	owners.failAdd = true
	_, err := svc.CreatePost(ctx, alice, "orphan", "")
	require.Error(t, err)

	// interrupted delete: post gone, ref left behind
	require.NoError(t, mem.AddPostRef(ctx, alice.UserID, "deadbeefdeadbeefdeadbeef"))

	res, err := svc.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, posts.ReconcileResult{Pulled: 1, Restored: 1}, res)

	u, err := mem.GetUserByID(ctx, alice.UserID)
	require.NoError(t, err)
	require.Len(t, u.Posts, 1)
	list, err := svc.List(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, list[0].ID, u.Posts[0])

	res, err = svc.Reconcile(ctx)
	require.NoError(t, err)
	assert.Zero(t, res)
}

func TestRunReconciler(t *testing.T) {
	mem := store.NewMemoryStore()
	svc := posts.NewService(mem, mem, nil, logging.Discard())
	alice := newUser(t, mem, "alice")
	require.NoError(t, mem.AddPostRef(context.Background(), alice.UserID, "deadbeefdeadbeefdeadbeef"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		svc.RunReconciler(ctx, 5*time.Millisecond)
	}()

	require.Eventually(t, func() bool {
		u, err := mem.GetUserByID(context.Background(), alice.UserID)
		return err == nil && len(u.Posts) == 0
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reconciler did not stop")
	}
}

func TestRunReconcilerDisabled(t *testing.T) {
	svc, _, _ := setup(t)
	// returns immediately for a zero interval
	svc.RunReconciler(context.Background(), 0)
}
