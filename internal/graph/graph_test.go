package graph_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/neftie/neftie/backend/internal/auth"
	"github.com/neftie/neftie/backend/internal/graph"
	"github.com/neftie/neftie/backend/internal/logging"
	"github.com/neftie/neftie/backend/internal/middleware"
	"github.com/neftie/neftie/backend/internal/posts"
	"github.com/neftie/neftie/backend/internal/store"
)

const secret = "test-secret-key-must-be-at-least-32-bytes-long"

type gqlError struct {
	Message    string         `json:"message"`
	Extensions map[string]any `json:"extensions"`
}

type gqlResponse struct {
	Data   map[string]json.RawMessage `json:"data"`
	Errors []gqlError                 `json:"errors"`
}

func (r gqlResponse) code(t *testing.T) string {
	t.Helper()
	require.NotEmpty(t, r.Errors, "expected an error")
	code, _ := r.Errors[0].Extensions["code"].(string)
	return code
}

type env struct {
	srv *httptest.Server
	mem *store.MemoryStore
}

func newEnv(t *testing.T) *env {
	t.Helper()
	log := logging.Discard()
	mem := store.NewMemoryStore()
	tokens := auth.NewTokenIssuer(secret, time.Hour)
	accounts := auth.NewService(mem, auth.NewBcryptHasher(bcrypt.MinCost), tokens, nil, log)
	postSvc := posts.NewService(mem, mem, store.DirectTransactor{}, log)

	schema, err := graph.NewSchema(accounts, postSvc, log)
	require.NoError(t, err)

	h := middleware.Authenticate(tokens, log)(graph.NewHandler(schema, log))
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return &env{srv: srv, mem: mem}
}

func (e *env) do(t *testing.T, token, query string, vars map[string]any) gqlResponse {
	t.Helper()
	body, err := json.Marshal(map[string]any{"query": query, "variables": vars})
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, e.srv.URL, bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out gqlResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func field[T any](t *testing.T, r gqlResponse, name string) T {
	t.Helper()
	require.Empty(t, r.Errors)
	var v T
	require.NoError(t, json.Unmarshal(r.Data[name], &v))
	return v
}

type authResult struct {
	Token string `json:"token"`
	User  struct {
		ID       string `json:"_id"`
		Username string `json:"username"`
	} `json:"user"`
}

type postResult struct {
	ID       string `json:"_id"`
	Message  string `json:"message"`
	Creator  string `json:"creator"`
	Comments []struct {
		ID            string `json:"_id"`
		CommentText   string `json:"commentText"`
		CommentAuthor string `json:"commentAuthor"`
	} `json:"comments"`
}

const (
	addUser = `mutation ($username: String, $email: String!, $password: String!) {
		addUser(username: $username, email: $email, password: $password) { token user { _id username } }
	}`
	login = `mutation ($email: String!, $password: String!) {
		login(email: $email, password: $password) { token user { _id username } }
	}`
	addPost = `mutation ($message: String!) {
		addPostMessage(message: $message) { _id message creator comments { _id } }
	}`
	removePost = `mutation ($postId: ID!) {
		removePostMessage(postId: $postId) { _id message creator }
	}`
	addComment = `mutation ($postId: ID!, $text: String!) {
		addComment(postId: $postId, commentText: $text) { _id comments { _id commentText commentAuthor } }
	}`
	removeComment = `mutation ($postId: ID!, $commentId: ID!) {
		removeComment(postId: $postId, commentId: $commentId) { _id comments { _id commentText commentAuthor } }
	}`
	listPosts = `{ posts { _id message creator } }`
)

func (e *env) register(t *testing.T, username string) authResult {
	t.Helper()
	r := e.do(t, "", addUser, map[string]any{"username": username, "email": username + "@x.com", "password": "pw123"})
	return field[authResult](t, r, "addUser")
}

func (e *env) post(t *testing.T, token, message string) postResult {
	t.Helper()
	r := e.do(t, token, addPost, map[string]any{"message": message})
	return field[postResult](t, r, "addPostMessage")
}

func TestRegisterLoginPost(t *testing.T) {
	e := newEnv(t)

	reg := e.register(t, "alice")
	assert.NotEmpty(t, reg.Token)
	assert.Equal(t, "alice", reg.User.Username)

	r := e.do(t, "", login, map[string]any{"email": "alice@x.com", "password": "pw123"})
	got := field[authResult](t, r, "login")
	assert.Equal(t, reg.User.ID, got.User.ID)

	p := e.post(t, got.Token, "hello")
	assert.Equal(t, "alice", p.Creator)
	assert.Equal(t, "hello", p.Message)

	list := field[[]postResult](t, e.do(t, "", listPosts, nil), "posts")
	require.Len(t, list, 1)
	assert.Equal(t, p.ID, list[0].ID)
	assert.Equal(t, "alice", list[0].Creator)

	me := field[struct {
		Username string `json:"username"`
		Posts    []struct {
			ID string `json:"_id"`
		} `json:"posts"`
	}](t, e.do(t, got.Token, `{ me { username posts { _id } } }`, nil), "me")
	assert.Equal(t, "alice", me.Username)
	require.Len(t, me.Posts, 1)
	assert.Equal(t, p.ID, me.Posts[0].ID)
}

func TestLoginErrors(t *testing.T) {
	e := newEnv(t)
	e.register(t, "alice")

	r := e.do(t, "", login, map[string]any{"email": "nomatch@x.com", "password": "pw123"})
	assert.Equal(t, "UNKNOWN_IDENTITY", r.code(t))
	assert.Equal(t, "No user found with this email address", r.Errors[0].Message)

	r = e.do(t, "", login, map[string]any{"email": "alice@x.com", "password": "wrong"})
	assert.Equal(t, "INVALID_CREDENTIALS", r.code(t))
	assert.Equal(t, "Incorrect credentials", r.Errors[0].Message)
}

func TestDuplicateRegistration(t *testing.T) {
	e := newEnv(t)
	e.register(t, "alice")

	r := e.do(t, "", addUser, map[string]any{"username": "alice", "email": "another@x.com", "password": "pw"})
	assert.Equal(t, "DUPLICATE_IDENTITY", r.code(t))
	assert.NotContains(t, r.Errors[0].Message, "duplicate key")

	r = e.do(t, "", addUser, map[string]any{"username": "bob", "email": "not-an-email", "password": "pw"})
	assert.Equal(t, "BAD_USER_INPUT", r.code(t))
}

func TestGatedOperationsRejectAnonymous(t *testing.T) {
	e := newEnv(t)
	bob := e.register(t, "bob")
	p := e.post(t, bob.Token, "bob's post")

	ops := []struct {
		name  string
		query string
		vars  map[string]any
	}{
		{"me", `{ me { username } }`, nil},
		{"addPostMessage", addPost, map[string]any{"message": "sneaky"}},
		{"addComment", addComment, map[string]any{"postId": p.ID, "text": "sneaky"}},
		{"removePostMessage", removePost, map[string]any{"postId": p.ID}},
		{"removeComment", removeComment, map[string]any{"postId": p.ID, "commentId": "x"}},
		{"changePassword", `mutation { changePassword(currentPassword: "pw123", newPassword: "x") { token } }`, nil},
		{"updateProfile", `mutation { updateProfile(firstName: "Eve") { username } }`, nil},
	}
	for _, token := range []string{"", "garbage"} {
		for _, op := range ops {
			t.Run(op.name+"/"+token, func(t *testing.T) {
				r := e.do(t, token, op.query, op.vars)
				assert.Equal(t, "UNAUTHENTICATED", r.code(t))
				assert.Equal(t, "You need to be logged in!", r.Errors[0].Message)
			})
		}
	}

	list, err := e.mem.ListPosts(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "bob's post", list[0].Message)
	assert.Empty(t, list[0].Comments)

	u, err := e.mem.GetUserByUsername(context.Background(), "bob")
	require.NoError(t, err)
	assert.Empty(t, u.FirstName)
}

func TestRemoveSomeoneElsesPost(t *testing.T) {
	e := newEnv(t)
	alice := e.register(t, "alice")
	bob := e.register(t, "bob")
	p := e.post(t, bob.Token, "bob's post")

	r := e.do(t, alice.Token, removePost, map[string]any{"postId": p.ID})
	assert.Equal(t, "POST_NOT_FOUND", r.code(t))

	list := field[[]postResult](t, e.do(t, "", listPosts, nil), "posts")
	require.Len(t, list, 1)
	assert.Equal(t, p.ID, list[0].ID)

	r = e.do(t, bob.Token, removePost, map[string]any{"postId": p.ID})
	removed := field[postResult](t, r, "removePostMessage")
	assert.Equal(t, p.ID, removed.ID)

	list = field[[]postResult](t, e.do(t, "", listPosts, nil), "posts")
	assert.Empty(t, list)
}

func TestComments(t *testing.T) {
	e := newEnv(t)
	alice := e.register(t, "alice")
	bob := e.register(t, "bob")
	p := e.post(t, alice.Token, "hello")

	got := field[postResult](t, e.do(t, bob.Token, addComment, map[string]any{"postId": p.ID, "text": "nice"}), "addComment")
	require.Len(t, got.Comments, 1)
	c := got.Comments[0]
	assert.Equal(t, "bob", c.CommentAuthor)

	// alice cannot remove bob's comment; the post comes back unchanged
	got = field[postResult](t, e.do(t, alice.Token, removeComment, map[string]any{"postId": p.ID, "commentId": c.ID}), "removeComment")
	assert.Len(t, got.Comments, 1)

	got = field[postResult](t, e.do(t, bob.Token, removeComment, map[string]any{"postId": p.ID, "commentId": c.ID}), "removeComment")
	assert.Empty(t, got.Comments)

	r := e.do(t, bob.Token, addComment, map[string]any{"postId": "missing", "text": "hi"})
	assert.Equal(t, "POST_NOT_FOUND", r.code(t))
}

func TestQueries(t *testing.T) {
	e := newEnv(t)
	alice := e.register(t, "alice")
	e.register(t, "bob")
	p := e.post(t, alice.Token, "hello")

	users := field[[]struct {
		Username string `json:"username"`
		Posts    []struct {
			Message string `json:"message"`
		} `json:"posts"`
	}](t, e.do(t, "", `{ users { username posts { message } } }`, nil), "users")
	require.Len(t, users, 2)
	assert.Equal(t, "alice", users[0].Username)
	require.Len(t, users[0].Posts, 1)
	assert.Equal(t, "hello", users[0].Posts[0].Message)
	assert.Empty(t, users[1].Posts)

	r := e.do(t, "", `query ($u: String!) { user(username: $u) { username } }`, map[string]any{"u": "carol"})
	require.Empty(t, r.Errors)
	assert.JSONEq(t, "null", string(r.Data["user"]))

	r = e.do(t, "", `query ($id: ID!) { post(postId: $id) { message } }`, map[string]any{"id": p.ID})
	got := field[postResult](t, r, "post")
	assert.Equal(t, "hello", got.Message)

	byBob := field[[]postResult](t, e.do(t, "", `{ posts(username: "bob") { _id } }`, nil), "posts")
	assert.Empty(t, byBob)
}

func TestAccountMutations(t *testing.T) {
	e := newEnv(t)
	alice := e.register(t, "alice")

	r := e.do(t, alice.Token, `mutation { updateProfile(firstName: "Alice", lastName: "Liddell") { firstName lastName } }`, nil)
	profile := field[map[string]string](t, r, "updateProfile")
	assert.Equal(t, map[string]string{"firstName": "Alice", "lastName": "Liddell"}, profile)

	r = e.do(t, alice.Token, `mutation { changePassword(currentPassword: "nope", newPassword: "pw456") { token } }`, nil)
	assert.Equal(t, "INVALID_CREDENTIALS", r.code(t))

	r = e.do(t, alice.Token, `mutation { changePassword(currentPassword: "pw123", newPassword: "pw456") { token } }`, nil)
	changed := field[authResult](t, r, "changePassword")
	assert.NotEmpty(t, changed.Token)

	r = e.do(t, "", login, map[string]any{"email": "alice@x.com", "password": "pw456"})
	assert.Empty(t, r.Errors)
}

func TestHTTPTransport(t *testing.T) {
	e := newEnv(t)

	t.Run("GET query", func(t *testing.T) {
		resp, err := http.Get(e.srv.URL + "?query=" + url.QueryEscape(listPosts))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("GET mutation is refused", func(t *testing.T) {
		q := `mutation { login(email: "a@x.com", password: "pw") { token } }`
		resp, err := http.Get(e.srv.URL + "?query=" + url.QueryEscape(q))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	})

	t.Run("malformed body", func(t *testing.T) {
		resp, err := http.Post(e.srv.URL, "application/json", bytes.NewBufferString("{"))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("wrong method", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodDelete, e.srv.URL, nil)
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	})
}
