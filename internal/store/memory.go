package store

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/neftie/neftie/backend/internal/models"
)

// MemoryStore keeps users and posts in process memory. It backs local
// development (CREDENTIAL_STORE=memory) and the service tests.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[string]*models.User
	posts map[string]*models.Post
	now   func() time.Time
	last  time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users: make(map[string]*models.User),
		posts: make(map[string]*models.Post),
		now:   time.Now,
	}
}

// tick returns a timestamp strictly after the previous one so that
// newest-first ordering is stable. Callers hold mu.
func (s *MemoryStore) tick() time.Time {
	t := s.now()
	if !t.After(s.last) {
		t = s.last.Add(time.Nanosecond)
	}
	s.last = t
	return t
}

func newID() string {
	return primitive.NewObjectID().Hex()
}

func cloneUser(u *models.User) *models.User {
	c := *u
	c.Posts = slices.Clone(u.Posts)
	return &c
}

func clonePost(p *models.Post) *models.Post {
	c := *p
	c.Comments = slices.Clone(p.Comments)
	return &c
}

// ── users ────────────────────────────────────────────────

func (s *MemoryStore) CreateUser(ctx context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if existing.Username == u.Username || strings.EqualFold(existing.Email, u.Email) {
			return ErrDuplicate
		}
	}
	u.ID = newID()
	u.CreatedAt = s.tick()
	if u.Posts == nil {
		u.Posts = []string{}
	}
	s.users[u.ID] = cloneUser(u)
	return nil
}

func (s *MemoryStore) UpdateUser(ctx context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.users[u.ID]
	if !ok {
		return ErrNotFound
	}
	existing.FirstName = u.FirstName
	existing.LastName = u.LastName
	existing.Password = u.Password
	return nil
}

func (s *MemoryStore) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneUser(u), nil
}

func (s *MemoryStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.findUser(func(u *models.User) bool { return strings.EqualFold(u.Email, email) })
}

func (s *MemoryStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.findUser(func(u *models.User) bool { return u.Username == username })
}

func (s *MemoryStore) findUser(match func(*models.User) bool) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if match(u) {
			return cloneUser(u), nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) ListUsers(ctx context.Context) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, *cloneUser(u))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) AddPostRef(ctx context.Context, userID, postID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return ErrNotFound
	}
	if !slices.Contains(u.Posts, postID) {
		u.Posts = append(u.Posts, postID)
	}
	return nil
}

func (s *MemoryStore) RemovePostRefs(ctx context.Context, userID string, postIDs ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.Posts = slices.DeleteFunc(u.Posts, func(id string) bool { return slices.Contains(postIDs, id) })
	return nil
}

// ── posts ────────────────────────────────────────────────

func (s *MemoryStore) CreatePost(ctx context.Context, p *models.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p.ID = newID()
	p.CreatedAt = s.tick()
	if p.Comments == nil {
		p.Comments = []models.Comment{}
	}
	s.posts[p.ID] = clonePost(p)
	return nil
}

func (s *MemoryStore) GetPost(ctx context.Context, id string) (*models.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.posts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clonePost(p), nil
}

func (s *MemoryStore) GetPosts(ctx context.Context, ids []string) ([]models.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Post, 0, len(ids))
	for _, id := range ids {
		if p, ok := s.posts[id]; ok {
			out = append(out, *clonePost(p))
		}
	}
	return out, nil
}

func (s *MemoryStore) ListPosts(ctx context.Context, creator string) ([]models.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Post, 0, len(s.posts))
	for _, p := range s.posts {
		if creator == "" || p.Creator == creator {
			out = append(out, *clonePost(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) DeletePost(ctx context.Context, id, creator string) (*models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.posts[id]
	if !ok || p.Creator != creator {
		return nil, ErrNotFound
	}
	delete(s.posts, id)
	return p, nil
}

func (s *MemoryStore) AddComment(ctx context.Context, postID string, c *models.Comment) (*models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.posts[postID]
	if !ok {
		return nil, ErrNotFound
	}
	c.ID = newID()
	c.CreatedAt = s.tick()
	p.Comments = append(p.Comments, *c)
	return clonePost(p), nil
}

func (s *MemoryStore) RemoveComment(ctx context.Context, postID, commentID, author string) (*models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.posts[postID]
	if !ok {
		return nil, ErrNotFound
	}
	p.Comments = slices.DeleteFunc(p.Comments, func(c models.Comment) bool {
		return c.ID == commentID && c.CommentAuthor == author
	})
	return clonePost(p), nil
}
