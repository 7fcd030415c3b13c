// Package posts implements the post and comment operations and keeps each
// user's list of post references consistent with the posts collection.
package posts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/neftie/neftie/backend/internal/apperr"
	"github.com/neftie/neftie/backend/internal/auth"
	"github.com/neftie/neftie/backend/internal/models"
	"github.com/neftie/neftie/backend/internal/store"
)

// PostStore persists posts with their embedded comments. DeletePost and
// RemoveComment only act on records owned by the given username.
type PostStore interface {
	CreatePost(ctx context.Context, p *models.Post) error
	GetPost(ctx context.Context, id string) (*models.Post, error)
	GetPosts(ctx context.Context, ids []string) ([]models.Post, error)
	ListPosts(ctx context.Context, creator string) ([]models.Post, error)
	DeletePost(ctx context.Context, id, creator string) (*models.Post, error)
	AddComment(ctx context.Context, postID string, c *models.Comment) (*models.Post, error)
	RemoveComment(ctx context.Context, postID, commentID, author string) (*models.Post, error)
}

// Owners maintains the per-user list of post references.
type Owners interface {
	ListUsers(ctx context.Context) ([]models.User, error)
	AddPostRef(ctx context.Context, userID, postID string) error
	RemovePostRefs(ctx context.Context, userID string, postIDs ...string) error
}

// Transactor groups the writes of one operation. Store calls made with the
// context passed to fn take part in the unit of work.
type Transactor interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

const maxMessageLen = 2000

type Service struct {
	posts  PostStore
	owners Owners
	tx     Transactor
	log    *slog.Logger
}

func NewService(posts PostStore, owners Owners, tx Transactor, log *slog.Logger) *Service {
	if tx == nil {
		tx = store.DirectTransactor{}
	}
	return &Service{posts: posts, owners: owners, tx: tx, log: log}
}

// CreatePost stores a post authored by the caller and adds it to the
// caller's post list.
func (s *Service) CreatePost(ctx context.Context, id auth.Identity, message, selectedFile string) (*models.Post, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, apperr.ErrBadUserInput.WithMessage("message is required")
	}
	if len(message) > maxMessageLen {
		return nil, apperr.ErrBadUserInput.WithMessage("message is too long")
	}

	p := &models.Post{
		Message:      message,
		Creator:      id.Username,
		SelectedFile: strings.TrimSpace(selectedFile),
	}
	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.posts.CreatePost(ctx, p); err != nil {
			return err
		}
		err := s.owners.AddPostRef(ctx, id.UserID, p.ID)
		if isMissing(err) {
			// Without a transaction the insert is already visible; no
			// account owns it, so a reconcile sweep would never find it.
			if _, derr := s.posts.DeletePost(ctx, p.ID, id.Username); derr != nil {
				s.log.ErrorContext(ctx, "orphan post not removed", "post_id", p.ID, "error", derr)
			}
		}
		return err
	})
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrInvalidID) {
		// The token outlived its account.
		return nil, apperr.ErrNotAuthenticated.WithCause(err)
	}
	if err != nil {
		return nil, fmt.Errorf("create post: %w", err)
	}

	s.log.InfoContext(ctx, "post created", "post_id", p.ID, "creator", p.Creator)
	return p, nil
}

// RemovePost deletes one of the caller's posts and drops it from their
// post list. Posts by anyone else are reported as not found.
func (s *Service) RemovePost(ctx context.Context, id auth.Identity, postID string) (*models.Post, error) {
	var removed *models.Post
	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		p, err := s.posts.DeletePost(ctx, postID, id.Username)
		if err != nil {
			return err
		}
		removed = p
		if err := s.owners.RemovePostRefs(ctx, id.UserID, postID); err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		return nil
	})
	if removed == nil && isMissing(err) {
		return nil, apperr.ErrPostNotFound.WithCause(err)
	}
	if err != nil {
		return nil, fmt.Errorf("remove post %s: %w", postID, err)
	}

	s.log.InfoContext(ctx, "post removed", "post_id", postID, "creator", id.Username)
	return removed, nil
}

// AddComment appends a comment authored by the caller.
func (s *Service) AddComment(ctx context.Context, id auth.Identity, postID, text string) (*models.Post, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperr.ErrBadUserInput.WithMessage("commentText is required")
	}
	if len(text) > maxMessageLen {
		return nil, apperr.ErrBadUserInput.WithMessage("commentText is too long")
	}

	p, err := s.posts.AddComment(ctx, postID, &models.Comment{CommentText: text, CommentAuthor: id.Username})
	if isMissing(err) {
		return nil, apperr.ErrPostNotFound.WithCause(err)
	}
	if err != nil {
		return nil, fmt.Errorf("add comment to %s: %w", postID, err)
	}
	return p, nil
}

// RemoveComment pulls one of the caller's comments. The post is returned
// unchanged when the comment does not exist or belongs to someone else.
func (s *Service) RemoveComment(ctx context.Context, id auth.Identity, postID, commentID string) (*models.Post, error) {
	p, err := s.posts.RemoveComment(ctx, postID, commentID, id.Username)
	if isMissing(err) {
		return nil, apperr.ErrPostNotFound.WithCause(err)
	}
	if err != nil {
		return nil, fmt.Errorf("remove comment from %s: %w", postID, err)
	}
	return p, nil
}

// List returns posts newest first, restricted to one creator when creator
// is non-empty.
func (s *Service) List(ctx context.Context, creator string) ([]models.Post, error) {
	return s.posts.ListPosts(ctx, strings.TrimSpace(creator))
}

// Get returns nil without error when the post does not exist.
func (s *Service) Get(ctx context.Context, postID string) (*models.Post, error) {
	p, err := s.posts.GetPost(ctx, postID)
	if isMissing(err) {
		return nil, nil
	}
	return p, err
}

// ByIDs resolves a user's post references, skipping dangling ones.
func (s *Service) ByIDs(ctx context.Context, ids []string) ([]models.Post, error) {
	if len(ids) == 0 {
		return []models.Post{}, nil
	}
	return s.posts.GetPosts(ctx, ids)
}

func isMissing(err error) bool {
	return errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrInvalidID)
}
