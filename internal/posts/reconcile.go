package posts

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/neftie/neftie/backend/internal/metrics"
	"github.com/neftie/neftie/backend/internal/store"
)

// ReconcileResult counts the references repaired by one sweep.
type ReconcileResult struct {
	Pulled   int
	Restored int
}

// Reconcile repairs user post lists left inconsistent by a create or delete
// that was interrupted between its two writes. References to missing posts
// are pulled; posts missing from their creator's list are added back.
func (s *Service) Reconcile(ctx context.Context) (ReconcileResult, error) {
	var res ReconcileResult

	users, err := s.owners.ListUsers(ctx)
	if err != nil {
		return res, fmt.Errorf("reconcile: list users: %w", err)
	}
	all, err := s.posts.ListPosts(ctx, "")
	if err != nil {
		return res, fmt.Errorf("reconcile: list posts: %w", err)
	}

	exists := make(map[string]struct{}, len(all))
	byCreator := make(map[string][]string)
	for _, p := range all {
		exists[p.ID] = struct{}{}
		byCreator[p.Creator] = append(byCreator[p.Creator], p.ID)
	}

	for _, u := range users {
		var dangling []string
		for _, ref := range u.Posts {
			if _, ok := exists[ref]; !ok {
				dangling = append(dangling, ref)
			}
		}
		if len(dangling) > 0 {
			if err := s.owners.RemovePostRefs(ctx, u.ID, dangling...); err != nil && !errors.Is(err, store.ErrNotFound) {
				return res, fmt.Errorf("reconcile: pull refs of %s: %w", u.Username, err)
			}
			res.Pulled += len(dangling)
			metrics.ReconciledRefs.WithLabelValues("pulled").Add(float64(len(dangling)))
		}

		for _, postID := range byCreator[u.Username] {
			if slices.Contains(u.Posts, postID) {
				continue
			}
			if err := s.owners.AddPostRef(ctx, u.ID, postID); err != nil && !errors.Is(err, store.ErrNotFound) {
				return res, fmt.Errorf("reconcile: restore ref %s of %s: %w", postID, u.Username, err)
			}
			res.Restored++
			metrics.ReconciledRefs.WithLabelValues("restored").Inc()
		}
	}

	if res.Pulled > 0 || res.Restored > 0 {
		s.log.InfoContext(ctx, "post refs reconciled", "pulled", res.Pulled, "restored", res.Restored)
	}
	return res, nil
}

// RunReconciler sweeps every interval until ctx is cancelled. A failed
// sweep is logged and retried on the next tick.
func (s *Service) RunReconciler(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Debug("reconciler stopped")
			return
		case <-ticker.C:
			if _, err := s.Reconcile(ctx); err != nil && ctx.Err() == nil {
				s.log.ErrorContext(ctx, "reconcile failed", "error", err)
			}
		}
	}
}
