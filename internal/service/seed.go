package service

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/relic/internal/audit"
)

// Seed generates demo data through the capture path: users, posts and
// comments are inserted, then the posts and comments are updated so the
// ledger shows full lifelines, and a few products go through an
// insert/update/delete cycle. Every mutation flows through Insert/
// Update/Delete, so seeding also exercises the notification channels.
func (s *Service) Seed(ctx context.Context, count int) error {
	if count <= 0 {
		count = 10
	}

	userIDs := make([]int64, 0, count)
	for i := 0; i < count; i++ {
		entry, err := s.Insert(ctx, audit.TableUsers, map[string]any{
			"name":  fmt.Sprintf("user-%d", i+1),
			"email": fmt.Sprintf("user-%d@example.com", i+1),
		})
		if err != nil {
			return fmt.Errorf("seed users: %w", err)
		}
		userIDs = append(userIDs, intField(entry.Record, "id"))
	}

	postIDs := make([]int64, 0, count)
	for i := 0; i < count; i++ {
		entry, err := s.Insert(ctx, audit.TablePosts, map[string]any{
			"postName":  fmt.Sprintf("post-%d", i+1),
			"content":   fmt.Sprintf("content for post %d", i+1),
			"createdBy": userIDs[i],
		})
		if err != nil {
			return fmt.Errorf("seed posts: %w", err)
		}
		postIDs = append(postIDs, intField(entry.Record, "id"))
	}

	commentIDs := make([]int64, 0, count)
	for i := 0; i < count; i++ {
		entry, err := s.Insert(ctx, audit.TableComments, map[string]any{
			"comment":   fmt.Sprintf("comment %d", i+1),
			"postId":    postIDs[i],
			"createdBy": userIDs[i],
		})
		if err != nil {
			return fmt.Errorf("seed comments: %w", err)
		}
		commentIDs = append(commentIDs, intField(entry.Record, "id"))
	}

	// Update each post and comment once so every record has a lifeline
	// beyond its INSERT.
	for i := 0; i < count; i++ {
		if _, err := s.Update(ctx, audit.TablePosts,
			map[string]any{"id": postIDs[i]},
			map[string]any{"postName": fmt.Sprintf("post-%d-revised", i+1)},
		); err != nil {
			return fmt.Errorf("seed post updates: %w", err)
		}
		if _, err := s.Update(ctx, audit.TableComments,
			map[string]any{"id": commentIDs[i]},
			map[string]any{
				"comment":   fmt.Sprintf("comment %d (edited)", i+1),
				"updatedAt": audit.FormatTime(time.Now()),
				"updatedBy": userIDs[i],
			},
		); err != nil {
			return fmt.Errorf("seed comment updates: %w", err)
		}
	}

	// A short product lifecycle: insert, reprice, delete the last one.
	prodIDs := make([]int64, 0, 3)
	for i := 0; i < 3; i++ {
		entry, err := s.Insert(ctx, audit.TableProducts, map[string]any{
			"prodName": fmt.Sprintf("product-%d", i+1),
			"price":    fmt.Sprintf("%d.99", 10+i),
		})
		if err != nil {
			return fmt.Errorf("seed products: %w", err)
		}
		prodIDs = append(prodIDs, intField(entry.Record, "prodId"))
	}
	if _, err := s.Update(ctx, audit.TableProducts,
		map[string]any{"prodId": prodIDs[0]},
		map[string]any{"price": "8.49"},
	); err != nil {
		return fmt.Errorf("seed product update: %w", err)
	}
	if _, err := s.Delete(ctx, audit.TableProducts,
		map[string]any{"prodId": prodIDs[len(prodIDs)-1]},
	); err != nil {
		return fmt.Errorf("seed product delete: %w", err)
	}

	return nil
}

func intField(row map[string]any, key string) int64 {
	switch v := row[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	}
	return 0
}
