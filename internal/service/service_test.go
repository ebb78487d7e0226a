package service

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/relic/internal/audit"
	"github.com/roach88/relic/internal/bridge"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close() })
	return svc
}

func subscribe(t *testing.T, svc *Service, channel string) *bridge.Subscription {
	t.Helper()
	sub, err := svc.Bridge.Subscribe(channel, bridge.Options{})
	require.NoError(t, err)
	t.Cleanup(sub.Close)
	return sub
}

func receive(t *testing.T, sub *bridge.Subscription) bridge.Event {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		require.True(t, ok, "events channel closed")
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
		return bridge.Event{}
	}
}

func TestInsertPublishesBothChannels(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	posts := subscribe(t, svc, audit.ChannelNewPosts)
	changes := subscribe(t, svc, audit.ChannelAuditChanges)

	entry, err := svc.Insert(ctx, audit.TablePosts, map[string]any{
		"postName":  "hello",
		"content":   "first post",
		"createdBy": int64(1),
	})
	require.NoError(t, err)
	assert.Equal(t, audit.OpInsert, entry.Op)

	ev := receive(t, posts)
	require.NotNil(t, ev.Post)
	assert.Equal(t, "hello", ev.Post.PostName)

	change := receive(t, changes)
	require.NotNil(t, change.Change)
	assert.Equal(t, audit.OpInsert, change.Change.Op)
	assert.Equal(t, entry.RecordID, change.Change.RecordID)
}

func TestInsertWithoutInsertChannel(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	changes := subscribe(t, svc, audit.ChannelAuditChanges)

	// Users have no dedicated insert stream; only the audit channel
	// fires.
	_, err := svc.Insert(ctx, audit.TableUsers, map[string]any{
		"name":  "ada",
		"email": "ada@example.com",
	})
	require.NoError(t, err)

	change := receive(t, changes)
	require.NotNil(t, change.Change)
	assert.Equal(t, audit.TableUsers, change.Change.TableName)
}

func TestUpdateAndDeletePublishAuditChannel(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	inserted, err := svc.Insert(ctx, audit.TableProducts, map[string]any{
		"prodName": "widget",
		"price":    "19.99",
	})
	require.NoError(t, err)
	key := map[string]any{"prodId": inserted.Record["prodId"]}

	changes := subscribe(t, svc, audit.ChannelAuditChanges)

	updated, err := svc.Update(ctx, audit.TableProducts, key, map[string]any{"price": "14.99"})
	require.NoError(t, err)
	assert.Equal(t, audit.OpUpdate, updated.Op)

	ev := receive(t, changes)
	require.NotNil(t, ev.Change)
	assert.Equal(t, audit.OpUpdate, ev.Change.Op)
	assert.Equal(t, "14.99", ev.Change.Record["price"])

	deleted, err := svc.Delete(ctx, audit.TableProducts, key)
	require.NoError(t, err)
	assert.Equal(t, deleted.RecordID, deleted.OldRecordID)

	ev = receive(t, changes)
	require.NotNil(t, ev.Change)
	assert.Equal(t, audit.OpDelete, ev.Change.Op)
}

func TestTruncatePublishesAuditChannel(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Insert(ctx, audit.TableUsers, map[string]any{
		"name":  "ada",
		"email": "ada@example.com",
	})
	require.NoError(t, err)

	changes := subscribe(t, svc, audit.ChannelAuditChanges)

	entry, err := svc.Truncate(ctx, audit.TableUsers)
	require.NoError(t, err)
	assert.Equal(t, audit.OpTruncate, entry.Op)

	ev := receive(t, changes)
	require.NotNil(t, ev.Change)
	assert.Equal(t, audit.OpTruncate, ev.Change.Op)
	assert.Nil(t, ev.Change.Record)
}

func TestPublishFailureDoesNotUnwindMutation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	// No subscribers and a closed bridge: publication fails, the
	// mutation stands.
	svc.Bridge.Close()

	entry, err := svc.Insert(ctx, audit.TableUsers, map[string]any{
		"name":  "ada",
		"email": "ada@example.com",
	})
	require.NoError(t, err)
	assert.NotZero(t, entry.ID)

	last, err := svc.Store.LastSequence(ctx)
	require.NoError(t, err)
	assert.Equal(t, entry.ID, last)
}

func TestSeed(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Seed(ctx, 3))

	// 3 users + 3 posts + 3 comments inserted, posts and comments
	// updated once each, plus the 3-product lifecycle.
	last, err := svc.Store.LastSequence(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(20), last)

	posts, err := svc.Store.ByTable(ctx, audit.TablePosts, 0)
	require.NoError(t, err)
	assert.Len(t, posts, 6, "3 inserts and 3 updates")

	products, err := svc.Store.ByTable(ctx, audit.TableProducts, 0)
	require.NoError(t, err)
	assert.Len(t, products, 5, "3 inserts, 1 update, 1 delete")
}
