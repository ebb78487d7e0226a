// Package service wires the store, the allowlist and the notification
// bridge into one explicitly owned unit. Nothing here lives at module
// scope: a Service is constructed, passed around, and closed.
package service

import (
	"context"
	"fmt"

	"github.com/roach88/relic/internal/audit"
	"github.com/roach88/relic/internal/bridge"
	"github.com/roach88/relic/internal/store"
)

// Service owns the open store handle and the bridge's subscription
// registry for one process.
type Service struct {
	Registry  *audit.Registry
	Contracts *audit.Contracts
	Store     *store.Store
	Bridge    *bridge.Bridge
}

// Open builds the full capture/notify pipeline over the database at
// path.
func Open(path string) (*Service, error) {
	registry := audit.NewRegistry()
	contracts, err := audit.NewContracts()
	if err != nil {
		return nil, fmt.Errorf("open service: %w", err)
	}
	st, err := store.Open(path, registry, contracts)
	if err != nil {
		return nil, fmt.Errorf("open service: %w", err)
	}
	return &Service{
		Registry:  registry,
		Contracts: contracts,
		Store:     st,
		Bridge:    bridge.New(registry, contracts),
	}, nil
}

// Close releases the bridge's subscriptions and the store handle.
func (s *Service) Close() error {
	s.Bridge.Close()
	return s.Store.Close()
}

// Insert writes a row into a tracked table through the capture path,
// then emits the table's insert event (if the table has an insert
// channel) and the audit event. Publication is best-effort and happens
// after the transaction committed; a publish failure never unwinds the
// mutation.
func (s *Service) Insert(ctx context.Context, table audit.TableName, row map[string]any) (audit.Entry, error) {
	entry, snakeRow, err := s.Store.CaptureInsert(ctx, table, row)
	if err != nil {
		return audit.Entry{}, err
	}

	if t, terr := s.Registry.Lookup(table); terr == nil && t.InsertChannel != "" {
		_ = s.Bridge.Publish(t.InsertChannel, snakeRow)
	}
	_ = s.Bridge.Publish(audit.ChannelAuditChanges, entry.Wire())

	return entry, nil
}

// Update applies changes to the row identified by key and emits the
// audit event.
func (s *Service) Update(ctx context.Context, table audit.TableName, key, changes map[string]any) (audit.Entry, error) {
	entry, _, err := s.Store.CaptureUpdate(ctx, table, key, changes)
	if err != nil {
		return audit.Entry{}, err
	}
	_ = s.Bridge.Publish(audit.ChannelAuditChanges, entry.Wire())
	return entry, nil
}

// Delete removes the row identified by key and emits the audit event.
func (s *Service) Delete(ctx context.Context, table audit.TableName, key map[string]any) (audit.Entry, error) {
	entry, err := s.Store.CaptureDelete(ctx, table, key)
	if err != nil {
		return audit.Entry{}, err
	}
	_ = s.Bridge.Publish(audit.ChannelAuditChanges, entry.Wire())
	return entry, nil
}

// Truncate empties a tracked table and emits the audit event.
func (s *Service) Truncate(ctx context.Context, table audit.TableName) (audit.Entry, error) {
	entry, err := s.Store.CaptureTruncate(ctx, table)
	if err != nil {
		return audit.Entry{}, err
	}
	_ = s.Bridge.Publish(audit.ChannelAuditChanges, entry.Wire())
	return entry, nil
}
