package out

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"focusguard/internal/modules/session/domain"
	sessionout "focusguard/internal/modules/session/port/out"
	"focusguard/internal/platform/kv"
)

// KVStateStore keeps the coordinator state under the activeSessions,
// intention and sessionState keys.
type KVStateStore struct {
	store kv.Store
}

func NewKVStateStore(store kv.Store) sessionout.StateStore {
	return &KVStateStore{store: store}
}

func (s *KVStateStore) Load(ctx context.Context) (domain.Snapshot, error) {
	snap := domain.Snapshot{
		Sessions: map[string]json.RawMessage{},
		Recent:   domain.RecentMemory{},
	}
	if _, err := kv.GetJSON(ctx, s.store, domain.KeyActiveSessions, &snap.Sessions); err != nil {
		return domain.Snapshot{}, fmt.Errorf("load active sessions: %w", err)
	}
	if _, err := kv.GetJSON(ctx, s.store, domain.KeyIntention, &snap.Recent); err != nil {
		return domain.Snapshot{}, fmt.Errorf("load recent intentions: %w", err)
	}
	if _, err := kv.GetJSON(ctx, s.store, domain.KeySessionState, &snap.Marker); err != nil {
		return domain.Snapshot{}, fmt.Errorf("load session state: %w", err)
	}
	return snap, nil
}

func (s *KVStateStore) Save(ctx context.Context, table domain.Table, recent domain.RecentMemory, marker domain.StateMarker) error {
	sessions := make(map[string]domain.Session, len(table))
	for tabID, session := range table {
		sessions[strconv.Itoa(tabID)] = session
	}
	if recent == nil {
		recent = domain.RecentMemory{}
	}
	batch := kv.NewBatch()
	if err := batch.Put(domain.KeyActiveSessions, sessions); err != nil {
		return err
	}
	if err := batch.Put(domain.KeyIntention, recent); err != nil {
		return err
	}
	if err := batch.Put(domain.KeySessionState, marker); err != nil {
		return err
	}
	if err := s.store.Set(ctx, batch); err != nil {
		return fmt.Errorf("save session state: %w", err)
	}
	return nil
}

func (s *KVStateStore) SaveNavigation(ctx context.Context, tabID int, nav domain.Navigation) error {
	return kv.SetJSON(ctx, s.store, domain.NavigationKey(tabID), nav)
}

func (s *KVStateStore) DeleteNavigation(ctx context.Context, tabID int) error {
	return s.store.Delete(ctx, kv.Key(domain.NavigationKey(tabID)))
}
