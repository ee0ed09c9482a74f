// AssetGuard - IT Asset Security Telemetry and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/assetguard

package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
)

func TestMemoryStore_InsertAssignsSequentialIDs(t *testing.T) {
	store := NewMemoryStore(100)
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		id, err := store.Insert(ctx, &Event{ID: 77, EventType: EventLogout})
		if err != nil {
			t.Fatalf("Insert: %v", err)
		}
		if id != want {
			t.Errorf("id = %d, want %d", id, want)
		}
	}

	if _, err := store.Insert(ctx, nil); err == nil {
		t.Error("expected error for nil event")
	}
}

func TestMemoryStore_ConcurrentInsert(t *testing.T) {
	store := NewMemoryStore(10000)
	ctx := context.Background()

	var wg sync.WaitGroup
	ids := make(chan int64, 400)
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				id, _ := store.Insert(ctx, &Event{EventType: EventDataRead})
				ids <- id
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[int64]bool)
	for id := range ids {
		if seen[id] {
			t.Fatalf("duplicate id %d", id)
		}
		seen[id] = true
	}
	if len(seen) != 400 {
		t.Errorf("unique ids = %d, want 400", len(seen))
	}
}

func TestMemoryStore_DropsOldestWhenFull(t *testing.T) {
	store := NewMemoryStore(20)
	ctx := context.Background()

	for i := 0; i < 21; i++ {
		_, _ = store.Insert(ctx, &Event{EventType: EventDataRead, Timestamp: baseTime.Add(time.Duration(i) * time.Second)})
	}

	// The 21st insert dropped the oldest 10% (two events).
	if store.Len() != 19 {
		t.Errorf("Len = %d, want 19", store.Len())
	}
	if _, err := store.Get(ctx, 1); !errors.Is(err, ErrEventNotFound) {
		t.Errorf("Get(1) err = %v, want ErrEventNotFound", err)
	}
	if _, err := store.Get(ctx, 3); err != nil {
		t.Errorf("Get(3): %v", err)
	}
}

func TestMemoryStore_FindNewestFirst(t *testing.T) {
	store := NewMemoryStore(100)
	ctx := context.Background()

	// Inserted out of timestamp order.
	_, _ = store.Insert(ctx, &Event{Description: "middle", Timestamp: baseTime.Add(time.Minute)})
	_, _ = store.Insert(ctx, &Event{Description: "newest", Timestamp: baseTime.Add(2 * time.Minute)})
	_, _ = store.Insert(ctx, &Event{Description: "oldest", Timestamp: baseTime})

	events, err := store.Find(ctx, Filter{}, 0, 0)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	got := []string{events[0].Description, events[1].Description, events[2].Description}
	want := []string{"newest", "middle", "oldest"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("order = %v, want %v", got, want)
			break
		}
	}

	events, _ = store.Find(ctx, Filter{}, 1, 1)
	if len(events) != 1 || events[0].Description != "middle" {
		t.Errorf("limit/offset returned %+v", events)
	}

	events, _ = store.Find(ctx, Filter{}, 10, 5)
	if len(events) != 0 {
		t.Errorf("offset past end returned %d events", len(events))
	}
}

func TestMemoryStore_StoredEventsAreImmutable(t *testing.T) {
	store := NewMemoryStore(10)
	ctx := context.Background()

	params := map[string]string{"k": "v"}
	state := json.RawMessage(`{"a":1}`)
	id, _ := store.Insert(ctx, &Event{RequestParams: params, AfterState: state})

	params["k"] = "changed"
	state[2] = 'b'

	got, _ := store.Get(ctx, id)
	if got.RequestParams["k"] != "v" || string(got.AfterState) != `{"a":1}` {
		t.Errorf("stored event aliased caller data: %+v", got)
	}

	got.RequestParams["k"] = "mutated"
	again, _ := store.Get(ctx, id)
	if again.RequestParams["k"] != "v" {
		t.Error("returned event aliased stored data")
	}
}

func TestMemoryStore_CountMatchesFind(t *testing.T) {
	store := NewMemoryStore(100)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		e := &Event{EventType: EventLoginFailed, SourceIP: "10.0.0.5", Result: ResultFailed, Timestamp: baseTime.Add(time.Duration(i) * time.Minute)}
		if i%2 == 0 {
			e.SourceIP = "10.0.0.6"
		}
		_, _ = store.Insert(ctx, e)
	}

	filter := Filter{SourceIP: "10.0.0.5", Since: baseTime.Add(3 * time.Minute)}
	count, _ := store.Count(ctx, filter)
	events, _ := store.Find(ctx, filter, 0, 0)
	if count != int64(len(events)) || count != 4 {
		t.Errorf("count = %d, find = %d, want 4", count, len(events))
	}
}
