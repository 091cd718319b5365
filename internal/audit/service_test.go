package audit

import (
	"context"
	"testing"
	"time"
)

type stubRepo struct {
	events     []Event
	inserted   []Event
	lastLimit  int
	lastOffset int
}

func (s *stubRepo) Insert(ctx context.Context, event Event) error {
	s.inserted = append(s.inserted, event)
	return nil
}

func (s *stubRepo) Window(ctx context.Context, filters Filters, limit, offset int) ([]Event, error) {
	s.lastLimit = limit
	s.lastOffset = offset
	if len(s.events) > limit {
		return s.events[:limit], nil
	}
	return s.events, nil
}

func TestRecordStampsTime(t *testing.T) {
	repo := &stubRepo{}
	svc := NewService(repo, nil)
	fixed := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	if err := svc.Record(context.Background(), Event{UserID: 1, Action: "login.success"}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if len(repo.inserted) != 1 {
		t.Fatalf("expected 1 insert, got %d", len(repo.inserted))
	}
	if !repo.inserted[0].At.Equal(fixed) {
		t.Fatalf("expected At %v, got %v", fixed, repo.inserted[0].At)
	}
}

func TestRecordRequiresAction(t *testing.T) {
	svc := NewService(&stubRepo{}, nil)
	if err := svc.Record(context.Background(), Event{UserID: 1}); err == nil {
		t.Fatal("expected error for missing action")
	}
}

func TestTrailPaging(t *testing.T) {
	repo := &stubRepo{events: []Event{
		{ID: 3, Action: "login.success"},
		{ID: 2, Action: "login.failure"},
		{ID: 1, Action: "authz.denied"},
	}}
	svc := NewService(repo, nil)

	result, err := svc.Trail(context.Background(), Filters{Page: 1, PageSize: 2})
	if err != nil {
		t.Fatalf("trail: %v", err)
	}
	if len(result.Events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(result.Events))
	}
	if !result.Paging.HasNext {
		t.Fatal("expected hasNext true")
	}
	if repo.lastLimit != 3 {
		t.Fatalf("expected limit 3, got %d", repo.lastLimit)
	}
	if repo.lastOffset != 0 {
		t.Fatalf("expected offset 0, got %d", repo.lastOffset)
	}
}

func TestTrailCapsPageSize(t *testing.T) {
	repo := &stubRepo{}
	svc := NewService(repo, nil)
	if _, err := svc.Trail(context.Background(), Filters{PageSize: 500}); err != nil {
		t.Fatalf("trail: %v", err)
	}
	if repo.lastLimit != 51 {
		t.Fatalf("expected capped limit 51, got %d", repo.lastLimit)
	}
}

func TestWriteCSV(t *testing.T) {
	events := []Event{
		{UserID: 7, Action: "authz.denied", Resource: "role:ADMIN", At: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC), Details: map[string]any{"actual_role": "VIEWER"}},
	}
	data, err := WriteCSV(events)
	if err != nil {
		t.Fatalf("write csv: %v", err)
	}
	got := string(data)
	want := "at,user_id,action,resource,details\n2026-03-10T12:00:00Z,7,authz.denied,role:ADMIN,\"{\"\"actual_role\"\":\"\"VIEWER\"\"}\"\n"
	if got != want {
		t.Fatalf("csv mismatch:\n got: %q\nwant: %q", got, want)
	}
}
