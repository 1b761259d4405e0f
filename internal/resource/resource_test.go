package resource

import (
	"context"
	"testing"

	"select-plus/internal/selectplus"
)

func TestRegistry(t *testing.T) {
	calls := 0
	people := New("people", "people", func(req *selectplus.Request) []*selectplus.Field {
		calls++
		return []*selectplus.Field{selectplus.New("States Visited", "statesVisited")}
	})
	reg := NewRegistry(New("states", "states", nil), people)

	res, ok := reg.Get("people")
	if !ok {
		t.Fatal("expected people resource")
	}
	if res.Entity() != "people" {
		t.Fatalf("expected entity people, got %s", res.Entity())
	}
	fields := res.Fields(selectplus.NewRequest(context.Background(), nil))
	if len(fields) != 1 || fields[0].Attribute() != "statesVisited" {
		t.Fatalf("unexpected fields: %v", fields)
	}
	if calls != 1 {
		t.Fatalf("expected field builder to run once, ran %d times", calls)
	}

	if _, ok := reg.Get("cities"); ok {
		t.Fatal("cities should not be registered")
	}

	all := reg.All()
	if len(all) != 2 || all[0].Name() != "people" || all[1].Name() != "states" {
		t.Fatalf("expected resources sorted by name, got %v", all)
	}
	if got := all[1].Fields(nil); got != nil {
		t.Fatalf("expected no fields for states, got %v", got)
	}
}
