package ordernum

import (
	"context"
	"testing"
	"time"

	"github.com/hideyau28/hk-marketplace-sub002/internal/testutil"
)

const countersTable = "counters-table"

func newTestGenerator(now time.Time) (*Generator, *testutil.FakeDynamo) {
	fake := testutil.NewFakeDynamo()
	fake.CreateTable(countersTable, "counter_id")
	g := NewGenerator(fake, countersTable)
	g.nowFunc = func() time.Time { return now }
	return g, fake
}

func TestNext_SequentialWithinDay(t *testing.T) {
	g, _ := newTestGenerator(time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC))
	ctx := context.Background()

	want := []string{"HK-20260829-001", "HK-20260829-002", "HK-20260829-003"}
	for i, w := range want {
		got, err := g.Next(ctx, "shop-1", "HK")
		if err != nil {
			t.Fatalf("next %d: %v", i, err)
		}
		if got != w {
			t.Fatalf("call %d: want %s, got %s", i, w, got)
		}
	}
}

func TestNext_ResetsAcrossDays(t *testing.T) {
	g, _ := newTestGenerator(time.Date(2026, 8, 29, 23, 59, 0, 0, time.UTC))
	ctx := context.Background()

	if got, _ := g.Next(ctx, "shop-1", "HK"); got != "HK-20260829-001" {
		t.Fatalf("day one: got %s", got)
	}

	g.nowFunc = func() time.Time { return time.Date(2026, 8, 30, 0, 1, 0, 0, time.UTC) }
	if got, _ := g.Next(ctx, "shop-1", "HK"); got != "HK-20260830-001" {
		t.Fatalf("counter must reset on the next day, got %s", got)
	}
}

func TestNext_TenantsCountIndependently(t *testing.T) {
	g, _ := newTestGenerator(time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC))
	ctx := context.Background()

	if _, err := g.Next(ctx, "shop-1", "HK"); err != nil {
		t.Fatalf("shop-1: %v", err)
	}
	got, err := g.Next(ctx, "shop-2", "MO")
	if err != nil {
		t.Fatalf("shop-2: %v", err)
	}
	if got != "MO-20260829-001" {
		t.Fatalf("tenants must not share a counter, got %s", got)
	}
}

func TestNext_OverflowsPastThreeDigits(t *testing.T) {
	g, _ := newTestGenerator(time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC))
	ctx := context.Background()

	var got string
	for i := 0; i < 1000; i++ {
		var err error
		got, err = g.Next(ctx, "shop-1", "HK")
		if err != nil {
			t.Fatalf("next %d: %v", i, err)
		}
	}
	// %03d pads, it does not truncate
	if got != "HK-20260829-1000" {
		t.Fatalf("sequence 1000 should widen the suffix, got %s", got)
	}
}
