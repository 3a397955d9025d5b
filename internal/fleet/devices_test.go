package fleet

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/perquyk/snutz/internal/testutil"
	"github.com/perquyk/snutz/pkg/models"
)

func TestDeviceStore_UpsertInsertsAndOverwrites(t *testing.T) {
	s := NewSQLiteDeviceStore(newTestDB(t))
	ctx := context.Background()

	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	d := testutil.NewDevice(testutil.WithID("dev-1"), testutil.WithName("first"), testutil.WithLastSeen(t0))
	d.RegisteredAt = t0
	if err := s.Upsert(ctx, &d); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	t1 := t0.Add(time.Hour)
	d2 := testutil.NewDevice(testutil.WithID("dev-1"), testutil.WithName("second"), testutil.WithLastSeen(t1))
	d2.RegisteredAt = t1
	if err := s.Upsert(ctx, &d2); err != nil {
		t.Fatalf("second Upsert: %v", err)
	}

	got, err := s.Get(ctx, "dev-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Name != "second" {
		t.Errorf("Name = %q, want %q", got.Name, "second")
	}
	if !got.RegisteredAt.Equal(t1) {
		t.Errorf("RegisteredAt = %v, want %v (reset on upsert)", got.RegisteredAt, t1)
	}
	if !got.LastSeen.Equal(t1) {
		t.Errorf("LastSeen = %v, want %v", got.LastSeen, t1)
	}

	devices, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(devices) != 1 {
		t.Errorf("len(devices) = %d, want 1", len(devices))
	}
}

func TestDeviceStore_Touch(t *testing.T) {
	s := NewSQLiteDeviceStore(newTestDB(t))
	ctx := context.Background()

	d := testutil.NewDevice(testutil.WithID("dev-1"), testutil.WithStatus(models.DeviceStatusOffline))
	if err := s.Upsert(ctx, &d); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	seen := time.Date(2025, 1, 2, 12, 0, 0, 0, time.UTC)
	if err := s.Touch(ctx, "dev-1", seen, models.DeviceStatusOnline); err != nil {
		t.Fatalf("Touch: %v", err)
	}

	got, err := s.Get(ctx, "dev-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !got.LastSeen.Equal(seen) {
		t.Errorf("LastSeen = %v, want %v", got.LastSeen, seen)
	}
	if got.Status != models.DeviceStatusOnline {
		t.Errorf("Status = %q, want online", got.Status)
	}
}

func TestDeviceStore_TouchUnknown(t *testing.T) {
	s := NewSQLiteDeviceStore(newTestDB(t))

	err := s.Touch(context.Background(), "ghost", time.Now().UTC(), models.DeviceStatusOnline)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestDeviceStore_GetUnknown(t *testing.T) {
	s := NewSQLiteDeviceStore(newTestDB(t))

	_, err := s.Get(context.Background(), "ghost")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestDeviceStore_Exists(t *testing.T) {
	s := NewSQLiteDeviceStore(newTestDB(t))
	ctx := context.Background()

	ok, err := s.Exists(ctx, "dev-1")
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if ok {
		t.Error("Exists = true for unknown id")
	}

	d := testutil.NewDevice(testutil.WithID("dev-1"))
	if err := s.Upsert(ctx, &d); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	ok, err = s.Exists(ctx, "dev-1")
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if !ok {
		t.Error("Exists = false after upsert")
	}
}

func TestDeviceStore_ListOrder(t *testing.T) {
	s := NewSQLiteDeviceStore(newTestDB(t))
	ctx := context.Background()

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"dev-c", "dev-a", "dev-b"} {
		d := testutil.NewDevice(testutil.WithID(id))
		d.RegisteredAt = base.Add(time.Duration(i) * time.Minute)
		if err := s.Upsert(ctx, &d); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}

	devices, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	want := []string{"dev-c", "dev-a", "dev-b"}
	if len(devices) != len(want) {
		t.Fatalf("len(devices) = %d, want %d", len(devices), len(want))
	}
	for i := range want {
		if devices[i].ID != want[i] {
			t.Errorf("devices[%d].ID = %q, want %q (registration order)", i, devices[i].ID, want[i])
		}
	}
}
