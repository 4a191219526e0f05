package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestTimeSlotHeldBy(t *testing.T) {
	now := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	future := now.Add(5 * time.Minute)
	past := now.Add(-time.Second)

	cases := []struct {
		name string
		slot TimeSlot
		want bool
	}{
		{
			name: "live hold by the session",
			slot: TimeSlot{State: SlotStateHeld, HeldBySessionID: "s1", HoldExpiresAt: &future},
			want: true,
		},
		{
			name: "held by another session",
			slot: TimeSlot{State: SlotStateHeld, HeldBySessionID: "s2", HoldExpiresAt: &future},
			want: false,
		},
		{
			name: "lapsed lease",
			slot: TimeSlot{State: SlotStateHeld, HeldBySessionID: "s1", HoldExpiresAt: &past},
			want: false,
		},
		{
			name: "lease expiring exactly now",
			slot: TimeSlot{State: SlotStateHeld, HeldBySessionID: "s1", HoldExpiresAt: &now},
			want: false,
		},
		{
			name: "available slot",
			slot: TimeSlot{State: SlotStateAvailable},
			want: false,
		},
		{
			name: "booked slot",
			slot: TimeSlot{State: SlotStateBooked, HeldBySessionID: "s1", HoldExpiresAt: &future},
			want: false,
		},
		{
			name: "held state without expiry",
			slot: TimeSlot{State: SlotStateHeld, HeldBySessionID: "s1"},
			want: false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.slot.HeldBy("s1", now); got != tc.want {
				t.Fatalf("HeldBy = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestBookingDuration(t *testing.T) {
	start := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	b := Booking{
		ID:        uuid.New(),
		StartTime: start,
		EndTime:   start.Add(45 * time.Minute),
	}
	if got := b.Duration(); got != 45*time.Minute {
		t.Fatalf("Duration = %s, want 45m", got)
	}
}
