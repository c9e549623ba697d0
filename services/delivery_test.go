package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDelivery_TakeIsOnce(t *testing.T) {
	d := NewDelivery(nil)
	d.Park("AB12CD", "R1")
	d.Park("AB12CD", "R2")

	id, ok := d.Take("AB12CD")
	require.True(t, ok)
	require.Equal(t, "R2", id, "a later request replaces the earlier wait")

	_, ok = d.Take("AB12CD")
	require.False(t, ok)
}

func TestDelivery_UnparkLeavesOtherReceiver(t *testing.T) {
	d := NewDelivery(nil)
	d.Park("AB12CD", "R2")

	d.Unpark("AB12CD", "R1")
	require.Equal(t, 1, d.Waiting())

	d.Unpark("AB12CD", "R2")
	require.Equal(t, 0, d.Waiting())
}

func TestDelivery_DropReceiverAcrossCodes(t *testing.T) {
	d := NewDelivery(nil)
	d.Park("AAAAAA", "R1")
	d.Park("BBBBBB", "R1")
	d.Park("CCCCCC", "R2")

	d.DropReceiver("R1")
	require.Equal(t, 1, d.Waiting())
}

func TestDelivery_PickupReceipts(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	d := NewDelivery(clock.Now)

	d.RecordPickup("AAAAAA", "S1", "R1")
	d.RecordPickup("BBBBBB", "", "R1")
	_, ok := d.PickupOwner("BBBBBB", "R1")
	require.False(t, ok, "ownerless batches leave no receipt")

	clock.Advance(5 * time.Minute)
	d.RecordPickup("CCCCCC", "S2", "R2")

	require.Equal(t, 1, d.PrunePickups(clock.Now(), 4*time.Minute))
	_, ok = d.PickupOwner("AAAAAA", "R1")
	require.False(t, ok)

	_, ok = d.PickupOwner("CCCCCC", "R1")
	require.False(t, ok, "only the receiver that picked up may report")
	owner, ok := d.PickupOwner("CCCCCC", "R2")
	require.True(t, ok)
	require.Equal(t, "S2", owner)

	d.DropOwner("S2")
	_, ok = d.PickupOwner("CCCCCC", "R2")
	require.False(t, ok)
}
