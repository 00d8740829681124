package idempotency

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestComputeKey_SameMinuteSameKey(t *testing.T) {
	base := time.UnixMilli(1700000000000)
	k1 := ComputeKey(ActionBuy, "BTCUSDT", 50000, 0.1, base)
	k2 := ComputeKey(ActionBuy, "BTCUSDT", 50000, 0.1, base.Add(30*time.Second))
	assert.Equal(t, k1, k2)
	assert.Len(t, k1, 32)
}

func TestComputeKey_DifferentMinuteDifferentKey(t *testing.T) {
	base := time.UnixMilli(1700000000000)
	k1 := ComputeKey(ActionBuy, "BTCUSDT", 50000, 0.1, base)
	k2 := ComputeKey(ActionBuy, "BTCUSDT", 50000, 0.1, base.Add(90*time.Second))
	assert.NotEqual(t, k1, k2)
}

func TestComputeKey_DifferentInputsDifferentKey(t *testing.T) {
	base := time.UnixMilli(1700000000000)
	k1 := ComputeKey(ActionBuy, "BTCUSDT", 50000, 0.1, base)
	k2 := ComputeKey(ActionSell, "BTCUSDT", 50000, 0.1, base)
	k3 := ComputeKey(ActionBuy, "ETHUSDT", 50000, 0.1, base)
	k4 := ComputeKey(ActionBuy, "BTCUSDT", 50001, 0.1, base)
	assert.NotEqual(t, k1, k2)
	assert.NotEqual(t, k1, k3)
	assert.NotEqual(t, k1, k4)
}

func TestComputeDedupKey_IgnoresTime(t *testing.T) {
	d1 := ComputeDedupKey(ActionBuy, "BTCUSDT", 50000, 0.1)
	d2 := ComputeDedupKey(ActionBuy, "BTCUSDT", 50000, 0.1)
	assert.Equal(t, d1, d2)
	assert.Len(t, d1, 32)
}
