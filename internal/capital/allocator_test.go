package capital

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAutoUnwindWeakest_PicksLowestScore(t *testing.T) {
	candidates := []PositionWeakness{
		{PositionID: "p1", Symbol: "BTC", Score: 55},
		{PositionID: "p2", Symbol: "ETH", Score: 20},
		{PositionID: "p3", Symbol: "SOL", Score: 80},
	}
	weakest, ok := AutoUnwindWeakest(candidates)
	assert.True(t, ok)
	assert.Equal(t, "p2", weakest.PositionID)
}

func TestAutoUnwindWeakest_Empty(t *testing.T) {
	_, ok := AutoUnwindWeakest(nil)
	assert.False(t, ok)
}

func TestAutoUnwindWeakest_DoesNotMutateInput(t *testing.T) {
	candidates := []PositionWeakness{
		{PositionID: "p1", Score: 55},
		{PositionID: "p2", Score: 20},
	}
	_, _ = AutoUnwindWeakest(candidates)
	assert.Equal(t, "p1", candidates[0].PositionID)
}

func TestErrConcurrentCoinCapReached_Message(t *testing.T) {
	err := ErrConcurrentCoinCapReached{Symbol: "BTC", Cap: 5}
	assert.Contains(t, err.Error(), "BTC")
	assert.Contains(t, err.Error(), "5")
}
