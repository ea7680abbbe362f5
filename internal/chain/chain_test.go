package chain

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimulatorTransfer(t *testing.T) {
	sim := NewSimulator("", zerolog.Nop())
	ctx := context.Background()

	t.Run("valid transfer", func(t *testing.T) {
		receipt, err := sim.Transfer(ctx, "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin", 2.5)
		require.NoError(t, err)
		assert.Equal(t, "confirmed", receipt.Status)
		assert.NotEmpty(t, receipt.TransactionHash)
		assert.Greater(t, receipt.BlockNumber, uint64(0))
		assert.GreaterOrEqual(t, receipt.GasUsed, uint64(4000))
		assert.Equal(t, 2.5, receipt.Amount)
	})

	t.Run("signatures are unique per transfer", func(t *testing.T) {
		a, err := sim.Transfer(ctx, "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin", 1)
		require.NoError(t, err)
		b, err := sim.Transfer(ctx, "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin", 1)
		require.NoError(t, err)
		assert.NotEqual(t, a.TransactionHash, b.TransactionHash)
	})

	t.Run("invalid address rejected", func(t *testing.T) {
		_, err := sim.Transfer(ctx, "definitely-not-base58!", 1)
		assert.Error(t, err)
	})

	t.Run("non-positive amount rejected", func(t *testing.T) {
		_, err := sim.Transfer(ctx, "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin", 0)
		assert.Error(t, err)
	})
}
