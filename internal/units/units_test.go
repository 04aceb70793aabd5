package units

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/zetatrigger/internal/domain"
)

func TestParseAmount(t *testing.T) {
	v, err := ParseAmount("1.5", domain.AssetZETA)
	require.NoError(t, err)
	assert.Equal(t, "1500000000000000000", v.String())

	v, err = ParseAmount("0.26", domain.AssetUSDC)
	require.NoError(t, err)
	assert.Equal(t, int64(260000), v.Int64())

	_, err = ParseAmount("0.0000001", domain.AssetUSDC)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = ParseAmount("-1", domain.AssetUSDC)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = ParseAmount("abc", domain.AssetZETA)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "1", FormatAmount(new(big.Int).Set(domain.OneZETA), domain.AssetZETA))
	assert.Equal(t, "0.26", FormatAmount(big.NewInt(260000), domain.AssetUSDC))
	assert.Equal(t, "0", FormatAmount(nil, domain.AssetUSDC))
}

func TestPrices(t *testing.T) {
	p, err := ParsePrice("0.2625")
	require.NoError(t, err)
	assert.Equal(t, int64(262500), p)
	assert.Equal(t, "0.2475", FormatPrice(247500))

	// Chainlink-style 8 decimal answer.
	assert.Equal(t, int64(260000), PriceFromFeed(big.NewInt(26_000_000), 8))
}
