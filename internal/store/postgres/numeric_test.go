package postgres

import (
	"math/big"
	"testing"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNumericRoundTrip(t *testing.T) {
	wei, ok := new(big.Int).SetString("123456789012345678901234567890", 10)
	require.True(t, ok)

	got, err := amount(numeric(wei))
	require.NoError(t, err)
	assert.Equal(t, 0, wei.Cmp(got))

	got, err = amount(numeric(nil))
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestAmountNormalisesExponent(t *testing.T) {
	got, err := amount(pgtype.Numeric{Int: big.NewInt(26), Exp: 4, Valid: true})
	require.NoError(t, err)
	assert.Equal(t, "260000", got.String())

	got, err = amount(pgtype.Numeric{Int: big.NewInt(2600), Exp: -2, Valid: true})
	require.NoError(t, err)
	assert.Equal(t, "26", got.String())

	_, err = amount(pgtype.Numeric{Int: big.NewInt(2601), Exp: -2, Valid: true})
	assert.Error(t, err)

	_, err = amount(pgtype.Numeric{NaN: true, Valid: true})
	assert.Error(t, err)
}

func TestDSN(t *testing.T) {
	assert.Equal(t, "postgres://u:p@db:5432/zeta?sslmode=disable",
		DSN(ClientConfig{User: "u", Password: "p", Host: "db", Database: "zeta"}))
	assert.Equal(t, "postgres://x", DSN(ClientConfig{DSN: "postgres://x", Host: "ignored"}))
}
