package redis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/zetatrigger/internal/domain"
)

func TestSnapshotEncoding(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	in := domain.PriceSnapshot{Price: 260_000, Timestamp: ts, Confidence: 30 * time.Second}

	vals := map[string]string{}
	for k, v := range encodeSnapshot(in) {
		vals[k] = v.(string)
	}
	out, err := decodeSnapshot(vals)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestDecodeSnapshotMissing(t *testing.T) {
	_, err := decodeSnapshot(map[string]string{})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = decodeSnapshot(map[string]string{"ticks": "x", "ts": "1"})
	assert.Error(t, err)
}

func TestKeyPrefix(t *testing.T) {
	assert.Equal(t, "lock:order:7", (&Client{}).key("lock", "order:7"))
	assert.Equal(t, "prod:price:ZETA-USDC", (&Client{prefix: "prod"}).key("price", "ZETA-USDC"))
}

func TestStreamPayload(t *testing.T) {
	b, ok := streamPayload(map[string]any{"payload": "abc"})
	assert.True(t, ok)
	assert.Equal(t, []byte("abc"), b)

	_, ok = streamPayload(map[string]any{"other": 1})
	assert.False(t, ok)
}
