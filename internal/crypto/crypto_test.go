package crypto

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKeyHex = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func TestKeyfileRoundTrip(t *testing.T) {
	blob, err := EncryptKey("0x"+testKeyHex, "hunter2")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "key.json")
	require.NoError(t, os.WriteFile(path, blob, 0o600))

	key, err := LoadKey(KeyConfig{EncryptedKeyPath: path, KeyPassword: "hunter2"})
	require.NoError(t, err)
	raw, err := LoadKey(KeyConfig{RawPrivateKey: testKeyHex})
	require.NoError(t, err)
	assert.Equal(t, ethcrypto.FromECDSA(raw), ethcrypto.FromECDSA(key))

	_, err = LoadKey(KeyConfig{EncryptedKeyPath: path, KeyPassword: "wrong"})
	assert.Error(t, err)
	_, err = LoadKey(KeyConfig{})
	assert.Error(t, err)
}

func TestSignAndRecoverMessage(t *testing.T) {
	key, err := LoadKey(KeyConfig{RawPrivateKey: testKeyHex})
	require.NoError(t, err)
	s := NewSigner(key)

	msg := ethcrypto.Keccak256([]byte("payload"))
	sig, err := s.SignMessage(msg)
	require.NoError(t, err)
	assert.True(t, sig[64] == 27 || sig[64] == 28)

	got, err := RecoverMessageSigner(msg, sig)
	require.NoError(t, err)
	assert.Equal(t, s.Address(), got)

	other, err := RecoverMessageSigner([]byte("tampered"), sig)
	require.NoError(t, err)
	assert.NotEqual(t, s.Address(), other)

	_, err = RecoverMessageSigner(msg, sig[:10])
	assert.Error(t, err)
}

func TestWebhookAuth(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	w := NewWebhookAuth("s3cret-value", time.Minute)
	w.now = func() time.Time { return now }

	body := []byte(`{"origin_chain_id":8453}`)
	h := w.Headers("POST", "/api/gateway/receive", body)
	require.NoError(t, w.Verify("POST", "/api/gateway/receive", body, h[HeaderTimestamp], h[HeaderSignature]))

	assert.Error(t, w.Verify("POST", "/api/gateway/receive", []byte("{}"), h[HeaderTimestamp], h[HeaderSignature]))

	w.now = func() time.Time { return now.Add(2 * time.Minute) }
	assert.Error(t, w.Verify("POST", "/api/gateway/receive", body, h[HeaderTimestamp], h[HeaderSignature]))
	assert.Equal(t, "WebhookAuth{secret=s3cr****}", w.String())
}
