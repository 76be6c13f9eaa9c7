package crypto

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testService(t *testing.T) *XChaChaService {
	t.Helper()
	svc, err := NewXChaChaService(bytes.Repeat([]byte{7}, 32))
	require.NoError(t, err)
	return svc
}

func TestNewXChaChaServiceRejectsShortKey(t *testing.T) {
	_, err := NewXChaChaService([]byte("short"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "32 bytes")
}

func TestEncryptDecryptRoundtrip(t *testing.T) {
	svc := testService(t)

	sealed, err := svc.Encrypt(`{"client_id":"abc"}`)
	require.NoError(t, err)
	assert.NotContains(t, sealed, "client_id")

	plain, err := svc.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, `{"client_id":"abc"}`, plain)
}

func TestEncryptUsesFreshNonces(t *testing.T) {
	svc := testService(t)
	a, err := svc.Encrypt("same")
	require.NoError(t, err)
	b, err := svc.Encrypt("same")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestDecryptRejectsBadInput(t *testing.T) {
	svc := testService(t)

	_, err := svc.Decrypt("not-hex")
	assert.Error(t, err)

	_, err = svc.Decrypt("abcd")
	assert.ErrorContains(t, err, "too short")

	sealed, err := svc.Encrypt("payload")
	require.NoError(t, err)
	raw, _ := hex.DecodeString(sealed)
	raw[len(raw)-1] ^= 0xff
	_, err = svc.Decrypt(hex.EncodeToString(raw))
	assert.ErrorContains(t, err, "failed to decrypt")
}

func TestNoopServicePassthrough(t *testing.T) {
	var svc Service = NoopService{}
	out, err := svc.Encrypt("x")
	require.NoError(t, err)
	assert.Equal(t, "x", out)
}
