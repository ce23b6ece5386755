package utils

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setKey(t *testing.T) {
	t.Setenv(EncryptionKeyEnv, base64.StdEncoding.EncodeToString([]byte(strings.Repeat("k", 32))))
}

func TestSecretRoundTrip(t *testing.T) {
	setKey(t)

	sealed, err := EncryptSecret("client-secret")
	require.NoError(t, err)
	assert.True(t, IsEncrypted(sealed))
	assert.NotContains(t, sealed, "client-secret")

	plain, err := DecryptSecret(sealed)
	require.NoError(t, err)
	assert.Equal(t, "client-secret", plain)
}

func TestDecryptSecretPassesPlainValues(t *testing.T) {
	plain, err := DecryptSecret("not-encrypted")
	require.NoError(t, err)
	assert.Equal(t, "not-encrypted", plain)
}

func TestDecryptSecretErrors(t *testing.T) {
	t.Setenv(EncryptionKeyEnv, "")
	_, err := DecryptSecret("enc:AAAA")
	assert.EqualError(t, err, "encryption key not set")

	t.Setenv(EncryptionKeyEnv, base64.StdEncoding.EncodeToString([]byte("short")))
	_, err = DecryptSecret("enc:AAAA")
	assert.EqualError(t, err, "encryption key must be 32 bytes")

	setKey(t)
	_, err = DecryptSecret("enc:AAAA")
	assert.EqualError(t, err, "ciphertext too short")

	_, err = DecryptSecret("enc:%%%")
	assert.Error(t, err)
}
