package crypto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey() []byte {
	return []byte("0123456789abcdef0123456789abcdef")
}

func TestVault_RoundTrip(t *testing.T) {
	v, err := NewVault(testKey())
	require.NoError(t, err)

	for _, secret := range []string{"", "k", "api-key-762df", strings.Repeat("x", 4096)} {
		ct, err := v.Encrypt(secret)
		require.NoError(t, err)
		assert.True(t, IsEncrypted(ct))

		pt, err := v.Decrypt(ct)
		require.NoError(t, err)
		assert.Equal(t, secret, pt)
	}
}

func TestVault_EncryptIfNeededIdempotent(t *testing.T) {
	v, err := NewVault(testKey())
	require.NoError(t, err)

	once, err := v.EncryptIfNeeded("secret-token")
	require.NoError(t, err)
	assert.True(t, IsEncrypted(once))

	twice, err := v.EncryptIfNeeded(once)
	require.NoError(t, err)
	assert.Equal(t, once, twice, "already-encrypted values must pass through unchanged")

	pt, err := v.Decrypt(twice)
	require.NoError(t, err)
	assert.Equal(t, "secret-token", pt)
}

func TestVault_DecryptTampered(t *testing.T) {
	v, err := NewVault(testKey())
	require.NoError(t, err)

	ct, err := v.Encrypt("secret")
	require.NoError(t, err)

	// Flip a character in the base64 body.
	tampered := []byte(ct)
	last := len(tampered) - 1
	if tampered[last] == 'A' {
		tampered[last] = 'B'
	} else {
		tampered[last] = 'A'
	}

	_, err = v.Decrypt(string(tampered))
	assert.ErrorIs(t, err, ErrDecrypt)
}

func TestVault_DecryptWrongKey(t *testing.T) {
	v1, err := NewVault(testKey())
	require.NoError(t, err)
	v2, err := NewVault([]byte("ffffffffffffffffffffffffffffffff"))
	require.NoError(t, err)

	ct, err := v1.Encrypt("secret")
	require.NoError(t, err)

	_, err = v2.Decrypt(ct)
	assert.ErrorIs(t, err, ErrDecrypt)
}

func TestVault_DecryptPlaintext(t *testing.T) {
	v, err := NewVault(testKey())
	require.NoError(t, err)

	_, err = v.Decrypt("not-a-ciphertext")
	assert.ErrorIs(t, err, ErrDecrypt)
}

func TestVault_KeyNotSet(t *testing.T) {
	v, err := NewVault(nil)
	require.NoError(t, err)

	_, err = v.Encrypt("secret")
	assert.ErrorIs(t, err, ErrKeyNotSet)

	_, err = v.Decrypt("lsv1:abcd")
	assert.ErrorIs(t, err, ErrKeyNotSet)
}

func TestNewVault_BadKeyLength(t *testing.T) {
	_, err := NewVault([]byte("short"))
	assert.Error(t, err)
}

func TestNewVaultFromHex(t *testing.T) {
	v, err := NewVaultFromHex("3031323334353637383961626364656630313233343536373839616263646566")
	require.NoError(t, err)

	ct, err := v.Encrypt("s")
	require.NoError(t, err)
	pt, err := v.Decrypt(ct)
	require.NoError(t, err)
	assert.Equal(t, "s", pt)

	_, err = NewVaultFromHex("zz")
	assert.Error(t, err)
}

func TestIsEncrypted(t *testing.T) {
	assert.False(t, IsEncrypted("plain"))
	assert.False(t, IsEncrypted(""))
	assert.True(t, IsEncrypted("lsv1:AAAA"))
}

func TestMask(t *testing.T) {
	assert.Equal(t, "••••", Mask("abc"))
	assert.Equal(t, "••••cdef", Mask("abcdef"))
	assert.NotContains(t, Mask("supersecretvalue"), "supersecret")
}
