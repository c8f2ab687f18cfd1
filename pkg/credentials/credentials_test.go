package credentials

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCipher(t *testing.T, secret string) *AESCipher {
	t.Helper()
	c, err := NewAESCipher(secret, "dittovfs-test-salt")
	require.NoError(t, err)
	return c
}

func decodeDoc(t *testing.T, ciphertext string) map[string]any {
	t.Helper()
	data, err := base64.StdEncoding.DecodeString(ciphertext)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	return doc
}

func TestAESCipher_RoundTrip(t *testing.T) {
	c := newCipher(t, "s3cret")
	config := map[string]any{
		"bucket":            "photos",
		"access_key_id":     "AKIA123",
		"secret_access_key": "hunter2",
		"retries":           float64(3),
	}
	sensitive := []string{"access_key_id", "secret_access_key", "missing"}

	ciphertext, err := c.Encrypt(config, sensitive)
	require.NoError(t, err)

	doc := decodeDoc(t, ciphertext)
	assert.Equal(t, "photos", doc["bucket"], "non-sensitive fields stay readable")
	assert.True(t, strings.HasPrefix(doc["secret_access_key"].(string), sealedPrefix))
	assert.NotContains(t, ciphertext, "hunter2")
	assert.NotContains(t, doc, "missing")

	got, err := c.Decrypt(ciphertext, sensitive)
	require.NoError(t, err)
	assert.Equal(t, config, got)
}

func TestAESCipher_DoesNotMutateInput(t *testing.T) {
	c := newCipher(t, "s3cret")
	config := map[string]any{"token": "abc"}

	_, err := c.Encrypt(config, []string{"token"})
	require.NoError(t, err)
	assert.Equal(t, "abc", config["token"])
}

func TestAESCipher_NonStringSensitiveValue(t *testing.T) {
	c := newCipher(t, "s3cret")
	config := map[string]any{"token": map[string]any{"refresh_token": "r1"}}

	ciphertext, err := c.Encrypt(config, []string{"token"})
	require.NoError(t, err)

	got, err := c.Decrypt(ciphertext, []string{"token"})
	require.NoError(t, err)
	assert.Equal(t, config, got)
}

func TestAESCipher_NonceIsRandom(t *testing.T) {
	c := newCipher(t, "s3cret")
	config := map[string]any{"password": "pw"}

	a, err := c.Encrypt(config, []string{"password"})
	require.NoError(t, err)
	b, err := c.Encrypt(config, []string{"password"})
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestAESCipher_WrongSecret(t *testing.T) {
	ciphertext, err := newCipher(t, "first").Encrypt(map[string]any{"password": "pw"}, []string{"password"})
	require.NoError(t, err)

	_, err = newCipher(t, "second").Decrypt(ciphertext, []string{"password"})
	assert.ErrorIs(t, err, ErrDecrypt)
}

func TestAESCipher_FieldSwapDetected(t *testing.T) {
	c := newCipher(t, "s3cret")
	ciphertext, err := c.Encrypt(map[string]any{"a": "one", "b": "two"}, []string{"a", "b"})
	require.NoError(t, err)

	doc := decodeDoc(t, ciphertext)
	doc["a"], doc["b"] = doc["b"], doc["a"]
	data, err := json.Marshal(doc)
	require.NoError(t, err)

	_, err = c.Decrypt(base64.StdEncoding.EncodeToString(data), []string{"a", "b"})
	assert.ErrorIs(t, err, ErrDecrypt)
}

func TestAESCipher_PlaintextSensitiveField(t *testing.T) {
	c := newCipher(t, "s3cret")
	data, err := json.Marshal(map[string]any{"password": "legacy"})
	require.NoError(t, err)

	got, err := c.Decrypt(base64.StdEncoding.EncodeToString(data), []string{"password"})
	require.NoError(t, err)
	assert.Equal(t, "legacy", got["password"])
}

func TestAESCipher_InvalidInput(t *testing.T) {
	c := newCipher(t, "s3cret")

	_, err := c.Decrypt("not base64!", nil)
	assert.Error(t, err)

	_, err = c.Decrypt(base64.StdEncoding.EncodeToString([]byte("[1,2]")), nil)
	assert.Error(t, err)

	_, err = c.Decrypt(base64.StdEncoding.EncodeToString([]byte(`{"password":"enc:v1:AAAA"}`)), []string{"password"})
	assert.ErrorIs(t, err, ErrDecrypt)
}

func TestNewAESCipher_Validation(t *testing.T) {
	_, err := NewAESCipher("", "dittovfs-test-salt")
	assert.Error(t, err)

	_, err = NewAESCipher("secret", "short")
	assert.Error(t, err)
}
