package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestItemValue_JSON(t *testing.T) {
	t.Run("plain string", func(t *testing.T) {
		var v ItemValue
		require.NoError(t, json.Unmarshal([]byte(`"a@b.com"`), &v))
		assert.False(t, v.IsEncrypted())
		assert.Equal(t, "a@b.com", v.String())

		out, err := json.Marshal(v)
		require.NoError(t, err)
		assert.JSONEq(t, `"a@b.com"`, string(out))
	})

	t.Run("envelope", func(t *testing.T) {
		var v ItemValue
		require.NoError(t, json.Unmarshal([]byte(`{"ciphertext":"ab","iv":"cd"}`), &v))
		require.True(t, v.IsEncrypted())
		assert.Equal(t, "ab", v.Encrypted.Ciphertext)
		assert.Equal(t, "", v.String())

		out, err := json.Marshal(v)
		require.NoError(t, err)
		assert.JSONEq(t, `{"ciphertext":"ab","iv":"cd"}`, string(out))
	})

	t.Run("envelope without ciphertext is rejected", func(t *testing.T) {
		var v ItemValue
		assert.Error(t, json.Unmarshal([]byte(`{"iv":"cd"}`), &v))
	})
}

func TestVaultMetadata_LegacyFieldName(t *testing.T) {
	var m VaultMetadata
	data := `{"salt":"00","encryptedDataKey":{"ciphertext":"11","iv":"22"},"validator":{"ciphertext":"33","iv":"44"}}`
	require.NoError(t, json.Unmarshal([]byte(data), &m))
	assert.Equal(t, "11", m.WrappedDataKey.Ciphertext)

	out, err := json.Marshal(m)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"wrappedDataKey"`)
}

func TestMatchResult_Key(t *testing.T) {
	assert.False(t, MatchResult{FieldID: 1}.Matched())
	assert.False(t, MatchResult{FieldID: 1, MatchedKey: KeyPtr("")}.Matched())
	r := MatchResult{FieldID: 2, MatchedKey: KeyPtr("email")}
	assert.True(t, r.Matched())
	assert.Equal(t, "email", r.Key())
}
