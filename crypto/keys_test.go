package crypto

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"escrowchain/core/types"
)

func TestAddressRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	require.NoError(t, err)

	addr := key.PubKey().Address()
	require.Equal(t, IdentityPrefix, addr.Prefix())

	decoded, err := DecodeAddress(addr.String())
	require.NoError(t, err)
	require.Equal(t, addr.Pubkey(), decoded.Pubkey())

	parsed, err := ParseIdentity(addr.String())
	require.NoError(t, err)
	require.Equal(t, key.PubKey().Identity(), parsed)

	parsedHex, err := ParseIdentity(addr.Pubkey().String())
	require.NoError(t, err)
	require.Equal(t, parsed, parsedHex)
}

func TestIdentityMatchesTransactionSigner(t *testing.T) {
	key, err := GeneratePrivateKey()
	require.NoError(t, err)

	tx := &types.Transaction{Instructions: []types.Instruction{{ProgramID: types.SystemProgramID}}}
	require.NoError(t, tx.Sign(key.PrivateKey))
	signers, err := tx.Signers()
	require.NoError(t, err)
	require.True(t, signers[key.PubKey().Identity()])
}

func TestDeriveAddressIsDeterministic(t *testing.T) {
	base := types.WellKnownID("base")
	owner := types.WellKnownID("owner")

	first := DeriveAddress(base, "vault", owner)
	require.Equal(t, first, DeriveAddress(base, "vault", owner))
	require.NotEqual(t, first, DeriveAddress(base, "record", owner))
	require.NotEqual(t, first, DeriveAddress(owner, "vault", base))
	require.False(t, first.IsZero())
}

func TestKeystoreRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "keys", "maker.keystore")

	require.NoError(t, SaveToKeystoreWithParams(path, key, "correct horse", LightScrypt))

	loaded, err := LoadFromKeystore(path, "correct horse")
	require.NoError(t, err)
	require.Equal(t, key.Bytes(), loaded.Bytes())

	_, err = LoadFromKeystore(path, "wrong")
	require.Error(t, err)
}

func TestPrivateKeyFromBytes(t *testing.T) {
	key, err := GeneratePrivateKey()
	require.NoError(t, err)

	restored, err := PrivateKeyFromBytes(key.Bytes())
	require.NoError(t, err)
	require.Equal(t, key.PubKey().Identity(), restored.PubKey().Identity())

	_, err = PrivateKeyFromBytes([]byte{1, 2, 3})
	require.Error(t, err)
}
