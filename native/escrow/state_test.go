package escrow

import (
	"bytes"
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"escrowchain/core/types"
)

func randomPubkey(r *rand.Rand) types.Pubkey {
	var key types.Pubkey
	r.Read(key[:])
	return key
}

func TestRecordRoundTrip(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for i := 0; i < 64; i++ {
		e := &Escrow{
			IsInitialized: true,
			Maker:         randomPubkey(r),
			Vault:         randomPubkey(r),
			Amount:        r.Uint64(),
		}
		if i%2 == 0 {
			taker := randomPubkey(r)
			e.Taker = &taker
		}
		packed := make([]byte, RecordSize)
		require.NoError(t, e.Pack(packed))

		decoded, err := Unpack(packed)
		require.NoError(t, err)
		require.Equal(t, e, decoded)

		repacked := make([]byte, RecordSize)
		require.NoError(t, decoded.Pack(repacked))
		if !bytes.Equal(packed, repacked) {
			t.Fatalf("round trip changed bytes:\n%x\n%x", packed, repacked)
		}
	}
}

func TestZeroRecordIsUninitialized(t *testing.T) {
	e, err := Unpack(make([]byte, RecordSize))
	require.NoError(t, err)
	require.False(t, e.IsInitialized)
	require.Nil(t, e.Taker)
	require.Equal(t, StatusUninitialized, e.Status())
}

func TestUnpackRejectsCorruptRecords(t *testing.T) {
	valid := make([]byte, RecordSize)
	(&Escrow{IsInitialized: true, Amount: 5}).Pack(valid)

	mutate := func(fn func(b []byte)) []byte {
		b := append([]byte(nil), valid...)
		fn(b)
		return b
	}
	cases := map[string][]byte{
		"empty":         nil,
		"short":         valid[:RecordSize-1],
		"long":          append(append([]byte(nil), valid...), 0),
		"bad flag":      mutate(func(b []byte) { b[offInitialized] = 2 }),
		"bad taker tag": mutate(func(b []byte) { b[offTakerTag] = 7 }),
		"ghost taker":   mutate(func(b []byte) { b[offTaker+3] = 1 }),
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Unpack(data); !errors.Is(err, ErrCorruptRecord) {
				t.Fatalf("expected ErrCorruptRecord, got %v", err)
			}
		})
	}
}

func TestPackRejectsWrongSize(t *testing.T) {
	e := &Escrow{IsInitialized: true}
	require.ErrorIs(t, e.Pack(make([]byte, RecordSize+1)), ErrCorruptRecord)
}

func TestStatusDerivation(t *testing.T) {
	maker := types.WellKnownID("maker")
	taker := types.WellKnownID("taker")

	e := &Escrow{IsInitialized: true, Maker: maker}
	require.Equal(t, StatusInitialized, e.Status())
	e.Taker = &taker
	require.Equal(t, StatusCompleted, e.Status())
	e.Taker = &maker
	require.Equal(t, StatusRefunded, e.Status())
	require.Equal(t, "refunded", e.Status().String())
}
