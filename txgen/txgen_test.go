package txgen

import (
	"testing"

	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

func TestHtlcTimeoutTxSkeleton(t *testing.T) {
	outpoint := wire.OutPoint{Index: 2}
	tx := HtlcTimeoutTx(outpoint, 50_000, 600_000, []byte{0, 1, 2})

	require.Len(t, tx.TxIn, 1)
	require.Len(t, tx.TxOut, 1)
	require.Equal(t, outpoint, tx.TxIn[0].PreviousOutPoint)
	require.Equal(t, uint32(600_000), tx.LockTime)
	require.Equal(t, int64(50_000), tx.TxOut[0].Value)

	ApplyHtlcTimeoutFee(tx, 663)
	require.Equal(t, int64(50_000-663), tx.TxOut[0].Value)
}

func TestHtlcTimeoutFeeFormula(t *testing.T) {
	require.EqualValues(t, 663*5000/1000, HtlcTimeoutFee(5000))
}

func TestHtlcSuccessTxHasZeroLocktime(t *testing.T) {
	tx := HtlcSuccessTx(wire.OutPoint{}, 10_000, []byte{0})
	require.EqualValues(t, 0, tx.LockTime)
}

func TestDirectSweepTxSpendsToFeeWhenDust(t *testing.T) {
	tx, isDust := DirectSweepTx(wire.OutPoint{}, 500, []byte{0, 20}, 50_000, 150, 573)
	require.True(t, isDust)
	require.Len(t, tx.TxIn, 1)
	require.Len(t, tx.TxOut, 0)
}

func TestDirectSweepTxKeepsAboveDust(t *testing.T) {
	tx, isDust := DirectSweepTx(wire.OutPoint{}, 1_000_000, []byte{0, 20}, 1_000, 150, 573)
	require.False(t, isDust)
	require.Len(t, tx.TxOut, 1)
	require.Less(t, tx.TxOut[0].Value, int64(1_000_000))
}
