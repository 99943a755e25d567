package auditexport

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/reader"

	"dytallix/core/types"
)

func TestExportRoundTrip(t *testing.T) {
	receipts := []*types.Receipt{
		{
			TxHash:  []byte{0xde, 0xad, 0xbe, 0xef},
			Status:  types.ReceiptSuccess,
			Height:  12,
			GasUsed: 21000,
			FeePaid: []byte{0x01},
			Results: []types.MessageResult{{Tag: 1}},
		},
		{
			TxHash:  []byte{0xba, 0xad, 0xf0, 0x0d},
			Status:  types.ReceiptFailure,
			Height:  13,
			GasUsed: 5000,
			FeePaid: []byte{0x02},
			Results: []types.MessageResult{{Tag: 1, Error: "insufficient funds"}},
		},
	}

	path := filepath.Join(t.TempDir(), "receipts.parquet")
	require.NoError(t, Export(path, receipts))

	fr, err := local.NewLocalFileReader(path)
	require.NoError(t, err)
	defer fr.Close()

	pr, err := reader.NewParquetReader(fr, new(receiptRow), 1)
	require.NoError(t, err)
	defer pr.ReadStop()

	count := int(pr.GetNumRows())
	require.Equal(t, 2, count)

	rows := make([]receiptRow, count)
	require.NoError(t, pr.Read(&rows))

	require.Equal(t, "deadbeef", rows[0].TxHash)
	require.Equal(t, "success", rows[0].Status)
	require.Equal(t, int64(12), rows[0].Height)
	require.Equal(t, int32(0), rows[0].FailedCount)

	require.Equal(t, "baadf00d", rows[1].TxHash)
	require.Equal(t, "failure", rows[1].Status)
	require.Equal(t, int32(1), rows[1].FailedCount)
}

func TestExportEmptyReceiptsProducesValidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.parquet")
	require.NoError(t, Export(path, nil))

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Greater(t, info.Size(), int64(0))
}
