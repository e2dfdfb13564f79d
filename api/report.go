package api

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"github.com/warp/debt-ledger/ledger"
)

// reportHeader is the first CSV row.
var reportHeader = []string{"id", "date", "debtor", "creditor", "amount", "kind", "memo"}

// WriteReport writes the history as CSV, one row per transaction.
func WriteReport(w io.Writer, txs []ledger.Transaction) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(reportHeader); err != nil {
		return err
	}
	for _, tx := range txs {
		row := []string{
			strconv.FormatInt(int64(tx.ID), 10),
			tx.Timestamp.UTC().Format(time.DateTime),
			tx.Debtor,
			tx.Creditor,
			ledger.FormatAmount(tx.Amount),
			string(tx.Kind),
			tx.Memo,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
