package forensics

import "github.com/open-forensics/muletrace/internal/domain"

// DecodeLedger converts wire-form records to typed transactions. A record
// that fails validation is skipped with an IngestionError warning; the rest
// of the ledger still gets analyzed.
func DecodeLedger(records []domain.TransactionRecord) ([]domain.Transaction, []domain.Warning) {
	txs := make([]domain.Transaction, 0, len(records))
	var warnings []domain.Warning
	for i := range records {
		tx, err := records[i].ToTransaction()
		if err != nil {
			warnings = append(warnings, domain.Warning{
				Code:    domain.WarnIngestion,
				Message: err.Error(),
			})
			continue
		}
		txs = append(txs, tx)
	}
	return txs, warnings
}
