// Package sheets holds the spreadsheet ports and the header-first matrix
// decoding shared by every source.
package sheets

import (
	"context"

	"autorkm/internal/core"
)

// Ports for outbound adapters.
type (
	// DatasetReader loads a complaint dataset from a spreadsheet source.
	DatasetReader interface {
		ReadDataset(ctx context.Context) (core.Dataset, error)
	}
)
