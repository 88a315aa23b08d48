package storage

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"
)

// LabelColumn is the name of the verdict column in training exports.
const LabelColumn = "Class"

// ExportTrainingCSV writes the transactions stored in [start, end] as CSV:
// one column per feature followed by LabelColumn (1 for fraud). Feature
// columns are named from names, or f0, f1, ... when names is short. An empty
// range still writes the full header from names. It returns the number of
// rows written.
func (s *Store) ExportTrainingCSV(w io.Writer, names []string, start, end time.Time) (int, error) {
	txs, err := s.TransactionsInRange(start, end)
	if err != nil {
		return 0, err
	}

	width := 0
	for _, t := range txs {
		if len(t.Features) > width {
			width = len(t.Features)
		}
	}
	if len(txs) == 0 {
		width = len(names)
	}

	cw := csv.NewWriter(w)
	header := make([]string, 0, width+1)
	for i := 0; i < width; i++ {
		if i < len(names) && names[i] != "" {
			header = append(header, names[i])
		} else {
			header = append(header, fmt.Sprintf("f%d", i))
		}
	}
	if err := cw.Write(append(header, LabelColumn)); err != nil {
		return 0, fmt.Errorf("write header: %w", err)
	}

	rows := 0
	for _, t := range txs {
		// Rows of another width cannot share the header.
		if len(t.Features) != width {
			continue
		}
		record := make([]string, 0, width+1)
		for _, v := range t.Features {
			record = append(record, strconv.FormatFloat(v, 'g', -1, 64))
		}
		label := "0"
		if t.Fraud {
			label = "1"
		}
		if err := cw.Write(append(record, label)); err != nil {
			return rows, fmt.Errorf("write row: %w", err)
		}
		rows++
	}

	cw.Flush()
	return rows, cw.Error()
}
