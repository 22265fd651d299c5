package clickhouse

import (
	"strings"
	"testing"

	"github.com/yhwang-dev/tradeshield/pkg/metrics"
)

func TestInsertStatementsMatchRowValues(t *testing.T) {
	rows := []metrics.Row{
		&metrics.AnalysisAudit{},
		&metrics.CycleStats{},
		&metrics.ShadowMark{},
	}

	for _, row := range rows {
		t.Run(row.Table(), func(t *testing.T) {
			query, ok := insertStatements[row.Table()]
			if !ok {
				t.Fatalf("no insert statement for table %q", row.Table())
			}

			placeholders := strings.Count(query, "?")
			if placeholders != len(row.Values()) {
				t.Errorf("statement has %d placeholders, row carries %d values", placeholders, len(row.Values()))
			}
		})
	}
}
