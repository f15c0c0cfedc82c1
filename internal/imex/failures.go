package imex

import (
	"encoding/csv"
	"fmt"
	"io"
)

// Failure retains a rejected row together with the reason it was
// rejected.
type Failure struct {
	Record map[string]string
	Err    error
}

// FailureSet accumulates the rows an import run could not commit. The
// set dumps back to CSV with the original header plus an error column
// so the file can be fixed and re-imported.
type FailureSet struct {
	header   []string
	failures []Failure
}

func newFailureSet(header []string) *FailureSet {
	return &FailureSet{header: append([]string(nil), header...)}
}

func (s *FailureSet) add(record map[string]string, err error) {
	s.failures = append(s.failures, Failure{Record: record, Err: err})
}

// Len reports the number of rejected rows.
func (s *FailureSet) Len() int { return len(s.failures) }

// Failures returns the rejected rows in import order.
func (s *FailureSet) Failures() []Failure {
	return append([]Failure(nil), s.failures...)
}

// Header returns the column order of the source file.
func (s *FailureSet) Header() []string {
	return append([]string(nil), s.header...)
}

// WriteCSV dumps the rejected rows. Each row keeps its original cells
// in header order and gains an error column with the failure message.
func (s *FailureSet) WriteCSV(w io.Writer) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(append(s.Header(), "error")); err != nil {
		return fmt.Errorf("write failure header: %w", err)
	}
	for _, failure := range s.failures {
		cells := make([]string, 0, len(s.header)+1)
		for _, column := range s.header {
			cells = append(cells, failure.Record[column])
		}
		message := ""
		if failure.Err != nil {
			message = failure.Err.Error()
		}
		cells = append(cells, message)
		if err := writer.Write(cells); err != nil {
			return fmt.Errorf("write failure row: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}
