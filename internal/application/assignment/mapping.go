package assignment

import (
	"encoding/csv"
	"io"
	"strings"

	"github.com/jeffrey-bowles/uspto/pkg/errors"
)

// Mapping joins the dataset CSVs into records keyed by record id.
type Mapping struct {
	records map[string]*Record
	order   []string
}

// NewMapping returns an empty mapping.
func NewMapping() *Mapping {
	return &Mapping{records: make(map[string]*Record)}
}

// Load applies one CSV file under schema s. The first row is a header and is
// skipped. It returns the number of data rows read.
func (m *Mapping) Load(s Schema, r io.Reader) (int, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = true

	rows := 0
	header := true
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return rows, errors.Wrap(err, errors.ErrCodeParseCSV, "read assignment csv").WithDetail(s.File)
		}
		if header {
			header = false
			continue
		}
		rows++
		if len(row) == 0 {
			continue
		}
		m.applyRow(s, row)
	}
	return rows, nil
}

func (m *Mapping) applyRow(s Schema, row []string) {
	id := strings.TrimSpace(row[0])
	rec, ok := m.records[id]
	switch {
	case s.Creates:
		if !ok {
			m.order = append(m.order, id)
		}
		rec = &Record{ID: id}
		m.records[id] = rec
	case !ok:
		return
	}

	var lines []string
	for i := 1; i < len(row); i++ {
		if name, ok := s.Columns[i]; ok {
			*rec.field(name) = strings.TrimSpace(row[i])
		}
		if s.Span != nil && s.Span.covers(i) {
			lines = append(lines, row[i])
		}
	}
	if s.Span == nil {
		return
	}
	f := rec.field(s.Span.Field)
	if s.Accumulate {
		*f = joinLines(*f, lines...)
	} else {
		*f = joinLines("", lines...)
	}
}

// Records returns the joined records in the order their ids first appeared.
func (m *Mapping) Records() []*Record {
	out := make([]*Record, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.records[id])
	}
	return out
}

// Len returns the number of records.
func (m *Mapping) Len() int {
	return len(m.order)
}
