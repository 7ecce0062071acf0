package assignment

import (
	stderrors "errors"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeffrey-bowles/uspto/pkg/errors"
)

const (
	assignmentCSV = `rf_id,file_id,cname,caddress_1,caddress_2,caddress_3,caddress_4,reel_no,frame_no,convey_text
100,1,SMITH & CO,1 MAIN ST,,SUITE 2,"AUSTIN, TX",12345,0001,ASSIGNMENT
200,1,JONES LLP,9 ELM RD,,,,22222,0002,ASSIGNMENT
`
	documentCSV = `rf_id,title,lang,appno_doc_num,appno_date,appno_country,pgpub_doc_num,pgpub_date,pgpub_country,grant_doc_num,grant_date,grant_country
100,WIDGET,EN,11111111,2010-01-01,US,,,,7000001,2012-01-01,US
100,WIDGET,EN,11111112,2010-02-01,US,,,,07000002,2012-02-01,US
999,ORPHAN,EN,33333333,2010-01-01,US,,,,7000999,2012-01-01,US
`
	assigneeCSV = `rf_id,ee_name,ee_address_1,ee_address_2,ee_city,ee_state,ee_postcode,ee_country
100,ACME CORP,100 INDUSTRIAL WAY,,SPRINGFIELD,IL,62701,US
100,ACME HOLDINGS,,,DOVER,DE,,US
999,NOBODY,,,,,,
`
)

func loadAll(t *testing.T) *Mapping {
	t.Helper()
	m := NewMapping()
	n, err := m.Load(AssignmentSchema, strings.NewReader(assignmentCSV))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	_, err = m.Load(DocumentIDSchema, strings.NewReader(documentCSV))
	require.NoError(t, err)
	_, err = m.Load(AssigneeSchema, strings.NewReader(assigneeCSV))
	require.NoError(t, err)
	return m
}

func TestMapping_JoinsThreeFiles(t *testing.T) {
	m := loadAll(t)
	require.Equal(t, 2, m.Len())

	rec := m.Records()[0]
	assert.Equal(t, "100", rec.ID)
	assert.Equal(t, "SMITH & CO", rec.CorrespondentName)
	assert.Equal(t, "1 MAIN ST\nSUITE 2\nAUSTIN, TX", rec.CorrespondentAddress)
	assert.Equal(t, "12345", rec.ReelNum)
	assert.Equal(t, "0001", rec.FrameNum)
	// Last documentid row wins.
	assert.Equal(t, "11111112", rec.ApplicationNumber)
	assert.Equal(t, "07000002", rec.PatentNumber)
	assert.Equal(t, "2012-02-01", rec.IssueDate)
	// Assignee name is the last row's, address lines accumulate.
	assert.Equal(t, "ACME HOLDINGS", rec.AssigneeName)
	assert.Equal(t, "100 INDUSTRIAL WAY\nSPRINGFIELD\nIL\n62701\nUS\nDOVER\nDE\nUS", rec.AssigneeAddress)

	second := m.Records()[1]
	assert.Equal(t, "200", second.ID)
	assert.Empty(t, second.PatentNumber)
}

func TestMapping_IgnoresUnknownIDs(t *testing.T) {
	m := loadAll(t)
	for _, r := range m.Records() {
		assert.NotEqual(t, "999", r.ID)
	}
}

func TestMapping_RepeatedIDStartsOver(t *testing.T) {
	m := NewMapping()
	_, err := m.Load(AssignmentSchema, strings.NewReader("header\n1,x,FIRST,A,,,,1,1\n1,x,SECOND,B,,,,2,2\n"))
	require.NoError(t, err)
	require.Equal(t, 1, m.Len())
	assert.Equal(t, "SECOND", m.Records()[0].CorrespondentName)
	assert.Equal(t, "B", m.Records()[0].CorrespondentAddress)
}

func TestMapping_ReadError(t *testing.T) {
	m := NewMapping()
	_, err := m.Load(AssignmentSchema, iotest.ErrReader(stderrors.New("connection reset")))
	assert.True(t, errors.IsCode(err, errors.ErrCodeParseCSV))
}

func TestSpanCovers(t *testing.T) {
	open := Span{From: 2, To: -1}
	assert.False(t, open.covers(1))
	assert.True(t, open.covers(40))
	closed := Span{From: 3, To: 6}
	assert.True(t, closed.covers(6))
	assert.False(t, closed.covers(7))
}
