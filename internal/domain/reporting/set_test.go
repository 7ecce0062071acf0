package reporting

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeffrey-bowles/uspto/pkg/errors"
)

func TestParseSet(t *testing.T) {
	cases := map[string]SetName{
		"1":                FourYear,
		"2":                FourYearLate,
		"3":                EightYear,
		"4":                EightYearLate,
		"5":                TwelveYear,
		"6":                TwelveYearLate,
		"twelve_year_late": TwelveYearLate,
		"eight_year":       EightYear,
	}
	for in, want := range cases {
		got, err := ParseSet(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	_, err := ParseSet("7")
	assert.True(t, errors.IsCode(err, errors.ErrCodeReportingSetUnknown))
}

func TestPaymentCodes(t *testing.T) {
	assert.Equal(t, []string{"M1551", "M2551", "M3551"}, FourYear.PaymentCodes())
	assert.Equal(t, []string{"M1551", "M2551", "M3551"}, FourYearLate.PaymentCodes())
	assert.Equal(t, []string{"M1552", "M2552", "M3552"}, EightYearLate.PaymentCodes())
	assert.Equal(t, []string{"M1553", "M2553", "M3553"}, TwelveYear.PaymentCodes())
}

func TestLateAndMilestone(t *testing.T) {
	assert.True(t, EightYearLate.Late())
	assert.False(t, EightYear.Late())
	assert.Equal(t, 12, TwelveYearLate.Milestone())
}
