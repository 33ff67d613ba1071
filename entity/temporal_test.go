package entity_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/versa/entity"
)

func TestTimeOfDay(t *testing.T) {
	tod := entity.TimeOfDayOf(time.Date(2024, 1, 1, 13, 45, 30, 500, time.UTC))
	assert.Equal(t, entity.TimeOfDay{Hour: 13, Minute: 45, Second: 30, Nanosecond: 500}, tod)
	assert.Equal(t, "13:45:30.000000500", tod.String())

	back, err := entity.TimeOfDayFromNanos(tod.Nanos())
	require.NoError(t, err)
	assert.Equal(t, tod, back)

	_, err = entity.TimeOfDayFromNanos(-1)
	assert.Error(t, err)
	_, err = entity.TimeOfDayFromNanos(int64(24 * time.Hour))
	assert.Error(t, err)
}

func TestParsePeriod(t *testing.T) {
	tests := []struct {
		in   string
		want entity.Period
		err  bool
	}{
		{in: "P1Y2M3D", want: entity.Period{Years: 1, Months: 2, Days: 3}},
		{in: "p2w", want: entity.Period{Days: 14}},
		{in: "P-1M", want: entity.Period{Months: -1}},
		{in: "P0Y0M0D", want: entity.Period{}},
		{in: "P", err: true},
		{in: "1Y", err: true},
		{in: "PXY", err: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			p, err := entity.ParsePeriod(tt.in)
			if tt.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, p)
		})
	}
	assert.Equal(t, "P1Y2M3D", entity.Period{Years: 1, Months: 2, Days: 3}.String())
}

func TestYearMonthAndMonthDay(t *testing.T) {
	ym, err := entity.ParseYearMonth("2024-02")
	require.NoError(t, err)
	assert.Equal(t, entity.YearMonth{Year: 2024, Month: time.February}, ym)
	assert.Equal(t, "2024-02", ym.String())
	_, err = entity.ParseYearMonth("2024-13")
	assert.Error(t, err)

	md, err := entity.ParseMonthDay("--12-25")
	require.NoError(t, err)
	assert.Equal(t, entity.MonthDay{Month: time.December, Day: 25}, md)
	assert.Equal(t, "--12-25", md.String())
	_, err = entity.ParseMonthDay("--02-32")
	assert.Error(t, err)
}
