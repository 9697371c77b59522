package medication

import (
	"errors"
	"testing"
	"time"

	apperrors "github.com/gmsas95/medtracker/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeOfDay(t *testing.T) {
	tests := []struct {
		in      string
		want    TimeOfDay
		wantErr bool
	}{
		{in: "09:00", want: TimeOfDay{Hour: 9}},
		{in: "9:05", want: TimeOfDay{Hour: 9, Minute: 5}},
		{in: "21:30:15", want: TimeOfDay{Hour: 21, Minute: 30}},
		{in: " 07:45 ", want: TimeOfDay{Hour: 7, Minute: 45}},
		{in: "24:00", wantErr: true},
		{in: "12:60", wantErr: true},
		{in: "noon", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTimeOfDay(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-03-04")
	require.NoError(t, err)
	assert.Equal(t, Date{Year: 2024, Month: time.March, Day: 4}, d)

	d, err = ParseDate("2024-03-04T23:59:59")
	require.NoError(t, err)
	assert.Equal(t, "2024-03-04", d.String())

	_, err = ParseDate("04/03/2024")
	assert.Error(t, err)
}

func TestParseTimestamp(t *testing.T) {
	naive, err := ParseTimestamp("2024-03-04T09:30:00", testLoc)
	require.NoError(t, err)
	assert.True(t, naive.Equal(at(t, "2024-03-04 09:30")))

	short, err := ParseTimestamp("2024-03-04 09:30", testLoc)
	require.NoError(t, err)
	assert.True(t, short.Equal(naive))

	aware, err := ParseTimestamp("2024-03-04T07:30:00Z", testLoc)
	require.NoError(t, err)
	assert.True(t, aware.Equal(naive))

	_, err = ParseTimestamp("yesterday", testLoc)
	assert.Error(t, err)
}

func TestNewValidation(t *testing.T) {
	now := at(t, "2024-03-04 09:00")
	valid := Config{Name: "Aspirin", Dosage: "100mg", Frequency: FrequencyDaily, Times: []string{"21:00", "09:00", "09:00"}}

	m, err := New("id-1", valid, now)
	require.NoError(t, err)
	assert.Equal(t, []TimeOfDay{{Hour: 9}, {Hour: 21}}, m.Times)
	assert.Empty(t, m.History)
	assert.Equal(t, now, m.CreatedAt)

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr error
	}{
		{"missing name", func(c *Config) { c.Name = " " }, apperrors.ErrValidation},
		{"missing dosage", func(c *Config) { c.Dosage = "" }, apperrors.ErrValidation},
		{"missing frequency", func(c *Config) { c.Frequency = "" }, apperrors.ErrValidation},
		{"unknown frequency", func(c *Config) { c.Frequency = "hourly" }, apperrors.ErrValidation},
		{"missing times", func(c *Config) { c.Times = nil }, apperrors.ErrValidation},
		{"malformed time", func(c *Config) { c.Times = []string{"25:00"} }, apperrors.ErrConfiguration},
		{"inverted range", func(c *Config) {
			c.StartDate = &Date{Year: 2024, Month: time.March, Day: 10}
			c.EndDate = &Date{Year: 2024, Month: time.March, Day: 1}
		}, apperrors.ErrConfiguration},
		{"ancient start date", func(c *Config) {
			c.StartDate = &Date{Year: 1, Month: time.January, Day: 1}
		}, apperrors.ErrConfiguration},
		{"far future end date", func(c *Config) {
			c.EndDate = &Date{Year: 10000, Month: time.January, Day: 1}
		}, apperrors.ErrConfiguration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			_, err := New("id-1", cfg, now)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
			assert.True(t, errors.Is(err, apperrors.ErrValidation), "got %v", err)
		})
	}
}

func TestValidateBoundsInstants(t *testing.T) {
	m, err := New("id-1", Config{Name: "Aspirin", Dosage: "100mg", Frequency: FrequencyAsNeeded}, time.Now())
	require.NoError(t, err)

	ancient := m.Clone()
	ancient.Record(DoseEvent{Timestamp: time.Date(1, time.January, 1, 9, 0, 0, 0, time.UTC), Action: ActionTaken})
	err = Validate(ancient)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeConfiguration, apperrors.GetCode(err))

	imported := m.Clone()
	imported.CreatedAt = time.Date(1, time.January, 1, 0, 0, 0, 0, time.UTC)
	assert.Error(t, Validate(imported))

	imported.CreatedAt = time.Time{}
	assert.NoError(t, Validate(imported))
}

func TestNewAsNeededWithoutTimes(t *testing.T) {
	m, err := New("id-2", Config{Name: "Ibuprofen", Dosage: "200mg", Frequency: FrequencyAsNeeded}, time.Now())
	require.NoError(t, err)
	assert.Empty(t, m.Times)
}

func TestApplyPatch(t *testing.T) {
	now := at(t, "2024-03-04 09:00")
	m, err := New("id-1", Config{
		Name: "Aspirin", Dosage: "100mg", Frequency: FrequencyDaily,
		Times: []string{"09:00"}, EndDate: &Date{Year: 2024, Month: time.April, Day: 1},
	}, now)
	require.NoError(t, err)
	record(&m, ActionTaken, now)

	dosage := "200mg"
	freq := FrequencyWeekly
	later := now.Add(time.Hour)
	updated, err := m.Apply(Patch{Dosage: &dosage, Frequency: &freq, EndDate: DateField{Set: true}}, later)
	require.NoError(t, err)

	assert.Equal(t, "Aspirin", updated.Name)
	assert.Equal(t, "200mg", updated.Dosage)
	assert.Equal(t, FrequencyWeekly, updated.Frequency)
	assert.Equal(t, []TimeOfDay{{Hour: 9}}, updated.Times)
	assert.Nil(t, updated.EndDate)
	assert.Len(t, updated.History, 1)
	assert.Equal(t, later, updated.UpdatedAt)

	// the original is untouched
	assert.Equal(t, "100mg", m.Dosage)
	assert.NotNil(t, m.EndDate)

	_, err = m.Apply(Patch{Times: []string{}}, later)
	assert.True(t, errors.Is(err, apperrors.ErrValidation))

	_, err = m.Apply(Patch{Times: []string{"9am"}}, later)
	assert.True(t, errors.Is(err, apperrors.ErrConfiguration))
}
