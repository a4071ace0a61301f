package businesshours

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// calendarAt returns a calendar pinned to a fixed JST moment with no
// reachable CSV, exercising the fallback list
func calendarAt(t *testing.T, year int, month time.Month, day, hour, min int) *Calendar {
	t.Helper()
	c := NewWithURL("http://127.0.0.1:1/holidays.csv", testLogger())
	c.Now = func() time.Time {
		return time.Date(year, month, day, hour, min, 0, 0, jst)
	}
	return c
}

// TestIsBusinessHoursWeekday tests the weekday window bounds
func TestIsBusinessHoursWeekday(t *testing.T) {
	ctx := context.Background()

	// 2026-05-07 is a Thursday, not a holiday
	assert.False(t, calendarAt(t, 2026, 5, 7, 7, 59).IsBusinessHours(ctx), "Before 8:00")
	assert.True(t, calendarAt(t, 2026, 5, 7, 8, 0).IsBusinessHours(ctx), "8:00 opens")
	assert.True(t, calendarAt(t, 2026, 5, 7, 12, 30).IsBusinessHours(ctx))
	assert.True(t, calendarAt(t, 2026, 5, 7, 18, 59).IsBusinessHours(ctx))
	assert.False(t, calendarAt(t, 2026, 5, 7, 19, 0).IsBusinessHours(ctx), "19:00 closes")
}

// TestIsBusinessHoursWeekend tests Saturday and Sunday
func TestIsBusinessHoursWeekend(t *testing.T) {
	ctx := context.Background()

	// 2026-05-09 Saturday, 2026-05-10 Sunday
	assert.False(t, calendarAt(t, 2026, 5, 9, 10, 0).IsBusinessHours(ctx))
	assert.False(t, calendarAt(t, 2026, 5, 10, 10, 0).IsBusinessHours(ctx))
}

// TestIsBusinessHoursHoliday tests a national holiday on a weekday
func TestIsBusinessHoursHoliday(t *testing.T) {
	ctx := context.Background()

	// 2026-05-04 (Monday, Greenery Day) is in the fallback list
	assert.False(t, calendarAt(t, 2026, 5, 4, 10, 0).IsBusinessHours(ctx))
}

// TestNextBusinessMorning tests the skip-ahead logic
func TestNextBusinessMorning(t *testing.T) {
	ctx := context.Background()

	// Thursday before opening: same day
	next := calendarAt(t, 2026, 5, 7, 6, 0).NextBusinessMorning(ctx)
	assert.Equal(t, time.Date(2026, 5, 7, 8, 0, 0, 0, jst).Unix(), next.Unix())

	// Friday afternoon: Monday morning
	next = calendarAt(t, 2026, 5, 8, 15, 0).NextBusinessMorning(ctx)
	assert.Equal(t, time.Date(2026, 5, 11, 8, 0, 0, 0, jst).Unix(), next.Unix())

	// Friday 2026-05-01 evening: 5/4-5/6 are holidays, so 5/7
	next = calendarAt(t, 2026, 5, 1, 20, 0).NextBusinessMorning(ctx)
	assert.Equal(t, time.Date(2026, 5, 7, 8, 0, 0, 0, jst).Unix(), next.Unix())
}

// TestFetchHolidaysShiftJIS tests parsing the Cabinet Office CSV format
func TestFetchHolidaysShiftJIS(t *testing.T) {
	csvBody := "国民の祝日・休日月日,国民の祝日・休日名称\n" +
		"2026/1/1,元日\n" +
		"2026/5/4,みどりの日\n"
	encoded, _, err := transform.String(japanese.ShiftJIS.NewEncoder(), csvBody)
	assert.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, encoded)
	}))
	defer srv.Close()

	c := NewWithURL(srv.URL, testLogger())
	holidays, err := c.fetchHolidays(context.Background())
	assert.NoError(t, err)
	assert.True(t, holidays["2026-01-01"])
	assert.True(t, holidays["2026-05-04"])
	assert.False(t, holidays["2026-05-07"])
	assert.Len(t, holidays, 2, "Header row should be skipped")
}

// TestHolidayRefreshCaching tests the once-per-day refresh
func TestHolidayRefreshCaching(t *testing.T) {
	var hits int
	csvBody, _, _ := transform.String(japanese.ShiftJIS.NewEncoder(), "2026/1/1,元日\n")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		io.WriteString(w, csvBody)
	}))
	defer srv.Close()

	c := NewWithURL(srv.URL, testLogger())
	c.Now = func() time.Time { return time.Date(2026, 5, 7, 10, 0, 0, 0, jst) }

	ctx := context.Background()
	c.IsBusinessHours(ctx)
	c.IsBusinessHours(ctx)
	c.NextBusinessMorning(ctx)
	assert.Equal(t, 1, hits, "Should fetch at most once per day")
}
