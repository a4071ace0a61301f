// Package businesshours decides whether a moment falls inside Japanese
// business hours (weekdays 8:00-19:00 JST, national holidays excluded).
// Holiday data comes from the Cabinet Office CSV and is refreshed once
// a day, with a baked-in fallback list when the download fails.
package businesshours

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"
)

// HolidaysCSVURL is the Cabinet Office national holiday CSV
const HolidaysCSVURL = "https://www8.cao.go.jp/chosei/shukujitsu/syukujitsu.csv"

const (
	businessStartHour = 8
	businessEndHour   = 19
)

// Calendar answers business-hour questions. Now is injectable for
// tests.
type Calendar struct {
	client *http.Client
	csvURL string
	log    *logrus.Logger
	Now    func() time.Time

	mu          sync.Mutex
	holidays    map[string]bool // keyed "2006-01-02" in JST
	lastFetched string          // JST date of the last refresh
}

var jst = time.FixedZone("JST", 9*60*60)

// New creates a calendar fetching holidays from the Cabinet Office CSV
func New(log *logrus.Logger) *Calendar {
	return &Calendar{
		client: &http.Client{Timeout: 15 * time.Second},
		csvURL: HolidaysCSVURL,
		log:    log,
		Now:    time.Now,
	}
}

// NewWithURL creates a calendar against a custom CSV endpoint
func NewWithURL(csvURL string, log *logrus.Logger) *Calendar {
	c := New(log)
	c.csvURL = csvURL
	return c
}

// IsBusinessHours reports whether now is a JST weekday between 8:00 and
// 19:00 and not a national holiday
func (c *Calendar) IsBusinessHours(ctx context.Context) bool {
	now := c.Now().In(jst)
	if now.Weekday() == time.Saturday || now.Weekday() == time.Sunday {
		return false
	}
	if c.getHolidays(ctx)[now.Format("2006-01-02")] {
		return false
	}
	return now.Hour() >= businessStartHour && now.Hour() < businessEndHour
}

// NextBusinessMorning returns the next business day at 8:00 JST. If
// today is a business day and it is before 8:00, today qualifies.
func (c *Calendar) NextBusinessMorning(ctx context.Context) time.Time {
	now := c.Now().In(jst)
	holidays := c.getHolidays(ctx)

	candidate := time.Date(now.Year(), now.Month(), now.Day(), businessStartHour, 0, 0, 0, jst)
	if isBusinessDay(candidate, holidays) && now.Before(candidate) {
		return candidate
	}

	candidate = candidate.AddDate(0, 0, 1)
	for i := 0; i < 30; i++ {
		if isBusinessDay(candidate, holidays) {
			return candidate
		}
		candidate = candidate.AddDate(0, 0, 1)
	}
	return candidate
}

func isBusinessDay(day time.Time, holidays map[string]bool) bool {
	if day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
		return false
	}
	return !holidays[day.Format("2006-01-02")]
}

// getHolidays returns the cached holiday set, refreshing once per JST
// day
func (c *Calendar) getHolidays(ctx context.Context) map[string]bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	today := c.Now().In(jst).Format("2006-01-02")
	if c.lastFetched == today && len(c.holidays) > 0 {
		return c.holidays
	}

	fetched, err := c.fetchHolidays(ctx)
	switch {
	case err == nil && len(fetched) > 0:
		c.holidays = fetched
		c.log.WithField("count", len(fetched)).Info("Fetched holiday calendar")
	case len(c.holidays) == 0:
		c.holidays = fallbackHolidays()
		c.log.WithError(err).Warn("Using fallback holiday list")
	default:
		// Keep the previous fetch until the next refresh succeeds
		c.log.WithError(err).Warn("Holiday refresh failed, keeping cached list")
	}
	c.lastFetched = today
	return c.holidays
}

// fetchHolidays downloads and parses the Shift-JIS holiday CSV. Rows
// are "YYYY/M/D,name"; unparseable rows (including the header) are
// skipped.
func (c *Calendar) fetchHolidays(ctx context.Context) (map[string]bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.csvURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build holidays request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch holidays csv: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("holidays csv returned %d", resp.StatusCode)
	}

	decoded := transform.NewReader(resp.Body, japanese.ShiftJIS.NewDecoder())
	reader := csv.NewReader(decoded)
	reader.FieldsPerRecord = -1

	holidays := make(map[string]bool)
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read holidays csv: %w", err)
		}
		if len(row) == 0 {
			continue
		}
		day, err := time.ParseInLocation("2006/1/2", strings.TrimSpace(row[0]), jst)
		if err != nil {
			continue
		}
		holidays[day.Format("2006-01-02")] = true
	}
	return holidays, nil
}

// fallbackHolidays covers 2025-2027 for when the CSV is unreachable
func fallbackHolidays() map[string]bool {
	days := []string{
		// 2025
		"2025-01-01", "2025-01-13", "2025-02-11", "2025-02-23", "2025-02-24",
		"2025-03-20", "2025-04-29", "2025-05-03", "2025-05-04", "2025-05-05",
		"2025-05-06", "2025-07-21", "2025-08-11", "2025-09-15", "2025-09-23",
		"2025-10-13", "2025-11-03", "2025-11-23", "2025-11-24",
		// 2026
		"2026-01-01", "2026-01-12", "2026-02-11", "2026-02-23", "2026-03-20",
		"2026-04-29", "2026-05-03", "2026-05-04", "2026-05-05", "2026-05-06",
		"2026-07-20", "2026-08-11", "2026-09-21", "2026-09-22", "2026-09-23",
		"2026-10-12", "2026-11-03", "2026-11-23",
		// 2027
		"2027-01-01", "2027-01-11", "2027-02-11", "2027-02-23", "2027-03-21",
		"2027-03-22", "2027-04-29", "2027-05-03", "2027-05-04", "2027-05-05",
		"2027-07-19", "2027-08-11", "2027-09-20", "2027-09-23", "2027-10-11",
		"2027-11-03", "2027-11-23",
	}
	m := make(map[string]bool, len(days))
	for _, d := range days {
		m[d] = true
	}
	return m
}
