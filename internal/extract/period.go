package extract

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/JakeFAU/legisnotice/internal/legislation"
)

var (
	// ErrNoPeriod means the text holds no complete "start ~ end" date range.
	ErrNoPeriod = errors.New("no period found")
	// ErrInvalidPeriod means a range matched but does not describe real, ordered dates.
	ErrInvalidPeriod = errors.New("invalid period")
)

// periodPattern accepts ".", "-" or a space between date parts, an optional
// trailing "." after the start day and "~" between the two dates.
var periodPattern = regexp.MustCompile(
	`(\d{4})[.\- ]\s*(\d{1,2})[.\- ]\s*(\d{1,2})\.?\s*~\s*(\d{4})[.\- ]\s*(\d{1,2})[.\- ]\s*(\d{1,2})`,
)

// Period is a comment window with inclusive calendar-day bounds.
type Period struct {
	Start time.Time
	End   time.Time
}

// StartDate returns the zero-padded ISO start date.
func (p Period) StartDate() string { return p.Start.Format(legislation.DateLayout) }

// EndDate returns the zero-padded ISO end date.
func (p Period) EndDate() string { return p.End.Format(legislation.DateLayout) }

// ParsePeriod finds the first date range in free-form text. A single date
// without its counterpart is not a period.
func ParsePeriod(text string) (Period, error) {
	m := periodPattern.FindStringSubmatch(text)
	if m == nil {
		return Period{}, ErrNoPeriod
	}
	start, err := civilDate(m[1], m[2], m[3])
	if err != nil {
		return Period{}, err
	}
	end, err := civilDate(m[4], m[5], m[6])
	if err != nil {
		return Period{}, err
	}
	if start.After(end) {
		return Period{}, fmt.Errorf("%w: start %s after end %s", ErrInvalidPeriod,
			start.Format(legislation.DateLayout), end.Format(legislation.DateLayout))
	}
	return Period{Start: start, End: end}, nil
}

func civilDate(y, m, d string) (time.Time, error) {
	year, _ := strconv.Atoi(y)
	month, _ := strconv.Atoi(m)
	day, _ := strconv.Atoi(d)
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	// time.Date normalizes overflow (2024-02-30 -> 2024-03-01); reject that.
	if t.Year() != year || int(t.Month()) != month || t.Day() != day {
		return time.Time{}, fmt.Errorf("%w: %s-%s-%s is not a calendar date", ErrInvalidPeriod, y, m, d)
	}
	return t, nil
}
