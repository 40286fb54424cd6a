package extract

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	numericDate = regexp.MustCompile(`\b(\d{1,2})[/-](\d{1,2})[/-](\d{4})\b`)
	longDate    = regexp.MustCompile(`(?i)\b(\d{1,2})\s+de\s+(\p{L}+)\s+(?:del?\s+)?(\d{4})\b`)
	isoDate     = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
)

var spanishMonths = map[string]string{
	"enero":      "January",
	"febrero":    "February",
	"marzo":      "March",
	"abril":      "April",
	"mayo":       "May",
	"junio":      "June",
	"julio":      "July",
	"agosto":     "August",
	"septiembre": "September",
	"setiembre":  "September",
	"octubre":    "October",
	"noviembre":  "November",
	"diciembre":  "December",
}

// ParseDate returns the first valid date in s, trying D/M/YYYY (or
// D-M-YYYY), then "D de MES de|del YYYY", then ISO YYYY-MM-DD. Matches that
// do not form a real calendar date are skipped. The result is midnight in loc.
func ParseDate(s string, loc *time.Location) (time.Time, bool) {
	if loc == nil {
		loc = time.Local
	}
	for _, m := range numericDate.FindAllStringSubmatch(s, -1) {
		if t, ok := makeDate(m[3], m[2], m[1], loc); ok {
			return t, true
		}
	}
	for _, m := range longDate.FindAllStringSubmatch(s, -1) {
		month := strings.ToLower(m[2])
		if en, ok := spanishMonths[month]; ok {
			month = en
		}
		t, err := time.ParseInLocation("2 January 2006", m[1]+" "+month+" "+m[3], loc)
		if err == nil {
			return t, true
		}
	}
	for _, m := range isoDate.FindAllStringSubmatch(s, -1) {
		if t, ok := makeDate(m[1], m[2], m[3], loc); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

// makeDate rejects dates that time.Date would normalise, such as 31/02.
func makeDate(year, month, day string, loc *time.Location) (time.Time, bool) {
	y, _ := strconv.Atoi(year)
	m, _ := strconv.Atoi(month)
	d, _ := strconv.Atoi(day)
	if m < 1 || m > 12 || d < 1 {
		return time.Time{}, false
	}
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, loc)
	if t.Day() != d || int(t.Month()) != m {
		return time.Time{}, false
	}
	return t, true
}

// hasDateLike reports whether s contains something shaped like a date,
// valid or not.
func hasDateLike(s string) bool {
	return numericDate.MatchString(s) || longDate.MatchString(s) || isoDate.MatchString(s)
}
