package tui

import (
	"math"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const DefaultLocale = "en-US"

type dateOrder int

const (
	monthFirst dateOrder = iota
	dayFirst
	numericMonthDay
)

// Regions that write the month before the day.
var monthFirstRegions = map[string]bool{
	"US": true, "PH": true, "FM": true, "MH": true, "PW": true,
	"GU": true, "AS": true, "MP": true, "PR": true, "VI": true, "UM": true,
}

// Formatter renders dates and latencies for one locale.
type Formatter struct {
	tag     language.Tag
	order   dateOrder
	printer *message.Printer
	loc     *time.Location
}

// NewFormatter parses locale as a BCP 47 tag. An invalid tag falls back
// to en-US.
func NewFormatter(locale string, loc *time.Location) Formatter {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.AmericanEnglish
	}
	if loc == nil {
		loc = time.Local
	}
	return Formatter{
		tag:     tag,
		order:   orderFor(tag),
		printer: message.NewPrinter(tag),
		loc:     loc,
	}
}

func orderFor(tag language.Tag) dateOrder {
	base, _ := tag.Base()
	switch base.String() {
	case "ja", "zh", "ko":
		return numericMonthDay
	}
	region, _ := tag.Region()
	if monthFirstRegions[region.String()] {
		return monthFirst
	}
	return dayFirst
}

// Tag returns the resolved language tag.
func (f Formatter) Tag() language.Tag { return f.tag }

// Day formats the calendar day starting at unix seconds day as a
// two-digit month and day in locale order, e.g. 03/05 or 05/03.
func (f Formatter) Day(day int64) string {
	t := time.Unix(day, 0).In(f.loc)
	if f.order == dayFirst {
		return t.Format("02/01")
	}
	return t.Format("01/02")
}

// LongDay formats a day with its weekday and year for the tooltip line.
func (f Formatter) LongDay(day int64) string {
	t := time.Unix(day, 0).In(f.loc)
	switch f.order {
	case numericMonthDay:
		return t.Format("2006/1/2 Mon")
	case dayFirst:
		return t.Format("Mon 2 Jan 2006")
	default:
		return t.Format("Mon, Jan 2 2006")
	}
}

// Latency formats ms with locale digit grouping. Values from 100ms up are
// shown as whole milliseconds.
func (f Formatter) Latency(ms float64) string {
	if math.Abs(ms) >= 100 {
		return f.printer.Sprintf("%dms", int64(math.Round(ms)))
	}
	return f.printer.Sprintf("%.1fms", ms)
}
