package domain

import "time"

// Frequency is how often a harvester should run. Values match the option
// labels of the CMS Harvester content type.
type Frequency string

const (
	FrequencyNever     Frequency = "Never"
	Frequency60Seconds Frequency = "60 Seconds"
	Frequency12Hours   Frequency = "12 Hours"
	Frequency1Day      Frequency = "1 Days"
	Frequency2Days     Frequency = "2 Days"
	Frequency7Days     Frequency = "7 Days"
	Frequency14Days    Frequency = "14 Days"
	Frequency30Days    Frequency = "30 Days"
	Frequency6Months   Frequency = "6 Months"
	Frequency12Months  Frequency = "12 Months"
)

const day = 24 * time.Hour

// Frequencies lists every known frequency in ascending order of interval.
var Frequencies = []Frequency{
	FrequencyNever,
	Frequency60Seconds,
	Frequency12Hours,
	Frequency1Day,
	Frequency2Days,
	Frequency7Days,
	Frequency14Days,
	Frequency30Days,
	Frequency6Months,
	Frequency12Months,
}

var frequencyIntervals = map[Frequency]time.Duration{
	FrequencyNever:     0,
	Frequency60Seconds: 60 * time.Second,
	Frequency12Hours:   12 * time.Hour,
	Frequency1Day:      day,
	Frequency2Days:     2 * day,
	Frequency7Days:     7 * day,
	Frequency14Days:    14 * day,
	Frequency30Days:    30 * day,
	Frequency6Months:   180 * day,
	Frequency12Months:  360 * day,
}

// ParseFrequency validates a frequency label.
func ParseFrequency(s string) (Frequency, error) {
	f := Frequency(s)
	if _, ok := frequencyIntervals[f]; !ok {
		return "", Errorf(ErrInvalid, "unknown harvest frequency %q", s)
	}
	return f, nil
}

// Interval returns the time between runs. The second result is false for
// "Never" and for unknown labels.
func (f Frequency) Interval() (time.Duration, bool) {
	d, ok := frequencyIntervals[f]
	if !ok || d == 0 {
		return 0, false
	}
	return d, true
}

func (f Frequency) String() string { return string(f) }
