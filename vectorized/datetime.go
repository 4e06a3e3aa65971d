package vectorized

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	MicrosPerSecond = int64(1000000)
	MicrosPerDay    = 86400 * MicrosPerSecond
)

var (
	iso8601Date     = regexp.MustCompile(`^(-?[0-9]{4})([-/]([0-9]{2})([-/]([0-9]{2}))?)?$`)
	iso8601Time     = regexp.MustCompile(`^([0-9]{2}):([0-9]{2})(:([0-9]{2})(\.[0-9]+)?)?([-+][0-9]{2}:[0-9]{2}|Z)?$`)
	iso8601DateTime = regexp.MustCompile(`^(-?[0-9]{4})([-/]([0-9]{2})([-/]([0-9]{2})([T ]([0-9]{2}):([0-9]{2})(:([0-9]{2})(\.[0-9]+)?)?([-+][0-9]{2}:[0-9]{2}|Z)?)?)?)?$`)
)

// offset and factor (in microseconds) for the numeric date representations
func (dt DataType) numericEpoch() (offset int64, factor int64) {
	switch dt {
	case DATEDAYS0:
		return -62167219200 * MicrosPerSecond, MicrosPerDay
	case DATEDAYS1960:
		return -315619200 * MicrosPerSecond, MicrosPerDay
	case DATEDAYS1970:
		return 0, MicrosPerDay
	case DATEDAYS1980:
		return 315532800 * MicrosPerSecond, MicrosPerDay
	case TIMESECONDS:
		return 0, MicrosPerSecond
	case DATETIMESECONDS0:
		return -62167219200 * MicrosPerSecond, MicrosPerSecond
	case DATETIMESECONDS1960:
		return -315619200 * MicrosPerSecond, MicrosPerSecond
	case DATETIMESECONDS1970:
		return 0, MicrosPerSecond
	case DATETIMESECONDS1980:
		return 315532800 * MicrosPerSecond, MicrosPerSecond
	}
	return 0, 1
}

func (dt DataType) isNumericEpoch() bool {
	switch dt {
	case DATE, TIME, DATETIME:
		return false
	}
	return dt.IsTemporal()
}

// TimeToMicros converts a time to microseconds since 1970 UTC
func TimeToMicros(t time.Time) int64 {
	return t.Unix()*MicrosPerSecond + int64(t.Nanosecond()/1000)
}

// MicrosToTime converts microseconds since 1970 to a UTC time
func MicrosToTime(us int64) time.Time {
	sec := floorDiv(us, MicrosPerSecond)
	return time.Unix(sec, (us-sec*MicrosPerSecond)*1000).UTC()
}

// YearStartMicros is January 1 of year, in microseconds since 1970
func YearStartMicros(year int) int64 {
	return TimeToMicros(time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC))
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func floorMod(a, b int64) int64 {
	return a - floorDiv(a, b)*b
}

func parseSubsecond(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	return int(math.Round(f * 1e6)), nil
}

func parseZone(s string) (int64, error) {
	if s == "" || s == "Z" {
		return 0, nil
	}
	hours, err := strconv.Atoi(s[1:3])
	if err != nil {
		return 0, err
	}
	minutes, err := strconv.Atoi(s[4:6])
	if err != nil {
		return 0, err
	}
	offset := int64(hours*60+minutes) * 60 * MicrosPerSecond
	if s[0] == '-' {
		offset = -offset
	}
	return offset, nil
}

func validDate(year, month, day int) bool {
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	return t.Year() == year && int(t.Month()) == month && t.Day() == day
}

func parseISODate(s string) (int64, error) {
	groups := iso8601Date.FindStringSubmatch(strings.TrimSpace(s))
	if groups == nil {
		return 0, fmt.Errorf("invalid ISO 8601 date string: %q", s)
	}
	year, _ := strconv.Atoi(groups[1])
	month, day := 1, 1
	if groups[3] != "" {
		month, _ = strconv.Atoi(groups[3])
	}
	if groups[5] != "" {
		day, _ = strconv.Atoi(groups[5])
	}
	if !validDate(year, month, day) {
		return 0, fmt.Errorf("invalid ISO 8601 date string: %q", s)
	}
	return TimeToMicros(time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)), nil
}

func parseISOTime(s string) (int64, error) {
	groups := iso8601Time.FindStringSubmatch(strings.TrimSpace(s))
	if groups == nil {
		return 0, fmt.Errorf("invalid ISO 8601 time string: %q", s)
	}
	hour, _ := strconv.Atoi(groups[1])
	minute, _ := strconv.Atoi(groups[2])
	second := 0
	if groups[4] != "" {
		second, _ = strconv.Atoi(groups[4])
	}
	micro, err := parseSubsecond(groups[5])
	if err != nil || hour > 23 || minute > 59 || second > 59 {
		return 0, fmt.Errorf("invalid ISO 8601 time string: %q", s)
	}
	zone, err := parseZone(groups[6])
	if err != nil {
		return 0, fmt.Errorf("invalid ISO 8601 time string: %q", s)
	}
	us := (int64(hour)*3600+int64(minute)*60+int64(second))*MicrosPerSecond + int64(micro) - zone
	return floorMod(us, MicrosPerDay), nil
}

func parseISODateTime(s string) (int64, error) {
	groups := iso8601DateTime.FindStringSubmatch(strings.TrimSpace(s))
	if groups == nil {
		return 0, fmt.Errorf("invalid ISO 8601 dateTime string: %q", s)
	}
	year, _ := strconv.Atoi(groups[1])
	month, day, hour, minute, second := 1, 1, 0, 0, 0
	if groups[3] != "" {
		month, _ = strconv.Atoi(groups[3])
	}
	if groups[5] != "" {
		day, _ = strconv.Atoi(groups[5])
	}
	if groups[7] != "" {
		hour, _ = strconv.Atoi(groups[7])
		minute, _ = strconv.Atoi(groups[8])
	}
	if groups[10] != "" {
		second, _ = strconv.Atoi(groups[10])
	}
	micro, err := parseSubsecond(groups[11])
	if err != nil || !validDate(year, month, day) || hour > 23 || minute > 59 || second > 59 {
		return 0, fmt.Errorf("invalid ISO 8601 dateTime string: %q", s)
	}
	zone, err := parseZone(groups[12])
	if err != nil {
		return 0, fmt.Errorf("invalid ISO 8601 dateTime string: %q", s)
	}
	t := time.Date(year, time.Month(month), day, hour, minute, second, micro*1000, time.UTC)
	return TimeToMicros(t) - zone, nil
}

func formatDate(us int64) string {
	return MicrosToTime(us).Format("2006-01-02")
}

func formatTime(us int64) string {
	us = floorMod(us, MicrosPerDay)
	t := MicrosToTime(us)
	if us%MicrosPerSecond != 0 {
		return t.Format("15:04:05.999999")
	}
	return t.Format("15:04:05")
}

func formatDateTime(us int64) string {
	t := MicrosToTime(us)
	if us%MicrosPerSecond != 0 {
		return t.Format("2006-01-02T15:04:05.999999")
	}
	return t.Format("2006-01-02T15:04:05")
}

// StrftimeToLayout translates the common strftime directives to a Go layout
func StrftimeToLayout(format string) string {
	replacer := strings.NewReplacer(
		"%Y", "2006", "%y", "06", "%m", "01", "%d", "02", "%H", "15",
		"%I", "03", "%M", "04", "%S", "05", "%p", "PM", "%b", "Jan",
		"%B", "January", "%a", "Mon", "%A", "Monday", "%j", "002",
		"%f", "000000", "%z", "-0700", "%Z", "MST", "%%", "%",
	)
	return replacer.Replace(format)
}
