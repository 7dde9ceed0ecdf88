package domain

import (
	"math"
	"sort"
	"time"
)

// DailyWeather is the per-civil-day aggregate written back onto sales-fact
// rows. Nil fields mean the source had no observations for that variable that
// day; they are never zero-filled.
type DailyWeather struct {
	Date             time.Time
	TemperatureMean  *float64
	HumidityMean     *float64
	PrecipitationSum *float64
	WeatherCodeMode  *int
}

// HourlySeries holds the parallel time-indexed arrays returned by the weather
// archive for one fetch window. Entries are pointers because the source emits
// JSON nulls for missing observations.
type HourlySeries struct {
	Time               []string   `json:"time"`
	Temperature2M      []*float64 `json:"temperature_2m"`
	RelativeHumidity2M []*float64 `json:"relative_humidity_2m"`
	Precipitation      []*float64 `json:"precipitation"`
	WeatherCode        []*int     `json:"weathercode"`
}

// DateWindow is one inclusive contiguous date range sent in a single external
// fetch call.
type DateWindow struct {
	Start time.Time
	End   time.Time
}

// Windows partitions the inclusive span [start, end] into contiguous windows
// of at most chunkDays days each, covering every day exactly once.
func Windows(start, end time.Time, chunkDays int) []DateWindow {
	start, end = DateOf(start), DateOf(end)
	if end.Before(start) || chunkDays <= 0 {
		return nil
	}
	var windows []DateWindow
	for cur := start; !cur.After(end); {
		to := cur.AddDate(0, 0, chunkDays-1)
		if to.After(end) {
			to = end
		}
		windows = append(windows, DateWindow{Start: cur, End: to})
		cur = to.AddDate(0, 0, 1)
	}
	return windows
}

// AggregateDaily reduces an hourly series to one DailyWeather per civil day:
// temperature and humidity by arithmetic mean, precipitation by sum, weather
// code by mode (ties resolved toward the smallest code). Numeric aggregates
// round to two decimals.
func AggregateDaily(series HourlySeries) map[time.Time]DailyWeather {
	type accum struct {
		tempSum, humSum, precipSum float64
		tempN, humN, precipN       int
		codeCounts                 map[int]int
	}
	byDay := make(map[time.Time]*accum)

	for i, stamp := range series.Time {
		day, ok := parseHourStamp(stamp)
		if !ok {
			continue
		}
		a := byDay[day]
		if a == nil {
			a = &accum{codeCounts: make(map[int]int)}
			byDay[day] = a
		}
		if v := at(series.Temperature2M, i); v != nil {
			a.tempSum += *v
			a.tempN++
		}
		if v := at(series.RelativeHumidity2M, i); v != nil {
			a.humSum += *v
			a.humN++
		}
		if v := at(series.Precipitation, i); v != nil {
			a.precipSum += *v
			a.precipN++
		}
		if c := at(series.WeatherCode, i); c != nil {
			a.codeCounts[*c]++
		}
	}

	out := make(map[time.Time]DailyWeather, len(byDay))
	for day, a := range byDay {
		dw := DailyWeather{Date: day}
		if a.tempN > 0 {
			dw.TemperatureMean = round2(a.tempSum / float64(a.tempN))
		}
		if a.humN > 0 {
			dw.HumidityMean = round2(a.humSum / float64(a.humN))
		}
		if a.precipN > 0 {
			dw.PrecipitationSum = round2(a.precipSum)
		}
		if code, ok := modeCode(a.codeCounts); ok {
			dw.WeatherCodeMode = &code
		}
		out[day] = dw
	}
	return out
}

// parseHourStamp extracts the civil day from an archive timestamp such as
// "2024-01-05T13:00". Timestamps are already localized to the requested
// timezone by the source.
func parseHourStamp(stamp string) (time.Time, bool) {
	if len(stamp) < len(time.DateOnly) {
		return time.Time{}, false
	}
	day, err := time.Parse(time.DateOnly, stamp[:len(time.DateOnly)])
	if err != nil {
		return time.Time{}, false
	}
	return day, true
}

// modeCode returns the most frequent weather code; ties break toward the
// smallest code so the result is deterministic.
func modeCode(counts map[int]int) (int, bool) {
	if len(counts) == 0 {
		return 0, false
	}
	codes := make([]int, 0, len(counts))
	for c := range counts {
		codes = append(codes, c)
	}
	sort.Ints(codes)
	best, bestCount := codes[0], counts[codes[0]]
	for _, c := range codes[1:] {
		if counts[c] > bestCount {
			best, bestCount = c, counts[c]
		}
	}
	return best, true
}

func round2(v float64) *float64 {
	r := math.Round(v*100) / 100
	return &r
}

func at[T any](s []*T, i int) *T {
	if i < 0 || i >= len(s) {
		return nil
	}
	return s[i]
}
