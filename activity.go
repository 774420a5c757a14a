// ABOUTME: Classification and formatting of Garmin activities.
// ABOUTME: Turns raw activity objects into ActivityRecords with explicit nulls for empty numerics.

package main

import (
	"errors"
	"math"
	"strings"
)

// ActivityRecord fields are never omitted: empty numerics serialize as null.
type ActivityRecord struct {
	ID              any      `json:"id"`
	Name            any      `json:"name"`
	Type            any      `json:"type"`
	Date            *string  `json:"date"`
	Time            *string  `json:"time"`
	DurationSec     *int     `json:"duration_sec"`
	DistanceM       *float64 `json:"distance_m"`
	AvgPaceSecPerKm *float64 `json:"avg_pace_sec_per_km"`
	AvgSpeedMps     *float64 `json:"avg_speed_mps"`
	AvgHR           *int     `json:"avg_hr"`
	MaxHR           *int     `json:"max_hr"`
	Calories        *int     `json:"calories"`
	ElevationGainM  *float64 `json:"elevation_gain_m"`
}

var runningTypes = map[string]bool{
	"run":               true,
	"trail_running":     true,
	"treadmill_running": true,
}

// activityTypeKey returns the lower-cased type key used for classification.
// A type that is not an object is used as text.
func activityTypeKey(a Raw) string {
	atype := a.Get("activityType")
	if atype.IsObject() {
		atype = atype.Get("typeKey")
	}
	if atype.IsAbsent() {
		return ""
	}
	key, err := atype.Text()
	if err != nil {
		return ""
	}
	return strings.ToLower(key)
}

func isRunning(a Raw) bool {
	key := activityTypeKey(a)
	return strings.Contains(key, "running") || runningTypes[key]
}

// activityTypeName is the reported type. A missing or empty activity type, or
// an object without typeKey, is "unknown"; a typeKey that is present is
// reported as is, including "" and null.
func activityTypeName(a Raw) any {
	atype := a.Get("activityType")
	if !atype.Truthy() {
		return "unknown"
	}
	if atype.IsObject() {
		if !atype.Has("typeKey") {
			return "unknown"
		}
		return atype.Get("typeKey").Value()
	}
	name, err := atype.Text()
	if err != nil {
		return "unknown"
	}
	return name
}

func formatActivity(a Raw) (ActivityRecord, error) {
	if !a.IsObject() {
		return ActivityRecord{}, errors.New("activity is not an object")
	}

	duration := floatOrZero(a.Get("duration"))
	distance := floatOrZero(a.Get("distance"))
	speed := floatOrZero(a.Get("averageSpeed"))

	rec := ActivityRecord{
		ID:   a.Get("activityId").Value(),
		Name: a.Get("activityName").Value(),
		Type: activityTypeName(a),
	}

	if duration != 0 {
		rec.DurationSec = ptr(int(duration))
	}
	if distance != 0 {
		rec.DistanceM = ptr(round(distance, 1))
	}
	if speed != 0 {
		rec.AvgSpeedMps = ptr(round(speed, 2))
	}
	if duration > 0 && distance > 0 {
		rec.AvgPaceSecPerKm = ptr(round(duration/(distance/1000), 1))
	}

	rec.AvgHR = intOrNil(a.Coalesce("averageHR", "averageHeartRate"))
	rec.MaxHR = intOrNil(a.Coalesce("maxHR", "maxHeartRate"))
	rec.Calories = intOrNil(a.Get("calories"))
	if elevation := floatOrZero(a.Get("elevationGain")); elevation != 0 {
		rec.ElevationGainM = ptr(round(elevation, 1))
	}

	if start, err := a.Coalesce("startTimeLocal", "startTimeGMT").Text(); err == nil && start != "" {
		rec.Date = ptr(prefix(start, 10))
		rec.Time = ptr(prefix(start, 16))
	}

	return rec, nil
}

// floatOrZero treats falsy and non-numeric values as zero.
func floatOrZero(v Raw) float64 {
	if !v.Truthy() {
		return 0
	}
	f, err := v.Float()
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

func intOrNil(v Raw) *int {
	if !v.Truthy() {
		return nil
	}
	i, err := v.Int()
	if err != nil {
		return nil
	}
	return &i
}

func round(x float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(x*p) / p
}

func prefix(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func ptr[T any](v T) *T { return &v }
