// ABOUTME: Builds the summary, training, activity and run reports from a Source.
// ABOUTME: Each report section is extracted independently and dropped whole if anything in it fails.

package main

import (
	"context"
	"fmt"
	"log"

	"github.com/samber/lo"
)

const (
	defaultCount   = 5
	minRunsFetched = 20
	runOverfetch   = 4
)

type BodyBattery struct {
	Max     int `json:"max"`
	Min     int `json:"min"`
	Current int `json:"current"`
}

// SummaryRecord omits every field whose source is missing.
type SummaryRecord struct {
	Date             string       `json:"date"`
	BodyBattery      *BodyBattery `json:"body_battery,omitempty"`
	Steps            *int         `json:"steps,omitempty"`
	ActiveCalories   *int         `json:"active_calories,omitempty"`
	TotalCalories    *int         `json:"total_calories,omitempty"`
	Floors           *int         `json:"floors,omitempty"`
	IntensityMinutes *int         `json:"intensity_minutes,omitempty"`
	RestingHR        *int         `json:"resting_hr,omitempty"`
	AvgStress        *int         `json:"avg_stress,omitempty"`
	MaxStress        *int         `json:"max_stress,omitempty"`
	ReadinessScore   *int         `json:"readiness_score,omitempty"`
	ReadinessLevel   *string      `json:"readiness_level,omitempty"`
}

type TrainingRecord struct {
	Date                 string   `json:"date"`
	TrainingStatus       *string  `json:"training_status,omitempty"`
	TrainingLoad         *float64 `json:"training_load,omitempty"`
	TrainingLoadFeedback *string  `json:"training_load_feedback,omitempty"`
	VO2Max               *float64 `json:"vo2_max,omitempty"`
	FitnessAge           *int     `json:"fitness_age,omitempty"`
	ReadinessScore       *int     `json:"readiness_score,omitempty"`
	ReadinessLevel       *string  `json:"readiness_level,omitempty"`
}

type readiness struct {
	score *int
	level *string
}

type Report struct {
	src Source
	log *log.Logger
}

func NewReport(src Source, logger *log.Logger) *Report {
	return &Report{src: src, log: logger}
}

// section runs one extraction step. Errors and panics are logged and
// swallowed so the remaining sections still run.
func (r *Report) section(name string, fn func() error) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Printf("%s: skipped after panic: %v", name, p)
		}
	}()
	if err := fn(); err != nil {
		r.log.Printf("%s: skipped: %v", name, err)
	}
}

// Summary collects body battery, daily stats, resting heart rate, stress and
// training readiness for date.
func (r *Report) Summary(ctx context.Context, date string) SummaryRecord {
	out := SummaryRecord{Date: date}

	r.section("body battery", func() error {
		raw, err := r.src.BodyBattery(ctx, date, date)
		if err != nil {
			return err
		}
		bb, err := bodyBattery(raw)
		if err != nil {
			return err
		}
		out.BodyBattery = bb
		return nil
	})

	r.section("daily stats", func() error {
		raw, err := r.src.DailyStats(ctx, date)
		if err != nil {
			return err
		}
		stats := raw.First()
		if !stats.IsObject() || !stats.Truthy() {
			return nil
		}

		steps, err := present(stats.Get("totalSteps"), Raw.Int)
		if err != nil {
			return err
		}
		active, err := present(stats.Get("activeKilocalories"), Raw.Int)
		if err != nil {
			return err
		}
		total, err := present(stats.Get("totalKilocalories"), Raw.Int)
		if err != nil {
			return err
		}
		floors, err := present(stats.Get("floorsAscended"), Raw.Int)
		if err != nil {
			return err
		}
		moderate, err := truthy(stats.Get("moderateIntensityMinutes"), Raw.Int)
		if err != nil {
			return err
		}
		vigorous, err := truthy(stats.Get("vigorousIntensityMinutes"), Raw.Int)
		if err != nil {
			return err
		}

		out.Steps, out.ActiveCalories, out.TotalCalories, out.Floors = steps, active, total, floors
		if minutes := lo.FromPtr(moderate) + lo.FromPtr(vigorous); moderate != nil || vigorous != nil {
			out.IntensityMinutes = &minutes
		}
		return nil
	})

	r.section("resting heart rate", func() error {
		raw, err := r.src.HeartRates(ctx, date)
		if err != nil {
			return err
		}
		hr := raw.First()
		if !hr.IsObject() {
			return nil
		}
		rhr, err := truthy(hr.Get("restingHeartRate"), Raw.Int)
		if err != nil {
			return err
		}
		out.RestingHR = rhr
		return nil
	})

	r.section("stress", func() error {
		raw, err := r.src.Stress(ctx, date)
		if err != nil {
			return err
		}
		stress := raw.First()
		if !stress.IsObject() {
			return nil
		}
		avg, err := present(stress.Get("avgStressLevel"), Raw.Int)
		if err != nil {
			return err
		}
		mx, err := present(stress.Get("maxStressLevel"), Raw.Int)
		if err != nil {
			return err
		}
		out.AvgStress, out.MaxStress = avg, mx
		return nil
	})

	r.section("training readiness", func() error {
		rd, err := r.readiness(ctx, date)
		if err != nil {
			return err
		}
		out.ReadinessScore, out.ReadinessLevel = rd.score, rd.level
		return nil
	})

	return out
}

// bodyBattery derives max, min and current level from the day's samples.
// Samples are bare numbers or objects carrying one of several level keys.
func bodyBattery(raw Raw) (*BodyBattery, error) {
	var levels []int
	for _, entry := range raw.Items() {
		switch {
		case entry.IsObject():
			level, err := probe(entry, Raw.Int, "charged", "level", "bodyBattery")
			if err != nil {
				return nil, err
			}
			if level != nil {
				levels = append(levels, *level)
			}
		case entry.IsNumber():
			level, err := entry.Int()
			if err != nil {
				return nil, err
			}
			levels = append(levels, level)
		}
	}
	if len(levels) == 0 {
		return nil, nil
	}
	return &BodyBattery{
		Max:     lo.Max(levels),
		Min:     lo.Min(levels),
		Current: levels[len(levels)-1],
	}, nil
}

func (r *Report) readiness(ctx context.Context, date string) (readiness, error) {
	raw, err := r.src.TrainingReadiness(ctx, date)
	if err != nil {
		return readiness{}, err
	}
	rd := raw.First()
	if !rd.IsObject() {
		return readiness{}, nil
	}
	score, err := present(rd.Get("score"), Raw.Int)
	if err != nil {
		return readiness{}, err
	}
	level, err := truthy(rd.Coalesce("level", "feedback"), Raw.Text)
	if err != nil {
		return readiness{}, err
	}
	return readiness{score: score, level: level}, nil
}

// Training collects training status, load, VO2 max, fitness age and training
// readiness for date.
func (r *Report) Training(ctx context.Context, date string) TrainingRecord {
	out := TrainingRecord{Date: date}

	r.section("training status", func() error {
		raw, err := r.src.TrainingStatus(ctx, date)
		if err != nil {
			return err
		}
		ts := raw.First()
		if !ts.IsObject() {
			return nil
		}
		status, err := truthy(ts.Coalesce("trainingStatusFeedback", "latestTrainingStatus", "trainingStatus"), Raw.Text)
		if err != nil {
			return err
		}
		load, err := present(ts.Coalesce("weeklyTrainingLoad", "trainingLoad"), Raw.Float)
		if err != nil {
			return err
		}
		feedback, err := truthy(ts.Get("trainingLoadFeedback"), Raw.Text)
		if err != nil {
			return err
		}
		out.TrainingStatus, out.TrainingLoad, out.TrainingLoadFeedback = status, load, feedback
		return nil
	})

	r.section("max metrics", func() error {
		raw, err := r.src.MaxMetrics(ctx, date)
		if err != nil {
			return err
		}
		metrics := raw.First()
		if !metrics.IsObject() {
			return nil
		}
		if generic := metrics.Get("generic"); generic.IsObject() {
			metrics = generic
		}
		vo2, err := present(metrics.Get("vo2MaxValue"), Raw.Float)
		if err != nil {
			return err
		}
		age, err := present(metrics.Get("fitnessAge"), Raw.Int)
		if err != nil {
			return err
		}
		out.VO2Max, out.FitnessAge = vo2, age
		return nil
	})

	r.section("training readiness", func() error {
		rd, err := r.readiness(ctx, date)
		if err != nil {
			return err
		}
		out.ReadinessScore, out.ReadinessLevel = rd.score, rd.level
		return nil
	})

	return out
}

// Activities returns the n most recent activities of any type.
func (r *Report) Activities(ctx context.Context, n int) ([]ActivityRecord, error) {
	raw, err := r.fetchActivities(ctx, n)
	if err != nil {
		return nil, err
	}
	return formatAll(raw)
}

// Runs returns up to n of the most recent running activities. A fixed window
// is fetched once; fewer than n runs in it yields a shorter list.
func (r *Report) Runs(ctx context.Context, n int) ([]ActivityRecord, error) {
	raw, err := r.fetchActivities(ctx, max(n*runOverfetch, minRunsFetched))
	if err != nil {
		return nil, err
	}

	runs := lo.Filter(raw, func(a Raw, _ int) bool { return isRunning(a) })
	if len(runs) > n {
		runs = runs[:n]
	}
	return formatAll(runs)
}

func (r *Report) fetchActivities(ctx context.Context, limit int) ([]Raw, error) {
	raw, err := r.src.Activities(ctx, 0, limit)
	if err != nil {
		return nil, err
	}
	if !raw.IsList() {
		return nil, fmt.Errorf("unexpected activities response: %s", raw.Kind())
	}
	return raw.Items(), nil
}

func formatAll(activities []Raw) ([]ActivityRecord, error) {
	out := make([]ActivityRecord, 0, len(activities))
	for _, a := range activities {
		rec, err := formatActivity(a)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}
