package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testApp struct {
	*App
	stdout *bytes.Buffer
	stderr *bytes.Buffer
	opened int
}

func newTestApp(t *testing.T, src Source) *testApp {
	var stdout, stderr bytes.Buffer
	ta := &testApp{
		App:    NewApp(setupConfig(t), strings.NewReader(""), &stdout, &stderr),
		stdout: &stdout,
		stderr: &stderr,
	}
	ta.today = func() string { return "2024-05-01" }
	if src != nil {
		ta.open = func(context.Context, *Config) (Source, error) {
			ta.opened++
			return src, nil
		}
	}
	return ta
}

func (ta *testApp) run(args ...string) int {
	return ta.Run(context.Background(), args)
}

func errorMessage(t *testing.T, out string) string {
	t.Helper()
	var payload map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &payload), out)
	return payload["error"]
}

func TestHelp(t *testing.T) {
	for _, args := range [][]string{nil, {"--help"}, {"help"}} {
		app := newTestApp(t, nil)
		assert.Equal(t, 0, app.run(args...), args)
		assert.Contains(t, app.stdout.String(), "Commands:", args)
		assert.Contains(t, app.stdout.String(), "summary [DATE]", args)
	}
}

func TestConfigErrorDoesNotBlockCommands(t *testing.T) {
	app := newTestApp(t, nil)
	app.configErr = errors.New("parse config.yaml: timeout: bad")

	assert.Equal(t, 0, app.run())
	assert.Contains(t, app.stdout.String(), "Commands:")
	assert.Contains(t, app.stderr.String(), "warning: ignoring configuration: parse config.yaml")

	app = newTestApp(t, nil)
	app.configErr = errors.New("parse config.yaml: timeout: bad")
	assert.Equal(t, 1, app.run("summary"))
	assert.Contains(t, errorMessage(t, app.stdout.String()), "No Garmin tokens found")
}

func TestUnknownCommand(t *testing.T) {
	app := newTestApp(t, nil)

	assert.Equal(t, 1, app.run("bogus"))
	assert.Equal(t, `{"error":"Unknown command: bogus"}`+"\n", app.stdout.String())
}

func TestSummaryWithoutSession(t *testing.T) {
	app := newTestApp(t, nil)

	assert.Equal(t, 1, app.run("summary"))
	msg := errorMessage(t, app.stdout.String())
	assert.True(t, strings.HasPrefix(msg, "No Garmin tokens found at "))
	assert.Contains(t, msg, "Run: garmin-report setup")
}

func TestSummaryCommand(t *testing.T) {
	app := newTestApp(t, fullSummarySource(t))

	assert.Equal(t, 0, app.run("summary"))
	assert.Contains(t, app.stdout.String(), `"date":"2024-05-01"`)
	assert.Contains(t, app.stdout.String(), `"body_battery":{"max":55,"min":30,"current":30}`)
	assert.Equal(t, 1, strings.Count(app.stdout.String(), "\n"))

	app = newTestApp(t, fullSummarySource(t))
	assert.Equal(t, 0, app.run("summary", "2024-04-30"))
	assert.Contains(t, app.stdout.String(), `"date":"2024-04-30"`)
}

func TestSummaryRejectsBadDate(t *testing.T) {
	app := newTestApp(t, fullSummarySource(t))

	assert.Equal(t, 1, app.run("summary", "yesterday"))
	assert.Equal(t, `Invalid date "yesterday": expected YYYY-MM-DD`, errorMessage(t, app.stdout.String()))
	assert.Zero(t, app.opened)
}

func TestSummaryVerboseLogsSkippedSections(t *testing.T) {
	src := fullSummarySource(t)
	src.errs = map[string]error{"stress": errors.New("Garmin API error: 503 - busy")}
	app := newTestApp(t, src)

	assert.Equal(t, 0, app.run("summary", "--verbose"))
	assert.NotContains(t, app.stdout.String(), "avg_stress")
	assert.Contains(t, app.stderr.String(), "[garmin] ")
	assert.Contains(t, app.stderr.String(), "stress: skipped: Garmin API error: 503 - busy")
}

func TestActivitiesRejectsBadCount(t *testing.T) {
	for _, arg := range []string{"0", "abc", "2.5"} {
		app := newTestApp(t, &fakeSource{})
		assert.Equal(t, 1, app.run("activities", arg), arg)
		assert.Contains(t, errorMessage(t, app.stdout.String()), "must be a positive integer", arg)
		assert.Zero(t, app.opened, arg)
	}
}

func TestActivitiesCommand(t *testing.T) {
	src := &fakeSource{activities: activityList(t, []string{"running", "cycling"})}
	app := newTestApp(t, src)

	assert.Equal(t, 0, app.run("activities", "2"))
	assert.Equal(t, []int{2}, src.activityLimits)

	var recs []map[string]any
	require.NoError(t, json.Unmarshal(app.stdout.Bytes(), &recs))
	require.Len(t, recs, 2)
	assert.Equal(t, "cycling", recs[1]["type"])
}

func TestActivitiesFetchFailure(t *testing.T) {
	src := &fakeSource{errs: map[string]error{"activities": errors.New("Garmin API error: 500 - oops")}}
	app := newTestApp(t, src)

	assert.Equal(t, 1, app.run("activities"))
	assert.Equal(t, `{"error":"Garmin API error: 500 - oops"}`+"\n", app.stdout.String())
	assert.Equal(t, []int{defaultCount}, src.activityLimits)
}

func TestRunsTable(t *testing.T) {
	src := &fakeSource{activities: mustRaw(t, `[
		{"activityId": 1, "activityName": "Morning Run", "activityType": {"typeKey": "running"},
		 "startTimeLocal": "2024-05-01 07:15:00", "duration": 1800, "distance": 5000, "averageHR": 150},
		{"activityId": 2, "activityName": "Commute", "activityType": {"typeKey": "cycling"}, "duration": 900}
	]`)}
	app := newTestApp(t, src)

	assert.Equal(t, 0, app.run("runs", "--table"))
	out := app.stdout.String()
	assert.Contains(t, strings.ToLower(out), "morning run")
	assert.NotContains(t, strings.ToLower(out), "commute")
	assert.Contains(t, out, "5.00")
	assert.Contains(t, out, "6:00/km")
	assert.Contains(t, out, "30:00")
}

func TestTrainingCommand(t *testing.T) {
	src := &fakeSource{maxMetrics: mustRaw(t, `{"vo2MaxValue": 50}`)}
	app := newTestApp(t, src)

	assert.Equal(t, 0, app.run("training"))
	assert.JSONEq(t, `{"date": "2024-05-01", "vo2_max": 50}`, app.stdout.String())
}

func TestSetupCommand(t *testing.T) {
	app := newTestApp(t, nil)
	auth := &fakeAuth{}
	app.newAuth = func(*Config) Authenticator { return auth }

	assert.Equal(t, 0, app.run("setup", "--email", "other@example.com"))
	assert.Equal(t, "other@example.com", auth.email)

	var result setupResult
	require.NoError(t, json.Unmarshal(app.stdout.Bytes(), &result))
	assert.True(t, result.OK)
	assert.True(t, strings.HasPrefix(result.Message, "Logged in as other@example.com."))
}

func TestSetupCommandFailure(t *testing.T) {
	app := newTestApp(t, nil)
	app.newAuth = func(*Config) Authenticator { return &fakeAuth{err: errors.New("bad credentials")} }

	assert.Equal(t, 1, app.run("setup"))
	assert.Equal(t, "Login failed: bad credentials", errorMessage(t, app.stdout.String()))
}
