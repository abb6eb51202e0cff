package webapp

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/maxence-charriere/go-app/v10/pkg/app"
)

// JobsPage displays and manages background jobs
type JobsPage struct {
	app.Compo
	jobs          []Job
	outputs       map[string][]BatchOutput // manifests by job id, loaded on demand
	loading       bool
	error         string
	autoRefresh   bool
	refreshTicker *time.Ticker
}

// OnMount is called when the component is mounted
func (j *JobsPage) OnMount(ctx app.Context) {
	j.autoRefresh = true
	j.loadJobs(ctx)

	// Start auto-refresh every 2 seconds
	ctx.Async(func() {
		j.refreshTicker = time.NewTicker(2 * time.Second)
		for range j.refreshTicker.C {
			if j.autoRefresh {
				j.loadJobs(ctx)
			}
		}
	})
}

// OnDismount is called when the component is unmounted
func (j *JobsPage) OnDismount() {
	if j.refreshTicker != nil {
		j.refreshTicker.Stop()
	}
}

// Render renders the jobs page
func (j *JobsPage) Render() app.UI {
	return app.Div().
		Class("jobs-page").
		Body(
			app.H2().Text("Background Jobs"),
			app.P().Text("Every batch is recorded here with its numbering range and any failures."),

			app.Div().Class("jobs-controls").Body(
				app.Button().
					Class("btn-primary").
					OnClick(j.onRefreshClick).
					Disabled(j.loading).
					Body(app.Text("Refresh")),
				app.Label().Class("auto-refresh-label").Body(
					app.Input().
						Type("checkbox").
						Checked(j.autoRefresh).
						OnChange(j.onAutoRefreshChange),
					app.Text(" Auto-refresh"),
				),
			),

			j.renderStatus(),
		)
}

// renderStatus renders the jobs list or status messages
func (j *JobsPage) renderStatus() app.UI {
	if j.loading && len(j.jobs) == 0 {
		return app.Div().Class("loading").Body(
			app.Text("Loading jobs..."),
		)
	}

	if j.error != "" {
		return app.Div().Class("error").Body(
			app.Text("Error: " + j.error),
		)
	}

	if len(j.jobs) == 0 {
		return app.Div().Class("info").Body(
			app.P().Text("No jobs found. A job is recorded for every processed batch and history cleanup."),
		)
	}

	return app.Div().Class("jobs-list").Body(
		j.renderJobsList()...,
	)
}

// renderJobsList renders the list of jobs
func (j *JobsPage) renderJobsList() []app.UI {
	var items []app.UI

	for i := range j.jobs {
		job := &j.jobs[i]
		items = append(items, j.renderJob(job))
	}

	return items
}

// renderJob renders a single job card
func (j *JobsPage) renderJob(job *Job) app.UI {
	statusClass := "job-card job-" + job.Status

	return app.Div().
		Class(statusClass).
		Body(
			app.Div().Class("job-header").Body(
				app.Div().Class("job-type").Body(
					app.Strong().Text(j.formatJobType(job.Type)),
					app.Span().Class("job-status-badge job-status-"+job.Status).
						Body(app.Text(job.Status)),
				),
				app.Div().Class("job-time").Body(
					app.Text(j.formatTime(job.CreatedAt)),
				),
			),

			app.If(job.Status == "running",
				func() app.UI {
					return app.Div().Class("job-progress").Body(
						app.Div().Class("progress-bar").Body(
							app.Div().
								Class("progress-fill").
								Style("width", fmt.Sprintf("%d%%", job.Progress)),
						),
						app.Div().Class("progress-text").Body(
							app.Text(fmt.Sprintf("%d%% - %s", job.Progress, job.CurrentStep)),
						),
					)
				},
			),

			app.If(job.Message != "",
				func() app.UI {
					return app.Div().Class("job-message").Body(
						app.Text(job.Message),
					)
				},
			),

			app.If(job.Error != "",
				func() app.UI {
					return app.Div().Class("job-error").Body(
						app.Strong().Text("Error: "),
						app.Text(job.Error),
					)
				},
			),

			app.If(job.Summary != nil,
				func() app.UI {
					return j.renderSummary(job)
				},
			),

			app.If(job.Summary == nil && job.Result != "",
				func() app.UI {
					return app.Div().Class("job-result").Body(
						app.Text(j.formatResult(job.Result)),
					)
				},
			),

			app.Div().Class("job-footer").Body(
				app.Div().Class("job-id").Body(
					app.Text("ID: " + job.ID),
				),
				app.If(job.CompletedAt != "",
					func() app.UI {
						return app.Div().Class("job-completed").Body(
							app.Text("Completed: " + j.formatTime(job.CompletedAt)),
						)
					},
				),
			),
		)
}

// formatJobType converts job type to readable format
func (j *JobsPage) formatJobType(jobType string) string {
	switch jobType {
	case "batch":
		return "Batch"
	case "cleanup":
		return "History Cleanup"
	default:
		if jobType == "" {
			return "Job"
		}
		return strings.ToUpper(jobType[:1]) + jobType[1:]
	}
}

// renderSummary shows the numbering range, failures and the output manifest
func (j *JobsPage) renderSummary(job *Job) app.UI {
	sum := job.Summary
	var failures []app.UI
	for _, f := range sum.FailureList {
		failures = append(failures, app.Li().Body(
			app.Strong().Text(f.Name),
			app.Text(": "+f.Error),
		))
	}

	manifest, loaded := j.outputs[job.ID]
	var outputs []app.UI
	for _, o := range manifest {
		outputs = append(outputs, app.Li().Text(o.Filename+" (From: "+o.Provenance+")"))
	}

	return app.Div().Class("job-summary").Body(
		app.Div().Class("job-result").Text(formatSummary(sum)),
		app.If(len(failures) > 0, func() app.UI {
			return app.Ul().Class("failure-list").Body(failures...)
		}),
		app.If(sum.Outputs > 0 && !loaded, func() app.UI {
			return app.Button().
				Class("btn-link").
				OnClick(func(ctx app.Context, e app.Event) { j.loadOutputs(ctx, job.ID) }).
				Text("Show files")
		}),
		app.If(len(outputs) > 0, func() app.UI {
			return app.Ul().Class("output-list").Body(outputs...)
		}),
	)
}

// formatSummary describes a batch summary in one line
func formatSummary(sum *BatchSummary) string {
	parts := []string{fmt.Sprintf("Inputs: %d", sum.Inputs), fmt.Sprintf("Outputs: %d", sum.Outputs)}
	if sum.Outputs > 0 {
		parts = append(parts, fmt.Sprintf("Numbers: %s%d-%d", sum.Prefix, sum.StartNumber, sum.LastNumber))
	}
	if sum.Failures > 0 {
		parts = append(parts, fmt.Sprintf("Failed: %d", sum.Failures))
	}
	parts = append(parts, "Format: "+strings.ToUpper(sum.Format))
	if sum.Rotation != 0 {
		parts = append(parts, fmt.Sprintf("Rotation: %d°", sum.Rotation))
	}
	return strings.Join(parts, ", ")
}

// formatTime formats ISO time string to readable format
func (j *JobsPage) formatTime(timeStr string) string {
	if timeStr == "" {
		return ""
	}

	// Try to parse ISO 8601 format
	t, err := time.Parse(time.RFC3339, timeStr)
	if err != nil {
		// Try without nanoseconds
		t, err = time.Parse("2006-01-02T15:04:05Z", timeStr)
		if err != nil {
			return timeStr
		}
	}

	// Format as relative time if recent
	now := time.Now()
	diff := now.Sub(t)

	if diff < time.Minute {
		return "Just now"
	} else if diff < time.Hour {
		mins := int(diff.Minutes())
		if mins == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", mins)
	} else if diff < 24*time.Hour {
		hours := int(diff.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	}

	return t.Format("Jan 2, 2006 at 3:04 PM")
}

// formatResult formats JSON result string
func (j *JobsPage) formatResult(result string) string {
	// Try to parse as JSON
	var data map[string]interface{}
	if err := json.Unmarshal([]byte(result), &data); err != nil {
		return result
	}

	var parts []string
	if val, ok := data["deleted"].(float64); ok {
		parts = append(parts, fmt.Sprintf("Deleted: %.0f jobs", val))
	}

	if len(parts) > 0 {
		return strings.Join(parts, ", ")
	}

	return result
}

// onRefreshClick handles the refresh button click
func (j *JobsPage) onRefreshClick(ctx app.Context, e app.Event) {
	j.loadJobs(ctx)
}

// onAutoRefreshChange handles auto-refresh checkbox change
func (j *JobsPage) onAutoRefreshChange(ctx app.Context, e app.Event) {
	j.autoRefresh = ctx.JSSrc().Get("checked").Bool()
	ctx.Update()
}

// loadJobs fetches jobs from the API
func (j *JobsPage) loadJobs(ctx app.Context) {
	j.loading = true
	j.error = ""
	ctx.Update()

	fetchJSON(ctx, BuildAPIURL("/api/jobs?limit=50"), nil,
		func(ctx app.Context, status int, body app.Value) {
			j.loading = false
			if status < 200 || status >= 300 {
				j.error = fmt.Sprintf("Failed to load jobs (status: %d)", status)
				return
			}
			var jobs []Job
			if err := decodeJSValue(body, &jobs); err != nil {
				j.jobs = []Job{}
				return
			}
			j.jobs = jobs
		},
		func(ctx app.Context) {
			j.loading = false
			j.error = "Network error: Could not connect to server"
		},
	)
}

// loadOutputs fetches the output manifest of one batch job
func (j *JobsPage) loadOutputs(ctx app.Context, jobID string) {
	fetchJSON(ctx, BuildAPIURL("/api/jobs/"+jobID+"/outputs"), nil,
		func(ctx app.Context, status int, body app.Value) {
			var outputs []BatchOutput
			if status >= 200 && status < 300 {
				if err := decodeJSValue(body, &outputs); err != nil {
					outputs = nil
				}
			}
			if j.outputs == nil {
				j.outputs = make(map[string][]BatchOutput)
			}
			j.outputs[jobID] = outputs
		},
		func(ctx app.Context) {},
	)
}
