package webapp

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/maxence-charriere/go-app/v10/pkg/app"
)

// configGlobal is the window property written by /config.js
const configGlobal = "pagepackConfig"

// FormDefaults are the processing defaults advertised by the server
type FormDefaults struct {
	StartNumber int    `json:"startNumber"`
	Format      string `json:"format"`
	Quality     int    `json:"quality"`
}

// DefaultFormDefaults is used when /config.js did not load
func DefaultFormDefaults() FormDefaults {
	return FormDefaults{StartNumber: 1001, Format: "jpeg", Quality: 95}
}

// GetAPIBaseURL returns the configured API base URL
// It reads from window.pagepackConfig.apiURL if available,
// otherwise falls back to empty string (relative URLs)
func GetAPIBaseURL() string {
	if !app.IsClient {
		return "" // Server-side rendering - use relative URLs
	}

	config := app.Window().Get(configGlobal)
	if config.Truthy() {
		apiURL := config.Get("apiURL")
		if apiURL.Truthy() {
			return strings.TrimSuffix(apiURL.String(), "/")
		}
	}
	return ""
}

// BuildAPIURL constructs a full API URL from a path
// Example: BuildAPIURL("/api/jobs") -> "http://backend:8000/api/jobs"
// or just "/api/jobs" if using relative URLs
func BuildAPIURL(path string) string {
	return GetAPIBaseURL() + path
}

// GetFormDefaults reads the processing defaults injected by /config.js
func GetFormDefaults() FormDefaults {
	defaults := DefaultFormDefaults()
	if !app.IsClient {
		return defaults
	}
	config := app.Window().Get(configGlobal)
	if !config.Truthy() {
		return defaults
	}
	if v := config.Get("startNumber"); v.Truthy() {
		defaults.StartNumber = v.Int()
	}
	if v := config.Get("format"); v.Truthy() {
		defaults.Format = v.String()
	}
	if v := config.Get("quality"); v.Truthy() {
		defaults.Quality = v.Int()
	}
	return defaults
}

// decodeJSValue converts a JS value into a Go value via JSON.stringify
func decodeJSValue(v app.Value, out any) error {
	if !v.Truthy() || v.Type() == app.TypeNull {
		return fmt.Errorf("empty response")
	}
	jsonStr := app.Window().Get("JSON").Call("stringify", v).String()
	return json.Unmarshal([]byte(jsonStr), out)
}

// fetchJSON performs a fetch and hands the decoded body and status to done.
// done and fail run inside ctx.Dispatch.
func fetchJSON(ctx app.Context, url string, options app.Value, done func(ctx app.Context, status int, body app.Value), fail func(ctx app.Context)) {
	ctx.Async(func() {
		var res app.Value
		if options == nil {
			res = app.Window().Call("fetch", url)
		} else {
			res = app.Window().Call("fetch", url, options)
		}

		res.Call("then", app.FuncOf(func(this app.Value, args []app.Value) any {
			if len(args) == 0 {
				return nil
			}
			response := args[0]
			status := response.Get("status").Int()

			response.Call("json").Call("then", app.FuncOf(func(this app.Value, args []app.Value) any {
				if len(args) == 0 {
					return nil
				}
				body := args[0]
				ctx.Dispatch(func(ctx app.Context) {
					done(ctx, status, body)
				})
				return nil
			})).Call("catch", app.FuncOf(func(this app.Value, args []app.Value) any {
				ctx.Dispatch(func(ctx app.Context) {
					done(ctx, status, app.Null())
				})
				return nil
			}))
			return nil
		})).Call("catch", app.FuncOf(func(this app.Value, args []app.Value) any {
			ctx.Dispatch(fail)
			return nil
		}))
	})
}

// Job represents a background job
type Job struct {
	ID          string        `json:"id"`
	Type        string        `json:"type"`
	Status      string        `json:"status"`
	Progress    int           `json:"progress"`
	CurrentStep string        `json:"currentStep"`
	TotalSteps  int           `json:"totalSteps"`
	Message     string        `json:"message"`
	Error       string        `json:"error,omitempty"`
	Result      string        `json:"result,omitempty"`
	Summary     *BatchSummary `json:"summary,omitempty"`
	CreatedAt   string        `json:"createdAt"`
	UpdatedAt   string        `json:"updatedAt"`
	StartedAt   string        `json:"startedAt,omitempty"`
	CompletedAt string        `json:"completedAt,omitempty"`
}

// BatchSummary is the recorded outcome of a batch job
type BatchSummary struct {
	Inputs      int       `json:"inputs"`
	Outputs     int       `json:"outputs"`
	Failures    int       `json:"failures"`
	StartNumber int       `json:"startNumber"`
	LastNumber  int       `json:"lastNumber,omitempty"`
	Format      string    `json:"format"`
	Prefix      string    `json:"prefix,omitempty"`
	Rotation    int       `json:"rotation"`
	Renderer    string    `json:"renderer,omitempty"`
	ArchiveSize int       `json:"archiveSize"`
	FailureList []Failure `json:"failureList,omitempty"`
}

// Failure is one entry of a failure report
type Failure struct {
	Name   string `json:"name"`
	Source string `json:"source"`
	Error  string `json:"error"`
}

// BatchOutput is one archive entry as reported by the API
type BatchOutput struct {
	Filename   string `json:"filename"`
	Sequence   int    `json:"sequence"`
	Provenance string `json:"provenance"`
	Source     string `json:"source"`
	Caption    string `json:"caption"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	Bytes      int    `json:"bytes"`
	Preview    string `json:"preview,omitempty"` // base64 JPEG
}

// BatchReport is the JSON response of POST /api/batch?response=json
type BatchReport struct {
	BatchID     string        `json:"batchId"`
	Inputs      int           `json:"inputs"`
	Outputs     []BatchOutput `json:"outputs"`
	Failures    []Failure     `json:"failures"`
	Empty       bool          `json:"empty"`
	FirstNumber int           `json:"firstNumber,omitempty"`
	LastNumber  int           `json:"lastNumber,omitempty"`
	ArchiveName string        `json:"archiveName"`
	Archive     string        `json:"archive,omitempty"` // base64 zip
	Error       string        `json:"error,omitempty"`
}

// ArchiveHref returns a data URL for downloading the archive
func (r BatchReport) ArchiveHref() string {
	if r.Archive == "" {
		return ""
	}
	return "data:application/zip;base64," + r.Archive
}

// PreviewSrc returns a data URL for the thumbnail
func (o BatchOutput) PreviewSrc() string {
	if o.Preview == "" {
		return ""
	}
	return "data:image/jpeg;base64," + o.Preview
}
