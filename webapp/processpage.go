package webapp

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/maxence-charriere/go-app/v10/pkg/app"
)

// acceptedFiles is the accept attribute of the file picker
const acceptedFiles = ".jpg,.jpeg,.png,.bmp,.gif,.webp,.tif,.tiff,.pdf"

const batchFormID = "batch-form"

// ProcessPage uploads an ordered batch of images and PDFs and shows the result
type ProcessPage struct {
	app.Compo
	defaults  FormDefaults
	format    string
	fileCount int
	running   bool
	report    *BatchReport
	error     string
}

// OnMount is called when the component is mounted
func (p *ProcessPage) OnMount(ctx app.Context) {
	p.defaults = GetFormDefaults()
	p.format = p.defaults.Format
}

// Render renders the process page
func (p *ProcessPage) Render() app.UI {
	if p.defaults.StartNumber == 0 {
		p.defaults = DefaultFormDefaults()
		p.format = p.defaults.Format
	}

	buttonText := "Process"
	if p.running {
		buttonText = "Processing..."
	}

	return app.Div().
		Class("process-page").
		Body(
			app.H2().Text("Process a Batch"),
			app.P().Text("Files are numbered in the order selected. Every PDF page becomes its own image."),

			app.Form().
				ID(batchFormID).
				Class("batch-form").
				OnSubmit(p.onSubmit).
				Body(
					app.Input().Type("hidden").Name("response").Value("json"),
					app.Div().Class("form-row").Body(
						app.Label().For("files").Text("Files"),
						app.Input().
							Type("file").
							ID("files").
							Name("files").
							Multiple(true).
							Accept(acceptedFiles).
							OnChange(p.onFilesChange),
						app.If(p.fileCount > 0, func() app.UI {
							return app.Span().Class("file-count").Text(fmt.Sprintf("%d selected", p.fileCount))
						}),
					),
					app.Div().Class("form-row").Body(
						app.Label().For("startNumber").Text("Start number"),
						app.Input().
							Type("number").
							ID("startNumber").
							Name("startNumber").
							Min(1).
							Value(strconv.Itoa(p.defaults.StartNumber)),
					),
					app.Div().Class("form-row").Body(
						app.Label().For("prefix").Text("Prefix"),
						app.Input().
							Type("text").
							ID("prefix").
							Name("prefix").
							Placeholder("optional"),
					),
					app.Div().Class("form-row").Body(
						app.Label().For("rotation").Text("Rotation"),
						app.Select().
							ID("rotation").
							Name("rotation").
							Body(
								app.Option().Value("0").Selected(true).Text("None"),
								app.Option().Value("90").Text("90° clockwise"),
								app.Option().Value("180").Text("180°"),
								app.Option().Value("270").Text("270° clockwise"),
							),
					),
					app.Div().Class("form-row").Body(
						app.Label().For("format").Text("Output format"),
						app.Select().
							ID("format").
							Name("format").
							OnChange(p.onFormatChange).
							Body(
								app.Option().Value("jpeg").Selected(p.format == "jpeg").Text("JPEG"),
								app.Option().Value("png").Selected(p.format == "png").Text("PNG"),
							),
					),
					app.If(p.format == "jpeg", func() app.UI {
						return app.Div().Class("form-row").Body(
							app.Label().For("quality").Text("JPEG quality"),
							app.Input().
								Type("number").
								ID("quality").
								Name("quality").
								Min(50).
								Max(100).
								Value(strconv.Itoa(p.defaults.Quality)),
						)
					}),
					app.Div().Class("form-actions").Body(
						app.Button().
							Type("submit").
							Class("btn-primary").
							Disabled(p.running || p.fileCount == 0).
							Text(buttonText),
					),
				),

			p.renderStatus(),
		)
}

// renderStatus renders the outcome of the last submission
func (p *ProcessPage) renderStatus() app.UI {
	if p.running {
		return app.Div().Class("loading").Text("Processing batch...")
	}
	if p.error != "" {
		return app.Div().Class("error").Body(
			app.Text("Error: "+p.error),
			p.renderFailures(),
		)
	}
	if p.report == nil {
		return app.Div()
	}

	r := p.report
	return app.Div().Class("batch-report").Body(
		app.Div().Class("success").Text(reportSummary(r)),
		app.If(r.ArchiveHref() != "", func() app.UI {
			return app.A().
				Class("btn-primary download-link").
				Href(r.ArchiveHref()).
				Attr("download", r.ArchiveName).
				Text("Download "+r.ArchiveName)
		}),
		p.renderFailures(),
		app.Div().Class("output-grid").Body(
			p.renderOutputs()...,
		),
	)
}

// renderOutputs renders a card per produced image
func (p *ProcessPage) renderOutputs() []app.UI {
	var items []app.UI
	for _, o := range p.report.Outputs {
		items = append(items, app.Figure().Class("output-card").Body(
			app.If(o.PreviewSrc() != "", func() app.UI {
				return app.Img().Src(o.PreviewSrc()).Alt(o.Filename)
			}),
			app.FigCaption().Text(o.Caption),
		))
	}
	return items
}

// renderFailures lists every file or page that could not be processed
func (p *ProcessPage) renderFailures() app.UI {
	if p.report == nil || len(p.report.Failures) == 0 {
		return app.Div()
	}
	var items []app.UI
	for _, f := range p.report.Failures {
		items = append(items, app.Li().Body(
			app.Strong().Text(f.Name),
			app.Text(": "+f.Error),
		))
	}
	return app.Div().Class("failure-list").Body(
		app.H3().Text(fmt.Sprintf("%d failed", len(p.report.Failures))),
		app.Ul().Body(items...),
	)
}

// reportSummary describes a report in one line
func reportSummary(r *BatchReport) string {
	if r.Empty {
		return "No files were processed successfully"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Produced %d image", len(r.Outputs))
	if len(r.Outputs) != 1 {
		b.WriteString("s")
	}
	fmt.Fprintf(&b, " from %d file", r.Inputs)
	if r.Inputs != 1 {
		b.WriteString("s")
	}
	fmt.Fprintf(&b, ", numbered %d to %d", r.FirstNumber, r.LastNumber)
	if n := len(r.Failures); n > 0 {
		fmt.Fprintf(&b, " (%d failed)", n)
	}
	return b.String()
}

// onFilesChange tracks how many files are selected
func (p *ProcessPage) onFilesChange(ctx app.Context, e app.Event) {
	p.fileCount = ctx.JSSrc().Get("files").Get("length").Int()
}

// onFormatChange shows or hides the quality field
func (p *ProcessPage) onFormatChange(ctx app.Context, e app.Event) {
	p.format = ctx.JSSrc().Get("value").String()
}

// onSubmit posts the whole form as multipart data
func (p *ProcessPage) onSubmit(ctx app.Context, e app.Event) {
	e.PreventDefault()
	if p.running {
		return
	}
	p.running = true
	p.report = nil
	p.error = ""

	form := app.Window().GetElementByID(batchFormID)
	options := app.Window().Get("Object").New()
	options.Set("method", "POST")
	options.Set("body", app.Window().Get("FormData").New(form))

	fetchJSON(ctx, BuildAPIURL("/api/batch"), options,
		func(ctx app.Context, status int, body app.Value) {
			p.running = false
			var report BatchReport
			if err := decodeJSValue(body, &report); err != nil {
				p.error = fmt.Sprintf("Failed to parse response (status: %d)", status)
				return
			}
			switch {
			case status >= 200 && status < 300:
				p.report = &report
			case report.Error != "":
				p.error = report.Error
			default:
				p.report = &report
				p.error = reportSummary(&report)
			}
		},
		func(ctx app.Context) {
			p.running = false
			p.error = "Network error: Could not connect to server"
		},
	)
}
