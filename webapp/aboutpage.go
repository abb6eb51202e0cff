package webapp

import (
	"fmt"
	"strings"

	"github.com/maxence-charriere/go-app/v10/pkg/app"
)

// AboutInfo represents the about information from the API
type AboutInfo struct {
	Version               string   `json:"version"`
	Renderer              string   `json:"renderer"`
	RenderDPI             int      `json:"renderDPI"`
	DatabaseType          string   `json:"databaseType"`
	DatabaseHost          string   `json:"databaseHost"`
	DatabasePort          string   `json:"databasePort"`
	DatabaseName          string   `json:"databaseName"`
	DefaultStartNumber    int      `json:"defaultStartNumber"`
	DefaultOutputFormat   string   `json:"defaultOutputFormat"`
	DefaultJPEGQuality    int      `json:"defaultJPEGQuality"`
	MaxUploadMB           int      `json:"maxUploadMB"`
	ArchiveName           string   `json:"archiveName"`
	HistoryRetentionHours int      `json:"historyRetentionHours"`
	AcceptedTypes         []string `json:"acceptedTypes"`
}

// AboutPage displays information about the application
type AboutPage struct {
	app.Compo
	aboutInfo AboutInfo
	loading   bool
	error     string
}

// OnMount is called when the component is mounted
func (a *AboutPage) OnMount(ctx app.Context) {
	a.loading = true
	a.fetchAboutInfo(ctx)
}

// fetchAboutInfo fetches the about information from the API
func (a *AboutPage) fetchAboutInfo(ctx app.Context) {
	fetchJSON(ctx, BuildAPIURL("/api/about"), nil,
		func(ctx app.Context, status int, body app.Value) {
			if err := decodeJSValue(body, &a.aboutInfo); err != nil {
				a.error = fmt.Sprintf("Failed to parse response: %v", err)
			}
			a.loading = false
		},
		func(ctx app.Context) {
			a.error = "Network error"
			a.loading = false
		},
	)
}

// Render renders the about page
func (a *AboutPage) Render() app.UI {
	if a.loading {
		return app.Div().Class("about-page").Body(
			app.H2().Text("About pagepack"),
			app.Div().Class("loading").Body(app.Text("Loading...")),
		)
	}

	if a.error != "" {
		return app.Div().Class("about-page").Body(
			app.H2().Text("About pagepack"),
			app.Div().Class("error").Body(app.Text("Error: "+a.error)),
		)
	}

	return app.Div().Class("about-page").Body(
		app.H2().Text("About pagepack"),
		app.Div().Class("about-content").Body(
			app.Div().Class("about-section").Body(
				app.H3().Text("Application Information"),
				app.Div().Class("info-grid").Body(
					a.renderInfoItem("Version", a.aboutInfo.Version),
					a.renderInfoItem("Database", a.getDatabaseDisplay()),
					a.renderInfoItem("PDF Renderer", a.getRendererDisplay()),
				),
			),
			app.Div().Class("about-section").Body(
				app.H3().Text("Processing Defaults"),
				app.Div().Class("config-details").Body(
					a.renderDetail("Start Number", fmt.Sprint(a.aboutInfo.DefaultStartNumber)),
					a.renderDetail("Output Format", strings.ToUpper(a.aboutInfo.DefaultOutputFormat)),
					a.renderDetail("JPEG Quality", fmt.Sprint(a.aboutInfo.DefaultJPEGQuality)),
					a.renderDetail("Archive Name", a.aboutInfo.ArchiveName),
					a.renderDetail("Maximum Upload", fmt.Sprintf("%d MB", a.aboutInfo.MaxUploadMB)),
					a.renderDetail("Accepted Files", strings.Join(a.aboutInfo.AcceptedTypes, " ")),
				),
			),
			app.Div().Class("about-section").Body(
				app.H3().Text("Database Configuration"),
				app.Div().Class("config-details").Body(
					a.renderDetail("Database Type", a.getDatabaseDisplay()),
					app.If(a.aboutInfo.DatabaseType != "sqlite", func() app.UI {
						return app.Div().Body(
							a.renderDetail("Host", a.aboutInfo.DatabaseHost),
							a.renderDetail("Port", a.aboutInfo.DatabasePort),
						)
					}),
					a.renderDetail("Database Name", a.aboutInfo.DatabaseName),
					a.renderDetail("Job History", a.getRetentionDisplay()),
				),
			),
			app.Div().Class("about-section").Body(
				app.H3().Text("About pagepack"),
				app.P().Text("pagepack turns an ordered set of images and PDFs into consecutively numbered images, one per picture and one per PDF page."),
				app.P().Text("Results are delivered as a single zip archive."),
			),
		),
	)
}

// renderInfoItem creates an info item display
func (a *AboutPage) renderInfoItem(label, value string) app.UI {
	return app.Div().Class("info-item").Body(
		app.Div().Class("info-label").Body(app.Text(label)),
		app.Div().Class("info-value").Body(app.Text(value)),
	)
}

func (a *AboutPage) renderDetail(label, value string) app.UI {
	return app.P().Body(
		app.Strong().Text(label+": "),
		app.Text(value),
	)
}

// getDatabaseDisplay returns a user-friendly database display name
func (a *AboutPage) getDatabaseDisplay() string {
	switch a.aboutInfo.DatabaseType {
	case "postgres":
		return "PostgreSQL"
	case "cockroachdb":
		return "CockroachDB"
	case "sqlite":
		return "SQLite"
	case "ephemeral":
		return "Ephemeral PostgreSQL"
	default:
		return a.aboutInfo.DatabaseType
	}
}

// getRendererDisplay names the PDF backend and its resolution
func (a *AboutPage) getRendererDisplay() string {
	var name string
	switch a.aboutInfo.Renderer {
	case "pdfium":
		name = "PDFium (WebAssembly)"
	case "fitz":
		name = "MuPDF"
	case "remote":
		name = "PDF service"
	case "", "none":
		return "Not configured"
	default:
		name = a.aboutInfo.Renderer
	}
	if a.aboutInfo.RenderDPI > 0 {
		return fmt.Sprintf("%s at %d DPI", name, a.aboutInfo.RenderDPI)
	}
	return name
}

// getRetentionDisplay describes how long finished jobs are kept
func (a *AboutPage) getRetentionDisplay() string {
	hours := a.aboutInfo.HistoryRetentionHours
	switch {
	case hours <= 0:
		return "Kept forever"
	case hours%24 == 0:
		return fmt.Sprintf("Kept for %d days", hours/24)
	default:
		return fmt.Sprintf("Kept for %d hours", hours)
	}
}
