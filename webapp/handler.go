package webapp

import (
	"net/http"

	"github.com/maxence-charriere/go-app/v10/pkg/app"
)

// RegisterRoutes binds every page route to the App component
func RegisterRoutes() {
	for _, path := range Routes {
		app.Route(path, func() app.Composer { return &App{} })
	}
}

// Handler returns an HTTP handler for the web app
func Handler() http.Handler {
	RegisterRoutes()
	app.RunWhenOnBrowser()

	// wasm_exec.js and /web/app.wasm are served by Echo
	return &app.Handler{
		Name:        "pagepack",
		Title:       "pagepack",
		Description: "Batch image renaming, rotation and PDF page extraction",
		Icon: app.Icon{
			Default: "/favicon.ico",
		},
		Styles: []string{
			"/webapp/webapp.css",
		},
		Scripts: []string{
			"/config.js",
		},
		RawHeaders: []string{
			`<meta name="viewport" content="width=device-width, initial-scale=1">`,
		},
	}
}
