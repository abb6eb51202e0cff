package webapp

import (
	"github.com/maxence-charriere/go-app/v10/pkg/app"
)

// NotFoundPage is shown for any path the router doesn't know, e.g. an old
// bookmark to a batch URL
type NotFoundPage struct {
	app.Compo
}

func (p *NotFoundPage) Render() app.UI {
	return app.Div().
		Class("not-found-page").
		Body(
			app.Div().
				Class("not-found-container").
				Body(
					app.H1().Class("not-found-title").Text("404"),
					app.H2().Class("not-found-subtitle").Text("Nothing to pack here"),
					app.P().
						Class("not-found-message").
						Text("This address isn't part of pagepack. Upload images and PDFs from the Process page, or look up an earlier run in the batch history."),
					app.Div().
						Class("not-found-actions").
						Body(
							app.A().Href("/").Class("not-found-home-link").Text("Start a batch"),
							app.A().Href("/jobs").Class("not-found-home-link").Text("Batch history"),
						),
				),
		)
}
