package webapp

import (
	"strings"

	"github.com/maxence-charriere/go-app/v10/pkg/app"
)

// sidebarStateKey is the local storage flag shared with the navbar toggle
const sidebarStateKey = "sidebar-open"

type navLink struct {
	icon  string
	label string
	href  string
}

// navLinks are the pages of the batch tool, in menu order
var navLinks = []navLink{
	{"📦", "Process", "/"},
	{"🗂️", "Batch history", "/jobs"},
	{"ℹ️", "About", "/about"},
}

// linkActive matches a link against the current path. Only "/" needs an exact
// match; /jobs stays highlighted on a single batch's page.
func linkActive(href, path string) bool {
	if href == "/" {
		return path == "/"
	}
	return path == href || strings.HasPrefix(path, href+"/")
}

// Sidebar lists the batch tool's pages
type Sidebar struct {
	app.Compo
	isOpen bool
}

func (s *Sidebar) OnMount(ctx app.Context) {
	ctx.LocalStorage().Get(sidebarStateKey, &s.isOpen)
}

func (s *Sidebar) OnNav(ctx app.Context) {
	ctx.LocalStorage().Get(sidebarStateKey, &s.isOpen)
}

func (s *Sidebar) Render() app.UI {
	class := "sidebar"
	if s.isOpen {
		class += " sidebar-open"
	}

	path := app.Window().URL().Path
	items := make([]app.UI, 0, len(navLinks))
	for _, link := range navLinks {
		itemClass := "sidebar-item"
		if linkActive(link.href, path) {
			itemClass += " sidebar-item-active"
		}
		items = append(items, app.A().
			Href(link.href).
			Class(itemClass).
			Body(
				app.Span().Class("sidebar-icon").Text(link.icon),
				app.Span().Class("sidebar-label").Text(link.label),
			))
	}

	return app.Aside().
		Class(class).
		Body(
			app.Div().Class("sidebar-header").Body(
				app.H2().Text("pagepack"),
			),
			app.Nav().Class("sidebar-nav").Body(items...),
		)
}
