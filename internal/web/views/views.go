// Package views renders the HTML pages and fragments served by the web
// package. Components are templ components, so handlers render them with
// Render(ctx, w) the same way for pages and HTMX fragments.
package views

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/a-h/templ"

	"github.com/JonMunkholm/datacompile/internal/core"
)

// IndexData feeds the upload page.
type IndexData struct {
	Projects []core.ProjectInfo
	Current  string
	Stats    *core.Stats
	Uploads  []core.UploadRecord
}

// DashboardData feeds the dashboard page.
type DashboardData struct {
	Project   string
	Stats     *core.Stats
	Settings  core.Settings
	Dashboard *core.DashboardStats
	DateRange *core.DateRange
}

// writer collects the first write error so components read linearly.
type writer struct {
	w   io.Writer
	err error
}

func (w *writer) raw(s string) {
	if w.err == nil {
		_, w.err = io.WriteString(w.w, s)
	}
}

func (w *writer) rawf(format string, args ...any) {
	w.raw(fmt.Sprintf(format, args...))
}

// text writes s HTML-escaped.
func (w *writer) text(s string) {
	w.raw(templ.EscapeString(s))
}

func component(body func(w *writer)) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, out io.Writer) error {
		w := &writer{w: out}
		body(w)
		return w.err
	})
}

// ErrorAlert is the fragment swapped in when an HTMX request fails.
func ErrorAlert(message, action, code string) templ.Component {
	return component(func(w *writer) {
		w.raw(`<div class="alert alert-error" role="alert"><p class="alert-message">`)
		w.text(message)
		w.raw(`</p>`)
		if action != "" {
			w.raw(`<p class="alert-action">`)
			w.text(action)
			w.raw(`</p>`)
		}
		w.raw(`<p class="alert-code">Code: `)
		w.text(code)
		w.raw(`</p></div>`)
	})
}

func layout(w *writer, title, active string, body func()) {
	w.raw(`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8">`)
	w.raw(`<meta name="viewport" content="width=device-width, initial-scale=1"><title>`)
	w.text(title)
	w.raw(` | DataCompile</title></head><body><nav>`)
	for _, link := range []struct{ href, label string }{{"/", "Upload"}, {"/dashboard", "Dashboard"}} {
		class := ""
		if link.href == active {
			class = ` class="active"`
		}
		w.rawf(`<a href="%s"%s>%s</a>`, link.href, class, link.label)
	}
	w.raw(`</nav><main>`)
	body()
	w.raw(`</main></body></html>`)
}

// IndexPage lists projects, the current project's table and its uploads.
func IndexPage(d IndexData) templ.Component {
	return component(func(w *writer) {
		layout(w, "Upload", "/", func() {
			w.raw(`<section id="projects"><h2>Projects</h2>`)
			if len(d.Projects) == 0 {
				w.raw(`<p class="empty">No projects yet. Create one to start consolidating.</p>`)
			} else {
				w.raw(`<ul>`)
				for _, p := range d.Projects {
					if p.Current {
						w.raw(`<li class="current">`)
					} else {
						w.raw(`<li>`)
					}
					w.text(p.Name)
					if p.Description != "" {
						w.raw(` <small>`)
						w.text(p.Description)
						w.raw(`</small>`)
					}
					w.raw(`</li>`)
				}
				w.raw(`</ul>`)
			}
			w.raw(`</section>`)

			if d.Current == "" {
				return
			}
			w.raw(`<section id="stats"><h2>`)
			w.text(d.Current)
			w.raw(`</h2>`)
			statsBlock(w, d.Stats)
			w.raw(`<form action="/upload" method="post" enctype="multipart/form-data">`)
			w.raw(`<input type="file" name="files" multiple accept=".xlsx,.xls,.csv"><button type="submit">Upload</button></form>`)
			w.raw(`</section>`)

			w.raw(`<section id="uploads"><h2>Uploads</h2>`)
			if len(d.Uploads) == 0 {
				w.raw(`<p class="empty">No files uploaded.</p>`)
			} else {
				w.raw(`<table><thead><tr><th>File</th><th>Uploaded</th><th>Rows</th></tr></thead><tbody>`)
				for _, u := range d.Uploads {
					w.raw(`<tr><td>`)
					w.text(u.OriginalName)
					w.raw(`</td><td>`)
					w.text(u.UploadDate)
					w.rawf(`</td><td>%d</td></tr>`, u.Rows)
				}
				w.raw(`</tbody></table>`)
			}
			w.raw(`</section>`)
		})
	})
}

func statsBlock(w *writer, st *core.Stats) {
	if st == nil || !st.Exists {
		w.raw(`<p class="empty">No consolidated data yet.</p>`)
		return
	}
	w.rawf(`<dl><dt>Rows</dt><dd>%d</dd><dt>Columns</dt><dd>%d</dd><dt>Last modified</dt><dd>`,
		st.TotalRows, st.TotalColumns)
	w.text(st.LastModified)
	w.raw(`</dd></dl><p><a href="/download?format=xlsx">Download XLSX</a> <a href="/download?format=csv">Download CSV</a></p>`)
}

// DashboardPage shows the top values of the configured columns.
func DashboardPage(d DashboardData) templ.Component {
	return component(func(w *writer) {
		layout(w, "Dashboard", "/dashboard", func() {
			if d.Project == "" {
				w.raw(`<p class="empty">Select a project first.</p>`)
				return
			}
			w.raw(`<h2>`)
			w.text(d.Project)
			w.raw(`</h2>`)
			statsBlock(w, d.Stats)

			if d.DateRange != nil && d.DateRange.MinDate != nil && d.DateRange.MaxDate != nil {
				w.raw(`<p class="date-range">`)
				w.text(d.DateRange.DateColumn)
				w.raw(`: `)
				w.text(*d.DateRange.MinDate)
				w.raw(` to `)
				w.text(*d.DateRange.MaxDate)
				w.raw(`</p>`)
			}

			if d.Dashboard == nil || len(d.Dashboard.TopData) == 0 {
				w.raw(`<p class="empty">Pick top columns in the dashboard settings.</p>`)
				return
			}
			labels := make(map[string]string, len(d.Settings.TopColumns))
			for _, tc := range d.Settings.TopColumns {
				labels[tc.Column] = tc.Label()
			}
			for _, top := range d.Dashboard.TopData {
				label := labels[top.Column]
				if label == "" {
					label = top.Column
				}
				w.raw(`<section class="top10"><h3>Top 10 `)
				w.text(label)
				w.raw(`</h3><ol>`)
				for _, v := range top.Values {
					w.raw(`<li>`)
					w.text(strings.TrimSpace(v.Value))
					w.rawf(` <span class="count">%d</span></li>`, v.Count)
				}
				w.raw(`</ol></section>`)
			}
		})
	})
}
