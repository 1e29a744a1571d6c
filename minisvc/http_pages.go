// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package minisvc

import (
	"fmt"
	"html"
	"net/http"
	"sort"
	"strings"
)

// --- HTML templates ---

const fontImports = `<link rel="preconnect" href="https://fonts.googleapis.com">` +
	`<link rel="preconnect" href="https://fonts.gstatic.com" crossorigin>` +
	`<link href="https://fonts.googleapis.com/css2?family=Inter:wght@400;600;700&family=JetBrains+Mono:wght@400;600&display=swap" rel="stylesheet">`

const pageStyle = `<style>
  body { font-family: 'Inter', system-ui, -apple-system, sans-serif; max-width: 900px;
         margin: 0 auto; padding: 40px 20px 0; color: #2c2c1e; background: #faf8f0; }
  h1 { color: #2d5016; margin-bottom: 4px; font-weight: 700; }
  h2 { color: #2d5016; font-size: 1.2em; margin-top: 32px; }
  .center { text-align: center; }
  .meta { color: #6b6b5a; font-size: 0.9em; }
  code { font-family: 'JetBrains Mono', monospace; background: #f0ece0;
          padding: 2px 6px; border-radius: 3px; font-size: 0.85em; color: #2c2c1e; }
  a { color: #2d5016; text-decoration: none; }
  a:hover { color: #4a7c23; }
  .card { border: 1px solid #f0ece0; border-radius: 8px; padding: 16px 20px;
           margin-bottom: 12px; background: #fff; }
  .card-header { display: flex; align-items: center; gap: 10px; margin-bottom: 8px; }
  .api-name { font-family: 'JetBrains Mono', monospace; font-size: 1.05em; font-weight: 600;
               color: #2d5016; }
  .badge { display: inline-block; padding: 2px 8px; border-radius: 4px;
            font-size: 0.75em; font-weight: 600; text-transform: uppercase; }
  .badge-get { background: #e8f5e0; color: #2d5016; }
  .badge-post { background: #e0ecf5; color: #1a4a6b; }
  .badge-raw { background: #f5eee0; color: #6b4423; }
  .no-params { color: #6b6b5a; font-style: italic; font-size: 0.9em; }
  footer { text-align: center; margin-top: 48px; padding: 20px 0;
            border-top: 1px solid #f0ece0; color: #6b6b5a; font-size: 0.85em; }
</style>`

const notFoundHTMLTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>404 &mdash; minisvc endpoint</title>
%s
%s
</head>
<body class="center">
<h1>404 &mdash; Not Found</h1>
<p>This is a <code>minisvc</code> endpoint serving <strong>%s</strong>.</p>
<p>Operations are available under <code>/api/&lt;group&gt;/&lt;id&gt;</code>,
the descriptor under <code>%s</code>.</p>
</body>
</html>`

const landingHTMLTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>%s &mdash; minisvc</title>
%s
%s
</head>
<body class="center">
<h1>%s</h1>
<p class="meta">version <code>%s</code> &middot; fingerprint <code>%s</code></p>
<p>%d operations in %d groups.</p>
<p><a href="/describe">View service API</a> &middot; <a href="%s">Descriptor</a>%s</p>
<footer>
  &copy; 2026 <a href="https://query.farm">Query.Farm LLC</a>
</footer>
</body>
</html>`

const describeHTMLTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>%s API Reference &mdash; minisvc</title>
%s
%s
</head>
<body>
<div class="center">
<h1>%s</h1>
<p class="meta">API Reference &middot; <code>%s</code> &middot; fingerprint <code>%s</code></p>
</div>
%s
<footer>
  &copy; 2026 <a href="https://query.farm">Query.Farm LLC</a>
</footer>
</body>
</html>`

// --- Page builders ---

func buildNotFoundHTML(s *Service) []byte {
	return []byte(fmt.Sprintf(notFoundHTMLTemplate,
		fontImports,
		pageStyle,
		html.EscapeString(s.Name()),
		ExposedPath,
	))
}

func buildLandingHTML(s *Service, repoURL string) []byte {
	d := s.Descriptor()
	groups := make(map[string]struct{})
	for _, api := range d.APIs {
		groups[api.Group] = struct{}{}
	}
	var repoLink string
	if repoURL != "" {
		repoLink = fmt.Sprintf(` &middot; <a href="%s">Source repository</a>`, html.EscapeString(repoURL))
	}
	return []byte(fmt.Sprintf(landingHTMLTemplate,
		html.EscapeString(d.Name), // <title>
		fontImports,
		pageStyle,
		html.EscapeString(d.Name), // <h1>
		html.EscapeString(d.Version),
		html.EscapeString(string(s.Fingerprint())),
		len(d.APIs),
		len(groups),
		ExposedPath,
		repoLink,
	))
}

func buildDescribeHTML(s *Service) []byte {
	d := s.Descriptor()
	byGroup := make(map[string][]APIDescriptor)
	for _, api := range d.APIs {
		byGroup[api.Group] = append(byGroup[api.Group], api)
	}
	names := make([]string, 0, len(byGroup))
	for name := range byGroup {
		names = append(names, name)
	}
	sort.Strings(names)

	var sections strings.Builder
	for _, name := range names {
		fmt.Fprintf(&sections, "<h2>%s</h2>\n", html.EscapeString(name))
		for _, api := range byGroup[name] {
			buildAPICard(&sections, api)
		}
	}

	return []byte(fmt.Sprintf(describeHTMLTemplate,
		html.EscapeString(d.Name), // <title>
		fontImports,
		pageStyle,
		html.EscapeString(d.Name), // <h1>
		html.EscapeString(d.Label()),
		html.EscapeString(string(s.Fingerprint())),
		sections.String(),
	))
}

func buildAPICard(w *strings.Builder, api APIDescriptor) {
	method := api.Method()
	w.WriteString(`<div class="card">`)
	w.WriteString(`<div class="card-header">`)
	fmt.Fprintf(w, `<span class="api-name">%s</span>`, html.EscapeString(api.ID))
	fmt.Fprintf(w, `<span class="badge badge-%s">%s</span>`, strings.ToLower(method), method)
	if api.HasBufferInput {
		w.WriteString(`<span class="badge badge-raw">buffer</span>`)
	}
	if api.HasStreamInput {
		w.WriteString(`<span class="badge badge-raw">stream</span>`)
	}
	w.WriteString(`</div>`) // card-header

	fmt.Fprintf(w, `<div class="meta"><code>%s</code></div>`, html.EscapeString(api.Path))
	if len(api.Params) > 0 {
		params := make([]string, len(api.Params))
		for i, p := range api.Params {
			params[i] = "<code>" + html.EscapeString(p) + "</code>"
		}
		fmt.Fprintf(w, `<p>Parameters: %s</p>`, strings.Join(params, ", "))
	} else {
		w.WriteString(`<p class="no-params">No parameters</p>`)
	}

	w.WriteString(`</div>`) // card
	w.WriteString("\n")
}

// --- HTTP handlers ---

func (h *HttpServer) handleLandingPage(w http.ResponseWriter, _ *http.Request) {
	writeHTML(w, http.StatusOK, buildLandingHTML(h.service.Load(), h.repoURL))
}

func (h *HttpServer) handleDescribePage(w http.ResponseWriter, _ *http.Request) {
	writeHTML(w, http.StatusOK, buildDescribeHTML(h.service.Load()))
}

func (h *HttpServer) handleNotFound(w http.ResponseWriter, _ *http.Request) {
	writeHTML(w, http.StatusNotFound, buildNotFoundHTML(h.service.Load()))
}

func writeHTML(w http.ResponseWriter, status int, page []byte) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(page)
}
