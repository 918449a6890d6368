package repodata

import (
	"bytes"
	"html/template"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"

	"github.com/conda-forge/conda-index-go/internal/atomicfile"
)

// indexPageTemplate renders a minimal human-readable package listing. The
// "popup" toggle (spec §6 CLI surface) controls whether each row links out
// to a details fragment instead of just listing the basename; both render
// from the same template by gating the anchor with ShowPopup.
const indexPageTemplate = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{.Subdir}}</title></head>
<body>
<h1>{{.Subdir}}</h1>
<table>
<thead><tr><th>Package</th><th>Version</th><th>Build</th></tr></thead>
<tbody>
{{range .Rows}}<tr><td>{{if $.ShowPopup}}<a href="#{{.Basename}}">{{.Basename}}</a>{{else}}{{.Basename}}{{end}}</td><td>{{.Version}}</td><td>{{.Build}}</td></tr>
{{end}}</tbody>
</table>
</body>
</html>
`

var indexPage = template.Must(template.New("index").Parse(indexPageTemplate))

type indexRow struct {
	Basename string
	Version  string
	Build    string
}

type indexPageData struct {
	Subdir    string
	ShowPopup bool
	Rows      []indexRow
}

// RenderIndexHTML renders index.html for one subdir's patched repodata.
func RenderIndexHTML(rd Repodata, showPopup bool) ([]byte, error) {
	data := indexPageData{Subdir: rd.Info.Subdir, ShowPopup: showPopup}
	appendRows := func(group map[string]Record) {
		for basename, rec := range group {
			data.Rows = append(data.Rows, indexRow{
				Basename: basename,
				Version:  rec.Version(),
				Build:    rec.Build(),
			})
		}
	}
	appendRows(rd.Packages)
	appendRows(rd.PackagesConda)
	sort.Slice(data.Rows, func(i, j int) bool { return data.Rows[i].Basename < data.Rows[j].Basename })

	var buf bytes.Buffer
	if err := indexPage.Execute(&buf, data); err != nil {
		return nil, errors.Wrap(err, "rendering index.html")
	}
	return buf.Bytes(), nil
}

// EmitIndexHTML writes index.html into subdirOutputDir.
func EmitIndexHTML(subdirOutputDir string, rd Repodata, showPopup bool) error {
	html, err := RenderIndexHTML(rd, showPopup)
	if err != nil {
		return err
	}
	return atomicfile.Write(filepath.Join(subdirOutputDir, "index.html"), html, 0o644)
}
