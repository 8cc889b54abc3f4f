// Package report renders a query result as a markdown digest, for CLI
// output and scheduled refresh summaries.
package report

import (
	"bytes"
	_ "embed"
	"fmt"
	"strings"
	"text/template"
	"time"

	"cyberintel/internal/model"
)

//go:embed report.tmpl
var reportTpl string

var compiled = template.Must(template.New("report").Funcs(template.FuncMap{
	"score": func(v model.Vulnerability) string {
		return fmt.Sprintf("%.1f", v.RankScore())
	},
	"date": func(t time.Time) string {
		if t.IsZero() {
			return "unknown"
		}
		return t.Format("2006-01-02")
	},
	"join": func(items []string) string {
		return strings.Join(items, ", ")
	},
	"title": func(original, translated string) string {
		if translated != "" {
			return translated
		}
		return original
	},
}).Parse(reportTpl))

// Render produces the markdown digest for one search result.
func Render(res *model.SearchResult) (string, error) {
	var buf bytes.Buffer
	if err := compiled.Execute(&buf, res); err != nil {
		return "", fmt.Errorf("render report: %w", err)
	}
	return buf.String(), nil
}
