package invoices

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"strings"
)

// fileRenderer writes invoice documents as standalone HTML files. The files
// are print-ready so they can be exported to PDF by the browser.
type fileRenderer struct {
	dir string
}

// NewFileRenderer builds a renderer writing documents under dir.
func NewFileRenderer(dir string) (DocumentRenderer, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("documents directory required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating documents directory: %w", err)
	}
	return &fileRenderer{dir: dir}, nil
}

var documentTemplate = template.Must(template.New("invoice").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Invoice {{.Invoice.Number}}</title>
<style>
body { font-family: sans-serif; margin: 2rem; }
table { border-collapse: collapse; width: 100%; }
th, td { border: 1px solid #ccc; padding: 0.4rem 0.6rem; text-align: left; }
.totals { margin-top: 1rem; font-weight: bold; }
</style>
</head>
<body>
<h1>Invoice {{.Invoice.Number}}</h1>
{{if .Profile}}<p>{{.Profile.Name}}<br>{{.Profile.Address}}<br>Tax ID: {{.Profile.TaxID}}<br>{{.Profile.BankDetails}}</p>{{end}}
<p>Billed to: {{.Client.Name}}<br>{{.Client.Address}}{{if .Client.ContactPerson}}<br>Attn: {{.Client.ContactPerson}}{{end}}</p>
<p>Issued: {{.Invoice.IssuedOn.Format "2006-01-02"}}<br>
Period: {{.Invoice.PeriodStart.Format "2006-01-02"}} to {{.Invoice.PeriodEnd.Format "2006-01-02"}}{{if .Invoice.DueDate}}<br>
Due: {{.Invoice.DueDate.Format "2006-01-02"}}{{end}}</p>
<table>
<tr><th>Date</th><th>Session</th><th>Hours</th></tr>
{{range .Sessions}}<tr><td>{{.StartsAt.Format "2006-01-02"}}</td><td>{{.Name}}</td><td>{{.DurationHours}}</td></tr>
{{end}}</table>
<p class="totals">Total hours: {{.Invoice.TotalHours}} at {{.Invoice.HourlyRate}}/h<br>
Total due: {{.Invoice.TotalAmount}}</p>
</body>
</html>
`))

func (r *fileRenderer) Render(ctx context.Context, doc Document) (string, error) {
	var buf bytes.Buffer
	if err := documentTemplate.Execute(&buf, doc); err != nil {
		return "", fmt.Errorf("rendering invoice %s: %w", doc.Invoice.Number(), err)
	}

	name := fmt.Sprintf("invoice-%d-%03d.html", doc.Invoice.Year, doc.Invoice.SequenceNumber)
	path := filepath.Join(r.dir, name)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("writing invoice document: %w", err)
	}
	return path, nil
}
