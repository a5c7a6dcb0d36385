package report

import (
	"fmt"
	"html/template"
	"io"

	"github.com/FranksOps/arwatch/internal/crawler"
)

const statsHTML = `<!DOCTYPE html>
<html>
<head>
<title>arwatch {{.Pipeline}} run</title>
<style>
  body { font-family: sans-serif; margin: 40px; color: #333; }
  h1 { border-bottom: 2px solid #ccc; padding-bottom: 10px; }
  .stat-card { display: inline-block; padding: 20px; margin: 10px 10px 10px 0; background: #f4f4f4; border-radius: 5px; min-width: 150px; }
  .stat-val { font-size: 24px; font-weight: bold; }
  table { border-collapse: collapse; margin-top: 10px; }
  th, td { padding: 8px 12px; border: 1px solid #ccc; text-align: left; }
  th { background: #eaeaea; }
</style>
</head>
<body>
  <h1>arwatch {{.Pipeline}} run</h1>
  <p><strong>Run:</strong> {{.RunID}} ({{.State}})</p>
  <p><strong>Time:</strong> {{.StartedAt.Format "2006-01-02 15:04:05"}} to {{.FinishedAt.Format "2006-01-02 15:04:05"}} ({{.Duration}})</p>

  <div class="stat-card">
    <div>Subjects</div>
    <div class="stat-val">{{.SubjectsProcessed}}/{{.Subjects}}</div>
  </div>
  <div class="stat-card">
    <div>Stored</div>
    <div class="stat-val">{{.Stored}}</div>
  </div>
  <div class="stat-card">
    <div>Duplicates</div>
    <div class="stat-val">{{.Duplicates}}</div>
  </div>
  <div class="stat-card">
    <div>Failures</div>
    <div class="stat-val" style="color: {{if gt .Failures 0}}red{{else}}green{{end}};">{{.Failures}}</div>
  </div>

  <h3>Top Sources</h3>
  <table>
    <tr><th>Domain</th><th>Count</th></tr>
    {{- range .TopSources}}
    <tr><td>{{.Domain}}</td><td>{{.Count}}</td></tr>
    {{- else}}
    <tr><td colspan="2">None</td></tr>
    {{- end}}
  </table>

  <h3>Failures</h3>
  <table>
    <tr><th>Subject</th><th>Handle</th><th>Error</th></tr>
    {{- range .FailureList}}
    <tr><td>{{.Subject}}</td><td>{{.Platform}} {{.Handle}}</td><td>{{.Err}}</td></tr>
    {{- else}}
    <tr><td colspan="3">None</td></tr>
    {{- end}}
  </table>
</body>
</html>
`

var statsHTMLTmpl = template.Must(template.New("statsHTML").Parse(statsHTML))

// WriteHTML writes a basic HTML run report.
func WriteHTML(w io.Writer, s *crawler.Stats) error {
	if err := statsHTMLTmpl.Execute(w, s); err != nil {
		return fmt.Errorf("render html report: %w", err)
	}
	return nil
}
