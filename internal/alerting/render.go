package alerting

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"fxwatcher/internal/pair"
)

const displayTimeLayout = "2006-01-02 15:04:05 UTC"

var hundred = decimal.NewFromInt(100)

// Figures are the derived numbers shown in every message.
type Figures struct {
	Rate       string
	Threshold  string
	Difference string
	Percentage string
}

// ComputeFigures formats rate, threshold, signed difference and signed
// percentage difference. The percentage is zero when threshold is zero.
func ComputeFigures(rate, threshold decimal.Decimal) Figures {
	diff := rate.Sub(threshold)
	pct := decimal.Zero
	if !threshold.IsZero() {
		pct = diff.Div(threshold).Mul(hundred)
	}
	return Figures{
		Rate:       rate.StringFixed(4),
		Threshold:  threshold.StringFixed(4),
		Difference: signed(diff, 4),
		Percentage: signed(pct, 2) + "%",
	}
}

func signed(d decimal.Decimal, places int32) string {
	s := d.StringFixed(places)
	if strings.HasPrefix(s, "-") {
		return s
	}
	return "+" + s
}

// Signed figures are template.HTML so html/template leaves the leading "+"
// unescaped.
type messageView struct {
	Rate       string
	Threshold  string
	Difference template.HTML
	Percentage template.HTML
	Pair       string
	Quote      string
	Timestamp  string
	MonitorID  string
}

var (
	alertTemplate   = template.Must(template.New("alert").Parse(layoutHTML + alertHTML))
	summaryTemplate = template.Must(template.New("summary").Parse(layoutHTML + summaryHTML))
)

// Subject returns the mail subject for a pair and notification kind.
func Subject(currencyPair string, kind Kind) string {
	if kind == KindSummary {
		return fmt.Sprintf("📊 %s Daily Summary", currencyPair)
	}
	return fmt.Sprintf("🚨 %s Exchange Rate Alert!", currencyPair)
}

// RenderMessage renders the HTML body for sample. generatedAt only feeds
// the monitor id shown in the footer.
func RenderMessage(sample RateSample, kind Kind, generatedAt time.Time) (string, error) {
	tmpl := alertTemplate
	switch kind {
	case KindAlert:
	case KindSummary:
		tmpl = summaryTemplate
	default:
		return "", fmt.Errorf("render: unknown notification kind %d", kind)
	}

	fig := ComputeFigures(sample.CurrentRate, sample.Threshold)
	view := messageView{
		Rate:       fig.Rate,
		Threshold:  fig.Threshold,
		Difference: template.HTML(fig.Difference),
		Percentage: template.HTML(fig.Percentage),
		Pair:       sample.CurrencyPair,
		Quote:      describe(sample.CurrencyPair, sample.CurrentRate),
		Timestamp:  formatTimestamp(sample.Timestamp),
		MonitorID:  fmt.Sprintf("%s-%s", sample.CurrencyPair, generatedAt.Format("20060102-150405")),
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, view); err != nil {
		return "", fmt.Errorf("render %s: %w", kind, err)
	}
	return buf.String(), nil
}

func describe(code string, rate decimal.Decimal) string {
	if p, err := pair.Lookup(code); err == nil {
		return p.Describe(rate)
	}
	return rate.StringFixed(4)
}

func formatTimestamp(ts time.Time) string {
	if ts.IsZero() {
		return "unknown"
	}
	return ts.UTC().Format(displayTimeLayout)
}

const layoutHTML = `{{define "card"}}
<div style="background-color:#f8f9fa;padding:20px;border-radius:8px;margin:20px 0;">
  <h3 style="color:#2c3e50;margin-top:0;">{{.Pair}} {{template "cardTitle" .}}</h3>
  <table style="width:100%;text-align:center;">
    <tr>
      <td><div class="rate" style="font-size:24px;font-weight:bold;">{{.Rate}}</div><div style="color:#7f8c8d;font-size:14px;">Current Rate</div></td>
      <td><div class="threshold" style="font-size:24px;font-weight:bold;">{{.Threshold}}</div><div style="color:#7f8c8d;font-size:14px;">Alert Threshold</div></td>
    </tr>
  </table>
  <p class="difference" style="text-align:center;font-size:18px;font-weight:bold;">Difference: {{.Difference}} ({{.Percentage}})</p>
</div>
{{end}}
{{define "footer"}}
<div style="text-align:center;margin:30px 0;padding:20px;background-color:#f8f9fa;border-radius:8px;">
  <p style="color:#6c757d;font-size:12px;margin:0;">Monitor ID: {{.MonitorID}}</p>
</div>
{{end}}`

const alertHTML = `{{define "cardTitle"}}Exchange Rate Alert{{end}}<html>
<body style="font-family:Arial,sans-serif;line-height:1.6;color:#333;">
<div style="max-width:600px;margin:0 auto;padding:20px;">
  <h2 style="color:#e74c3c;text-align:center;">🚨 Currency Exchange Rate Alert</h2>
  {{template "card" .}}
  <div style="background-color:#fff3cd;border:1px solid #ffeaa7;padding:15px;border-radius:5px;">
    <p>The {{.Pair}} rate has dropped below your threshold of {{.Threshold}}.</p>
    <p>Current rate: <strong>{{.Rate}}</strong> ({{.Quote}})</p>
    <p>Alert triggered at: <strong>{{.Timestamp}}</strong></p>
  </div>
  {{template "footer" .}}
</div>
</body>
</html>
`

const summaryHTML = `{{define "cardTitle"}}Daily Summary{{end}}<html>
<body style="font-family:Arial,sans-serif;line-height:1.6;color:#333;">
<div style="max-width:600px;margin:0 auto;padding:20px;">
  <h2 style="color:#27ae60;text-align:center;">📊 Daily Currency Summary</h2>
  {{template "card" .}}
  <div style="background-color:#d4edda;border:1px solid #c3e6cb;padding:15px;border-radius:5px;">
    <p>The {{.Pair}} rate is currently <strong>at or above</strong> your alert threshold of {{.Threshold}}.</p>
    <p>Current rate: <strong>{{.Rate}}</strong> ({{.Quote}})</p>
    <p>Summary generated at: <strong>{{.Timestamp}}</strong></p>
    <p>Monitoring continues; you will be alerted if the rate drops below {{.Threshold}}.</p>
  </div>
  {{template "footer" .}}
</div>
</body>
</html>
`
