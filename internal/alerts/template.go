package alerts

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/JakeFAU/pulseflow/internal/changes"
)

func changeLabel(change changes.Result) string {
	switch change.Type() {
	case changes.TypeNewItems:
		return "New Items Detected"
	case changes.TypeRemoved:
		return "Items Removed"
	case changes.TypeUpdated:
		return "Items Updated"
	case changes.TypeMixed:
		return "Multiple Changes Detected"
	default:
		return "Changes Detected"
	}
}

// EmailSubject builds the subject line for a change alert.
func EmailSubject(signal Signal, change changes.Result) string {
	added := len(change.Details.Added)
	if change.Type() == changes.TypeNewItems && added > 0 {
		noun := "item"
		if added != 1 {
			noun = "items"
		}
		return fmt.Sprintf("[PulseFlow] %d new %s - %s", added, noun, signal.Name)
	}
	return fmt.Sprintf("[PulseFlow] %s - %s", changeLabel(change), signal.Name)
}

var emailTemplate = template.Must(template.New("alert").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><meta name="viewport" content="width=device-width, initial-scale=1.0"><title>{{.Label}}</title></head>
<body style="margin:0;padding:0;background-color:#f4f4f5;font-family:-apple-system,BlinkMacSystemFont,'Segoe UI',Roboto,sans-serif;">
<table width="100%" cellpadding="0" cellspacing="0" style="max-width:600px;margin:0 auto;padding:20px;">
<tr><td style="background:linear-gradient(135deg, #6366f1 0%, #8b5cf6 100%);border-radius:12px 12px 0 0;padding:24px;text-align:center;">
<h1 style="color:#ffffff;margin:0;font-size:24px;">PulseFlow Alert</h1>
<p style="color:#e0e7ff;margin:8px 0 0 0;font-size:14px;">{{.Label}}</p>
</td></tr>
<tr><td style="background-color:#ffffff;padding:24px;">
<div style="background-color:#f8fafc;border-radius:8px;padding:16px;margin-bottom:20px;">
<h2 style="margin:0 0 8px 0;font-size:18px;color:#1e293b;">{{.Signal.Name}}</h2>
<p style="margin:0;font-size:14px;color:#64748b;">{{.Summary}}</p>
</div>
{{if .Added}}<h3 style="color:#16a34a;font-size:16px;margin:0 0 12px 0;">New Items ({{len .Added}})</h3>
<ul style="padding-left:20px;margin:0 0 20px 0;">{{range .Added}}
<li style="margin-bottom:8px;"><a href="{{.Link}}" style="color:#4f46e5;text-decoration:none;">{{.Title}}</a>{{if .Author}} <span style="color:#94a3b8;font-size:12px;">by {{.Author}}</span>{{end}}</li>{{end}}
</ul>{{end}}
{{if .Removed}}<h3 style="color:#dc2626;font-size:16px;margin:0 0 12px 0;">Removed Items ({{len .Removed}})</h3>
<ul style="padding-left:20px;margin:0 0 20px 0;">{{range .Removed}}
<li style="margin-bottom:8px;color:#64748b;">{{.Title}}</li>{{end}}
</ul>{{end}}
<div style="text-align:center;margin-top:24px;">
<a href="{{.Signal.URL}}" style="display:inline-block;background-color:#6366f1;color:#ffffff;padding:12px 24px;border-radius:8px;text-decoration:none;font-weight:600;">View Signal</a>
</div>
</td></tr>
<tr><td style="background-color:#f8fafc;border-radius:0 0 12px 12px;padding:16px;text-align:center;">
<p style="margin:0;font-size:12px;color:#94a3b8;">You're receiving this because you set up an alert for {{.Signal.Name}}.</p>
<p style="margin:8px 0 0 0;font-size:12px;color:#94a3b8;">Powered by PulseFlow</p>
</td></tr>
</table>
</body>
</html>
`))

type templateItem struct {
	Title  string
	Link   string
	Author string
}

type templateData struct {
	Label   string
	Signal  Signal
	Summary string
	Added   []templateItem
	Removed []templateItem
}

func toTemplateItems(items []changes.Item) []templateItem {
	out := make([]templateItem, 0, len(items))
	for _, item := range items {
		ti := templateItem{Title: item.Title, Link: item.ID}
		if item.URL != nil && *item.URL != "" {
			ti.Link = *item.URL
		}
		if item.Author != nil {
			ti.Author = *item.Author
		}
		out = append(out, ti)
	}
	return out
}

// EmailHTML renders the HTML body for a change alert.
func EmailHTML(signal Signal, change changes.Result) (string, error) {
	data := templateData{
		Label:   changeLabel(change),
		Signal:  signal,
		Summary: change.Summary,
		Added:   toTemplateItems(change.Details.Added),
		Removed: toTemplateItems(change.Details.Removed),
	}
	var buf bytes.Buffer
	if err := emailTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("execute email template: %w", err)
	}
	return buf.String(), nil
}

// EmailText renders the plain text body for a change alert.
func EmailText(signal Signal, change changes.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "PulseFlow Alert: %s\n", changeLabel(change))
	b.WriteString(strings.Repeat("=", 40) + "\n\n")
	fmt.Fprintf(&b, "Signal: %s\n", signal.Name)
	fmt.Fprintf(&b, "URL: %s\n\n", signal.URL)
	b.WriteString(change.Summary + "\n\n")

	writeSection := func(title string, items []changes.Item) {
		if len(items) == 0 {
			return
		}
		fmt.Fprintf(&b, "%s (%d):\n", title, len(items))
		b.WriteString(strings.Repeat("-", 20) + "\n")
		for _, item := range items {
			fmt.Fprintf(&b, "- %s\n", item.Title)
			if item.URL != nil && *item.URL != "" {
				fmt.Fprintf(&b, "  %s\n", *item.URL)
			}
			if item.Author != nil && *item.Author != "" {
				fmt.Fprintf(&b, "  by %s\n", *item.Author)
			}
		}
		b.WriteString("\n")
	}
	writeSection("New Items", change.Details.Added)
	writeSection("Removed Items", change.Details.Removed)

	b.WriteString(strings.Repeat("-", 40) + "\n")
	fmt.Fprintf(&b, "View signal: %s\n", signal.URL)
	b.WriteString("Powered by PulseFlow - https://pulseflow.dev\n")
	return b.String()
}
