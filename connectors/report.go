package connectors

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sitincloud/owlyshield-predict/model"
)

// ReportWriter is the C9 sink that writes the two report files spec.md §6
// names on every kill: "<config_path>/threats/<app>_<ts>_report_<gid>.log"
// and the ".html" twin, both written atomically (write-to-temp then rename)
// so a crash mid-write never leaves a half-written report behind.
type ReportWriter struct {
	dir string
}

// NewReportWriter creates a sink that writes reports under
// filepath.Join(configPath, "threats").
func NewReportWriter(configPath string) *ReportWriter {
	return &ReportWriter{dir: filepath.Join(configPath, "threats")}
}

func (r *ReportWriter) Name() string { return "report" }

func (r *ReportWriter) OnStartup(cfg map[string]string) error {
	return os.MkdirAll(r.dir, 0o700)
}

func (r *ReportWriter) OnTimestep(view model.FamilyView, step model.Timestep) error { return nil }

// OnKill writes the .log and .html report pair for view. Failures on one
// format are reported but do not block the other — consistent with §7's
// "Sink failure: logged per sink; other sinks proceed".
func (r *ReportWriter) OnKill(view model.FamilyView, score float32) error {
	if err := os.MkdirAll(r.dir, 0o700); err != nil {
		return fmt.Errorf("report: mkdir: %w", err)
	}
	ts := time.Now().UTC()
	base := fmt.Sprintf("%s_%d_report_%d", sanitizeAppName(view.AppName), ts.Unix(), view.FamilyID)

	var errs []string
	if err := writeAtomic(filepath.Join(r.dir, base+".log"), renderTextReport(view, score, ts)); err != nil {
		errs = append(errs, err.Error())
	}
	if err := writeAtomic(filepath.Join(r.dir, base+".html"), renderHTMLReport(view, score, ts)); err != nil {
		errs = append(errs, err.Error())
	}
	if len(errs) > 0 {
		return fmt.Errorf("report: %s", strings.Join(errs, "; "))
	}
	return nil
}

func sanitizeAppName(name string) string {
	name = strings.TrimSuffix(name, filepath.Ext(name))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "unknown"
	}
	return b.String()
}

func writeAtomic(path, content string) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func renderTextReport(view model.FamilyView, score float32, ts time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Owlyshield-Predict threat report\n")
	fmt.Fprintf(&b, "=================================\n")
	fmt.Fprintf(&b, "appname: %s\n", view.AppName)
	fmt.Fprintf(&b, "exe_path: %s\n", view.ExePath)
	fmt.Fprintf(&b, "family_id: %d\n", view.FamilyID)
	fmt.Fprintf(&b, "first_seen: %s\n", view.FirstSeen.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "report_generated: %s\n", ts.Format(time.RFC3339))
	fmt.Fprintf(&b, "score: %.4f\n", score)
	fmt.Fprintf(&b, "state: %s\n", view.State)
	fmt.Fprintf(&b, "pids: %s\n", formatPids(view.Pids))
	fmt.Fprintf(&b, "\nupdated files (%d):\n", len(view.PathsUpdated))
	for _, p := range sortedCopy(view.PathsUpdated) {
		fmt.Fprintf(&b, "  %s\n", p)
	}
	fmt.Fprintf(&b, "\ncreated files (%d):\n", len(view.PathsCreated))
	for _, p := range sortedCopy(view.PathsCreated) {
		fmt.Fprintf(&b, "  %s\n", p)
	}
	return b.String()
}

func renderHTMLReport(view model.FamilyView, score float32, ts time.Time) string {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html><html><head><meta charset=\"utf-8\"><title>owlyshield-predict threat report</title></head><body>\n")
	fmt.Fprintf(&b, "<h1>Threat report: %s</h1>\n", htmlEscape(view.AppName))
	b.WriteString("<table border=\"1\" cellpadding=\"4\">\n")
	addRow := func(k, v string) { fmt.Fprintf(&b, "<tr><th>%s</th><td>%s</td></tr>\n", k, v) }
	addRow("exe_path", htmlEscape(view.ExePath))
	addRow("family_id", fmt.Sprintf("%d", view.FamilyID))
	addRow("first_seen", view.FirstSeen.UTC().Format(time.RFC3339))
	addRow("report_generated", ts.Format(time.RFC3339))
	addRow("score", fmt.Sprintf("%.4f", score))
	addRow("state", view.State.String())
	addRow("pids", formatPids(view.Pids))
	b.WriteString("</table>\n")

	writeList := func(title string, items []string) {
		fmt.Fprintf(&b, "<h2>%s (%d)</h2><ul>\n", title, len(items))
		for _, p := range sortedCopy(items) {
			fmt.Fprintf(&b, "<li>%s</li>\n", htmlEscape(p))
		}
		b.WriteString("</ul>\n")
	}
	writeList("Updated files", view.PathsUpdated)
	writeList("Created files", view.PathsCreated)
	b.WriteString("</body></html>\n")
	return b.String()
}

func formatPids(pids []uint32) string {
	parts := make([]string, 0, len(pids))
	for _, p := range pids {
		parts = append(parts, fmt.Sprintf("%d", p))
	}
	sort.Strings(parts)
	return strings.Join(parts, ", ")
}

func sortedCopy(items []string) []string {
	out := make([]string, len(items))
	copy(out, items)
	sort.Strings(out)
	return out
}

func htmlEscape(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")
	return r.Replace(s)
}
