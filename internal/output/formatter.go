package output

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"

	"github.com/wesleyorama2/netwire/internal/bench"
	"github.com/wesleyorama2/netwire/internal/http"
)

// Formatter is responsible for formatting HTTP requests and responses in text format
type Formatter struct {
	Verbose bool
	NoColor bool
	colors  *ColorScheme
}

// NewFormatter creates a new formatter with the given options
func NewFormatter(verbose, noColor bool) *Formatter {
	return &Formatter{
		Verbose: verbose,
		NoColor: noColor,
		colors:  NewColorScheme(noColor),
	}
}

// NewFormatterWithFormat creates a new formatter with the specified output format
func NewFormatterWithFormat(format OutputFormat, verbose, noColor bool) FormatProvider {
	return GetFormatter(format, verbose, noColor)
}

// FormatRequest formats an HTTP request for display
func (f *Formatter) FormatRequest(req *http.Request, baseURL string) string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "▶ REQUEST: %s %s\n",
		f.colors.Method.Sprint(req.Method),
		f.colors.URL.Sprint(joinURL(baseURL, req.RequestURI())))

	if f.Verbose || req.Header.Len() > 0 {
		buf.WriteString("  Headers:\n")
		for _, field := range req.Header.Fields() {
			f.writeHeader(&buf, field)
		}
	}

	if len(req.Body) > 0 {
		buf.WriteString("  Body: ")
		buf.WriteString(f.formatBody(req.Body))
		buf.WriteString("\n")
	}

	return buf.String()
}

// FormatResponse formats an HTTP response for display
func (f *Formatter) FormatResponse(resp *Response) string {
	var buf strings.Builder
	reply := resp.Reply

	fmt.Fprintf(&buf, "◀ RESPONSE: %s (%dms)\n",
		f.colors.Status(reply.StatusCode).Sprint(reply.Status()),
		resp.Timing.GetTotalTimeMillis())

	if f.Verbose {
		buf.WriteString("  Timing:\n")
		fmt.Fprintf(&buf, "    DNS Lookup:         %dms\n", resp.Timing.GetDNSLookupTimeMillis())
		fmt.Fprintf(&buf, "    TCP Connection:     %dms\n", resp.Timing.GetTCPConnectTimeMillis())
		fmt.Fprintf(&buf, "    Time to First Byte: %dms\n", resp.Timing.GetTimeToFirstByteMillis())
		fmt.Fprintf(&buf, "    Content Transfer:   %dms\n", resp.Timing.GetContentTransferTimeMillis())
		fmt.Fprintf(&buf, "    Total:              %dms\n", resp.Timing.GetTotalTimeMillis())

		fmt.Fprintf(&buf, "  Headers (%s):\n", reply.Proto)
		for _, field := range reply.Header.Fields() {
			f.writeHeader(&buf, field)
		}
	}

	if len(resp.Body) > 0 {
		buf.WriteString("  Body:\n")
		buf.WriteString(f.formatBody(resp.Body))
		buf.WriteString("\n")
	}

	if len(resp.Extracted) > 0 {
		buf.WriteString("  Extracted:\n")
		names := make([]string, 0, len(resp.Extracted))
		for name := range resp.Extracted {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(&buf, "    %s = %s\n", f.colors.Highlight.Sprint(name), resp.Extracted[name])
		}
	}

	if resp.SchemaChecked {
		if len(resp.SchemaErrors) == 0 {
			fmt.Fprintf(&buf, "  Schema: %s valid\n", SuccessIcon(f.NoColor))
		} else {
			fmt.Fprintf(&buf, "  Schema: %s %d violation(s)\n", ErrorIcon(f.NoColor), len(resp.SchemaErrors))
			for _, e := range resp.SchemaErrors {
				fmt.Fprintf(&buf, "    %s\n", f.colors.Error.Sprint(e))
			}
		}
	}

	return buf.String()
}

// FormatBench formats the result of a bench run
func (f *Formatter) FormatBench(s bench.Snapshot) string {
	var buf strings.Builder

	icon := SuccessIcon(f.NoColor)
	if s.FailedRequests > 0 {
		icon = WarningIcon(f.NoColor)
	}
	fmt.Fprintf(&buf, "%s BENCH: %d requests in %s (%.1f req/s)\n",
		icon, s.TotalRequests, s.Elapsed.Round(time.Millisecond), s.RPS)
	fmt.Fprintf(&buf, "  Succeeded: %s\n", f.colors.Success.Sprint(s.SuccessRequests))
	fmt.Fprintf(&buf, "  Failed:    %s (%.1f%%)\n", f.colors.Error.Sprint(s.FailedRequests), s.ErrorRate*100)
	fmt.Fprintf(&buf, "  Bytes:     %d\n", s.TotalBytes)

	buf.WriteString("  Latency:\n")
	fmt.Fprintf(&buf, "    Min:  %s\n", s.Latency.Min)
	fmt.Fprintf(&buf, "    Mean: %s\n", s.Latency.Mean)
	fmt.Fprintf(&buf, "    P50:  %s\n", s.Latency.P50)
	fmt.Fprintf(&buf, "    P90:  %s\n", s.Latency.P90)
	fmt.Fprintf(&buf, "    P95:  %s\n", s.Latency.P95)
	fmt.Fprintf(&buf, "    P99:  %s\n", s.Latency.P99)
	fmt.Fprintf(&buf, "    Max:  %s\n", s.Latency.Max)

	if len(s.Statuses) > 0 {
		buf.WriteString("  Status codes:\n")
		for _, sc := range s.Statuses {
			fmt.Fprintf(&buf, "    %s: %d\n", f.colors.Status(sc.Code).Sprint(sc.Code), sc.Count)
		}
	}

	if len(s.Thresholds) > 0 {
		buf.WriteString("  Thresholds:\n")
		for _, t := range s.Thresholds {
			if t.Passed {
				fmt.Fprintf(&buf, "    %s %s (%s)\n", SuccessIcon(f.NoColor), t.Expression, t.Value)
			} else {
				fmt.Fprintf(&buf, "    %s %s (%s)\n", ErrorIcon(f.NoColor), t.Expression, t.Value)
			}
		}
	}

	return buf.String()
}

func (f *Formatter) writeHeader(buf *strings.Builder, field http.Field) {
	fmt.Fprintf(buf, "    %s: %s\n",
		f.colors.HeaderKey.Sprint(field.Name),
		f.colors.HeaderValue.Sprint(field.Value))
}

// formatBody pretty-prints JSON bodies and leaves anything else as it is.
func (f *Formatter) formatBody(body []byte) string {
	if !gjson.ValidBytes(body) {
		return string(body)
	}
	out := pretty.PrettyOptions(body, &pretty.Options{Width: 80, Prefix: "  ", Indent: "  "})
	if !f.NoColor {
		out = pretty.Color(out, nil)
	}
	return strings.TrimRight(string(out), "\n")
}
