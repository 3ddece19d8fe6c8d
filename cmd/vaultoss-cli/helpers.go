package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"
)

// printTable prints data in a formatted table.
func printTable(headers []string, rows [][]string) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join(headers, "\t"))
	fmt.Fprintln(w, strings.Repeat("-\t", len(headers)))
	for _, row := range rows {
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	w.Flush()
}

// progressWriter wraps an io.Writer and shows progress.
type progressWriter struct {
	w       io.Writer
	total   int64
	written int64
}

func (pw *progressWriter) Write(p []byte) (int, error) {
	n, err := pw.w.Write(p)
	pw.written += int64(n)
	if pw.total > 0 {
		pct := float64(pw.written) / float64(pw.total) * 100
		fmt.Fprintf(os.Stderr, "\r  Progress: %.1f%% (%s / %s)",
			pct, formatSize(pw.written), formatSize(pw.total))
	} else {
		fmt.Fprintf(os.Stderr, "\r  Transferred: %s", formatSize(pw.written))
	}
	return n, err
}

func formatSize(b int64) string {
	switch {
	case b >= 1<<30:
		return fmt.Sprintf("%.1f GB", float64(b)/(1<<30))
	case b >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(b)/(1<<20))
	case b >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(b)/(1<<10))
	default:
		return fmt.Sprintf("%d B", b)
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

// splitArgs separates --name=value options from positional arguments.
func splitArgs(args []string) (positional []string, opts map[string]string) {
	opts = make(map[string]string)
	for _, arg := range args {
		if strings.HasPrefix(arg, "--") {
			name, value, _ := strings.Cut(strings.TrimPrefix(arg, "--"), "=")
			opts[name] = value
			continue
		}
		positional = append(positional, arg)
	}
	return positional, opts
}

// parseTTL accepts plain seconds or a Go duration string.
func parseTTL(s string) (time.Duration, error) {
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return d, nil
}

// parsePairs parses k=v,k2=v2 into a map.
func parsePairs(s string) (map[string]string, error) {
	out := make(map[string]string)
	if s == "" {
		return out, nil
	}
	for _, pair := range strings.Split(s, ",") {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid pair %q, want key=value", pair)
		}
		out[k] = v
	}
	return out, nil
}

// splitPath splits container/key.
func splitPath(s string) (string, string, bool) {
	c, k, ok := strings.Cut(s, "/")
	if !ok || c == "" || k == "" {
		return "", "", false
	}
	return c, k, true
}
