package memctl

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"memwatchd/pkg/types"
)

// printJSON renders v as indented JSON for --json mode.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func fmtBytes(n uint64) string {
	const (
		kib = 1 << 10
		mib = 1 << 20
		gib = 1 << 30
	)
	switch {
	case n >= gib:
		return fmt.Sprintf("%.1f GiB", float64(n)/gib)
	case n >= mib:
		return fmt.Sprintf("%.1f MiB", float64(n)/mib)
	case n >= kib:
		return fmt.Sprintf("%.1f KiB", float64(n)/kib)
	default:
		return fmt.Sprintf("%d B", n)
	}
}

func renderStatus(w io.Writer, st types.StatusResponse) {
	fmt.Fprintf(w, "state:         %s\n", st.State)
	for cat, lvl := range st.States {
		fmt.Fprintf(w, "  %-12s %s\n", cat+":", lvl)
	}
	fmt.Fprintf(w, "memory:        %s / %s (%.1f%%)\n",
		fmtBytes(st.Memory.UsedBytes), fmtBytes(st.Memory.TotalBytes), st.Memory.UsagePercentage)
	if st.Memory.Stale {
		fmt.Fprintln(w, "               (stale sample, last probe failed)")
	}
	fmt.Fprintf(w, "models:        %d loaded, %d unloadable, %s used\n",
		st.Models.LoadedCount, st.Models.UnloadableCount, fmtBytes(st.Models.UsedBytes))
	fmt.Fprintf(w, "active alerts: %d\n", st.ActiveAlerts)
	fmt.Fprintf(w, "uptime:        %s\n", (time.Duration(st.UptimeSeconds) * time.Second).String())
}

func renderMemory(w io.Writer, m types.SystemMemoryInfo) {
	fmt.Fprintf(w, "total:     %s\n", fmtBytes(m.TotalBytes))
	fmt.Fprintf(w, "used:      %s (%.1f%%)\n", fmtBytes(m.UsedBytes), m.UsagePercentage)
	fmt.Fprintf(w, "available: %s\n", fmtBytes(m.AvailableBytes))
	if m.GPU != nil {
		fmt.Fprintf(w, "gpu:       %s / %s (%.1f%%)\n",
			fmtBytes(m.GPU.UsedBytes), fmtBytes(m.GPU.TotalBytes), m.GPU.UsagePercentage)
	}
	if m.Stale {
		fmt.Fprintln(w, "stale:     last probe failed, values are from the previous sample")
	}
}

func renderModels(w io.Writer, status types.ModelMemoryStatus) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "MODEL\tMEMORY\tLOADED\tUNLOADABLE\tPRIORITY\tLAST ACCESS")
	for _, m := range status.Models {
		last := "-"
		if m.LastAccessedUnix > 0 {
			last = time.Unix(m.LastAccessedUnix, 0).Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%s\t%s\t%v\t%v\t%d\t%s\n",
			m.ModelID, fmtBytes(m.MemoryBytes), m.IsLoaded, m.CanUnload, m.Priority, last)
	}
	tw.Flush()
	fmt.Fprintf(w, "\n%d loaded, %s used", status.Summary.LoadedCount, fmtBytes(status.Summary.UsedBytes))
	if status.Summary.BudgetBytes > 0 {
		fmt.Fprintf(w, " of %s budget (%.1f%%)", fmtBytes(status.Summary.BudgetBytes), status.Summary.UtilizationPct)
	}
	fmt.Fprintln(w)
}

func renderAlerts(w io.Writer, alerts []types.MemoryAlert) {
	if len(alerts) == 0 {
		fmt.Fprintln(w, "no active alerts")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tLEVEL\tCATEGORY\tTITLE\tACK\tTIME")
	for _, a := range alerts {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%v\t%s\n",
			a.ID, a.Level, a.Category, a.Title, a.Acknowledged,
			time.Unix(a.TimestampUnix, 0).Format(time.RFC3339))
	}
	tw.Flush()
}
