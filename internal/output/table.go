package output

import (
	"bytes"
	"fmt"
	"text/tabwriter"

	"github.com/jbweber/hvctl/internal/batch"
	"github.com/jbweber/hvctl/internal/inventory"
)

// TableFormatter formats resources as human-readable tables.
type TableFormatter struct {
	// NoHeaders omits the header row.
	NoHeaders bool
}

// FormatDomain formats a single domain as a key/value block.
func (f *TableFormatter) FormatDomain(d inventory.DomainInfo) (string, error) {
	return details([][2]string{
		{"Name", d.Name},
		{"UUID", d.UUID},
		{"State", d.State},
		{"Persistent", yesNo(d.Persistent)},
		{"Autostart", yesNo(d.Autostart)},
		{"CPUs", fmt.Sprintf("%d", d.VCPUs)},
		{"Memory", fmt.Sprintf("%d MiB", d.MemoryMiB)},
	}), nil
}

// FormatDomainList formats domains as a table.
func (f *TableFormatter) FormatDomainList(ds []inventory.DomainInfo) (string, error) {
	if len(ds) == 0 {
		return "No domains found\n", nil
	}

	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	if !f.NoHeaders {
		_, _ = fmt.Fprintln(w, "NAME\tSTATE\tPERSISTENT\tAUTOSTART\tCPUs\tMEMORY")
	}
	for _, d := range ds {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d MiB\n",
			d.Name, d.State, yesNo(d.Persistent), yesNo(d.Autostart), d.VCPUs, d.MemoryMiB)
	}
	_ = w.Flush()
	return buf.String(), nil
}

// FormatPool formats a single storage pool as a key/value block.
func (f *TableFormatter) FormatPool(p inventory.PoolInfo) (string, error) {
	return details([][2]string{
		{"Name", p.Name},
		{"UUID", p.UUID},
		{"Type", dash(p.Type)},
		{"State", p.State},
		{"Persistent", yesNo(p.Persistent)},
		{"Autostart", yesNo(p.Autostart)},
		{"Path", dash(p.Path)},
		{"Capacity", formatSize(p.Capacity)},
		{"Allocation", formatSize(p.Allocation)},
		{"Available", formatSize(p.Available)},
	}), nil
}

// FormatVolume formats a single volume as a key/value block.
func (f *TableFormatter) FormatVolume(v inventory.VolumeInfo) (string, error) {
	return details([][2]string{
		{"Name", v.Name},
		{"Pool", v.Pool},
		{"Path", dash(v.Path)},
		{"Format", dash(v.Format)},
		{"Capacity", formatSize(v.Capacity)},
		{"Allocation", formatSize(v.Allocation)},
	}), nil
}

// FormatPoolList formats storage pools as a table.
func (f *TableFormatter) FormatPoolList(ps []inventory.PoolInfo) (string, error) {
	if len(ps) == 0 {
		return "No storage pools found\n", nil
	}

	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	if !f.NoHeaders {
		_, _ = fmt.Fprintln(w, "NAME\tSTATE\tPERSISTENT\tAUTOSTART\tCAPACITY\tAVAILABLE\tPATH")
	}
	for _, p := range ps {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			p.Name, p.State, yesNo(p.Persistent), yesNo(p.Autostart),
			formatSize(p.Capacity), formatSize(p.Available), dash(p.Path))
	}
	_ = w.Flush()
	return buf.String(), nil
}

// FormatVolumeList formats volumes as a table.
func (f *TableFormatter) FormatVolumeList(vs []inventory.VolumeInfo) (string, error) {
	if len(vs) == 0 {
		return "No volumes found\n", nil
	}

	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	if !f.NoHeaders {
		_, _ = fmt.Fprintln(w, "NAME\tFORMAT\tCAPACITY\tALLOCATION\tPATH")
	}
	for _, v := range vs {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			v.Name, dash(v.Format), formatSize(v.Capacity), formatSize(v.Allocation), v.Path)
	}
	_ = w.Flush()
	return buf.String(), nil
}

// FormatSummary renders the results block. Breakdown lines only appear
// when non-zero.
func (f *TableFormatter) FormatSummary(s batch.Summary) (string, error) {
	var buf bytes.Buffer
	buf.WriteString("Results:\n")
	fmt.Fprintf(&buf, "  Success:     %d\n", s.Success)
	fmt.Fprintf(&buf, "  Failed:      %d\n", s.Failed)
	for _, line := range []struct {
		label string
		n     int
	}{
		{"Skipped:  ", s.Skipped},
		{"Timed Out:", s.TimedOut},
		{"Forced:   ", s.Forced},
		{"Not Found:", s.NotFound},
		{"Ignored:  ", s.Ignored},
	} {
		if line.n > 0 {
			fmt.Fprintf(&buf, "    %s %d\n", line.label, line.n)
		}
	}
	fmt.Fprintf(&buf, "Total:         %d\n", s.Total)
	return buf.String(), nil
}

func details(rows [][2]string) string {
	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 1, ' ', 0)
	for _, r := range rows {
		_, _ = fmt.Fprintf(w, "%s:\t%s\n", r[0], r[1])
	}
	_ = w.Flush()
	return buf.String()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// formatSize formats a byte count with binary units.
// Examples: "512 B", "1.0 KiB", "10.0 GiB"
func formatSize(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for m := n / unit; m >= unit && exp < 5; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
