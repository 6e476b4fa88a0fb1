// Package report writes the metrics, events and trades tables as CSV and
// prints the run summary. It is a pure consumer of pipeline output.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"dislocations/internal/model"
	"dislocations/internal/pipeline"
)

// Writer emits one CSV file per output table into a directory. File names
// carry the lookback window so runs over different windows do not clobber
// each other.
type Writer struct {
	dir         string
	lookbackMin int
}

// NewWriter creates a writer rooted at dir.
func NewWriter(dir string, lookbackMin int) *Writer {
	return &Writer{dir: dir, lookbackMin: lookbackMin}
}

func (w *Writer) path(table string) string {
	return filepath.Join(w.dir, fmt.Sprintf("%s_last%dmin.csv", table, w.lookbackMin))
}

func (w *Writer) writeTable(table string, header []string, rows [][]string) (string, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("report: create out dir: %w", err)
	}
	path := w.path(table)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("report: create %s: %w", path, err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if err := cw.Write(header); err != nil {
		return "", err
	}
	if err := cw.WriteAll(rows); err != nil {
		return "", err
	}
	cw.Flush()
	return path, cw.Error()
}

func fbps(v float64) string { return strconv.FormatFloat(v, 'f', 4, 64) }
func ms(t int64) string     { return strconv.FormatInt(t, 10) }

// WriteMetrics writes one row per spread sample.
func (w *Writer) WriteMetrics(samples []model.SpreadSample) (string, error) {
	rows := make([][]string, 0, len(samples))
	for _, s := range samples {
		rows = append(rows, []string{ms(s.Time.UnixMilli()), s.VenuePair, fbps(s.SpreadBps)})
	}
	return w.writeTable("metrics", []string{"ts_ms", "venue_pair", "spread_bps"}, rows)
}

// WriteEvents writes one row per detected event.
func (w *Writer) WriteEvents(events []model.Event) (string, error) {
	rows := make([][]string, 0, len(events))
	for _, e := range events {
		rows = append(rows, []string{
			strconv.Itoa(e.ID),
			e.VenuePair,
			ms(e.Start.UnixMilli()),
			ms(e.End.UnixMilli()),
			ms(e.Duration().Milliseconds()),
			fbps(e.PeakSpreadBps),
			string(e.Direction),
		})
	}
	header := []string{"event_id", "venue_pair", "start_ms", "end_ms", "duration_ms", "peak_spread_bps", "direction"}
	return w.writeTable("events", header, rows)
}

// WriteTrades writes one row per trade. Unexecutable trades keep their row
// with empty pnl cells, the CSV null marker.
func (w *Writer) WriteTrades(trades []model.Trade) (string, error) {
	rows := make([][]string, 0, len(trades))
	for _, t := range trades {
		pnl, pnlNet := "", ""
		if t.Executable {
			pnl, pnlNet = fbps(t.PnlBps), fbps(t.PnlNetBps)
		}
		rows = append(rows, []string{
			strconv.Itoa(t.ID),
			strconv.Itoa(t.EventID),
			ms(t.EntryTime.UnixMilli()),
			ms(t.ExitTime.UnixMilli()),
			string(t.Direction),
			strconv.FormatBool(t.Executable),
			pnl,
			pnlNet,
			fbps(t.FeeBps),
			fbps(t.HalfSpreadBps),
			fbps(t.SlippageBps),
			strconv.Itoa(t.LatencyMS),
		})
	}
	header := []string{"trade_id", "event_id", "entry_ms", "exit_ms", "direction", "executable",
		"pnl_bps", "pnl_net_bps", "fee_bps", "half_spread_bps", "slippage_bps", "latency_ms"}
	return w.writeTable("trades", header, rows)
}

// Summary prints the run counts and the aggregate pnl of executable trades.
func Summary(out io.Writer, res *pipeline.Result) {
	fmt.Fprintf(out, "window: %s .. %s\n",
		res.WindowStart.UTC().Format("2006-01-02 15:04:05.000"),
		res.WindowEnd.UTC().Format("2006-01-02 15:04:05.000"))
	fmt.Fprintf(out, "ticks: %d", res.Counts.Ticks)
	for _, v := range sortedVenues(res.Counts.TicksPerVenue) {
		fmt.Fprintf(out, " %s=%d", v, res.Counts.TicksPerVenue[v])
	}
	fmt.Fprintln(out)
	if len(res.EmptyVenues) > 0 {
		fmt.Fprintf(out, "venues with no ticks: %v\n", res.EmptyVenues)
	}
	fmt.Fprintf(out, "samples: %d (skipped stale: %d, dropped bad ref: %d)\n",
		res.Counts.Samples, res.Counts.SamplesSkipped, res.Counts.SamplesDropped)
	fmt.Fprintf(out, "events: %d\n", res.Counts.Events)
	fmt.Fprintf(out, "trades: %d executable, %d unexecutable\n",
		res.Counts.Executable, res.Counts.Unexecutable)

	var sumGross, sumNet float64
	n := 0
	for _, t := range res.Trades {
		if !t.Executable {
			continue
		}
		sumGross += t.PnlBps
		sumNet += t.PnlNetBps
		n++
	}
	if n > 0 {
		fmt.Fprintf(out, "pnl (executable): gross mean %.2f bps, net mean %.2f bps, net sum %.2f bps\n",
			sumGross/float64(n), sumNet/float64(n), sumNet)
	}
}

func sortedVenues(counts map[string]int) []string {
	venues := make([]string, 0, len(counts))
	for v := range counts {
		venues = append(venues, v)
	}
	sort.Strings(venues)
	return venues
}
