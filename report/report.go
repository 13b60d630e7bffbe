// Package report renders simulation results for the console.
package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/miretskiy/rrsched/simulator"
)

// Slot is one contiguous stretch of CPU time given to a process
type Slot struct {
	ID    int
	Start int
	Stop  int
}

// WriteTitle prints a boxed section title
func WriteTitle(w io.Writer, title string) {
	_, _ = fmt.Fprintln(w, strings.Repeat("-", len(title)*2))
	_, _ = fmt.Fprintln(w, strings.Repeat(" ", len(title)/2), title)
	_, _ = fmt.Fprintln(w, strings.Repeat("-", len(title)*2))
}

// WriteTrace prints one line per event, in emission order
func WriteTrace(w io.Writer, trace []simulator.TraceEvent) error {
	for _, e := range trace {
		if _, err := fmt.Fprintln(w, e.String()); err != nil {
			return err
		}
	}
	return nil
}

// CPUSlots extracts the CPU timeline from a trace. Ran events emitted while
// servicing the I/O queue are not CPU time and are skipped.
func CPUSlots(trace []simulator.TraceEvent) []Slot {
	var slots []Slot
	waiting := make(map[int]int) // Process ID -> tick of its last WaitedForIO
	for _, e := range trace {
		switch e.Kind {
		case simulator.EventKindWaitedForIO:
			waiting[e.ID] = e.Tick
		case simulator.EventKindRan:
			if tick, ok := waiting[e.ID]; ok && tick == e.Tick {
				continue
			}
			if e.Amount == 0 {
				continue
			}
			slots = append(slots, Slot{ID: e.ID, Start: e.Clock, Stop: e.Clock + e.Amount})
		}
	}
	return slots
}

// WriteGantt prints the CPU timeline as a one-line Gantt chart
func WriteGantt(w io.Writer, slots []Slot) {
	_, _ = fmt.Fprintln(w, "Gantt schedule")
	_, _ = fmt.Fprint(w, "|")
	for _, s := range slots {
		pid := strconv.Itoa(s.ID)
		padding := strings.Repeat(" ", max(0, (8-len(pid))/2))
		_, _ = fmt.Fprint(w, padding, pid, padding, "|")
	}
	_, _ = fmt.Fprintln(w)
	for i, s := range slots {
		_, _ = fmt.Fprint(w, strconv.Itoa(s.Start), "\t")
		if i == len(slots)-1 {
			_, _ = fmt.Fprint(w, strconv.Itoa(s.Stop))
		}
	}
	_, _ = fmt.Fprintf(w, "\n\n")
}

// ScheduleRows builds one row per process in descriptor order
func ScheduleRows(result *simulator.Result) [][]string {
	rows := make([][]string, 0, len(result.Processes))
	for _, p := range result.Processes {
		row := []string{
			strconv.Itoa(p.ID),
			strconv.Itoa(p.Priority),
			strconv.Itoa(p.BurstTime),
			strconv.Itoa(p.ArrivalTime),
			"-", "-", "-",
		}
		if pm, ok := result.Metrics.PerProcess[p.ID]; ok && pm.Completed {
			row[4] = strconv.Itoa(pm.WaitingTime)
			row[5] = strconv.Itoa(pm.TurnaroundTime)
			row[6] = strconv.Itoa(pm.CompletionTime)
		}
		rows = append(rows, row)
	}
	return rows
}

// WriteSchedule prints the per-process schedule table with averages in the footer
func WriteSchedule(w io.Writer, result *simulator.Result) {
	m := result.Metrics
	_, _ = fmt.Fprintln(w, "Schedule table")
	table := tablewriter.NewWriter(w)
	table.SetAutoFormatHeaders(false) // Keeps the "/t" unit in the footer lowercase
	table.SetHeader([]string{"ID", "PRIORITY", "BURST", "ARRIVAL", "WAIT", "TURNAROUND", "EXIT"})
	table.AppendBulk(ScheduleRows(result))
	table.SetFooter([]string{"", "", "", "",
		fmt.Sprintf("Average\n%.2f", m.AvgWaitingTime),
		fmt.Sprintf("Average\n%.2f", m.AvgTurnaroundTime),
		fmt.Sprintf("Throughput\n%.2f/t", m.Throughput)})
	table.Render()
}

// WriteSummary prints clock accounting and aggregate counters
func WriteSummary(w io.Writer, result *simulator.Result) {
	m := result.Metrics
	_, _ = fmt.Fprintf(w, "Final clock: %d (%d ticks)\n", result.FinalClock, result.Ticks)
	_, _ = fmt.Fprintf(w, "CPU busy: %d  Idle: %d  I/O service: %d  Utilization: %.1f%%\n",
		m.CPUBusyTime, m.IdleTime, m.IOServiceTime, m.CPUUtilizationPercent)
	_, _ = fmt.Fprintf(w, "Dispatches: %d  Promotions: %d  Completed: %d/%d\n",
		m.TotalDispatches, m.TotalPromotions, m.CompletedProcesses, m.TotalProcesses)
}

// WriteAll prints the full console report for a run
func WriteAll(w io.Writer, title string, result *simulator.Result) error {
	WriteTitle(w, title)
	if err := WriteTrace(w, result.Trace); err != nil {
		return err
	}
	_, _ = fmt.Fprintln(w)
	WriteGantt(w, CPUSlots(result.Trace))
	WriteSchedule(w, result)
	WriteSummary(w, result)
	return nil
}
