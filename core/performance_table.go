package core

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"
)

// Performance is the timing service threaded through every calculation.
// Every Begin must be matched by an End with the same key in strict
// stack order; Pause and Unpause exclude nested work from a span.
type Performance interface {
	Begin(key string)
	End(key string)
	Pause(key string)
	Unpause(key string)
}

// NopPerformance discards all timing calls
type NopPerformance struct{}

func (NopPerformance) Begin(string)   {}
func (NopPerformance) End(string)     {}
func (NopPerformance) Pause(string)   {}
func (NopPerformance) Unpause(string) {}

const keySeparator = "\x1f"

// PerformanceTable accumulates time and call counts per nested key stack.
// It is not safe for concurrent use; parallel scorers each keep their own
// table and Absorb them afterwards.
type PerformanceTable struct {
	now func() time.Time

	begin      map[string]time.Time
	pauseBegin map[string]time.Time
	pauseTime  map[string]time.Duration
	totals     map[string]time.Duration
	calls      map[string]int

	globalBegin     time.Time
	globalEnd       time.Time
	fromOtherTables time.Duration

	depthCount          int
	depthCountBelowZero bool
	keyStack            []string
	pauseStack          []string
	badKeyStack         *[2]string
	blocked             bool
}

// NewPerformanceTable creates an empty table using the wall clock
func NewPerformanceTable() *PerformanceTable {
	return newPerformanceTable(time.Now)
}

func newPerformanceTable(now func() time.Time) *PerformanceTable {
	return &PerformanceTable{
		now:        now,
		begin:      make(map[string]time.Time),
		pauseBegin: make(map[string]time.Time),
		pauseTime:  make(map[string]time.Duration),
		totals:     make(map[string]time.Duration),
		calls:      make(map[string]int),
	}
}

func (pt *PerformanceTable) stackKey() string {
	return strings.Join(pt.keyStack, keySeparator)
}

// Begin starts the stopwatch for key nested under the open keys
func (pt *PerformanceTable) Begin(key string) {
	if pt.blocked {
		return
	}
	now := pt.now()
	pt.keyStack = append(pt.keyStack, key)
	stack := pt.stackKey()
	pt.begin[stack] = now
	pt.pauseTime[stack] = 0
	if pt.globalBegin.IsZero() {
		pt.globalBegin = now
	}
	pt.depthCount++
}

// End stops the stopwatch for key, which must be the innermost open key
func (pt *PerformanceTable) End(key string) {
	if pt.blocked {
		return
	}
	now := pt.now()
	stack := pt.stackKey()
	elapsed := now.Sub(pt.begin[stack]) - pt.pauseTime[stack]
	pt.totals[stack] += elapsed
	pt.calls[stack]++
	pt.globalEnd = now

	pt.depthCount--
	if pt.depthCount < 0 {
		pt.depthCountBelowZero = true
	}
	if len(pt.keyStack) > 0 {
		popped := pt.keyStack[len(pt.keyStack)-1]
		pt.keyStack = pt.keyStack[:len(pt.keyStack)-1]
		if popped != key && pt.badKeyStack == nil {
			pt.badKeyStack = &[2]string{key, popped}
		}
	}
}

// Pause stops counting time for the innermost open key until Unpause
func (pt *PerformanceTable) Pause(key string) {
	if pt.blocked || len(pt.keyStack) == 0 {
		return
	}
	stack := pt.stackKey()
	pt.pauseBegin[stack] = pt.now()
	pt.pauseStack = append(pt.pauseStack, pt.keyStack[len(pt.keyStack)-1])
	pt.keyStack = pt.keyStack[:len(pt.keyStack)-1]
}

// Unpause restores the key removed by the matching Pause
func (pt *PerformanceTable) Unpause(key string) {
	if pt.blocked || len(pt.pauseStack) == 0 {
		return
	}
	pt.keyStack = append(pt.keyStack, pt.pauseStack[len(pt.pauseStack)-1])
	pt.pauseStack = pt.pauseStack[:len(pt.pauseStack)-1]
	stack := pt.stackKey()
	pt.pauseTime[stack] += pt.now().Sub(pt.pauseBegin[stack])
}

// Block turns off data collection
func (pt *PerformanceTable) Block() { pt.blocked = true }

// Unblock turns data collection back on
func (pt *PerformanceTable) Unblock() { pt.blocked = false }

// CombinePerformanceTables sums the totals of several tables into a new one
func CombinePerformanceTables(tables ...*PerformanceTable) *PerformanceTable {
	out := NewPerformanceTable()
	for _, table := range tables {
		if !table.globalBegin.IsZero() {
			out.fromOtherTables += table.globalEnd.Sub(table.globalBegin)
		}
		out.fromOtherTables += table.fromOtherTables
		for stack, d := range table.totals {
			out.totals[stack] += d
		}
		for stack, n := range table.calls {
			out.calls[stack] += n
		}
	}
	return out
}

// Absorb adds other's totals to pt; other is not modified
func (pt *PerformanceTable) Absorb(other *PerformanceTable) {
	if !other.globalBegin.IsZero() {
		pt.fromOtherTables += other.globalEnd.Sub(other.globalBegin)
	}
	pt.fromOtherTables += other.fromOtherTables
	for stack, d := range other.totals {
		pt.totals[stack] += d
	}
	for stack, n := range other.calls {
		pt.calls[stack] += n
	}
}

// Calls returns the number of completed spans for a key path
func (pt *PerformanceTable) Calls(path ...string) int {
	return pt.calls[strings.Join(path, keySeparator)]
}

// Time returns the accumulated time for a key path
func (pt *PerformanceTable) Time(path ...string) time.Duration {
	return pt.totals[strings.Join(path, keySeparator)]
}

// ProfileEntry is one location of a performance report
type ProfileEntry struct {
	Location    string          `json:"Location"`
	Calls       int             `json:"calls"`
	TimePerCall float64         `json:"timePerCall"`
	Time        float64         `json:"time"`
	Profile     []*ProfileEntry `json:"Profile,omitempty"`
}

// PerformanceReport is the nested summary produced by Report
type PerformanceReport struct {
	TotalTime float64         `json:"TotalTime"`
	SortedBy  string          `json:"SortedBy"`
	Profile   []*ProfileEntry `json:"Profile"`
}

func (pt *PerformanceTable) check() error {
	var problems []string
	if pt.depthCount != 0 {
		problems = append(problems, fmt.Sprintf("depthCount is %d", pt.depthCount))
	}
	if pt.depthCountBelowZero {
		problems = append(problems, "depthCount dropped below zero")
	}
	if pt.badKeyStack != nil {
		problems = append(problems, fmt.Sprintf("end %q encountered when end %q expected", pt.badKeyStack[0], pt.badKeyStack[1]))
	}
	if len(problems) > 0 {
		return &PerformanceError{Problems: problems}
	}
	return nil
}

// Report summarizes the table as a tree of locations, each level sorted
// in descending order of sortBy ("time", "calls", "timePerCall" or "name")
func (pt *PerformanceTable) Report(sortBy string) (*PerformanceReport, error) {
	if err := pt.check(); err != nil {
		return nil, err
	}
	if sortBy == "" {
		sortBy = "time"
	}

	children := make(map[string][]string)
	for stack := range pt.totals {
		parent := ""
		if i := strings.LastIndex(stack, keySeparator); i >= 0 {
			parent = stack[:i]
		}
		children[parent] = append(children[parent], stack)
	}

	less, err := pt.sorter(sortBy)
	if err != nil {
		return nil, err
	}

	var build func(parent string) []*ProfileEntry
	build = func(parent string) []*ProfileEntry {
		stacks := children[parent]
		sort.Slice(stacks, func(i, j int) bool { return less(stacks[i], stacks[j]) })
		entries := make([]*ProfileEntry, 0, len(stacks))
		for _, stack := range stacks {
			location := stack
			if i := strings.LastIndex(stack, keySeparator); i >= 0 {
				location = stack[i+len(keySeparator):]
			}
			seconds := pt.totals[stack].Seconds()
			entries = append(entries, &ProfileEntry{
				Location:    location,
				Calls:       pt.calls[stack],
				TimePerCall: seconds / float64(pt.calls[stack]),
				Time:        seconds,
				Profile:     build(stack),
			})
		}
		if len(entries) == 0 {
			return nil
		}
		return entries
	}

	total := pt.fromOtherTables
	if !pt.globalBegin.IsZero() {
		total += pt.globalEnd.Sub(pt.globalBegin)
	}
	return &PerformanceReport{TotalTime: total.Seconds(), SortedBy: sortBy, Profile: build("")}, nil
}

func (pt *PerformanceTable) sorter(sortBy string) (func(a, b string) bool, error) {
	perCall := func(s string) float64 { return pt.totals[s].Seconds() / float64(pt.calls[s]) }
	switch sortBy {
	case "time":
		return func(a, b string) bool {
			if pt.totals[a] != pt.totals[b] {
				return pt.totals[a] > pt.totals[b]
			}
			return a < b
		}, nil
	case "calls":
		return func(a, b string) bool {
			if pt.calls[a] != pt.calls[b] {
				return pt.calls[a] > pt.calls[b]
			}
			return a < b
		}, nil
	case "timePerCall":
		return func(a, b string) bool {
			if perCall(a) != perCall(b) {
				return perCall(a) > perCall(b)
			}
			return a < b
		}, nil
	case "name":
		return func(a, b string) bool { return a < b }, nil
	}
	return nil, fmt.Errorf("unrecognized sortby %q: expected one of \"time\", \"calls\", \"timePerCall\", \"name\"", sortBy)
}

// Look writes the report as an indented table
func (pt *PerformanceTable) Look(w io.Writer, sortBy string) error {
	report, err := pt.Report(sortBy)
	if err != nil {
		return err
	}
	if len(report.Profile) == 0 {
		_, err := fmt.Fprintln(w, "(empty PerformanceTable)")
		return err
	}
	fmt.Fprintf(w, "%-40s %12s %14s %12s\n", "Location", "calls", "time/call (s)", "time (s)")
	fmt.Fprintln(w, strings.Repeat("-", 81))

	var show func(entries []*ProfileEntry, depth int)
	show = func(entries []*ProfileEntry, depth int) {
		for _, e := range entries {
			name := strings.Repeat("    ", depth) + e.Location
			if len(name) > 40 {
				name = name[:37] + "..."
			}
			fmt.Fprintf(w, "%-40s %12d %14.6g %12.6g\n", name, e.Calls, e.TimePerCall, e.Time)
			show(e.Profile, depth+1)
		}
	}
	show(report.Profile, 0)
	_, err = fmt.Fprintf(w, "\nTotal time (s): %g\n", report.TotalTime)
	return err
}

// Walk visits every location with its full key path
func (r *PerformanceReport) Walk(visit func(path []string, entry *ProfileEntry)) {
	var walk func(prefix []string, entries []*ProfileEntry)
	walk = func(prefix []string, entries []*ProfileEntry) {
		for _, e := range entries {
			path := append(append([]string(nil), prefix...), e.Location)
			visit(path, e)
			walk(path, e.Profile)
		}
	}
	walk(nil, r.Profile)
}
