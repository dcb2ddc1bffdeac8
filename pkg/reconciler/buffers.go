package reconciler

import "time"

// LogBuffer keeps the most recent raw stream lines. When full, the oldest
// line is evicted.
type LogBuffer struct {
	lines []string
	next  int
	full  bool
}

// NewLogBuffer creates a buffer holding up to capacity lines.
func NewLogBuffer(capacity int) *LogBuffer {
	return &LogBuffer{lines: make([]string, max(capacity, 1))}
}

// Append stores line.
func (b *LogBuffer) Append(line string) {
	b.lines[b.next] = line
	b.next = (b.next + 1) % len(b.lines)

	if b.next == 0 {
		b.full = true
	}
}

// Len returns the number of stored lines.
func (b *LogBuffer) Len() int {
	if b.full {
		return len(b.lines)
	}

	return b.next
}

// Lines returns the stored lines, oldest first.
func (b *LogBuffer) Lines() []string {
	if !b.full {
		return append([]string(nil), b.lines[:b.next]...)
	}

	out := make([]string, 0, len(b.lines))
	out = append(out, b.lines[b.next:]...)

	return append(out, b.lines[:b.next]...)
}

// Sample is the outcome counts of one sampling interval.
type Sample struct {
	At      time.Time
	Success int
	Failure int
}

// RateSeries is a fixed-length ring of samples. When full, the oldest sample
// is evicted.
type RateSeries struct {
	samples []Sample
	next    int
	full    bool
}

// NewRateSeries creates a series of length n.
func NewRateSeries(n int) *RateSeries {
	return &RateSeries{samples: make([]Sample, max(n, 1))}
}

// Push appends s.
func (r *RateSeries) Push(s Sample) {
	r.samples[r.next] = s
	r.next = (r.next + 1) % len(r.samples)

	if r.next == 0 {
		r.full = true
	}
}

// Samples returns the stored samples, oldest first.
func (r *RateSeries) Samples() []Sample {
	if !r.full {
		return append([]Sample(nil), r.samples[:r.next]...)
	}

	out := make([]Sample, 0, len(r.samples))
	out = append(out, r.samples[r.next:]...)

	return append(out, r.samples[:r.next]...)
}

// Cap returns the series length.
func (r *RateSeries) Cap() int {
	return len(r.samples)
}
