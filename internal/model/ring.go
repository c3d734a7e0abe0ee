package model

// sample is one buffered training row.
type sample struct {
	x []float64
	y float64
}

// ring is a fixed-capacity FIFO that overwrites its oldest entry when full.
type ring struct {
	data  []sample
	start int
	n     int
}

func newRing(capacity int) *ring {
	return &ring{data: make([]sample, capacity)}
}

// push appends s and reports whether an older sample was evicted.
func (r *ring) push(s sample) bool {
	if r.n < len(r.data) {
		r.data[(r.start+r.n)%len(r.data)] = s
		r.n++
		return false
	}
	r.data[r.start] = s
	r.start = (r.start + 1) % len(r.data)
	return true
}

func (r *ring) len() int { return r.n }

// at returns the i-th oldest sample.
func (r *ring) at(i int) sample {
	return r.data[(r.start+i)%len(r.data)]
}
