package latency

// ring keeps the newest cap samples; older ones are overwritten.
type ring struct {
	buf  []float64
	next int
	full bool
}

func newRing(capacity int) *ring {
	return &ring{buf: make([]float64, 0, capacity)}
}

func (r *ring) push(v float64) {
	if !r.full {
		r.buf = append(r.buf, v)
		if len(r.buf) == cap(r.buf) {
			r.full = true
		}
		return
	}
	r.buf[r.next] = v
	r.next = (r.next + 1) % len(r.buf)
}

func (r *ring) len() int {
	return len(r.buf)
}

// values returns a copy, oldest first.
func (r *ring) values() []float64 {
	out := make([]float64, 0, len(r.buf))
	if !r.full {
		return append(out, r.buf...)
	}
	out = append(out, r.buf[r.next:]...)
	return append(out, r.buf[:r.next]...)
}
