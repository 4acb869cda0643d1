package eventloop

import "time"

// Manual is a deterministic Loop for tests.
//
// Posted functions queue until Drain. Repeating tasks fire only on Tick.
// Work handed to Go is parked until Complete picks it, which lets tests
// deliver remote responses in any order.
type Manual struct {
	queue []func()
	tasks []*manualTask
	jobs  []func() func()
}

// NewManual creates an empty manual loop.
func NewManual() *Manual {
	return &Manual{}
}

// Post queues fn until the next Drain.
func (m *Manual) Post(fn func()) {
	m.queue = append(m.queue, fn)
}

// Every registers a repeating task fired by Tick.
func (m *Manual) Every(period time.Duration, fn func()) Task {
	t := &manualTask{period: period, fn: fn}
	m.tasks = append(m.tasks, t)
	return t
}

// Go parks work until Complete or CompleteAll.
func (m *Manual) Go(work func() func()) {
	m.jobs = append(m.jobs, work)
}

// Drain runs queued functions, including ones queued while draining.
func (m *Manual) Drain() {
	for len(m.queue) > 0 {
		fn := m.queue[0]
		m.queue = m.queue[1:]
		fn()
	}
}

// Tick fires every live task once, in registration order, then drains.
func (m *Manual) Tick() {
	live := m.liveTasks()
	for _, t := range live {
		if !t.cancelled {
			t.fn()
		}
	}
	m.Drain()
}

// Pending returns the number of parked jobs.
func (m *Manual) Pending() int {
	return len(m.jobs)
}

// Complete runs the i-th parked job, applies its result and drains.
func (m *Manual) Complete(i int) {
	job := m.jobs[i]
	m.jobs = append(m.jobs[:i:i], m.jobs[i+1:]...)
	if apply := job(); apply != nil {
		apply()
	}
	m.Drain()
}

// CompleteAll completes parked jobs first-in first-out until none remain.
func (m *Manual) CompleteAll() {
	for len(m.jobs) > 0 {
		m.Complete(0)
	}
}

// Periods returns the periods of all live tasks.
func (m *Manual) Periods() []time.Duration {
	var out []time.Duration
	for _, t := range m.liveTasks() {
		out = append(out, t.period)
	}
	return out
}

func (m *Manual) liveTasks() []*manualTask {
	live := m.tasks[:0]
	for _, t := range m.tasks {
		if !t.cancelled {
			live = append(live, t)
		}
	}
	m.tasks = live
	return append([]*manualTask(nil), live...)
}

type manualTask struct {
	period    time.Duration
	fn        func()
	cancelled bool
}

func (t *manualTask) Cancel() { t.cancelled = true }
