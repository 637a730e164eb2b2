// Package waitset implements the single-threaded, cooperative event loop
// described in spec §4.A: a dense list of (fd, events-mask, callback)
// triples dispatched from a single poll(2) call, plus timers. No callback
// may block; the explicit exception (run_sync) lives in package procsup.
package waitset

import (
	"container/heap"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/open-power/petitboot/logging"
)

// Callback is invoked when its waiter's fd becomes ready. revents carries
// the raw poll() event bits. Returning true deregisters the waiter.
type Callback func(revents int16) (done bool)

// TimerCallback is invoked when a timer fires. Returning true reschedules
// it for another `interval` from now; returning false removes it.
type TimerCallback func() (reschedule bool)

type waiter struct {
	fd     int
	events int16
	cb     Callback
}

type timer struct {
	at       time.Time
	interval time.Duration
	cb       TimerCallback
	index    int
	canceled bool
}

// timerHeap is a min-heap by `at`, giving WaitSet its next-deadline without
// a linear scan.
type timerHeap []*timer

func (h timerHeap) Len() int            { return len(h) }
func (h timerHeap) Less(i, j int) bool  { return h[i].at.Before(h[j].at) }
func (h timerHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index, h[j].index = i, j }
func (h *timerHeap) Push(x interface{}) { t := x.(*timer); t.index = len(*h); *h = append(*h, t) }
func (h *timerHeap) Pop() interface{} {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return t
}

// WaitSet is the event loop. It is not safe for concurrent use from
// multiple goroutines other than via Add/Remove/Wake, which may be called
// while Run is executing on another goroutine.
type WaitSet struct {
	mu      sync.Mutex
	waiters map[int]*waiter
	timers  timerHeap
	wakeR   int
	wakeW   int
	stop    chan struct{}
	stopped chan struct{}
}

// New creates a WaitSet with its internal self-pipe wired in, so Wake can
// interrupt a blocked poll() from another goroutine.
func New() (*WaitSet, error) {
	fds := make([]int, 2)
	if err := unix.Pipe2(fds, unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		return nil, err
	}
	ws := &WaitSet{
		waiters: make(map[int]*waiter),
		wakeR:   fds[0],
		wakeW:   fds[1],
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	ws.waiters[ws.wakeR] = &waiter{
		fd:     ws.wakeR,
		events: unix.POLLIN,
		cb: func(int16) bool {
			var buf [64]byte
			for {
				_, err := unix.Read(ws.wakeR, buf[:])
				if err != nil {
					break
				}
			}
			return false
		},
	}
	return ws, nil
}

// Add registers a waiter for fd. events is a bitmask of unix.POLLIN /
// unix.POLLOUT etc. Adding a waiter while inside a callback is permitted;
// it takes effect on the next poll().
func (ws *WaitSet) Add(fd int, events int16, cb Callback) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	ws.waiters[fd] = &waiter{fd: fd, events: events, cb: cb}
}

// Remove deregisters fd's waiter, if any. Removing a waiter cancels it
// immediately (spec §4.A); in-flight subprocesses must be signalled
// separately via procsup.
func (ws *WaitSet) Remove(fd int) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	delete(ws.waiters, fd)
}

// AddTimer schedules cb to run after d, rescheduling every d thereafter
// while cb keeps returning true. Returns a cancel function.
func (ws *WaitSet) AddTimer(d time.Duration, cb TimerCallback) (cancel func()) {
	t := &timer{at: time.Now().Add(d), interval: d, cb: cb}
	ws.mu.Lock()
	heap.Push(&ws.timers, t)
	ws.mu.Unlock()
	ws.Wake()
	return func() {
		ws.mu.Lock()
		t.canceled = true
		ws.mu.Unlock()
	}
}

// Wake interrupts a blocked poll() from any goroutine, so Add/Remove/
// AddTimer calls made concurrently with Run take effect promptly.
func (ws *WaitSet) Wake() {
	unix.Write(ws.wakeW, []byte{0})
}

// Stop asks Run to return once the current poll() iteration completes.
func (ws *WaitSet) Stop() {
	close(ws.stop)
	ws.Wake()
	<-ws.stopped
}

// Run blocks, dispatching ready callbacks, until Stop is called. poll() is
// invoked with a timeout computed from the next pending timer, or
// infinite if there are none (spec §4.A: "poll is invoked with an
// infinite timeout" absent timers).
func (ws *WaitSet) Run() error {
	defer close(ws.stopped)
	for {
		select {
		case <-ws.stop:
			return nil
		default:
		}

		ws.mu.Lock()
		pollfds := make([]unix.PollFd, 0, len(ws.waiters))
		fdIndex := make(map[int]*waiter, len(ws.waiters))
		for fd, w := range ws.waiters {
			pollfds = append(pollfds, unix.PollFd{Fd: int32(fd), Events: w.events})
			fdIndex[fd] = w
		}
		timeout := ws.nextTimeoutMs()
		ws.mu.Unlock()

		n, err := unix.Poll(pollfds, timeout)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return err
		}

		ws.fireDueTimers()

		if n <= 0 {
			continue
		}
		for _, pfd := range pollfds {
			if pfd.Revents == 0 {
				continue
			}
			ws.mu.Lock()
			w, ok := ws.waiters[int(pfd.Fd)]
			ws.mu.Unlock()
			if !ok {
				continue
			}
			func() {
				defer func() {
					if r := recover(); r != nil {
						logging.Noticef("waitset: callback for fd %d panicked: %v", pfd.Fd, r)
					}
				}()
				if w.cb(pfd.Revents) {
					ws.Remove(int(pfd.Fd))
				}
			}()
		}
	}
}

func (ws *WaitSet) nextTimeoutMs() int {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	for ws.timers.Len() > 0 && ws.timers[0].canceled {
		heap.Pop(&ws.timers)
	}
	if ws.timers.Len() == 0 {
		return -1
	}
	d := time.Until(ws.timers[0].at)
	if d < 0 {
		return 0
	}
	return int(d.Milliseconds())
}

func (ws *WaitSet) fireDueTimers() {
	now := time.Now()
	for {
		ws.mu.Lock()
		if ws.timers.Len() == 0 {
			ws.mu.Unlock()
			return
		}
		t := ws.timers[0]
		if t.canceled {
			heap.Pop(&ws.timers)
			ws.mu.Unlock()
			continue
		}
		if t.at.After(now) {
			ws.mu.Unlock()
			return
		}
		heap.Pop(&ws.timers)
		ws.mu.Unlock()

		reschedule := t.cb()
		if reschedule {
			ws.mu.Lock()
			if !t.canceled {
				t.at = now.Add(t.interval)
				heap.Push(&ws.timers, t)
			}
			ws.mu.Unlock()
		}
	}
}

// Close releases the self-pipe. Call after Run has returned.
func (ws *WaitSet) Close() {
	unix.Close(ws.wakeR)
	unix.Close(ws.wakeW)
}
