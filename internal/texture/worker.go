package texture

import (
	"image"
	"log/slog"
	"sync"

	"gpu-resource-cache/internal/resource"
)

type job struct {
	name   string
	target *resource.Handle
}

type result struct {
	job
	img *image.NRGBA
	err error
}

// worker is the background decoder: one goroutine draining a FIFO queue.
// Enqueue never blocks; the goroutine blocks on wake when the queue is
// empty. Finished decodes wait in done until the owner drains them.
type worker struct {
	decode func(name string) (*image.NRGBA, error)
	log    *slog.Logger

	mu    sync.Mutex
	queue []job
	busy  int
	done  []result

	wake     chan struct{}
	quit     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

func newWorker(decode func(string) (*image.NRGBA, error), log *slog.Logger) *worker {
	w := &worker{
		decode: decode,
		log:    log,
		wake:   make(chan struct{}, 1),
		quit:   make(chan struct{}),
	}
	w.wg.Add(1)
	go w.run()
	return w
}

func (w *worker) enqueue(j job) {
	w.mu.Lock()
	w.queue = append(w.queue, j)
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *worker) pop() (job, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.queue) == 0 {
		return job{}, false
	}
	j := w.queue[0]
	w.queue[0] = job{}
	w.queue = w.queue[1:]
	w.busy++
	return j, true
}

func (w *worker) run() {
	defer w.wg.Done()
	for {
		select {
		case <-w.quit:
			return
		default:
		}

		j, ok := w.pop()
		if !ok {
			select {
			case <-w.quit:
				return
			case <-w.wake:
			}
			continue
		}

		img, err := w.decode(j.name)
		w.log.Debug("texture decoded", "name", j.name, "ok", err == nil)

		w.mu.Lock()
		w.busy--
		w.done = append(w.done, result{job: j, img: img, err: err})
		w.mu.Unlock()
	}
}

// drain returns finished decodes in completion order, which for a single
// worker is submission order.
func (w *worker) drain() []result {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := w.done
	w.done = nil
	return out
}

func (w *worker) pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.queue) + w.busy + len(w.done)
}

// close wakes the goroutine and waits for it. Jobs that have not started
// are discarded; a decode in flight finishes first.
func (w *worker) close() {
	w.stopOnce.Do(func() {
		close(w.quit)
		w.wg.Wait()

		w.mu.Lock()
		dropped := len(w.queue)
		w.queue = nil
		w.done = nil
		w.mu.Unlock()
		if dropped > 0 {
			w.log.Debug("texture loads discarded on close", "count", dropped)
		}
	})
}
