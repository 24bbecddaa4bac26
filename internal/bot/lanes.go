package bot

import "sync"

// lanes runs submitted work one at a time per key, in submission order.
// Different keys run concurrently. A lane's goroutine exits once its queue drains.
type lanes struct {
	mu     sync.Mutex
	queues map[string][]func()
	wg     sync.WaitGroup
}

func newLanes() *lanes {
	return &lanes{queues: make(map[string][]func())}
}

func (l *lanes) submit(key string, fn func()) {
	l.mu.Lock()
	if q, running := l.queues[key]; running {
		l.queues[key] = append(q, fn)
		l.mu.Unlock()
		return
	}
	l.queues[key] = []func(){fn}
	l.mu.Unlock()

	l.wg.Add(1)
	go l.drain(key)
}

func (l *lanes) drain(key string) {
	defer l.wg.Done()
	for {
		l.mu.Lock()
		q := l.queues[key]
		if len(q) == 0 {
			delete(l.queues, key)
			l.mu.Unlock()
			return
		}
		fn := q[0]
		l.queues[key] = q[1:]
		l.mu.Unlock()
		fn()
	}
}

// wait blocks until every lane has drained.
func (l *lanes) wait() { l.wg.Wait() }
