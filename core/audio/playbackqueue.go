package audio

import "sync"

// PlaybackQueue buffers audio waiting for a device and tracks marks placed
// between chunks. It is safe for concurrent use by a producer and the device
// callback.
type PlaybackQueue struct {
	mu     sync.Mutex
	buffer []byte
	marks  []playbackMark
}

type playbackMark struct {
	name     string
	position int
	callback func(string)
}

func (q *PlaybackQueue) Push(audio []byte) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.buffer = append(q.buffer, audio...)
}

// Mark calls callback with name once everything pushed so far was read.
func (q *PlaybackQueue) Mark(name string, callback func(string)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.marks = append(q.marks, playbackMark{name: name, position: len(q.buffer), callback: callback})
}

// Clear drops queued audio and pending marks without calling them.
func (q *PlaybackQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.buffer = nil
	q.marks = nil
}

func (q *PlaybackQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buffer)
}

// Read fills out with queued audio and pads the rest with silence. Marks
// reached by this read are called on a separate goroutine, in order, so a
// device callback never runs user code.
func (q *PlaybackQueue) Read(out []byte, silence byte) int {
	q.mu.Lock()
	n := copy(out, q.buffer)
	q.buffer = q.buffer[n:]
	if len(q.buffer) == 0 {
		q.buffer = nil
	}

	passed := 0
	for i := range q.marks {
		if q.marks[i].position <= n {
			passed++
			continue
		}
		q.marks[i].position -= n
	}
	reached := q.marks[:passed:passed]
	q.marks = q.marks[passed:]
	q.mu.Unlock()

	for i := n; i < len(out); i++ {
		out[i] = silence
	}

	if len(reached) > 0 {
		go func() {
			for _, mark := range reached {
				mark.callback(mark.name)
			}
		}()
	}
	return n
}
