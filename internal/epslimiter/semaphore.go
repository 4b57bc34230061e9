package epslimiter

// creditSemaphore is a counting semaphore built on a buffered channel: the
// channel's capacity is the ceiling on in-flight credits, and the number
// of tokens currently sitting in the channel is the number of credits
// available to acquire. This is the "channel of unit tokens" equivalent
// the design notes call out as an acceptable alternative to a native
// counting semaphore, and it has the useful property (unlike a raw OS
// semaphore) that the current value can be read directly off the channel
// for accounting and metrics.
type creditSemaphore struct {
	tokens chan struct{}
}

func newCreditSemaphore(capacity int) *creditSemaphore {
	return &creditSemaphore{tokens: make(chan struct{}, capacity)}
}

// acquire blocks until a credit is available.
func (s *creditSemaphore) acquire() {
	<-s.tokens
}

// generate adds up to n credits, stopping early once the pool is at
// capacity. It returns the number actually added.
func (s *creditSemaphore) generate(n int) int {
	added := 0
	for i := 0; i < n; i++ {
		select {
		case s.tokens <- struct{}{}:
			added++
		default:
			return added
		}
	}
	return added
}

// clean removes up to n credits without blocking, stopping early once the
// pool is empty. It returns the number actually removed; a shortfall (pool
// emptied before n were removed) is not reported.
func (s *creditSemaphore) clean(n int) int {
	removed := 0
	for i := 0; i < n; i++ {
		select {
		case <-s.tokens:
			removed++
		default:
			return removed
		}
	}
	return removed
}

// value returns the number of credits currently available.
func (s *creditSemaphore) value() int {
	return len(s.tokens)
}

// capacity returns max_events, the ceiling on in-flight credits.
func (s *creditSemaphore) capacity() int {
	return cap(s.tokens)
}
