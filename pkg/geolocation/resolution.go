package geolocation

import "sync"

// ResolutionOutcome is the result of an interactive settings-resolution flow.
type ResolutionOutcome int

const (
	// ResolutionGranted means the user fixed the settings.
	ResolutionGranted ResolutionOutcome = iota
	// ResolutionRefused means the user backed out of the prompt.
	ResolutionRefused
)

func (o ResolutionOutcome) String() string {
	if o == ResolutionGranted {
		return "granted"
	}
	return "refused"
}

// DefaultFirstResolutionToken is where resolution tokens start counting.
const DefaultFirstResolutionToken = 100

// PendingResolution is a one-shot future completed with a resolution outcome.
type PendingResolution struct {
	Token int

	once sync.Once
	done func(ResolutionOutcome)
}

func (p *PendingResolution) complete(outcome ResolutionOutcome) {
	p.once.Do(func() {
		if p.done != nil {
			p.done(outcome)
		}
	})
}

// Resolutions is the table of in-flight resolution tokens. Each Orchestrator
// owns one; tokens are never shared across instances.
type Resolutions struct {
	mu      sync.Mutex
	next    int
	pending map[int]*PendingResolution
}

// NewResolutions creates a table allocating tokens from first upward.
func NewResolutions(first int) *Resolutions {
	return &Resolutions{
		next:    first,
		pending: make(map[int]*PendingResolution),
	}
}

// Register allocates a fresh token whose completion calls done.
func (t *Resolutions) Register(done func(ResolutionOutcome)) *PendingResolution {
	t.mu.Lock()
	defer t.mu.Unlock()
	p := &PendingResolution{Token: t.next, done: done}
	t.next++
	t.pending[p.Token] = p
	return p
}

// Complete removes token and resolves its future. It returns false, doing
// nothing, when the token is unknown or already completed.
func (t *Resolutions) Complete(token int, outcome ResolutionOutcome) bool {
	t.mu.Lock()
	p, ok := t.pending[token]
	delete(t.pending, token)
	t.mu.Unlock()
	if !ok {
		return false
	}
	p.complete(outcome)
	return true
}

// Cancel drops token without resolving it.
func (t *Resolutions) Cancel(token int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.pending[token]
	delete(t.pending, token)
	return ok
}

// Len returns the number of unresolved tokens.
func (t *Resolutions) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}
