package browser

import "sync"

// Progress reports an upload in flight.
type Progress struct {
	Name  string `json:"name"`
	Sent  int64  `json:"sent"`
	Total int64  `json:"total"`
}

// Presenter renders controller events. Methods may be called from any goroutine.
type Presenter interface {
	StateChanged(State)
	UploadProgress(Progress)
	Failed(*OpError)
	Notify(message string)
	NavigateBack(deletedID string)
}

// NopPresenter ignores every event.
type NopPresenter struct{}

func (NopPresenter) StateChanged(State)      {}
func (NopPresenter) UploadProgress(Progress) {}
func (NopPresenter) Failed(*OpError)         {}
func (NopPresenter) Notify(string)           {}
func (NopPresenter) NavigateBack(string)     {}

// Recorder keeps every event it receives.
type Recorder struct {
	mu        sync.Mutex
	states    []State
	progress  []Progress
	failures  []*OpError
	notices   []string
	navigated []string
}

func (r *Recorder) StateChanged(s State) {
	r.mu.Lock()
	r.states = append(r.states, s)
	r.mu.Unlock()
}

func (r *Recorder) UploadProgress(p Progress) {
	r.mu.Lock()
	r.progress = append(r.progress, p)
	r.mu.Unlock()
}

func (r *Recorder) Failed(err *OpError) {
	r.mu.Lock()
	r.failures = append(r.failures, err)
	r.mu.Unlock()
}

func (r *Recorder) Notify(message string) {
	r.mu.Lock()
	r.notices = append(r.notices, message)
	r.mu.Unlock()
}

func (r *Recorder) NavigateBack(id string) {
	r.mu.Lock()
	r.navigated = append(r.navigated, id)
	r.mu.Unlock()
}

// States returns the recorded states, oldest first.
func (r *Recorder) States() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...)
}

// Progress returns the recorded upload progress events.
func (r *Recorder) Progress() []Progress {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Progress(nil), r.progress...)
}

// Failures returns the recorded failures.
func (r *Recorder) Failures() []*OpError {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*OpError(nil), r.failures...)
}

// Notices returns the recorded notifications.
func (r *Recorder) Notices() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.notices...)
}

// NavigatedBack returns the ids passed to NavigateBack.
func (r *Recorder) NavigatedBack() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.navigated...)
}
