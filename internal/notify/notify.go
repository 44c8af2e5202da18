// Package notify delivers transient success and error messages to the
// operator.
package notify

import "sync"

// Level is the toast kind.
type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Message is one toast.
type Message struct {
	Level Level
	Text  string
}

// Notifier is the toast sink engine components report to.
type Notifier interface {
	Success(text string)
	Error(text string)
}

// Queue collects toasts until the next page render drains them.
type Queue struct {
	mu   sync.Mutex
	msgs []Message
}

func (q *Queue) Success(text string) { q.push(LevelSuccess, text) }

func (q *Queue) Error(text string) { q.push(LevelError, text) }

func (q *Queue) push(level Level, text string) {
	if text == "" {
		return
	}
	q.mu.Lock()
	q.msgs = append(q.msgs, Message{Level: level, Text: text})
	q.mu.Unlock()
}

// Drain returns and clears the pending toasts.
func (q *Queue) Drain() []Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.msgs
	q.msgs = nil
	return out
}

// Len returns the number of pending toasts.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.msgs)
}

// Discard drops every toast.
var Discard Notifier = discard{}

type discard struct{}

func (discard) Success(string) {}
func (discard) Error(string)   {}
