// Package mailertest records messages instead of sending them.
package mailertest

import (
	"context"
	"sync"

	"github.com/xkilldash9x/salesi-reporter/internal/mailer"
)

// Recorder is a mailer.Mailer that keeps every delivered message. Errs are
// returned one per Send before any message is accepted.
type Recorder struct {
	mu       sync.Mutex
	messages []mailer.Message
	attempts int

	Errs []error
}

var _ mailer.Mailer = (*Recorder)(nil)

func (r *Recorder) Send(ctx context.Context, msg mailer.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts++
	if len(r.Errs) > 0 {
		err := r.Errs[0]
		r.Errs = r.Errs[1:]
		if err != nil {
			return err
		}
	}
	r.messages = append(r.messages, msg)
	return nil
}

// Messages returns the delivered messages in order.
func (r *Recorder) Messages() []mailer.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]mailer.Message(nil), r.messages...)
}

// Attempts counts every Send call, failed ones included.
func (r *Recorder) Attempts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempts
}
