package notifier

import (
	"context"
	"sync"
	"time"
)

// Notice is one recorded notification.
type Notice struct {
	Kind    string
	Email   string
	Subject string
}

// MemoryNotifier records notices for inspection in tests.
type MemoryNotifier struct {
	mu      sync.Mutex
	notices []Notice
}

func NewMemoryNotifier() *MemoryNotifier {
	return &MemoryNotifier{}
}

func (n *MemoryNotifier) record(kind, email, subject string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, Notice{Kind: kind, Email: email, Subject: subject})
}

// Notices returns a copy of everything recorded so far.
func (n *MemoryNotifier) Notices() []Notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Notice, len(n.notices))
	copy(out, n.notices)
	return out
}

func (n *MemoryNotifier) Welcome(_ context.Context, email, name string) {
	n.record("welcome", email, name)
}

func (n *MemoryNotifier) GrievanceConfirmation(_ context.Context, email, ticketNumber string) {
	n.record("grievance_confirmation", email, ticketNumber)
}

func (n *MemoryNotifier) ConsentWithdrawal(_ context.Context, email, purpose string) {
	n.record("consent_withdrawal", email, purpose)
}

func (n *MemoryNotifier) DeletionNotice(_ context.Context, email string, scheduledAt time.Time) {
	n.record("deletion_notice", email, scheduledAt.Format(time.RFC3339))
}

func (n *MemoryNotifier) BreachNotice(_ context.Context, email, summary string) {
	n.record("breach_notice", email, summary)
}
