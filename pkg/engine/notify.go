package engine

// Notification is one user-facing message. Retry, when set, repeats the
// failed operation with its original parameters.
type Notification struct {
	Title       string
	Description string
	Retry       func() error
	Err         error
}

// Notifier presents notifications to the user
type Notifier interface {
	Notify(n Notification)
}

// NotifierFunc adapts a function to Notifier
type NotifierFunc func(n Notification)

func (f NotifierFunc) Notify(n Notification) { f(n) }

type discardNotifier struct{}

func (discardNotifier) Notify(Notification) {}
