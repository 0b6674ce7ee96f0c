package modal

import (
	tea "github.com/charmbracelet/bubbletea"
)

// Kind identifies a dialog. At most one dialog of each kind is open.
type Kind int

const (
	KindNone Kind = iota
	KindError
	KindConnectionFailed
	KindConfirmDisconnect
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "None"
	case KindError:
		return "Error"
	case KindConnectionFailed:
		return "ConnectionFailed"
	case KindConfirmDisconnect:
		return "ConfirmDisconnect"
	default:
		return "Unknown"
	}
}

// Modal is a dialog drawn over the current screen. While one is open it
// receives every key.
type Modal interface {
	Kind() Kind

	// HandleKey returns the dialog to show next: itself to stay open, nil
	// to close, or another dialog to replace it
	HandleKey(msg tea.KeyMsg) (next Modal, cmd tea.Cmd)

	Render(width, height int) string
}

// Stack holds the open dialogs; the last one pushed is shown
type Stack struct {
	open []Modal
}

// Push shows m, closing any open dialog of the same kind first
func (s *Stack) Push(m Modal) {
	s.Dismiss(m.Kind())
	s.open = append(s.open, m)
}

// Top returns the visible dialog, or nil
func (s *Stack) Top() Modal {
	if len(s.open) == 0 {
		return nil
	}
	return s.open[len(s.open)-1]
}

func (s *Stack) TopKind() Kind {
	if m := s.Top(); m != nil {
		return m.Kind()
	}
	return KindNone
}

// Dismiss closes every dialog of kind k
func (s *Stack) Dismiss(k Kind) {
	kept := s.open[:0:0]
	for _, m := range s.open {
		if m.Kind() != k {
			kept = append(kept, m)
		}
	}
	s.open = kept
}

// HandleKey routes msg to the visible dialog and applies its answer. It
// reports false when no dialog is open.
func (s *Stack) HandleKey(msg tea.KeyMsg) (bool, tea.Cmd) {
	top := s.Top()
	if top == nil {
		return false, nil
	}
	next, cmd := top.HandleKey(msg)
	if next != top {
		s.Dismiss(top.Kind())
		if next != nil {
			s.Push(next)
		}
	}
	return true, cmd
}

func (s *Stack) IsEmpty() bool {
	return len(s.open) == 0
}
