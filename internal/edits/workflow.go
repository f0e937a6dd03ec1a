package edits

import (
	"strings"

	pipelineerrors "crmimport/internal/errors"
	"crmimport/internal/models"
)

// CellState is the state of the table's single active cell.
type CellState int

const (
	Viewing CellState = iota
	Editing
	PendingConfirmation
)

func (s CellState) String() string {
	switch s {
	case Viewing:
		return "viewing"
	case Editing:
		return "editing"
	case PendingConfirmation:
		return "pending_confirmation"
	}
	return "unknown"
}

// Event drives the cell state machine.
type Event string

const (
	EventActivate Event = "activate"
	EventCommit   Event = "commit"
	EventCancel   Event = "cancel"
	EventConfirm  Event = "confirm"
)

// transitions lists, per state and event, the states the event may lead
// to. Where an event has two targets the draft value picks one.
var transitions = map[CellState]map[Event][]CellState{
	Viewing: {
		EventActivate: {Editing},
	},
	Editing: {
		EventCommit: {Viewing, PendingConfirmation},
		EventCancel: {Viewing},
	},
	PendingConfirmation: {
		EventConfirm: {Viewing},
		EventCancel:  {Viewing},
	},
}

// Workflow is the edit state machine for a whole table. Only one cell can
// be Editing or PendingConfirmation at a time.
type Workflow struct {
	ledger *Ledger
	state  CellState
	cell   models.CellKey
	shown  string
	draft  string

	// OnConfirm runs after a confirmed edit lands in the ledger; the
	// pipeline uses it to renormalize the row.
	OnConfirm func(models.CellKey)
}

// NewWorkflow returns a workflow writing into ledger.
func NewWorkflow(ledger *Ledger) *Workflow {
	if ledger == nil {
		ledger = NewLedger()
	}
	return &Workflow{ledger: ledger}
}

// Ledger returns the backing ledger.
func (w *Workflow) Ledger() *Ledger { return w.ledger }

// State is the current cell state.
func (w *Workflow) State() CellState { return w.state }

// Cell is the active cell; meaningful only outside Viewing.
func (w *Workflow) Cell() models.CellKey { return w.cell }

// Draft is the value being edited or awaiting confirmation.
func (w *Workflow) Draft() string { return w.draft }

// Preview is the literal value shown for confirmation.
func (w *Workflow) Preview() (string, bool) {
	if w.state != PendingConfirmation {
		return "", false
	}
	return w.draft, true
}

func (w *Workflow) fire(ev Event, to CellState) error {
	for _, allowed := range transitions[w.state][ev] {
		if allowed == to {
			w.state = to
			return nil
		}
	}
	return &pipelineerrors.TransitionError{Machine: "cell edit", From: w.state.String(), Event: string(ev)}
}

// Activate starts editing cell, whose displayed value is shown.
func (w *Workflow) Activate(cell models.CellKey, shown string) error {
	if err := w.fire(EventActivate, Editing); err != nil {
		return err
	}
	w.cell = cell
	w.shown = shown
	w.draft = shown
	return nil
}

// SetDraft updates the text being typed.
func (w *Workflow) SetDraft(value string) {
	if w.state == Editing {
		w.draft = value
	}
}

// Commit ends typing. An unchanged or empty value returns to Viewing
// without recording anything; a changed value waits for confirmation.
func (w *Workflow) Commit(value string) error {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" || trimmed == strings.TrimSpace(w.shown) {
		if err := w.fire(EventCommit, Viewing); err != nil {
			return err
		}
		w.reset()
		return nil
	}
	if err := w.fire(EventCommit, PendingConfirmation); err != nil {
		return err
	}
	w.draft = trimmed
	w.ledger.stage(w.cell, trimmed)
	return nil
}

// Cancel discards the draft from Editing or PendingConfirmation.
func (w *Workflow) Cancel() error {
	if err := w.fire(EventCancel, Viewing); err != nil {
		return err
	}
	w.ledger.drop(w.cell)
	w.reset()
	return nil
}

// Confirm makes the pending edit permanent.
func (w *Workflow) Confirm() error {
	cell := w.cell
	if err := w.fire(EventConfirm, Viewing); err != nil {
		return err
	}
	if _, ok := w.ledger.confirm(cell); !ok {
		w.reset()
		return nil
	}
	w.reset()
	if w.OnConfirm != nil {
		w.OnConfirm(cell)
	}
	return nil
}

// Blocking returns a ConfirmationRequiredError while an edit awaits
// confirmation.
func (w *Workflow) Blocking() error {
	if w.state == PendingConfirmation {
		return &pipelineerrors.ConfirmationRequiredError{OriginalIndex: w.cell.OriginalIndex, Field: string(w.cell.Field)}
	}
	return nil
}

// Abort cancels whatever is in progress. It is a no-op while Viewing.
func (w *Workflow) Abort() {
	if w.state != Viewing {
		_ = w.Cancel()
	}
}

func (w *Workflow) reset() {
	w.cell = models.CellKey{}
	w.shown = ""
	w.draft = ""
}
