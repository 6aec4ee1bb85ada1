package mailbox

import "log/slog"

// Kind identifies an action kind in dispatch reports.
type Kind int32

const (
	KindStop Kind = iota
	KindMove
	KindFace
	KindTarget
	KindInteract
	KindCast
	KindSell
	KindCloseDialog
	KindRunScript
)

// Kinds lists all action kinds in dispatch order.
var Kinds = []Kind{
	KindStop, KindMove, KindFace, KindTarget, KindInteract,
	KindCast, KindSell, KindCloseDialog, KindRunScript,
}

// String returns human-readable action kind name
func (k Kind) String() string {
	switch k {
	case KindStop:
		return "stop"
	case KindMove:
		return "move"
	case KindFace:
		return "face"
	case KindTarget:
		return "target"
	case KindInteract:
		return "interact"
	case KindCast:
		return "cast"
	case KindSell:
		return "sell"
	case KindCloseDialog:
		return "close_dialog"
	case KindRunScript:
		return "run_script"
	default:
		return "unknown"
	}
}

// Dispatch reports what one DrainAndDispatch executed, in execution order.
type Dispatch struct {
	Executed []Kind
	Failed   []Kind
}

// Empty reports whether nothing was dispatched.
func (d Dispatch) Empty() bool {
	return len(d.Executed) == 0
}

// run executes one action. A panicking collaborator counts as a failure and never
// reaches the privileged tick.
func (d *Dispatch) run(kind Kind, fn func() bool) {
	d.Executed = append(d.Executed, kind)

	ok := func() (ok bool) {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("action panicked", "action", kind, "panic", r)
				ok = false
			}
		}()
		return fn()
	}()

	if !ok {
		d.Failed = append(d.Failed, kind)
		slog.Debug("action failed", "action", kind)
	}
}
