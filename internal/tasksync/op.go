package tasksync

// OpKind names a mutation.
type OpKind int

const (
	OpAdd OpKind = iota
	OpToggle
	OpDelete
)

func (k OpKind) String() string {
	switch k {
	case OpAdd:
		return "add"
	case OpToggle:
		return "toggle"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// OpState is the lifecycle of a mutation:
// OpPending -> OpCommitted | OpFailed. A failed toggle or delete triggers a reload.
type OpState int

const (
	OpPending OpState = iota
	OpCommitted
	OpFailed
)

func (s OpState) String() string {
	switch s {
	case OpPending:
		return "pending"
	case OpCommitted:
		return "committed"
	case OpFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Op records one mutation. TaskID is empty for an add until it commits.
type Op struct {
	Kind   OpKind
	TaskID string
	State  OpState
	Err    error
}

func (o *Op) commit() {
	o.State = OpCommitted
}

func (o *Op) fail(err error) {
	o.State = OpFailed
	o.Err = err
}
