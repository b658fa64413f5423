package wheel

// Task is a unit of work fired by the wheel. Run receives the Timeout that
// fired it, so rescheduling tasks can inspect their own handle.
type Task interface {
	Run(t *Timeout) error
}

// TaskFunc adapts a plain function to the Task interface.
type TaskFunc func(t *Timeout) error

func (f TaskFunc) Run(t *Timeout) error { return f(t) }
