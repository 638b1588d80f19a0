package queue

// Task is a unit of background work. Tasks report their results themselves;
// the dispatcher only runs them.
type Task interface {
	// Execute does the task's work; it is called exactly once.
	Execute()
}

// TaskFunc adapts a function to the Task interface.
type TaskFunc func()

func (f TaskFunc) Execute() {
	f()
}
