package worker

// Job is a unit of work executed exactly once by one worker.
type Job interface {
	Run()
}

// JobFunc adapts a plain function to the Job interface.
type JobFunc func()

// Run calls f.
func (f JobFunc) Run() {
	f()
}

func isNilJob(job Job) bool {
	if job == nil {
		return true
	}
	f, ok := job.(JobFunc)
	return ok && f == nil
}
