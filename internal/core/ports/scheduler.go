package ports

import "time"

type SchedulerService interface {
	Start()
	Stop()
	// ScheduleTaskOnce runs task at the given unix time. Times in the past
	// fire immediately.
	ScheduleTaskOnce(at int64, task func()) error
	ScheduleTaskEvery(interval time.Duration, task func()) error
}
