package repository

import "time"

// Observer is notified about the lifecycle of task operations.
type Observer interface {
	Started(op string)
	Finished(op string, ok bool, elapsed time.Duration)
	Rejected(op string)
}

type nopObserver struct{}

func (nopObserver) Started(string) {}

func (nopObserver) Finished(string, bool, time.Duration) {}

func (nopObserver) Rejected(string) {}
