package accel

import "errors"

// WaitForEvents blocks until every event has completed, in any order.
// It returns the joined failures of the events that did not complete.
func WaitForEvents(events ...Event) error {
	if len(events) == 0 {
		return Errorf("WaitForEvents", InvalidValue, "empty event list")
	}
	var errs []error
	for _, ev := range events {
		if ev == nil {
			errs = append(errs, Fail("WaitForEvents", InvalidEvent))
			continue
		}
		if err := ev.Wait(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Releaser is any driver object with an explicit release.
type Releaser interface {
	Release() error
}

// ReleaseAll releases every non-nil object and joins their errors.
func ReleaseAll[T Releaser](objs ...T) error {
	var errs []error
	for _, o := range objs {
		if any(o) == nil {
			continue
		}
		if err := o.Release(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
