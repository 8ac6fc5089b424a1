package lifecycle

import (
	"errors"

	"github.com/stickycheZ101/HardLight/pkg/core"
)

// MultiRecorder fans one event out to several recorders. Every recorder
// sees the event even when an earlier one fails.
type MultiRecorder []Recorder

// RecordEvent implements Recorder.
func (m MultiRecorder) RecordEvent(e *core.ExpeditionEvent) error {
	var errs []error
	for _, r := range m {
		if r == nil {
			continue
		}
		if err := r.RecordEvent(e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
