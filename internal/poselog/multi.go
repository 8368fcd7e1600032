package poselog

import (
	"errors"

	"github.com/banshee-data/mapalign/internal/localizer"
)

// Multi fans each record out to several sinks. Every sink sees every
// record; errors are joined so one failing sink does not starve the
// others.
type Multi []localizer.RecordSink

// Append delivers rec to all sinks.
func (m Multi) Append(rec localizer.PoseRecord) error {
	var errs []error
	for _, s := range m {
		if err := s.Append(rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
