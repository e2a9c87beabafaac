package events

import (
	"context"
	"errors"
)

type fanout []Publisher

// NewFanout publishes to every sink. A failing sink does not stop the others;
// their errors are joined.
func NewFanout(pubs ...Publisher) Publisher {
	out := make(fanout, 0, len(pubs))
	for _, p := range pubs {
		if p != nil {
			out = append(out, p)
		}
	}
	switch len(out) {
	case 0:
		return NewNop()
	case 1:
		return out[0]
	}
	return out
}

func (f fanout) Publish(ctx context.Context, evts ...AlertEvent) error {
	if len(evts) == 0 {
		return nil
	}
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, evts...); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f fanout) Close() error {
	var errs []error
	for _, p := range f {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
