package flash

import (
	"context"
	"errors"
	"time"
)

// WaitErase polls d until the outstanding erase completes, sleeping the
// delay suggested by QueryErase between polls. It returns nil on success,
// the device error on failure, or ctx.Err() when ctx is done first.
func WaitErase(ctx context.Context, d Device) error {
	for {
		delay, err := d.QueryErase()
		if !errors.Is(err, ErrBusyErasing) {
			return err
		}

		if delay <= 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
			continue
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// EraseSector erases one sector and waits for completion.
func EraseSector(ctx context.Context, d Device, sector uint32) error {
	if err := d.StartEraseSector(sector); err != nil {
		return err
	}
	return WaitErase(ctx, d)
}

// EraseAll erases the whole device and waits for completion.
func EraseAll(ctx context.Context, d Device) error {
	if err := d.StartEraseAll(); err != nil {
		return err
	}
	return WaitErase(ctx, d)
}
