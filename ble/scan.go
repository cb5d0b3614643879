package ble

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-ble/ble"
)

func WrapContextWithSigHandler(ctx context.Context, cancel func()) context.Context {
  return ble.WithSigHandler(ctx, cancel)
}

// Perform an active or passive scan and pass every advertisement found to onDevice, until the
// context expires. Cancellation and deadline errors are not reported.
func (h *Handle) ScanAll(ctx context.Context, onDevice func(Advertisement)) error {
  err := h.dev.Scan(ctx, true, onDevice)

  if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
    return nil
  }

  if err != nil {
    return fmt.Errorf("failed to initiate scan: %w", err)
  }

  return nil
}
