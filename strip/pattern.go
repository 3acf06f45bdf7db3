package strip

import (
	"context"
	"fmt"
	"log"
	"time"
)

// ChasePattern walks a single lit LED along the strip, sending each frame
// straight to the device without the store. It loops until ctx is cancelled.
func ChasePattern(ctx context.Context, sender Sender, numLEDs int, c Color, step time.Duration, maxPayload int) error {
	if numLEDs <= 0 {
		return fmt.Errorf("test pattern needs at least one LED, got %d", numLEDs)
	}
	if step <= 0 {
		step = 50 * time.Millisecond
	}
	ticker := time.NewTicker(step)
	defer ticker.Stop()

	pixels := make([]byte, 3*numLEDs)
	failures := 0
	for i := 0; ; i = (i + 1) % numLEDs {
		clear(pixels)
		pixels[3*i] = c.R
		pixels[3*i+1] = c.G
		pixels[3*i+2] = c.B

		packets, err := BuildPackets(pixels, maxPayload)
		if err != nil {
			return err
		}
		for _, p := range packets {
			if err := sender.Send(p); err != nil {
				failures++
				if failures == 1 || failures%100 == 0 {
					log.Printf("Warning: test pattern send failed: %v (%d failures)", err, failures)
				}
				break
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
