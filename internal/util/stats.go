package util

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pterm/pterm"
)

// ──────────────────────────────────────────────────────────────────────────────
// Global stats singleton
// ──────────────────────────────────────────────────────────────────────────────

// Stats is the process-wide data channel traffic counter.
var Stats = &stats{}

type stats struct {
	FramesSent      atomic.Int64 // data channel frames written
	FramesRecv      atomic.Int64 // data channel frames read
	BytesSent       atomic.Int64 // bytes written to data channels
	BytesRecv       atomic.Int64 // bytes read from data channels
	TransfersDone   atomic.Int64 // file transfers acknowledged or reassembled
	TransfersFailed atomic.Int64 // file transfers abandoned mid-stream
}

func (s *stats) AddSent(n int) {
	s.FramesSent.Add(1)
	s.BytesSent.Add(int64(n))
}

func (s *stats) AddRecv(n int) {
	s.FramesRecv.Add(1)
	s.BytesRecv.Add(int64(n))
}

func (s *stats) TransferDone()   { s.TransfersDone.Add(1) }
func (s *stats) TransferFailed() { s.TransfersFailed.Add(1) }

// ──────────────────────────────────────────────────────────────────────────────
// Periodic reporter
// ──────────────────────────────────────────────────────────────────────────────

const reportInterval = 10 * time.Second

// StartStatsReporter launches a goroutine that logs traffic statistics
// every 10 seconds. Idle intervals are not logged. It stops when ctx is cancelled.
func StartStatsReporter(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(reportInterval)
		defer ticker.Stop()

		var prevSent, prevRecv, prevDone, prevFailed int64
		for {
			select {
			case <-ticker.C:
				sent := Stats.BytesSent.Load()
				recv := Stats.BytesRecv.Load()
				done := Stats.TransfersDone.Load()
				failed := Stats.TransfersFailed.Load()

				outS := float64(sent-prevSent) / reportInterval.Seconds()
				inS := float64(recv-prevRecv) / reportInterval.Seconds()
				doneD := done - prevDone
				failedD := failed - prevFailed

				if doneD > 0 || failedD > 0 || inS > 10 || outS > 10 {
					pterm.DefaultLogger.Info(formatStats(inS, outS, doneD, failedD))
				}

				prevSent = sent
				prevRecv = recv
				prevDone = done
				prevFailed = failed

			case <-ctx.Done():
				return
			}
		}
	}()
}

// byteUnits defines the units for formatting byte counts in a human-readable way.
var byteUnits = []string{"B", "KiB", "MiB", "GiB", "TiB", "PiB"}

// FormatBytes formats a byte count into a fixed-width (8 chars) string,
// for example "99.0   B", " 1.5 KiB", "98.9 GiB".
func FormatBytes(b float64) string {
	unitIdx := 0

	// to prevent "100.0 KiB", which is 9 chars
	for b > 99 && unitIdx < len(byteUnits)-1 {
		b /= 1024
		unitIdx++
	}

	return fmt.Sprintf("%4.1f %3s", b, byteUnits[unitIdx])
}

// formatStats returns the reporter line for one interval.
func formatStats(inS, outS float64, done, failed int64) string {
	return fmt.Sprintf("In: %s/s | Out: %s/s | Transfers: %2d✓ %2d✗",
		FormatBytes(inS),
		FormatBytes(outS),
		done,
		failed,
	)
}
