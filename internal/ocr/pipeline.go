package ocr

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/vovakirdan/nestris-ocr/internal/vision"
)

// ReaderFunc turns a raw captured frame into lazily computed features.
type ReaderFunc func(index int, frame vision.Frame) FrameFeatures

// ExtractorReader reads frames through a calibrated extractor.
func ExtractorReader(ex *vision.Extractor) ReaderFunc {
	return func(index int, frame vision.Frame) FrameFeatures {
		return ex.Read(index, frame)
	}
}

// Pipeline feeds captured frames to a Machine. Only one frame is processed
// at a time; a frame that arrives while another is in flight is dropped
// instead of queued, so the machine never falls behind a live capture.
type Pipeline struct {
	machine  *Machine
	read     ReaderFunc
	onReport func(FrameReport)

	running   atomic.Bool
	seq       atomic.Int64
	processed atomic.Int64
	dropped   atomic.Int64
	wg        sync.WaitGroup
}

// NewPipeline creates a pipeline. onReport, if set, is called with the
// report of every processed frame.
func NewPipeline(m *Machine, read ReaderFunc, onReport func(FrameReport)) *Pipeline {
	return &Pipeline{machine: m, read: read, onReport: onReport}
}

// Process handles frame synchronously unless another frame is in flight.
// It reports whether the frame was processed.
func (p *Pipeline) Process(frame vision.Frame) bool {
	index := int(p.seq.Add(1) - 1)
	if !p.running.CompareAndSwap(false, true) {
		p.dropped.Add(1)
		return false
	}
	defer p.running.Store(false)
	p.process(index, frame)
	return true
}

// Offer starts processing frame in the background and returns at once. It
// reports whether the frame was accepted.
func (p *Pipeline) Offer(frame vision.Frame) bool {
	index := int(p.seq.Add(1) - 1)
	if !p.running.CompareAndSwap(false, true) {
		p.dropped.Add(1)
		return false
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.running.Store(false)
		p.process(index, frame)
	}()
	return true
}

// Wait blocks until the frame started by Offer, if any, is done.
func (p *Pipeline) Wait() { p.wg.Wait() }

// Run processes every frame of src in order.
func (p *Pipeline) Run(ctx context.Context, src vision.Source) error {
	err := src.Run(ctx, func(_ string, frame *vision.ImageFrame) error {
		p.Process(frame)
		return nil
	})
	p.Wait()
	return err
}

// Stats returns how many frames were processed and dropped.
func (p *Pipeline) Stats() (processed, dropped int64) {
	return p.processed.Load(), p.dropped.Load()
}

func (p *Pipeline) process(index int, frame vision.Frame) {
	report := p.machine.AdvanceFrame(p.read(index, frame))
	p.processed.Add(1)
	if p.onReport != nil {
		p.onReport(report)
	}
}
