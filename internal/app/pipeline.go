// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/relabs-tech/inertial_intervals/internal/export"
	"github.com/relabs-tech/inertial_intervals/internal/imu"
	"github.com/relabs-tech/inertial_intervals/internal/interval"
	"github.com/relabs-tech/inertial_intervals/internal/measurement"
	"github.com/relabs-tech/inertial_intervals/internal/store"
)

// ErrPipelineStopped is returned by Submit and the command methods once Run
// has returned.
var ErrPipelineStopped = errors.New("pipeline stopped")

// Publisher sends a payload to a topic.
type Publisher interface {
	Publish(topic string, retained bool, payload []byte) error
}

// PipelineOptions configures a Pipeline. Only Detector is required.
type PipelineOptions struct {
	IMU      string
	Detector interval.Config
	Policy   measurement.ChannelPolicy

	// Threshold factor multiplier applied after an initialization failure,
	// at most MaxRetries times. Neither failure condition depends on the
	// threshold factor, so a retry mostly re-acquires the initialization
	// samples; the larger factor only lowers the sensitivity afterwards.
	RetryFactor float64
	MaxRetries  int

	// TopicPrefix receives <prefix>/events, <prefix>/measurements/<channel>
	// and the retained <prefix>/status.
	TopicPrefix string
	Publisher   Publisher

	// PublishQueue bounds the events waiting for the publisher. Events are
	// dropped while it is full. Defaults to 1024.
	PublishQueue int

	Store     *store.Store
	Positions measurement.PositionSource

	// Observer sees every event after the pipeline handled it. It runs on
	// the pipeline goroutine and must not block.
	Observer measurement.Listener

	Logger *slog.Logger
}

// Status is the pipeline state shared with the HTTP API and the display.
type Status struct {
	RunID     string                       `json:"run_id"`
	IMU       string                       `json:"imu"`
	Status    interval.Status              `json:"status"`
	Retries   int                          `json:"retries"`
	GaveUp    bool                         `json:"gave_up"`
	Samples   int64                        `json:"samples"`
	Dropped   int64                        `json:"dropped_publishes"`
	Static    int                          `json:"static_measurements"`
	Dynamic   int                          `json:"dynamic_sequences"`
	Config    interval.Config              `json:"config"`
	Channels  [3]measurement.ChannelStatus `json:"channels"`
	LastEvent *measurement.Event           `json:"last_event,omitempty"`
	Updated   time.Time                    `json:"updated"`
}

type outgoing struct {
	topic   string
	payload []byte
}

type command struct {
	fn    func() error
	reply chan error
}

// Pipeline owns one Combined orchestrator. Samples and commands are
// serialized on the goroutine running Run, so the orchestrator is never
// called concurrently.
type Pipeline struct {
	opts     PipelineOptions
	combined *measurement.Combined
	log      *slog.Logger

	samples  chan imu.TimedSample
	commands chan command
	done     chan struct{}

	outbox chan outgoing
	sent   chan struct{}

	// owned by the Run goroutine
	runID        uuid.UUID
	report       *export.Report
	retries      int
	gaveUp       bool
	samplesCount int64
	lastEvent    *measurement.Event
	dropped      int64

	mu     sync.RWMutex
	status Status
}

// NewPipeline builds the orchestrator and opens a run in the store, if any.
func NewPipeline(o PipelineOptions) (*Pipeline, error) {
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	if o.PublishQueue <= 0 {
		o.PublishQueue = 1024
	}
	p := &Pipeline{
		opts:     o,
		log:      o.Logger.With("component", "pipeline"),
		samples:  make(chan imu.TimedSample, 256),
		commands: make(chan command),
		done:     make(chan struct{}),
		outbox:   make(chan outgoing, o.PublishQueue),
		sent:     make(chan struct{}),
	}

	opts := []measurement.Option{
		measurement.WithLogger(o.Logger),
		measurement.WithChannelPolicy(o.Policy),
	}
	if o.Positions != nil {
		opts = append(opts, measurement.WithPositionSource(o.Positions))
	}
	c, err := measurement.NewCombined(o.Detector, p, opts...)
	if err != nil {
		return nil, fmt.Errorf("create orchestrator: %w", err)
	}
	p.combined = c

	if err := p.beginRun(time.Now()); err != nil {
		return nil, err
	}
	p.refresh()
	return p, nil
}

func (p *Pipeline) beginRun(at time.Time) error {
	p.runID = uuid.New()
	if p.opts.Store != nil {
		id, err := p.opts.Store.BeginRun(p.opts.IMU, p.combined.Config(), at)
		if err != nil {
			return fmt.Errorf("begin run: %w", err)
		}
		p.runID = id
	}
	p.report = &export.Report{
		Version:   export.Version,
		RunID:     p.runID.String(),
		IMU:       p.opts.IMU,
		Timestamp: at,
	}
	p.log.Info("run started", "run_id", p.runID, "imu", p.opts.IMU)
	return nil
}

// Run processes samples and commands until ctx is done or Close is called,
// then closes the run. The returned report holds everything the run
// generated.
func (p *Pipeline) Run(ctx context.Context) (*export.Report, error) {
	defer close(p.done)
	go p.send()
	for {
		select {
		case <-ctx.Done():
			return p.finish(time.Now()), nil
		case s, ok := <-p.samples:
			if !ok {
				return p.finish(time.Now()), nil
			}
			p.process(s)
		case c := <-p.commands:
			err := c.fn()
			p.refresh()
			c.reply <- err
		}
	}
}

// Submit queues a sample. It blocks while the queue is full.
func (p *Pipeline) Submit(ctx context.Context, s imu.TimedSample) error {
	select {
	case <-p.done:
		return ErrPipelineStopped
	default:
	}
	select {
	case p.samples <- s:
		return nil
	case <-p.done:
		return ErrPipelineStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops Run once the queued samples are processed. No Submit may
// follow.
func (p *Pipeline) Close() { close(p.samples) }

func (p *Pipeline) exec(ctx context.Context, fn func() error) error {
	c := command{fn: fn, reply: make(chan error, 1)}
	select {
	case p.commands <- c:
	case <-p.done:
		return ErrPipelineStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	return <-c.reply
}

// Reset restarts detection on every channel with the current configuration.
func (p *Pipeline) Reset(ctx context.Context) error {
	return p.exec(ctx, func() error {
		p.gaveUp = false
		return p.combined.Reset()
	})
}

// SetThresholdFactor changes the threshold factor and resets detection.
func (p *Pipeline) SetThresholdFactor(ctx context.Context, f float64) error {
	return p.exec(ctx, func() error {
		if err := p.combined.SetThresholdFactor(f); err != nil {
			return err
		}
		p.retries = 0
		p.gaveUp = false
		return p.combined.Reset()
	})
}

// Reconfigure applies a new detector configuration between two samples.
func (p *Pipeline) Reconfigure(ctx context.Context, cfg interval.Config) error {
	return p.exec(ctx, func() error {
		if err := p.combined.Configure(cfg); err != nil {
			return err
		}
		p.log.Info("reconfigured", "threshold_factor", cfg.ThresholdFactor, "window_size", cfg.WindowSize)
		return nil
	})
}

// Status returns the latest pipeline status. Safe for concurrent use.
func (p *Pipeline) Status() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status
}

func (p *Pipeline) process(s imu.TimedSample) {
	p.samplesCount++
	if _, err := p.combined.Process(s); err != nil {
		p.log.Error("process sample", "error", err)
		return
	}
	if ch, reason, failed := p.combined.Failed(); failed && !p.gaveUp {
		p.retry(ch, reason)
	}
	p.refresh()
}

func (p *Pipeline) retry(ch measurement.Channel, reason interval.ErrorReason) {
	if p.retries >= p.opts.MaxRetries {
		p.gaveUp = true
		p.log.Error("initialization failed, giving up",
			"channel", ch, "reason", reason, "retries", p.retries)
		return
	}

	cfg := p.combined.Config()
	cfg.ThresholdFactor *= p.opts.RetryFactor
	if err := p.combined.Configure(cfg); err != nil {
		p.log.Error("retry configure", "error", err)
		p.gaveUp = true
		return
	}
	if err := p.combined.Reset(); err != nil {
		p.log.Error("retry reset", "error", err)
		p.gaveUp = true
		return
	}
	p.retries++
	p.log.Warn("initialization failed, retrying",
		"channel", ch, "reason", reason,
		"retry", p.retries, "threshold_factor", cfg.ThresholdFactor)
}

// Handle receives the orchestrator events during Process and Reset.
func (p *Pipeline) Handle(ev measurement.Event) {
	e := ev
	p.lastEvent = &e

	switch ev.Kind {
	case measurement.GeneratedMeasurement:
		p.report.Add(ev)
		p.persist(ev)
		p.publish(fmt.Sprintf("%s/measurements/%s", p.opts.TopicPrefix, ev.Channel), ev)
	default:
		p.log.Debug("event", "kind", ev.Kind, "channel", ev.Channel)
		p.publish(p.opts.TopicPrefix+"/events", ev)
	}

	if p.opts.Observer != nil {
		p.opts.Observer.Handle(ev)
	}
}

func (p *Pipeline) persist(ev measurement.Event) {
	if p.opts.Store == nil {
		return
	}
	var err error
	switch {
	case ev.Static != nil:
		_, err = p.opts.Store.InsertStatic(p.runID, ev.Static)
	case ev.Dynamic != nil:
		_, err = p.opts.Store.InsertDynamic(p.runID, ev.Dynamic)
	}
	if err != nil {
		p.log.Error("store measurement", "error", err)
	}
}

// eventMessage is the MQTT payload of an event.
type eventMessage struct {
	RunID string `json:"run_id"`
	measurement.Event
}

func (p *Pipeline) publish(topic string, ev measurement.Event) {
	if p.opts.Publisher == nil {
		return
	}
	payload, err := json.Marshal(eventMessage{RunID: p.runID.String(), Event: ev})
	if err != nil {
		p.log.Error("marshal event", "error", err)
		return
	}
	select {
	case p.outbox <- outgoing{topic: topic, payload: payload}:
	default:
		p.dropped++
		p.log.Warn("publish queue full, event dropped", "topic", topic, "dropped", p.dropped)
	}
}

// send publishes the queued events until the outbox is closed.
func (p *Pipeline) send() {
	defer close(p.sent)
	for m := range p.outbox {
		if err := p.opts.Publisher.Publish(m.topic, false, m.payload); err != nil {
			p.log.Warn("publish", "topic", m.topic, "error", err)
		}
	}
}

func (p *Pipeline) refresh() {
	st := Status{
		RunID:     p.runID.String(),
		IMU:       p.opts.IMU,
		Status:    p.combined.Status(),
		Retries:   p.retries,
		GaveUp:    p.gaveUp,
		Samples:   p.samplesCount,
		Dropped:   p.dropped,
		Static:    len(p.report.Static),
		Dynamic:   len(p.report.Dynamic),
		Config:    p.combined.Config(),
		Channels:  p.combined.Snapshot(),
		LastEvent: p.lastEvent,
		Updated:   time.Now(),
	}
	p.mu.Lock()
	p.status = st
	p.mu.Unlock()
}

func (p *Pipeline) finish(at time.Time) *export.Report {
	p.refresh()
	st := p.Status()

	p.report.Config = st.Config
	p.report.Channels = st.Channels[:]
	p.report.Retries = p.retries

	if p.opts.Store != nil {
		if err := p.opts.Store.FinishRun(p.runID, at, p.report.Channels); err != nil {
			p.log.Error("finish run", "error", err)
		}
	}
	close(p.outbox)
	<-p.sent
	if p.opts.Publisher != nil {
		if payload, err := json.Marshal(st); err == nil {
			if err := p.opts.Publisher.Publish(p.opts.TopicPrefix+"/status", true, payload); err != nil {
				p.log.Warn("publish status", "error", err)
			}
		}
	}
	p.log.Info("run finished",
		"run_id", p.runID,
		"samples", p.samplesCount,
		"static", len(p.report.Static),
		"dynamic", len(p.report.Dynamic),
		"retries", p.retries)
	return p.report
}
