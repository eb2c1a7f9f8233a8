package jobqueue

import (
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"
)

type Options struct {
	PollInterval time.Duration
	BatchSize    int
	// ClaimTimeout is how long a claimed job may go without a heartbeat
	// (progress update) before another worker may re-claim it.
	ClaimTimeout    time.Duration
	MaxAttempts     int
	SingleActive    bool
	MaxBackoff      time.Duration
	JitterMax       time.Duration
	LastErrorMaxLen int

	// HandleTimeout bounds one handler invocation. Zero means no bound;
	// import jobs legitimately run for many minutes.
	HandleTimeout time.Duration

	Logger *logrus.Entry

	Rand *rand.Rand

	ObserveQueueDepthEvery time.Duration
}

func (o *Options) setDefaults() {
	if o.PollInterval == 0 {
		o.PollInterval = 1 * time.Second
	}
	if o.BatchSize == 0 {
		o.BatchSize = 10
	}
	if o.ClaimTimeout == 0 {
		o.ClaimTimeout = 15 * time.Minute
	}
	if o.MaxAttempts == 0 {
		o.MaxAttempts = 5
	}
	if o.MaxBackoff == 0 {
		o.MaxBackoff = 60 * time.Second
	}
	if o.JitterMax == 0 {
		o.JitterMax = 200 * time.Millisecond
	}
	if o.LastErrorMaxLen == 0 {
		o.LastErrorMaxLen = 2048
	}
	if o.ObserveQueueDepthEvery == 0 {
		o.ObserveQueueDepthEvery = 10 * time.Second
	}
	if o.Rand == nil {
		o.Rand = rand.New(rand.NewSource(time.Now().UnixNano())) //nolint:gosec
	}
}

type CleanerOptions struct {
	Enabled         bool
	Interval        time.Duration
	Retention       time.Duration
	FailedRetention time.Duration

	Logger *logrus.Entry
}

func (o *CleanerOptions) setDefaults() {
	if o.Interval == 0 {
		o.Interval = 1 * time.Minute
	}
	if o.Retention == 0 {
		o.Retention = 7 * 24 * time.Hour
	}
	if o.FailedRetention == 0 {
		o.FailedRetention = 30 * 24 * time.Hour
	}
}
