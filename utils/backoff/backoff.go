package backoff

import (
	"errors"
	"time"

	"github.com/cenkalti/backoff"
)

// Config defines Backoff configuration.
type Config struct {
	Min          time.Duration `yaml:"min"`
	Max          time.Duration `yaml:"max"`
	Factor       float64       `yaml:"factor"`
	RetryTimeout time.Duration `yaml:"retry_timeout"`

	// NoJitter disables randomization of backoff intervals. Should only be
	// used in testing.
	NoJitter bool `yaml:"-"`
}

func (c Config) applyDefaults() Config {
	if c.Min == 0 {
		c.Min = 250 * time.Millisecond
	}
	if c.Max == 0 {
		c.Max = 30 * time.Second
	}
	if c.Factor == 0 {
		c.Factor = 2
	}
	if c.RetryTimeout == 0 {
		c.RetryTimeout = 15 * time.Minute
	}
	return c
}

// Backoff defines an exponential backoff schedule.
type Backoff struct {
	config Config
}

// New creates a new Backoff.
func New(config Config) *Backoff {
	return &Backoff{config.applyDefaults()}
}

// Attempts returns a new Attempts for iterating over the backoff schedule.
func (b *Backoff) Attempts() *Attempts {
	jitter := 0.2
	if b.config.NoJitter {
		jitter = 0
	}
	exp := &backoff.ExponentialBackOff{
		InitialInterval:     b.config.Min,
		MaxInterval:         b.config.Max,
		Multiplier:          b.config.Factor,
		RandomizationFactor: jitter,
		Clock:               backoff.SystemClock,
	}
	exp.Reset()
	return &Attempts{
		timeout: b.config.RetryTimeout,
		exp:     exp,
		start:   time.Now(),
	}
}

// Attempts tracks the position of some caller within the backoff schedule.
// The first attempt always executes immediately; each subsequent attempt
// waits for the next interval, until the retry timeout is exhausted.
type Attempts struct {
	timeout time.Duration
	exp     *backoff.ExponentialBackOff
	start   time.Time
	started bool
	err     error
}

// WaitForNext blocks until the next attempt should be made. Returns false
// when the schedule is exhausted, after which Err returns a non-nil error.
func (a *Attempts) WaitForNext() bool {
	if a.err != nil {
		return false
	}
	if !a.started {
		a.started = true
		return true
	}
	d := a.exp.NextBackOff()
	if d == backoff.Stop || time.Since(a.start)+d > a.timeout {
		a.err = errors.New("retry timeout exceeded")
		return false
	}
	time.Sleep(d)
	return true
}

// Err returns the terminal error of the schedule, if any.
func (a *Attempts) Err() error {
	return a.err
}
