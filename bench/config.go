package bench

import (
	"time"

	"golang.org/x/xerrors"
)

// Config describes a bench run.
type Config struct {
	// Cells is how many independent cells are raced over.
	Cells int `json:"cells"`
	// Callers is how many goroutines negotiate with each cell.
	Callers int `json:"callers"`
	// Concurrency limits how many callers run at once across all cells. 0
	// means unlimited and 1 runs callers one after the other.
	Concurrency int `json:"concurrency"`
	// InitDelay is how long a caller holding a setter waits before setting
	// the value. It widens the window in which other callers queue up.
	InitDelay time.Duration `json:"init_delay"`
	// AbandonRate is the chance that a caller releases its setter instead of
	// setting a value. Must be in [0, 1).
	AbandonRate float64 `json:"abandon_rate"`
	// CallTimeout bounds each caller, including waiting for the cell. 0
	// means no timeout.
	CallTimeout time.Duration `json:"call_timeout"`
	// Seed drives abandonment decisions and caller ordering.
	Seed int64 `json:"seed"`
}

// Validate reports the first invalid field, if any.
func (c Config) Validate() error {
	if c.Cells <= 0 {
		return xerrors.New("cells must be greater than 0")
	}
	if c.Callers <= 0 {
		return xerrors.New("callers must be greater than 0")
	}
	if c.Concurrency < 0 {
		return xerrors.New("concurrency must be 0 or greater")
	}
	if c.InitDelay < 0 {
		return xerrors.New("init_delay must not be negative")
	}
	if c.AbandonRate < 0 || c.AbandonRate >= 1 {
		return xerrors.New("abandon_rate must be at least 0 and less than 1")
	}
	if c.CallTimeout < 0 {
		return xerrors.New("call_timeout must not be negative")
	}
	return nil
}
