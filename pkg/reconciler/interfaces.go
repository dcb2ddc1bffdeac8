package reconciler

//go:generate mockgen -destination=mock_reconciler.go -package=reconciler github.com/carverauto/nodesim/pkg/reconciler Clock,Ticker,AlertSink

import "time"

// Clock abstracts time-related operations.
type Clock interface {
	Now() time.Time
	Ticker(d time.Duration) Ticker
}

// Ticker abstracts the ticker behavior.
type Ticker interface {
	Chan() <-chan time.Time
	Stop()
}

// AlertSink receives alerts raised for failure outcomes. It is called with
// the reconciler locked and must not block.
type AlertSink interface {
	RaiseAlert(a Alert)
}
