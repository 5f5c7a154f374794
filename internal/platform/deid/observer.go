package deid

import "time"

// Observer receives engine measurements: one ObserveRewrite per Rewrite run
// and one ObserveMessage per DeIdentifyObserved call, with its final error.
type Observer interface {
	ObserveRewrite(d time.Duration)
	ObserveMessage(err error)
}
