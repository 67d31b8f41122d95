package validate

// Kind is the shape of a check's result, per spec.md §4.3.
type Kind string

const (
	KindPassed   Kind = "passed"
	KindFailed   Kind = "failed"
	KindDeferred Kind = "deferred"
	KindError    Kind = "error"
)

// Outcome is the result of running one check against an account. Exactly
// one of the three shapes from spec.md §4.3 applies, selected by Kind.
type Outcome struct {
	Kind Kind

	// Passed/Failed.
	Details string
	// Private marks a steam_level outcome reached via an empty response,
	// which arms the private-profile short-circuit for the rest of the
	// item's pass. On friends/csgo_inventory it is informational only.
	Private bool

	// Deferred.
	NextAvailableInMs int64

	// Error.
	Err error
}

func Passed(details string, private bool) Outcome {
	return Outcome{Kind: KindPassed, Details: details, Private: private}
}

func Failed(details string) Outcome {
	return Outcome{Kind: KindFailed, Details: details}
}

func Deferred(nextAvailableInMs int64) Outcome {
	if nextAvailableInMs < 0 {
		nextAvailableInMs = 0
	}
	return Outcome{Kind: KindDeferred, NextAvailableInMs: nextAvailableInMs}
}

func Errored(err error) Outcome {
	return Outcome{Kind: KindError, Err: err}
}
