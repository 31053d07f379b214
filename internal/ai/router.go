package ai

// Policy is the confidence tier a score routes to.
type Policy string

const (
	PolicyExecute      Policy = "execute"
	PolicyConfirmFirst Policy = "confirm_first"
	PolicyFallback     Policy = "fallback"
)

// Thresholds hold the two configured confidence cut-offs. Low <= High
// is enforced at config load, before a router is ever constructed.
type Thresholds struct {
	High float64
	Low  float64
}

// Route maps a confidence score to a policy. Pure function: exact
// equality at High executes, exact equality at Low asks first.
func (t Thresholds) Route(confidence float64) Policy {
	switch {
	case confidence >= t.High:
		return PolicyExecute
	case confidence >= t.Low:
		return PolicyConfirmFirst
	default:
		return PolicyFallback
	}
}
