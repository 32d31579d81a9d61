package pipeline

// Outcome classifies a completed run.
type Outcome string

const (
	// OutcomeSuccess: every new record (if any) was delivered.
	OutcomeSuccess Outcome = "success"
	// OutcomePartial: some deliveries failed; the failed ids stayed out of
	// the committed state and will be retried on the next run.
	OutcomePartial Outcome = "partial"
)

// Report summarizes one pipeline run.
type Report struct {
	Fetched   int
	Skipped   int // malformed entries dropped during parse
	New       int
	Delivered int
	Failed    int

	// Seeded counts ids recorded without notification on a first run under
	// the "seed" policy.
	Seeded int

	DryRun bool
}

func (r Report) Outcome() Outcome {
	if r.Failed > 0 {
		return OutcomePartial
	}
	return OutcomeSuccess
}
