package followup

// jobIDScheme versions the identity function. Jobs in the store outlive
// deploys; cancellation reconstructs ids, so the scheme must never change
// silently. Bump the version if the format has to change and drain old jobs
// first.
const jobIDScheme = "followup:v1:"

// IsJobID reports whether an id was produced by the current scheme. The
// queue consumer uses it to reject foreign or stale-scheme messages.
func IsJobID(id string) bool {
	return len(id) > len(jobIDScheme) && id[:len(jobIDScheme)] == jobIDScheme
}

// MakeJobID derives the idempotency key for one contact and campaign step.
// It is a pure function of its inputs: scheduling the same (phone, step)
// twice maps to the same row, and cancel can rebuild every candidate id from
// the campaign profile alone. The template variant is deliberately not part
// of the id; it is carried in the job row so rescheduling with a different
// variant replaces the pending job instead of duplicating it.
func MakeJobID(normalizedPhone, stepName string) string {
	return jobIDScheme + normalizedPhone + ":" + stepName
}
