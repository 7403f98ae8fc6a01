package dto

// ManualCreditRequest resolves an unmatched payment (addressed by its
// transaction id in the path) to an explicit plan.
type ManualCreditRequest struct {
	PlanCode string `json:"plan_code"`
}
