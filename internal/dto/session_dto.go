package dto

type ReserveSessionRequest struct {
	TelegramID string `json:"telegram_id"`
	Subject    string `json:"subject"`
}

type ReserveSessionResponse struct {
	OK      bool   `json:"ok"`
	Tier    string `json:"tier,omitempty"`
	Minutes int    `json:"minutes,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

type ReserveMarkingRequest struct {
	TelegramID string `json:"telegram_id"`
}

type ReserveMarkingResponse struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`
}

// UsageResponse backs both the dashboard and the bot's /me command.
type UsageResponse struct {
	TelegramID             string `json:"telegram_id"`
	Tier                   string `json:"tier"`
	PlanLabel              string `json:"plan_label,omitempty"`
	PlanExpiresAt          string `json:"plan_expires_at,omitempty"`
	MinutesUsedToday       int    `json:"minutes_used_today"`
	MinutesLeftToday       int    `json:"minutes_left_today"`
	SubjectsUsedToday      int    `json:"subjects_used_today"`
	SubjectsLeftToday      int    `json:"subjects_left_today"`
	MarkingsUsedToday      int    `json:"markings_used_today"`
	MarkingsLeftToday      int    `json:"markings_left_today"`
	TrialSessionsRemaining int    `json:"trial_sessions_remaining"`
}
