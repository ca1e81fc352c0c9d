package domain

// Typed payload shapes for the six settings domains. The resolution engine
// treats payloads as opaque JSON; these structs are the contract between the
// API layer, the descriptor hooks, and the downstream consumers.

// AutomatedTaskSettings paces automated outreach for a user.
type AutomatedTaskSettings struct {
	MaxEmailsPerDay   int   `json:"max_emails_per_day"`
	MaxSMSPerDay      int   `json:"max_sms_per_day"`
	StartHour         int   `json:"start_hour"`
	EndHour           int   `json:"end_hour"`
	DelayBetweenTasks int   `json:"delay_between_tasks_seconds"`
	WorkingDays       []int `json:"working_days"`
}

// BouncedMailSettings controls what happens to a cadence when a mail bounces.
type BouncedMailSettings struct {
	AutomaticStopCadence     bool     `json:"automatic_stop_cadence"`
	SemiAutomaticStopCadence bool     `json:"semi_automatic_stop_cadence"`
	AutomaticTaskSkip        []string `json:"automatic_bounced_data"`
	SemiAutomaticTaskSkip    []string `json:"semi_automatic_bounced_data"`
}

// UnsubscribeMailSettings controls what happens when a lead unsubscribes.
type UnsubscribeMailSettings struct {
	AutomaticStopCadence     bool     `json:"automatic_stop_cadence"`
	SemiAutomaticStopCadence bool     `json:"semi_automatic_stop_cadence"`
	AutomaticTaskSkip        []string `json:"automatic_unsubscribed_data"`
	SemiAutomaticTaskSkip    []string `json:"semi_automatic_unsubscribed_data"`
}

// TaskSettingsPayload caps the daily manual task load for a user.
type TaskSettingsPayload struct {
	MaxTasksPerDay       int `json:"max_tasks"`
	HighPriorityShare    int `json:"high_priority_split"`
	CallsPerDay          int `json:"calls_per_day"`
	MailsPerDay          int `json:"mails_per_day"`
	LinkedinTasksPerDay  int `json:"linkedin_tasks_per_day"`
	DataCheckTasksPerDay int `json:"data_check_tasks_per_day"`
	CadenceCustomPerDay  int `json:"cadence_custom_per_day"`
}

// SkipSettings defines which tasks may be skipped and the permitted reasons.
type SkipSettings struct {
	SkipAllowedTasks []string `json:"skip_allowed_tasks"`
	SkipReasons      []string `json:"skip_reasons"`
}

// LeadScoreSettings configures lead-scoring thresholds and activity weights.
// ScoreThreshold and ResetPeriod are the two fields whose change triggers a
// downstream score recomputation.
type LeadScoreSettings struct {
	ScoreThreshold     int            `json:"score_threshold"`
	ResetPeriod        int            `json:"reset_period"`
	EmailOpenedScore   int            `json:"email_opened_score"`
	EmailClickedScore  int            `json:"email_clicked_score"`
	MailRepliedScore   int            `json:"mail_replied_score"`
	IncomingCallScore  int            `json:"incoming_call_score"`
	DemoBookedScore    int            `json:"demo_booked_score"`
	StatusUpdateScores map[string]int `json:"status_update_scores,omitempty"`
}
