package domain

// Customer holds the contact details the engine needs to reach a renter.
type Customer struct {
	ID    int32  `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// UserPreference is a customer's reminder configuration.
// ReminderOffsets are days before the end date at which a reminder fires.
type UserPreference struct {
	UserID          int32 `json:"user_id"`
	ReminderOffsets []int `json:"reminder_offsets"`
	EmailEnabled    bool  `json:"email_enabled"`
}
