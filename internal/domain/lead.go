package domain

const (
	LeadStatusPending = "pending"
	LeadStatusSent    = "sent"
	LeadStatusFailed  = "failed"
)

// Lead is the payload of the contact form.
type Lead struct {
	Name    string
	Phone   string
	Puppy   string
	Message string
}

// LeadRecord is a persisted lead submission.
type LeadRecord struct {
	PK        string
	SK        string
	LeadID    string
	Lead      Lead
	Status    string
	Detail    string
	CreatedAt string
	UpdatedAt string
	TTL       int64
}
