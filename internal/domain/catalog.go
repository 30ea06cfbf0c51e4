package domain

type PuppyStatus string

const (
	PuppyAvailable PuppyStatus = "available"
	PuppyReserved  PuppyStatus = "reserved"
)

// Puppy is a catalog entry shown in the carousel and offered by the lead form.
type Puppy struct {
	ID     int         `json:"id"`
	Name   string      `json:"name"`
	Gender string      `json:"gender"`
	Age    string      `json:"age"`
	Color  string      `json:"color"`
	Price  string      `json:"price"`
	Image  string      `json:"image"`
	Status PuppyStatus `json:"status"`
}
