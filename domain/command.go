package domain

// PostMessageCommand carries a message submission intent.
// Validation tags are enforced by the ingestion service before any
// store mutation happens. Max lengths are counted in runes.
type PostMessageCommand struct {
	Sender string `validate:"required,max=100"`
	Body   string `validate:"required,max=500"`
	Origin Origin `validate:"required,oneof=local relayed"`
}
