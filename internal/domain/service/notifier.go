package service

// Notifier delivers a message to one conversation participant.
// Fire-and-forget: a dropped notification never corrupts session state, so
// implementations log failures instead of returning them to the core.
type Notifier interface {
	Send(recipientID, text string)
}
