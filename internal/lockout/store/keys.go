package store

const (
	attemptsPrefix = "attempts:"
	lockoutPrefix  = "lockout:"
)

func attemptsKey(principal string) string { return attemptsPrefix + principal }
func lockoutKey(principal string) string  { return lockoutPrefix + principal }
