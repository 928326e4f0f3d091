package redis

const (
	// KeyPrefixLease is the prefix for workflow leases
	KeyPrefixLease = "powerdeck:lease:"
	// KeyPresence holds the active service
	KeyPresence = "powerdeck:presence"
	// KeyHistory is the list of recent outcomes, newest first
	KeyHistory = "powerdeck:history"
	// KeyPowerState holds the last power observation
	KeyPowerState = "powerdeck:power"
)

// LeaseKey returns the Redis key for a lease name such as "service:svc1"
// or "host:power".
func LeaseKey(name string) string {
	return KeyPrefixLease + name
}
