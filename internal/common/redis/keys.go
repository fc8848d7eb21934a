package redis

const lockKeyPrefix = "lock:"

// LockKey returns the dedup lock key for a request fingerprint
func LockKey(fingerprint string) string {
	return lockKeyPrefix + fingerprint
}
