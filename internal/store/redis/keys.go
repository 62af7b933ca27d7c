package redis

import "fmt"

const (
	// KeyPrefixDocument is the prefix for per-user document keys
	KeyPrefixDocument = "hometab:doc:"
	// KeyPrefixChanges is the prefix for per-user change channels
	KeyPrefixChanges = "hometab:changes:"
)

// DocumentKey returns the Redis key holding a user's document
func DocumentKey(userID string) string {
	return KeyPrefixDocument + userID
}

// ChangesChannel returns the Pub/Sub channel announcing a user's writes
func ChangesChannel(userID string) string {
	return KeyPrefixChanges + userID
}

// ExtractUserID extracts the user ID from a document key
func ExtractUserID(key string) (string, error) {
	if len(key) <= len(KeyPrefixDocument) || key[:len(KeyPrefixDocument)] != KeyPrefixDocument {
		return "", fmt.Errorf("invalid document key: %s", key)
	}
	return key[len(KeyPrefixDocument):], nil
}
