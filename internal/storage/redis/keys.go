package redis

import (
	"fmt"

	"github.com/mcoot/lazysignup-go/internal/model"
)

// Key prefix for all lazysignup data
const keyPrefix = "lazysignup"

// userKey returns the Redis key for a User
func userKey(id model.UserID) string {
	return fmt.Sprintf("%s:user:%s", keyPrefix, id)
}

// usernameIndexKey returns the Redis key for the username -> user_id index
func usernameIndexKey(username string) string {
	return fmt.Sprintf("%s:idx:username:%s", keyPrefix, username)
}

// markerKey returns the Redis key for a user's lazy marker
func markerKey(id model.UserID) string {
	return fmt.Sprintf("%s:lazy:%s", keyPrefix, id)
}

// lazyIndexKey returns the Redis key for the ZSET of lazy users scored by creation time
func lazyIndexKey() string {
	return fmt.Sprintf("%s:idx:lazy", keyPrefix)
}
