package cache

import (
	"strings"
	"time"

	"github.com/chandrahoro/reading-service/internal/model"
)

// Cache keys follow a fixed shape that bulk pattern operations depend on:
//
//	reading:<type>:<userID>:<YYYY-MM-DD>  single reading
//	reading:list:<userID>                 filtered list for a user
//	reading:latest:<userID>               most recent reading for a user
//
// The class segment comes before the user id, so a wildcard scoped to one
// user can never match another user's keys or another class.
const keyPrefix = "reading"

const (
	classList   = "list"
	classLatest = "latest"
	classLock   = "lock"
)

// ReadingKey builds the single-reading key for a user, type and date.
func ReadingKey(readingType, userID, date string) string {
	return keyPrefix + ":" + readingType + ":" + userID + ":" + date
}

// ListKey builds the reading-list key for a user.
func ListKey(userID string) string {
	return keyPrefix + ":" + classList + ":" + userID
}

// LatestKey builds the most-recent-reading key for a user.
func LatestKey(userID string) string {
	return keyPrefix + ":" + classLatest + ":" + userID
}

// LockKey builds the short-lived generation-in-progress marker key.
func LockKey(userID, date string) string {
	return keyPrefix + ":" + classLock + ":" + userID + ":" + date
}

// UserReadingPattern matches every single-reading key of one user across
// all reading types.
func UserReadingPattern(userID string) string {
	return keyPrefix + ":*:" + userID + ":*"
}

// TypeReadingPattern matches a user's single-reading keys of one type.
func TypeReadingPattern(readingType, userID string) string {
	return keyPrefix + ":" + readingType + ":" + userID + ":*"
}

// AllReadingPattern matches every single-reading key in the store. List and
// latest keys have no date segment, so the trailing wildcard excludes them.
func AllReadingPattern() string {
	return keyPrefix + ":*:*:*"
}

// ParseReadingDate extracts the embedded date from a single-reading key.
// It reports false for list/latest/lock keys and for malformed keys, which
// bulk scans skip rather than fail on.
func ParseReadingDate(key string) (time.Time, bool) {
	parts := strings.Split(key, ":")
	if len(parts) != 4 || parts[0] != keyPrefix {
		return time.Time{}, false
	}
	if parts[1] == classList || parts[1] == classLatest || parts[1] == classLock {
		return time.Time{}, false
	}
	t, err := time.Parse(model.DateLayout, parts[3])
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// IsSingleReadingKey reports whether key is a single-reading key with a
// parseable date segment.
func IsSingleReadingKey(key string) bool {
	_, ok := ParseReadingDate(key)
	return ok
}
