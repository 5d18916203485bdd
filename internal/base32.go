package internal

import (
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const alphabet = "abcdefghijklmnopqrstuvwxyz156789"

var customEncoding = base32.NewEncoding(alphabet).WithPadding(base32.NoPadding)

func EncodeToBase32(data []byte) string {
	return customEncoding.EncodeToString(data)
}

const (
	submissionIDPrefix = "submission_"
	fieldIDPrefix      = "field_"
	submissionIDRandom = 8
)

// NewSubmissionID returns submission_<unixMillis>_<random> where the random
// suffix is 8 bytes from crypto/rand in the lower-case base32 alphabet.
func NewSubmissionID(now time.Time) (string, error) {
	buf := make([]byte, submissionIDRandom)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return submissionIDPrefix + strconv.FormatInt(now.UnixMilli(), 10) + "_" + EncodeToBase32(buf), nil
}

// NewFormID returns a time-ordered UUIDv7 string.
func NewFormID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate form id: %w", err)
	}
	return id.String(), nil
}

// assignFieldIDs fills empty field ids with field_<n>, continuing after the
// highest numeric suffix already in use.
func assignFieldIDs(ids []string) []string {
	next := 0
	for _, id := range ids {
		if n, ok := strings.CutPrefix(id, fieldIDPrefix); ok {
			if v, err := strconv.Atoi(n); err == nil && v > next {
				next = v
			}
		}
	}
	out := make([]string, len(ids))
	for i, id := range ids {
		if id == "" {
			next++
			id = fieldIDPrefix + strconv.Itoa(next)
		}
		out[i] = id
	}
	return out
}
