package utils

import (
	"crypto/md5"
	"fmt"
	"strings"
)

func HashString(input string) string {
	hash := md5.Sum([]byte(input))
	return fmt.Sprintf("%x", hash)
}

// HashStrings hashes parts with a separator that cannot appear in text, so
// ("ab", "c") and ("a", "bc") differ.
func HashStrings(parts ...string) string {
	return HashString(strings.Join(parts, "\x00"))
}
