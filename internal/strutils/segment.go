package strutils

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const MAX_SEGMENT_LENGTH = 255

// Checks that a folder or file name can be joined onto a root without escaping it
func ValidatePathSegment(segment string) error {
	if segment == "" {
		return fmt.Errorf("empty path segment")
	}
	if len(segment) > MAX_SEGMENT_LENGTH {
		return fmt.Errorf("path segment too long. length: %d", len(segment))
	}
	if !utf8.ValidString(segment) {
		return fmt.Errorf("path segment is not valid utf-8. input: '%q'", segment)
	}
	if segment == "." || segment == ".." {
		return fmt.Errorf("path segment refers to a directory. input: '%s'", segment)
	}
	if strings.ContainsAny(segment, "/\\\x00") {
		return fmt.Errorf("invalid character in path segment. input: '%q'", segment)
	}
	return nil
}
