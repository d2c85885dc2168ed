package validation

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	MaxChallengeTitleLen       = 100
	MaxChallengeDescriptionLen = 1000
)

// ValidateChallengeTitle requires a non-blank title of at most 100 characters.
func ValidateChallengeTitle(title string) error {
	if strings.TrimSpace(title) == "" {
		return fmt.Errorf("title is required")
	}
	if utf8.RuneCountInString(title) > MaxChallengeTitleLen {
		return fmt.Errorf("title must not exceed %d characters", MaxChallengeTitleLen)
	}
	return nil
}

func ValidateChallengeDescription(description string) error {
	if strings.TrimSpace(description) == "" {
		return fmt.Errorf("description is required")
	}
	if utf8.RuneCountInString(description) > MaxChallengeDescriptionLen {
		return fmt.Errorf("description must not exceed %d characters", MaxChallengeDescriptionLen)
	}
	return nil
}

// ValidateChallengeDates requires end to fall strictly after start.
func ValidateChallengeDates(start, end time.Time) error {
	if !end.After(start) {
		return fmt.Errorf("end date must be after start date")
	}
	return nil
}
