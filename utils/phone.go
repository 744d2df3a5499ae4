package utils

import (
	"fmt"
	"strings"
)

// NormalizePhone converts a Kenyan phone number to the canonical
// 2547XXXXXXXX / 2541XXXXXXXX form the provider reports. Accepted inputs:
// +2547..., 2547..., 07..., 01..., 7..., 1....
func NormalizePhone(raw string) (string, error) {
	cleaned := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		if r == ' ' || r == '-' || r == '+' || r == '(' || r == ')' {
			return -1
		}
		return r // keep invalid runes so validation below catches them
	}, strings.TrimSpace(raw))

	switch {
	case strings.HasPrefix(cleaned, "254"):
		// already canonical
	case strings.HasPrefix(cleaned, "0"):
		cleaned = "254" + cleaned[1:]
	case strings.HasPrefix(cleaned, "7") || strings.HasPrefix(cleaned, "1"):
		cleaned = "254" + cleaned
	}

	if len(cleaned) != 12 {
		return "", fmt.Errorf("invalid phone number %q", raw)
	}
	for _, r := range cleaned {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("invalid phone number %q", raw)
		}
	}
	if cleaned[3] != '7' && cleaned[3] != '1' {
		return "", fmt.Errorf("invalid phone number %q", raw)
	}
	return cleaned, nil
}
