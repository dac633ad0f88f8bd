package usecase

import (
	"net/mail"
	"regexp"
	"strings"
)

var phonePattern = regexp.MustCompile(`^\d{10}$`)

func requireEmail(email string) (string, error) {
	trimmed := strings.TrimSpace(email)
	if trimmed == "" {
		return "", invalid("email", "email is required")
	}
	addr, err := mail.ParseAddress(trimmed)
	if err != nil || addr.Address != trimmed {
		return "", invalid("email", "invalid email format")
	}
	return strings.ToLower(trimmed), nil
}

func requireField(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return invalid(field, field+" is required")
	}
	return nil
}
