package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
)

var errNoPIN = errors.New("a PIN is required")

// promptPIN asks for the device PIN without echoing it.
func promptPIN(host string) (string, error) {
	var pin string

	err := huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title("Device PIN").
			Description(fmt.Sprintf("PIN printed on the label of the device at %s", host)).
			EchoMode(huh.EchoModePassword).
			Value(&pin).
			Validate(validatePIN),
	)).Run()
	if errors.Is(err, huh.ErrUserAborted) {
		return "", errNoPIN
	}

	if err != nil {
		return "", fmt.Errorf("pin prompt: %w", err)
	}

	return strings.TrimSpace(pin), nil
}

func validatePIN(s string) error {
	if strings.TrimSpace(s) == "" {
		return errNoPIN
	}

	return nil
}
