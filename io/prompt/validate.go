package prompt

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

var errIncorrectPhrase = errors.New("input does not match wanted phrase")

// NotEmpty validates the input to ensure it is not empty.
func NotEmpty(input string) error {
	if input == "" {
		return errors.New("input cannot be empty")
	}
	return nil
}

// ValidateNumber makes sure the entered text is a valid number.
func ValidateNumber(input string) error {
	_, err := strconv.Atoi(input)
	return err
}

// ValidateConfirmation makes sure the entered text is either Y or N.
func ValidateConfirmation(input string) error {
	if input != "Y" && input != "y" && input != "N" && input != "n" {
		return errors.New("please enter Y or N")
	}
	return nil
}

// ValidatePhrase checks whether the input matches the wanted phrase exactly,
// ignoring surrounding whitespace.
func ValidatePhrase(input, wantedPhrase string) error {
	if strings.TrimSpace(input) != wantedPhrase {
		return errIncorrectPhrase
	}
	return nil
}
