// Package prompt reads and validates interactive terminal input.
package prompt

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/logrusorgru/aurora"
	"github.com/pkg/errors"
)

var au = aurora.NewAurora(true)

// DefaultPrompt prompts the user for any text and returns the entered value,
// or the default on an empty entry.
func DefaultPrompt(promptText, defaultValue string) (string, error) {
	if defaultValue != "" {
		fmt.Printf("%s %s:\n", promptText, fmt.Sprintf("(%s: %s)", au.BrightGreen("default"), defaultValue))
	} else {
		fmt.Printf("%s:\n", promptText)
	}
	scanner := bufio.NewScanner(os.Stdin)
	if ok := scanner.Scan(); ok {
		response := strings.TrimRight(scanner.Text(), "\r\n")
		if response == "" {
			return defaultValue, nil
		}
		return response, nil
	}
	return "", errors.New("could not scan text input")
}

// ValidatePrompt requests input from the reader until the validate function
// accepts it.
func ValidatePrompt(r io.Reader, promptText string, validateFunc func(string) error) (string, error) {
	var responseValid bool
	var response string
	scanner := bufio.NewScanner(r)
	for !responseValid {
		fmt.Printf("%s:\n", au.Bold(promptText))
		if ok := scanner.Scan(); ok {
			response = strings.TrimRight(scanner.Text(), "\r\n")
			if err := validateFunc(response); err != nil {
				fmt.Printf("Entry not valid: %s\n", err.Error())
			} else {
				responseValid = true
			}
		} else {
			return "", errors.New("could not scan text input")
		}
	}
	return response, nil
}

// DefaultAndValidatePrompt prompts for input, substitutes the default on an
// empty entry and loops until the validate function accepts the value.
func DefaultAndValidatePrompt(promptText, defaultValue string, validateFunc func(string) error) (string, error) {
	var responseValid bool
	var response string
	scanner := bufio.NewScanner(os.Stdin)
	for !responseValid {
		fmt.Printf("%s %s:\n", promptText, fmt.Sprintf("(%s: %s)", au.BrightGreen("default"), defaultValue))
		if ok := scanner.Scan(); ok {
			response = strings.TrimRight(scanner.Text(), "\r\n")
			if response == "" {
				response = defaultValue
			}
			if err := validateFunc(response); err != nil {
				fmt.Printf("Entry not valid: %s\n", err.Error())
			} else {
				responseValid = true
			}
		} else {
			return "", errors.New("could not scan text input")
		}
	}
	return response, nil
}
