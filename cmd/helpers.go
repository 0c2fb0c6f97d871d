package cmd

import (
	"os"
	"strings"

	"github.com/derad-network/derad/io/prompt"
)

// ConfirmAction uses the passed in actionText as the confirmation text
// displayed in the terminal. The user must enter Y or N to indicate whether
// they approve the action. The denied text is logged when the user declines.
func ConfirmAction(actionText, deniedText string) (bool, error) {
	response, err := prompt.ValidatePrompt(os.Stdin, actionText, prompt.ValidateConfirmation)
	if err != nil {
		return false, err
	}
	if strings.EqualFold(response, "Y") {
		return true, nil
	}
	log.Warn(deniedText)
	return false, nil
}
