package decision

import (
	"github.com/AlecAivazis/survey/v2"
)

// Prompter asks an operator questions.
type Prompter interface {
	Select(message string, options []string) (string, error)
	Confirm(message string, def bool) (bool, error)
	Password(message string) (string, error)
}

// SurveyPrompter prompts on the controlling terminal.
type SurveyPrompter struct {
	Opts []survey.AskOpt
}

func (p SurveyPrompter) Select(message string, options []string) (string, error) {
	var answer string
	err := survey.AskOne(&survey.Select{Message: message, Options: options}, &answer, p.Opts...)
	return answer, err
}

func (p SurveyPrompter) Confirm(message string, def bool) (bool, error) {
	answer := def
	err := survey.AskOne(&survey.Confirm{Message: message, Default: def}, &answer, p.Opts...)
	return answer, err
}

func (p SurveyPrompter) Password(message string) (string, error) {
	var answer string
	err := survey.AskOne(&survey.Password{Message: message}, &answer, p.Opts...)
	return answer, err
}
