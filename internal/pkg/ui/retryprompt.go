// Package ui renders the dispatch core's sole interactive surface: a
// two-choice [R]etry / [S]kip prompt shown after the map phase when
// indices remain failed. It deliberately does not carry a full
// accept/edit/regenerate menu — the orchestrator only ever needs a
// retry/skip decision from the terminal.
package ui

import (
	"fmt"

	"github.com/charmbracelet/huh"
)

// RetryChoice is the user's answer to the retry prompt.
type RetryChoice int

const (
	RetryChoiceRetry RetryChoice = iota
	RetryChoiceSkip
)

// PromptRetry shows the [R]etry/[S]kip select for failedCount
// outstanding commits and returns the user's choice.
func PromptRetry(failedCount int) (RetryChoice, error) {
	choice := RetryChoiceSkip

	err := huh.NewSelect[RetryChoice]().
		Title(fmt.Sprintf("%d commit(s) failed to process.", failedCount)).
		Options(
			huh.NewOption("Retry", RetryChoiceRetry),
			huh.NewOption("Skip", RetryChoiceSkip),
		).
		Value(&choice).
		Run()
	if err != nil {
		return RetryChoiceSkip, err
	}
	return choice, nil
}
