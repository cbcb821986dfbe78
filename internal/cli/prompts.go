package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"github.com/shopspring/decimal"

	"github.com/dyike/StockMateGo/internal/backtest"
	"github.com/dyike/StockMateGo/internal/position"
	"github.com/dyike/StockMateGo/internal/ticker"
)

// Action is one entry of the interactive main menu.
type Action string

const (
	ActionAnalyze  Action = "🔍 Analyze a ticker"
	ActionData     Action = "📈 Price statistics"
	ActionNews     Action = "📰 News digest"
	ActionBacktest Action = "🧪 Backtest a strategy"
	ActionKelly    Action = "💰 Kelly position calculator"
	ActionHistory  Action = "📜 Analysis history"
	ActionSaved    Action = "💾 Saved results"
	ActionExit     Action = "👋 Exit"
)

var menu = []Action{ActionAnalyze, ActionData, ActionNews, ActionBacktest, ActionKelly, ActionHistory, ActionSaved, ActionExit}

// PromptForAction shows the main menu
func PromptForAction() (Action, error) {
	options := make([]string, len(menu))
	for i, a := range menu {
		options[i] = string(a)
	}
	var choice string
	prompt := &survey.Select{
		Message:  "What would you like to do?",
		Options:  options,
		PageSize: len(options),
	}
	if err := survey.AskOne(prompt, &choice); err != nil {
		return "", err
	}
	return Action(choice), nil
}

// PromptForTicker prompts the user to enter a stock ticker symbol
func PromptForTicker() (string, error) {
	var raw string
	prompt := &survey.Input{
		Message: "Enter the ticker (e.g., 600000, 000001.SZ, 300750):",
		Help:    "Six digit A-share code, optionally suffixed with .SH, .SZ or .BJ",
	}
	if err := survey.AskOne(prompt, &raw, survey.WithValidator(validateTicker)); err != nil {
		return "", err
	}
	sym, err := ticker.Normalize(raw)
	if err != nil {
		return "", err
	}
	return sym.String(), nil
}

func PromptForStrategy() (string, error) {
	var choice string
	prompt := &survey.Select{
		Message: "Select a backtest strategy:",
		Options: backtest.PresetNames(),
		Default: backtest.StrategyMA,
		Description: func(value string, _ int) string {
			s, ok := backtest.Preset(value)
			if !ok {
				return ""
			}
			return fmt.Sprintf("%s: enter %s, exit %s", s.Direction, s.Entry, s.Exit)
		},
	}
	if err := survey.AskOne(prompt, &choice); err != nil {
		return "", err
	}
	return choice, nil
}

// PromptForKellyInput asks for win rate, win/loss ratio and capital.
func PromptForKellyInput() (position.Input, error) {
	answers := struct {
		WinProbability string
		WinLossRatio   string
		Capital        string
	}{}
	questions := []*survey.Question{
		{
			Name:     "WinProbability",
			Prompt:   &survey.Input{Message: "Win probability (%):", Default: "55"},
			Validate: validatePercent,
		},
		{
			Name:     "WinLossRatio",
			Prompt:   &survey.Input{Message: "Average win / average loss:", Default: "2"},
			Validate: validatePositive,
		},
		{
			Name:     "Capital",
			Prompt:   &survey.Input{Message: "Capital:", Default: strconv.FormatFloat(DefaultCapital, 'f', -1, 64)},
			Validate: validatePositive,
		},
	}
	if err := survey.Ask(questions, &answers); err != nil {
		return position.Input{}, err
	}

	p, _ := strconv.ParseFloat(strings.TrimSpace(answers.WinProbability), 64)
	b, _ := strconv.ParseFloat(strings.TrimSpace(answers.WinLossRatio), 64)
	capital, err := decimal.NewFromString(strings.TrimSpace(answers.Capital))
	if err != nil {
		return position.Input{}, err
	}
	return position.Input{WinProbability: p, WinLossRatio: b, Capital: capital}, nil
}

func PromptForConfirmation(message string) (bool, error) {
	confirmed := false
	prompt := &survey.Confirm{Message: message, Default: true}
	err := survey.AskOne(prompt, &confirmed)
	return confirmed, err
}

func validateTicker(val interface{}) error {
	str, ok := val.(string)
	if !ok {
		return errors.New("ticker must be text")
	}
	if strings.TrimSpace(str) == "" {
		return errors.New("ticker cannot be empty")
	}
	_, err := ticker.Normalize(str)
	return err
}

func validatePercent(val interface{}) error {
	v, err := parseNumber(val)
	if err != nil {
		return err
	}
	if v < 0 || v > 100 {
		return fmt.Errorf("must be between 0 and 100, got %v", v)
	}
	return nil
}

func validatePositive(val interface{}) error {
	v, err := parseNumber(val)
	if err != nil {
		return err
	}
	if v <= 0 {
		return fmt.Errorf("must be positive, got %v", v)
	}
	return nil
}

func parseNumber(val interface{}) (float64, error) {
	str, ok := val.(string)
	if !ok {
		return 0, errors.New("expected a number")
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(str), 64)
	if err != nil {
		return 0, fmt.Errorf("%q is not a number", str)
	}
	return v, nil
}
