package dialog

import (
	"errors"
	"fmt"
	"strings"

	"github.com/susu3304/gastobot/internal/ledger"
)

// Step is the prefix of a button token.
type Step string

const (
	StepValidate    Step = "VALID"
	StepMultiple    Step = "MULTIPLE"
	StepScope       Step = "SCOPE"
	StepCategory    Step = "CAT"
	StepSubcategory Step = "SUBCAT"
	StepAction      Step = "ACTION"
	StepConfirm     Step = "CONFIRM"
	StepAmount      Step = "AMOUNT"
)

const (
	yes = "Yes"
	no  = "No"
)

var ErrUnknownToken = errors.New("unknown dialog token")

// Input is one event driving a dialog transition. The set of implementations is closed.
type Input interface {
	step() Step
}

type Validate struct{ Accept bool }

type ChooseMultiplicity struct{ Multiple bool }

type ChooseScope struct{ Scope ledger.Scope }

type ChooseCategory struct{ Name string }

// ChooseSubcategory carries the raw taxonomy name, pocket marker included.
type ChooseSubcategory struct{ Name string }

type ChooseKind struct{ Kind ledger.Kind }

type ConfirmAction string

const (
	ConfirmSave    ConfirmAction = "SAVE"
	ConfirmRestart ConfirmAction = "RESTART"
	ConfirmCancel  ConfirmAction = "CANCEL"
)

type Confirm struct{ Action ConfirmAction }

// EnterAmount is a free-text reply.
type EnterAmount struct{ Raw string }

// UseRemaining assigns whatever is left to the next split.
type UseRemaining struct{}

func (Validate) step() Step           { return StepValidate }
func (ChooseMultiplicity) step() Step { return StepMultiple }
func (ChooseScope) step() Step        { return StepScope }
func (ChooseCategory) step() Step     { return StepCategory }
func (ChooseSubcategory) step() Step  { return StepSubcategory }
func (ChooseKind) step() Step         { return StepAction }
func (Confirm) step() Step            { return StepConfirm }
func (EnterAmount) step() Step        { return "" }
func (UseRemaining) step() Step       { return StepAmount }

// IsToken reports whether a button token belongs to the classification dialog.
func IsToken(token string) bool {
	step, _, ok := strings.Cut(token, "|")
	if !ok {
		return false
	}
	switch Step(step) {
	case StepValidate, StepMultiple, StepScope, StepCategory, StepSubcategory, StepAction, StepConfirm, StepAmount:
		return true
	}
	return false
}

// ParseToken decodes a "STEP|value" button token. The value may itself contain '|'.
func ParseToken(token string) (Input, error) {
	step, value, ok := strings.Cut(token, "|")
	if !ok || value == "" {
		return nil, fmt.Errorf("%w: %q", ErrUnknownToken, token)
	}
	switch Step(step) {
	case StepValidate:
		return parseYesNo(token, value, func(b bool) Input { return Validate{Accept: b} })
	case StepMultiple:
		return parseYesNo(token, value, func(b bool) Input { return ChooseMultiplicity{Multiple: b} })
	case StepScope:
		if s, ok := ledger.ParseScope(value); ok {
			return ChooseScope{Scope: s}, nil
		}
	case StepCategory:
		return ChooseCategory{Name: value}, nil
	case StepSubcategory:
		return ChooseSubcategory{Name: value}, nil
	case StepAction:
		if k, ok := ledger.ParseKind(value); ok {
			return ChooseKind{Kind: k}, nil
		}
	case StepConfirm:
		switch a := ConfirmAction(strings.ToUpper(value)); a {
		case ConfirmSave, ConfirmRestart, ConfirmCancel:
			return Confirm{Action: a}, nil
		}
	case StepAmount:
		if value == "REST" {
			return UseRemaining{}, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownToken, token)
}

func parseYesNo(token, value string, build func(bool) Input) (Input, error) {
	switch value {
	case yes:
		return build(true), nil
	case no:
		return build(false), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownToken, token)
}

// Token encodes an input as a button token. Free-text inputs have no token.
func Token(in Input) string {
	switch in := in.(type) {
	case Validate:
		return join(StepValidate, yesNo(in.Accept))
	case ChooseMultiplicity:
		return join(StepMultiple, yesNo(in.Multiple))
	case ChooseScope:
		return join(StepScope, string(in.Scope))
	case ChooseCategory:
		return join(StepCategory, in.Name)
	case ChooseSubcategory:
		return join(StepSubcategory, in.Name)
	case ChooseKind:
		return join(StepAction, string(in.Kind))
	case Confirm:
		return join(StepConfirm, string(in.Action))
	case UseRemaining:
		return join(StepAmount, "REST")
	}
	return ""
}

func join(s Step, v string) string { return string(s) + "|" + v }

func yesNo(b bool) string {
	if b {
		return yes
	}
	return no
}
