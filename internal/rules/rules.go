// Package rules 实现石头剪刀布蜥蜴史波克的胜负判定，无状态。
package rules

import (
	"errors"
	"fmt"

	"github.com/GabrielFeijo/jokenpo/internal/models"
)

// Outcome 判定结果
type Outcome int

const (
	Draw Outcome = iota
	AWins
	BWins
)

func (o Outcome) String() string {
	switch o {
	case AWins:
		return "A_WINS"
	case BWins:
		return "B_WINS"
	default:
		return "DRAW"
	}
}

// ErrInvalidChoice 出招不属于当前模式
var ErrInvalidChoice = errors.New("invalid choice for game mode")

// beats 每种出招能击败的集合
var beats = map[models.Choice][2]models.Choice{
	models.Rock:     {models.Scissors, models.Lizard},
	models.Paper:    {models.Rock, models.Spock},
	models.Scissors: {models.Paper, models.Lizard},
	models.Lizard:   {models.Spock, models.Paper},
	models.Spock:    {models.Scissors, models.Rock},
}

var (
	classicChoices  = []models.Choice{models.Rock, models.Paper, models.Scissors}
	extendedChoices = models.AllChoices
)

// Beats 返回 c 能击败的出招
func Beats(c models.Choice) []models.Choice {
	set, ok := beats[c]
	if !ok {
		return nil
	}
	return []models.Choice{set[0], set[1]}
}

// Choices 返回模式允许的出招
func Choices(mode models.GameMode) []models.Choice {
	switch mode {
	case models.ModeClassic:
		return append([]models.Choice(nil), classicChoices...)
	case models.ModeExtended:
		return append([]models.Choice(nil), extendedChoices...)
	default:
		return nil
	}
}

// Allowed 出招是否属于该模式
func Allowed(mode models.GameMode, c models.Choice) bool {
	for _, allowed := range Choices(mode) {
		if allowed == c {
			return true
		}
	}
	return false
}

// Validate 校验出招，不合法时返回 ErrInvalidChoice
func Validate(mode models.GameMode, c models.Choice) error {
	if !Allowed(mode, c) {
		return fmt.Errorf("%w: %q in %s", ErrInvalidChoice, c, mode)
	}
	return nil
}

// Decide 判定 a 对 b 的结果，调用方需保证两者合法
func Decide(a, b models.Choice) Outcome {
	if a == b {
		return Draw
	}
	for _, loser := range beats[a] {
		if loser == b {
			return AWins
		}
	}
	return BWins
}

// DecideInMode 校验后判定
func DecideInMode(mode models.GameMode, a, b models.Choice) (Outcome, error) {
	if err := Validate(mode, a); err != nil {
		return Draw, err
	}
	if err := Validate(mode, b); err != nil {
		return Draw, err
	}
	return Decide(a, b), nil
}
