package optimizer

import (
	"fmt"
	"strings"
)

// Strategy selects the rewriting framework applied to the user's prompt.
type Strategy string

const (
	StrategyGeneral   Strategy = "general"
	StrategyReasoning Strategy = "reasoning"
	StrategyCoding    Strategy = "coding"
	StrategyWriting   Strategy = "writing"
	StrategyRACE      Strategy = "race"
	StrategyCARE      Strategy = "care"
	StrategyAPE       Strategy = "ape"
	StrategyCOAST     Strategy = "coast"
	StrategyRISE      Strategy = "rise"
	StrategyPAIN      Strategy = "pain"
)

const baseInstruction = `You are a world-class prompt engineer. Your goal is to rewrite the user's input into a highly effective, structured, and clear prompt for a Large Language Model. Retain the core intent but maximize clarity and adherence to the chosen structure. Output ONLY the optimized prompt.`

// strategyAddenda holds the per-strategy instruction appended to the
// base rewriting instruction. The writing strategy is assembled
// separately because it interpolates the tone.
var strategyAddenda = map[Strategy]string{
	StrategyGeneral:   ` Make the prompt direct, remove ambiguity, and structure it logically.`,
	StrategyReasoning: ` USE THE "CHAIN OF THOUGHT" TECHNIQUE. Explicitly ask the model to "think step-by-step", break down the problem, and explain its reasoning before giving the final answer.`,
	StrategyCoding:    ` OPTIMIZE FOR CODING. The prompt should ask for clean, efficient, modern code, including comments and error handling. Specify the language if implied.`,
	StrategyRACE:      ` USE THE 'RACE' FRAMEWORK: Role (Who is the AI?), Action (What to do?), Context (Background info), Explanation (Why/How?).`,
	StrategyCARE:      ` USE THE 'CARE' FRAMEWORK: Context, Action, Result, Example.`,
	StrategyAPE:       ` USE THE 'APE' FRAMEWORK: Action, Purpose, Execution.`,
	StrategyCOAST:     ` USE THE 'COAST' FRAMEWORK: Context, Objective, Actions, Scenario, Task.`,
	StrategyRISE:      ` USE THE 'RISE' FRAMEWORK: Role, Input, Steps, Execution.`,
	StrategyPAIN:      ` USE THE 'PAIN' FRAMEWORK: Problem, Action, Information, Next Steps.`,
}

// descriptions shown alongside the strategy list in the API.
var strategyDescriptions = map[Strategy]string{
	StrategyGeneral:   "Direct, unambiguous, logically structured",
	StrategyReasoning: "Chain-of-thought: ask the model to think step by step",
	StrategyCoding:    "Clean, modern code with comments and error handling",
	StrategyWriting:   "Creative writing with evocative language and tone control",
	StrategyRACE:      "Role, Action, Context, Explanation",
	StrategyCARE:      "Context, Action, Result, Example",
	StrategyAPE:       "Action, Purpose, Execution",
	StrategyCOAST:     "Context, Objective, Actions, Scenario, Task",
	StrategyRISE:      "Role, Input, Steps, Execution",
	StrategyPAIN:      "Problem, Action, Information, Next Steps",
}

// Strategies returns the selectable strategies in a stable order.
func Strategies() []StrategyInfo {
	order := []Strategy{
		StrategyGeneral, StrategyReasoning, StrategyCoding, StrategyWriting,
		StrategyRACE, StrategyCARE, StrategyAPE, StrategyCOAST, StrategyRISE, StrategyPAIN,
	}
	infos := make([]StrategyInfo, 0, len(order))
	for _, s := range order {
		infos = append(infos, StrategyInfo{ID: s, Description: strategyDescriptions[s]})
	}
	return infos
}

// StrategyInfo is one selectable strategy.
type StrategyInfo struct {
	ID          Strategy `json:"id"`
	Description string   `json:"description"`
}

// Valid reports whether s is a known strategy.
func (s Strategy) Valid() bool {
	if s == StrategyWriting {
		return true
	}
	_, ok := strategyAddenda[s]
	return ok
}

// buildSystemInstruction assembles the full rewriting instruction for
// one optimize call.
func buildSystemInstruction(strategy Strategy, tone, negative string) string {
	var b strings.Builder
	b.WriteString(baseInstruction)

	if strategy == StrategyWriting {
		if tone == "" {
			tone = "neutral"
		}
		fmt.Fprintf(&b, ` OPTIMIZE FOR CREATIVE WRITING. Focus on evocative language, sensory details, and narrative flow. Tone: %s.`, tone)
	} else if addendum, ok := strategyAddenda[strategy]; ok {
		b.WriteString(addendum)
	} else {
		b.WriteString(strategyAddenda[StrategyGeneral])
	}

	if negative != "" {
		fmt.Fprintf(&b, "\n\nCONSTRAINT: The prompt MUST include a negative constraint section forbidding: %q.", negative)
	}

	return b.String()
}
