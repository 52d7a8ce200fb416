// internal/service/reward/infrastructure/rule/cel_eligibility.go
package rule

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"rewardhub/internal/service/reward/domain"
)

// CELEligibilityEngine 是 port.EligibilityEngine 的 CEL 实现。
// 可用变量: user_id (int), weekday (int, 周日为 0), hour (int, 0-23)。
// 编译后的程序按表达式缓存。
type CELEligibilityEngine struct {
	env *cel.Env

	mu       sync.RWMutex
	programs map[string]cel.Program
}

func NewCELEligibilityEngine() (*CELEligibilityEngine, error) {
	env, err := cel.NewEnv(
		cel.Variable("user_id", cel.IntType),
		cel.Variable("weekday", cel.IntType),
		cel.Variable("hour", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cel env: %w", err)
	}
	return &CELEligibilityEngine{env: env, programs: make(map[string]cel.Program)}, nil
}

// Compile 校验表达式并缓存，表达式结果必须为 bool。
func (e *CELEligibilityEngine) Compile(expr string) (cel.Program, error) {
	e.mu.RLock()
	prg, ok := e.programs[expr]
	e.mu.RUnlock()
	if ok {
		return prg, nil
	}

	ast, iss := e.env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("compile eligibility rule %q: %w", expr, iss.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("eligibility rule %q must evaluate to bool, got %s", expr, ast.OutputType())
	}
	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("build eligibility program %q: %w", expr, err)
	}

	e.mu.Lock()
	e.programs[expr] = prg
	e.mu.Unlock()
	return prg, nil
}

// Eligible 评估规则，空规则视为满足。
func (e *CELEligibilityEngine) Eligible(_ context.Context, rule string, fact domain.EligibilityFact) (bool, error) {
	if rule == "" {
		return true, nil
	}
	prg, err := e.Compile(rule)
	if err != nil {
		return false, err
	}
	out, _, err := prg.Eval(map[string]any{
		"user_id": fact.UserID,
		"weekday": int64(fact.At.Weekday()),
		"hour":    int64(fact.At.Hour()),
	})
	if err != nil {
		return false, fmt.Errorf("evaluate eligibility rule %q: %w", rule, err)
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("eligibility rule %q returned %T", rule, out.Value())
	}
	return b, nil
}
