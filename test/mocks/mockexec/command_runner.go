// Copyright (c) Mystira. All rights reserved.
// Licensed under the MIT License.

package mockexec

import (
	"context"
	"fmt"
	"strings"

	"github.com/mystira/devhub/pkg/exec"
)

type RunWhenPredicate func(args exec.RunArgs, command string) bool

// MockCommandRunner is a mock implementation of exec.CommandRunner. Tests
// register expectations with When and the mock responds with the first match,
// panicking when no expectation covers a command.
type MockCommandRunner struct {
	expressions []*CommandExpression
}

func NewMockCommandRunner() *MockCommandRunner {
	return &MockCommandRunner{
		expressions: []*CommandExpression{},
	}
}

func (m *MockCommandRunner) Run(ctx context.Context, args exec.RunArgs) (exec.RunResult, error) {
	command := strings.TrimSpace(fmt.Sprintf("%s %s", args.Cmd, strings.Join(args.Args, " ")))
	expr := m.find(args, command)

	if expr == nil {
		panic(fmt.Sprintf("No mock found for command: '%s'", command))
	}

	if expr.responseFn != nil {
		return expr.responseFn(args)
	}

	return expr.response, expr.error
}

func (m *MockCommandRunner) RunList(ctx context.Context, commands []string, args exec.RunArgs) (exec.RunResult, error) {
	command := strings.Join(commands, " && ")
	expr := m.find(args, command)

	if expr == nil {
		panic(fmt.Sprintf("No mock found for command list: '%s'", command))
	}

	if expr.responseFn != nil {
		return expr.responseFn(args)
	}

	return expr.response, expr.error
}

// Start is not supported by the mock. Components that stream long running
// processes are tested against the real runner with short lived shell commands.
func (m *MockCommandRunner) Start(ctx context.Context, args exec.RunArgs) (*exec.Job, error) {
	panic(fmt.Sprintf("Start is not supported by the mock runner, command: '%s'", args.Cmd))
}

func (m *MockCommandRunner) find(args exec.RunArgs, command string) *CommandExpression {
	for _, expr := range m.expressions {
		if expr.predicateFn(args, command) {
			return expr
		}
	}

	return nil
}

// When registers a new expectation. Expectations are evaluated in
// registration order, first match wins.
func (m *MockCommandRunner) When(predicate RunWhenPredicate) *CommandExpression {
	expr := CommandExpression{
		runner:      m,
		predicateFn: predicate,
	}

	m.expressions = append(m.expressions, &expr)
	return &expr
}

type CommandExpression struct {
	response   exec.RunResult
	responseFn func(args exec.RunArgs) (exec.RunResult, error)
	error      error

	runner      *MockCommandRunner
	predicateFn RunWhenPredicate
}

// Respond sets a static response for the expression.
func (e *CommandExpression) Respond(response exec.RunResult) *MockCommandRunner {
	e.response = response
	return e.runner
}

// RespondFn computes the response from the run arguments at call time.
func (e *CommandExpression) RespondFn(fn func(args exec.RunArgs) (exec.RunResult, error)) *MockCommandRunner {
	e.responseFn = fn
	return e.runner
}

// SetError sets an error to return for the expression.
func (e *CommandExpression) SetError(err error) *MockCommandRunner {
	e.error = err
	return e.runner
}
