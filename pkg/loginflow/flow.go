package loginflow

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/tendant/simple-mfa/pkg/account"
)

// Channel names the primary factor a login started with.
type Channel string

const (
	ChannelBasic  Channel = "basic"
	ChannelSocial Channel = "social"
)

const MessageRequires2FA = "2FA code required"

// LoginResult is either complete (Token set) or waiting for a second
// factor (Requires2FA set, no token).
type LoginResult struct {
	Token       string
	ExpiresAt   time.Time
	Account     account.Account
	Requires2FA bool
	Channel     Channel
	Message     string
}

// Request carries the inputs of one login attempt through the flow.
type Request struct {
	Channel  Channel
	Email    string
	Name     string
	Password string
	Provider string
	Code     string
}

// LoginFlowStep is a single stage of a login flow.
type LoginFlowStep interface {
	// Name returns the unique name of this step
	Name() string

	// Order returns the execution order (lower numbers execute first)
	Order() int

	// Execute performs the step. Returning done=true ends the flow with
	// the current result.
	Execute(ctx context.Context, fc *FlowContext) (done bool, err error)
}

// FlowContext carries state between steps.
type FlowContext struct {
	Request Request
	Account account.Account
	Result  LoginResult
}

// Predefined step orders
const (
	OrderPrimaryFactor        = 100
	OrderSecondFactorRequired = 200
	OrderSecondFactor         = 300
	OrderTokenIssuance        = 400
	OrderPostLogin            = 500
)

// StepRegistry holds steps and returns them by order.
type StepRegistry struct {
	steps []LoginFlowStep
}

func NewStepRegistry() *StepRegistry {
	return &StepRegistry{steps: make([]LoginFlowStep, 0)}
}

func (r *StepRegistry) AddStep(step LoginFlowStep) *StepRegistry {
	r.steps = append(r.steps, step)
	return r
}

// GetOrderedSteps returns a sorted copy of the registered steps.
func (r *StepRegistry) GetOrderedSteps() []LoginFlowStep {
	ordered := make([]LoginFlowStep, len(r.steps))
	copy(ordered, r.steps)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Order() < ordered[j].Order()
	})
	return ordered
}

// FlowExecutor runs steps in order until one finishes the flow or fails.
type FlowExecutor struct {
	name  string
	steps []LoginFlowStep
}

func NewFlowExecutor(name string, registry *StepRegistry) *FlowExecutor {
	return &FlowExecutor{name: name, steps: registry.GetOrderedSteps()}
}

// Execute runs the flow. Errors from a step are returned unchanged so the
// caller sees the step's error kind.
func (e *FlowExecutor) Execute(ctx context.Context, request Request) (LoginResult, error) {
	fc := &FlowContext{Request: request}
	for _, step := range e.steps {
		done, err := step.Execute(ctx, fc)
		if err != nil {
			slog.Debug("Login flow step failed", "flow", e.name, "step", step.Name(), "err", err)
			return LoginResult{}, err
		}
		if done {
			return fc.Result, nil
		}
	}
	if fc.Result.Token == "" && !fc.Result.Requires2FA {
		return LoginResult{}, fmt.Errorf("login flow %s ended without a result", e.name)
	}
	return fc.Result, nil
}

// StepNames lists the steps in execution order.
func (e *FlowExecutor) StepNames() []string {
	names := make([]string, len(e.steps))
	for i, s := range e.steps {
		names[i] = s.Name()
	}
	return names
}

// FlowBuilder assembles a FlowExecutor.
type FlowBuilder struct {
	name     string
	registry *StepRegistry
}

func NewFlowBuilder(name string) *FlowBuilder {
	return &FlowBuilder{name: name, registry: NewStepRegistry()}
}

func (b *FlowBuilder) AddStep(step LoginFlowStep) *FlowBuilder {
	b.registry.AddStep(step)
	return b
}

func (b *FlowBuilder) Build() *FlowExecutor {
	return NewFlowExecutor(b.name, b.registry)
}
