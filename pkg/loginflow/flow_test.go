package loginflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-mfa/pkg/account"
	"github.com/tendant/simple-mfa/pkg/errors"
)

type recordingStep struct {
	name  string
	order int
	done  bool
	err   error
	log   *[]string
}

func (s *recordingStep) Name() string { return s.name }
func (s *recordingStep) Order() int   { return s.order }

func (s *recordingStep) Execute(ctx context.Context, fc *FlowContext) (bool, error) {
	*s.log = append(*s.log, s.name)
	if s.done {
		fc.Result = LoginResult{Token: "t"}
	}
	return s.done, s.err
}

func TestStepRegistry_GetOrderedSteps(t *testing.T) {
	var log []string
	registry := NewStepRegistry().
		AddStep(&recordingStep{name: "c", order: 300, log: &log}).
		AddStep(&recordingStep{name: "a", order: 100, log: &log}).
		AddStep(&recordingStep{name: "b", order: 200, log: &log})

	ordered := registry.GetOrderedSteps()
	require.Len(t, ordered, 3)
	assert.Equal(t, "a", ordered[0].Name())
	assert.Equal(t, "b", ordered[1].Name())
	assert.Equal(t, "c", ordered[2].Name())
}

func TestFlowExecutor_StopsWhenDone(t *testing.T) {
	var log []string
	flow := NewFlowBuilder("test").
		AddStep(&recordingStep{name: "first", order: 1, log: &log}).
		AddStep(&recordingStep{name: "finish", order: 2, done: true, log: &log}).
		AddStep(&recordingStep{name: "never", order: 3, log: &log}).
		Build()

	result, err := flow.Execute(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, "t", result.Token)
	assert.Equal(t, []string{"first", "finish"}, log)
}

func TestFlowExecutor_ReturnsStepError(t *testing.T) {
	var log []string
	flow := NewFlowBuilder("test").
		AddStep(&recordingStep{name: "fail", order: 1, err: errors.Unauthorized("nope"), log: &log}).
		AddStep(&recordingStep{name: "never", order: 2, log: &log}).
		Build()

	_, err := flow.Execute(context.Background(), Request{})
	assert.True(t, errors.IsCode(err, errors.ErrCodeUnauthorized))
	assert.Equal(t, []string{"fail"}, log)
}

func TestFlowExecutor_NoResult(t *testing.T) {
	var log []string
	flow := NewFlowBuilder("empty").
		AddStep(&recordingStep{name: "noop", order: 1, log: &log}).
		Build()

	_, err := flow.Execute(context.Background(), Request{})
	assert.Error(t, err)
}

func TestSecondFactorRequirementStep(t *testing.T) {
	step := &SecondFactorRequirementStep{}
	acct := account.NewAccount("Orion", "orion@test.com", "hash")

	fc := &FlowContext{Request: Request{Channel: ChannelBasic}, Account: acct}
	done, err := step.Execute(context.Background(), fc)
	require.NoError(t, err)
	assert.False(t, done)

	acct.UsingTwoFactor = true
	acct.TOTPSecret = "SECRET"
	acct.Require2FAForSocialLogin = false

	fc = &FlowContext{Request: Request{Channel: ChannelSocial}, Account: acct}
	done, err = step.Execute(context.Background(), fc)
	require.NoError(t, err)
	assert.False(t, done)

	fc = &FlowContext{Request: Request{Channel: ChannelBasic}, Account: acct}
	done, err = step.Execute(context.Background(), fc)
	require.NoError(t, err)
	assert.True(t, done)
	assert.True(t, fc.Result.Requires2FA)
	assert.Equal(t, MessageRequires2FA, fc.Result.Message)
}

func TestOrchestratorFlows(t *testing.T) {
	env := newTestEnv(t)
	assert.Equal(t, []string{"password", "second_factor_requirement", "token", "hash_upgrade"}, env.svc.loginFlow.StepNames())
	assert.Equal(t, []string{"account_lookup", "totp", "token"}, env.svc.twoFactorFlow.StepNames())
}
