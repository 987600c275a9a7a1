package configsvc

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockpanel/sentinel/internal/errs"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.env")
	backend := NewFileBackend(path)
	return New(backend, nil, zerolog.Nop())
}

func TestUpdate_MaskRoundTripSkipsSensitiveKeyUnchanged(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	_, version, err := s.GetConfig(ctx)
	require.NoError(t, err)

	res, err := s.Update(ctx, version, []KV{{Key: "GEMINI_API_KEY", Value: "secret-key-value"}}, "******", false)
	require.NoError(t, err)
	assert.Equal(t, 1, res.AppliedCount)

	res2, err := s.Update(ctx, res.NewConfigVersion, []KV{
		{Key: "GEMINI_API_KEY", Value: "******"},
		{Key: "STOCK_LIST", Value: "600519,300750"},
	}, "******", false)
	require.NoError(t, err)
	assert.Equal(t, 1, res2.AppliedCount)
	assert.Equal(t, 1, res2.SkippedMaskedCount)
	assert.Equal(t, []string{"STOCK_LIST"}, res2.UpdatedKeys)

	items, _, err := s.GetConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, "secret-key-value", items["GEMINI_API_KEY"])
	assert.Equal(t, "600519,300750", items["STOCK_LIST"])
}

func TestUpdate_StaleVersionConflicts(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	_, err := s.Update(ctx, "stale-version", []KV{{Key: "STOCK_LIST", Value: "600519"}}, "******", false)
	require.Error(t, err)

	var qErr *errs.Error
	require.ErrorAs(t, err, &qErr)
	assert.Equal(t, errs.KindVersionConflict, qErr.Kind)
}

func TestUpdate_ValidationFailureRejectsWholeBatch(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	_, version, err := s.GetConfig(ctx)
	require.NoError(t, err)

	_, err = s.Update(ctx, version, []KV{{Key: "MAX_WORKERS", Value: "not-a-number"}}, "******", false)
	require.Error(t, err)

	var qErr *errs.Error
	require.ErrorAs(t, err, &qErr)
	assert.Equal(t, errs.KindValidationFailed, qErr.Kind)
}

func TestUpdate_CrossFieldRequiresChatIDWithBotToken(t *testing.T) {
	s := newTestService(t)
	issues, _ := s.Validate([]KV{{Key: "TELEGRAM_BOT_TOKEN", Value: "tok"}})
	require.Len(t, issues, 1)
	assert.Equal(t, "TELEGRAM_CHAT_ID", issues[0].Key)
}

func TestValidate_ExtraModelsRequiresProviderAndModel(t *testing.T) {
	s := newTestService(t)
	issues, _ := s.Validate([]KV{{Key: "EXTRA_AI_MODELS", Value: `[{"model":"gpt-4o-mini"}]`}})
	require.Len(t, issues, 1)
	assert.Contains(t, issues[0].Message, "provider")
}

func TestValidate_ExtraModelsRejectsAllEndpointsDisabled(t *testing.T) {
	s := newTestService(t)
	issues, _ := s.Validate([]KV{{Key: "EXTRA_AI_MODELS", Value: `[{"provider":"openai-compatible","model":"gpt-4o-mini","endpoints":[{"api_key":"k","enabled":false}]}]`}})
	require.Len(t, issues, 1)
	assert.Contains(t, issues[0].Message, "disabled")
}

func TestValidate_ExtraModelsWarnsOnStringVerifySSL(t *testing.T) {
	s := newTestService(t)
	issues, warnings := s.Validate([]KV{{Key: "EXTRA_AI_MODELS", Value: `[{"provider":"openai-compatible","model":"gpt-4o-mini","endpoints":[{"api_key":"k","verify_ssl":"false"}]}]`}})
	assert.Empty(t, issues)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "deprecated")
}

func TestGetSchema_GroupsByCategory(t *testing.T) {
	s := newTestService(t)
	cats := s.GetSchema()
	require.NotEmpty(t, cats)

	found := false
	for _, c := range cats {
		for _, f := range c.Fields {
			if f.Key == "GEMINI_API_KEY" {
				found = true
				assert.True(t, f.IsSensitive)
			}
		}
	}
	assert.True(t, found)
}
