package model_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ashita-ai/annai/internal/model"
)

func strPtr(s string) *string { return &s }
func intPtr(n int) *int       { return &n }

func TestRegisterSkillRequestValidate(t *testing.T) {
	valid := model.RegisterSkillRequest{
		Name:     "resume",
		Version:  "1.0.0",
		Endpoint: strPtr("https://skills.internal/resume"),
	}
	assert.NoError(t, valid.Validate())

	tests := []struct {
		name string
		req  model.RegisterSkillRequest
	}{
		{"empty name", model.RegisterSkillRequest{Name: "  ", Version: "1.0.0"}},
		{"empty version", model.RegisterSkillRequest{Name: "resume", Version: ""}},
		{"oversized name", model.RegisterSkillRequest{Name: strings.Repeat("x", 201), Version: "1"}},
		{"bad endpoint scheme", model.RegisterSkillRequest{Name: "resume", Version: "1", Endpoint: strPtr("ftp://x")}},
		{"endpoint without host", model.RegisterSkillRequest{Name: "resume", Version: "1", Endpoint: strPtr("http://")}},
		{"zero timeout", model.RegisterSkillRequest{Name: "resume", Version: "1", TimeoutMs: intPtr(0)}},
		{"bearer without token_env", model.RegisterSkillRequest{
			Name: "resume", Version: "1",
			AuthConfig: &model.AuthConfig{Type: model.AuthBearer},
		}},
		{"api_key without key_env", model.RegisterSkillRequest{
			Name: "resume", Version: "1",
			AuthConfig: &model.AuthConfig{Type: model.AuthAPIKey},
		}},
		{"unknown auth type", model.RegisterSkillRequest{
			Name: "resume", Version: "1",
			AuthConfig: &model.AuthConfig{Type: "oauth"},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.req.Validate())
		})
	}
}

func TestUpdateSkillRequestValidate(t *testing.T) {
	assert.NoError(t, model.UpdateSkillRequest{}.Validate())
	assert.NoError(t, model.UpdateSkillRequest{Version: strPtr("2.0.0")}.Validate())

	assert.Error(t, model.UpdateSkillRequest{Version: strPtr(" ")}.Validate())
	assert.Error(t, model.UpdateSkillRequest{Endpoint: strPtr("not a url ://")}.Validate())
	assert.Error(t, model.UpdateSkillRequest{TimeoutMs: intPtr(-1)}.Validate())
}

func TestSkillTimeout(t *testing.T) {
	assert.Equal(t, 10*time.Second, model.Skill{}.Timeout())
	assert.Equal(t, 250*time.Millisecond, model.Skill{TimeoutMs: 250}.Timeout())
	assert.Equal(t, 10*time.Second, model.Skill{TimeoutMs: -5}.Timeout())
}

func TestValidateUserID(t *testing.T) {
	assert.NoError(t, model.ValidateUserID("alice@example.com"))
	assert.NoError(t, model.ValidateUserID("user.name-01_x"))

	assert.Error(t, model.ValidateUserID(""))
	assert.Error(t, model.ValidateUserID("has space"))
	assert.Error(t, model.ValidateUserID(strings.Repeat("a", 256)))
}

func TestRoleAtLeast(t *testing.T) {
	assert.True(t, model.RoleAtLeast(model.RoleAdmin, model.RoleUser))
	assert.True(t, model.RoleAtLeast(model.RoleUser, model.RoleUser))
	assert.False(t, model.RoleAtLeast(model.RoleUser, model.RoleAdmin))
	assert.False(t, model.RoleAtLeast(model.UserRole("guest"), model.RoleUser))
}
