package telegram

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

const testBotToken = "12345:TEST-TOKEN"

func validPayload(now time.Time) LoginPayload {
	p := LoginPayload{
		ID:        "99887766",
		FirstName: "Amina",
		Username:  "amina_k",
		AuthDate:  now.Add(-time.Minute).Unix(),
	}
	p.Hash = SignLogin(p, testBotToken)
	return p
}

func TestVerifyLoginAcceptsSignedPayload(t *testing.T) {
	now := time.Now()
	p := validPayload(now)
	assert.NoError(t, VerifyLogin(p, testBotToken, 24*time.Hour, now))
}

func TestVerifyLoginRejectsTamperedField(t *testing.T) {
	now := time.Now()
	p := validPayload(now)
	p.ID = "11111111"
	assert.ErrorIs(t, VerifyLogin(p, testBotToken, 24*time.Hour, now), ErrBadLoginHash)
}

func TestVerifyLoginRejectsWrongBotToken(t *testing.T) {
	now := time.Now()
	p := validPayload(now)
	assert.ErrorIs(t, VerifyLogin(p, "other:TOKEN", 24*time.Hour, now), ErrBadLoginHash)
}

func TestVerifyLoginRejectsStalePayload(t *testing.T) {
	now := time.Now()
	p := LoginPayload{
		ID:       "99887766",
		AuthDate: now.Add(-48 * time.Hour).Unix(),
	}
	p.Hash = SignLogin(p, testBotToken)
	assert.ErrorIs(t, VerifyLogin(p, testBotToken, 24*time.Hour, now), ErrLoginTooOld)
}

func TestVerifyLoginRejectsMissingFields(t *testing.T) {
	now := time.Now()
	assert.ErrorIs(t, VerifyLogin(LoginPayload{}, testBotToken, time.Hour, now), ErrLoginIncomplete)
}
