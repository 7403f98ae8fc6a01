package telegram

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

var (
	ErrBadLoginHash    = errors.New("telegram login: hash mismatch")
	ErrLoginTooOld     = errors.New("telegram login: auth_date too old")
	ErrLoginIncomplete = errors.New("telegram login: missing id or hash")
)

// LoginPayload is what the Telegram login widget posts to the dashboard.
type LoginPayload struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Username  string `json:"username"`
	PhotoURL  string `json:"photo_url"`
	AuthDate  int64  `json:"auth_date"`
	Hash      string `json:"hash"`
}

// VerifyLogin checks the widget's HMAC signature: every field except hash,
// sorted, newline-joined, signed with SHA256(bot token) as the key. A
// payload older than maxAge is rejected to limit replay.
func VerifyLogin(p LoginPayload, botToken string, maxAge time.Duration, now time.Time) error {
	if p.ID == "" || p.Hash == "" {
		return ErrLoginIncomplete
	}

	expected := SignLogin(p, botToken)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(strings.ToLower(p.Hash))) != 1 {
		return ErrBadLoginHash
	}

	authAt := time.Unix(p.AuthDate, 0)
	if maxAge > 0 && now.Sub(authAt) > maxAge {
		return ErrLoginTooOld
	}
	return nil
}

// SignLogin computes the widget hash for a payload (the Hash field itself
// is excluded from the data-check string).
func SignLogin(p LoginPayload, botToken string) string {
	fields := map[string]string{
		"id":        p.ID,
		"auth_date": strconv.FormatInt(p.AuthDate, 10),
	}
	if p.FirstName != "" {
		fields["first_name"] = p.FirstName
	}
	if p.LastName != "" {
		fields["last_name"] = p.LastName
	}
	if p.Username != "" {
		fields["username"] = p.Username
	}
	if p.PhotoURL != "" {
		fields["photo_url"] = p.PhotoURL
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("%s=%s", k, fields[k]))
	}

	secret := sha256.Sum256([]byte(botToken))
	mac := hmac.New(sha256.New, secret[:])
	mac.Write([]byte(strings.Join(lines, "\n")))
	return hex.EncodeToString(mac.Sum(nil))
}
