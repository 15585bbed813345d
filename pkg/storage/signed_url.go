package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Download tokens are scoped to report artifacts; the audience claim guards
// against reuse if the signer ever serves another purpose.
const tokenAudience = "report-download"

// DownloadGrant is the decoded claim set carried by a signed download token.
type DownloadGrant struct {
	JobID     string
	Path      string
	ExpiresAt time.Time
}

// TokenSigner issues and verifies HMAC-signed download tokens for report
// artifacts.
type TokenSigner struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenSigner uses a 24h default when ttl is zero or negative.
func NewTokenSigner(secret string, ttl time.Duration) *TokenSigner {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TokenSigner{secret: []byte(secret), ttl: ttl}
}

// Issue signs a grant for one report artifact and returns the token along
// with its expiry.
func (s *TokenSigner) Issue(jobID, path string) (string, time.Time, error) {
	if jobID == "" || path == "" {
		return "", time.Time{}, fmt.Errorf("download token requires a job id and a path")
	}
	expiresAt := time.Now().Add(s.ttl)
	payload := strings.Join([]string{tokenAudience, jobID, path, strconv.FormatInt(expiresAt.Unix(), 10)}, "\n")
	encoded := base64.RawURLEncoding.EncodeToString([]byte(payload))
	return encoded + "~" + s.sign(encoded), expiresAt, nil
}

// Verify checks the signature and expiry and returns the decoded grant.
func (s *TokenSigner) Verify(token string) (DownloadGrant, error) {
	encoded, sig, ok := strings.Cut(token, "~")
	if !ok {
		return DownloadGrant{}, fmt.Errorf("malformed download token")
	}
	if !hmac.Equal([]byte(sig), []byte(s.sign(encoded))) {
		return DownloadGrant{}, fmt.Errorf("download token signature mismatch")
	}
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return DownloadGrant{}, fmt.Errorf("decode download token: %w", err)
	}
	parts := strings.Split(string(raw), "\n")
	if len(parts) != 4 || parts[0] != tokenAudience {
		return DownloadGrant{}, fmt.Errorf("unexpected download token claims")
	}
	exp, err := strconv.ParseInt(parts[3], 10, 64)
	if err != nil {
		return DownloadGrant{}, fmt.Errorf("decode download token expiry: %w", err)
	}
	grant := DownloadGrant{JobID: parts[1], Path: parts[2], ExpiresAt: time.Unix(exp, 0)}
	if time.Now().After(grant.ExpiresAt) {
		return DownloadGrant{}, fmt.Errorf("download token expired")
	}
	return grant, nil
}

func (s *TokenSigner) sign(encoded string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(encoded))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
