package security

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

const (
	totpSecretBytes = 20
	totpDigits      = 6
	totpPeriod      = 30 * time.Second
	// totpSkew tolerates one period of clock drift in either direction.
	totpSkew = 1
)

// ErrMissingSecret is returned when a TOTP secret is empty.
var ErrMissingSecret = errors.New("totp secret is required")

var b32 = base32.StdEncoding.WithPadding(base32.NoPadding)

// GenerateTwoFactorSecret returns a random base32-encoded shared secret for
// authenticator enrollment.
func GenerateTwoFactorSecret() (string, error) {
	raw := make([]byte, totpSecretBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate totp secret: %w", err)
	}
	return b32.EncodeToString(raw), nil
}

// ProvisionURI builds the otpauth:// URI encoded into enrollment QR codes.
func ProvisionURI(secret, issuer, account string) string {
	label := url.PathEscape(issuer + ":" + account)

	v := url.Values{}
	v.Set("secret", secret)
	v.Set("issuer", issuer)
	v.Set("period", strconv.Itoa(int(totpPeriod.Seconds())))
	v.Set("digits", strconv.Itoa(totpDigits))
	v.Set("algorithm", "SHA1")

	return "otpauth://totp/" + label + "?" + v.Encode()
}

// VerifyTOTP checks a time-based one-time code against the base32 shared
// secret at the given instant, per RFC 6238 (SHA-1, 6 digits, 30s period).
func VerifyTOTP(secret, code string, now time.Time) (bool, error) {
	if secret == "" {
		return false, ErrMissingSecret
	}
	if len(code) != totpDigits || !isDigits(code) {
		return false, nil
	}

	key, err := b32.DecodeString(secret)
	if err != nil {
		return false, fmt.Errorf("decode totp secret: %w", err)
	}

	baseCounter := now.Unix() / int64(totpPeriod.Seconds())
	for step := int64(-totpSkew); step <= totpSkew; step++ {
		counter := baseCounter + step
		if counter < 0 {
			continue
		}
		if subtle.ConstantTimeCompare([]byte(hotpCode(key, uint64(counter))), []byte(code)) == 1 {
			return true, nil
		}
	}

	return false, nil
}

func hotpCode(key []byte, counter uint64) string {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], counter)

	mac := hmac.New(sha1.New, key)
	_, _ = mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	bin := (int(sum[offset])&0x7f)<<24 |
		(int(sum[offset+1])&0xff)<<16 |
		(int(sum[offset+2])&0xff)<<8 |
		(int(sum[offset+3]) & 0xff)

	return fmt.Sprintf("%0*d", totpDigits, bin%1000000)
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
