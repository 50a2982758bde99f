package service

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"time"

	"chainremit/internal/core/domain"

	"golang.org/x/crypto/argon2"
)

// CardVaultImpl implements ports.CardVault. Card numbers and CVVs are
// encrypted with AES-256-GCM; the random nonce is prepended to the
// ciphertext and supplied to decryption, so repeated encryptions of the
// same plaintext never produce the same ciphertext.
type CardVaultImpl struct {
	key []byte // 32-byte key for AES-256, never logged
}

// NewCardVault creates a vault from a 64-character hex key (32 bytes).
func NewCardVault(hexKey string) (*CardVaultImpl, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("decoding vault key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("vault key must be 32 bytes, got %d", len(key))
	}
	return &CardVaultImpl{key: key}, nil
}

// NewCardVaultFromPassphrase derives the vault key from a passphrase and
// salt using Argon2id.
func NewCardVaultFromPassphrase(passphrase, salt string) (*CardVaultImpl, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("vault passphrase must not be empty")
	}
	if len(salt) < 8 {
		return nil, fmt.Errorf("vault salt must be at least 8 bytes")
	}
	key := argon2.IDKey([]byte(passphrase), []byte(salt), 1, 64*1024, 4, 32)
	return &CardVaultImpl{key: key}, nil
}

// Encrypt encrypts plaintext with AES-256-GCM.
// Returns hex-encoded: nonce + ciphertext.
func (v *CardVaultImpl) Encrypt(plaintext string) (string, error) {
	block, err := aes.NewCipher(v.key)
	if err != nil {
		return "", fmt.Errorf("creating cipher: %w", err)
	}

	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("creating GCM: %w", err)
	}

	nonce := make([]byte, aesGCM.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}

	ciphertext := aesGCM.Seal(nonce, nonce, []byte(plaintext), nil)
	return hex.EncodeToString(ciphertext), nil
}

// Decrypt decrypts a hex-encoded AES-256-GCM ciphertext.
func (v *CardVaultImpl) Decrypt(ciphertextHex string) (string, error) {
	ciphertext, err := hex.DecodeString(ciphertextHex)
	if err != nil {
		return "", fmt.Errorf("decoding ciphertext: %w", err)
	}

	block, err := aes.NewCipher(v.key)
	if err != nil {
		return "", fmt.Errorf("creating cipher: %w", err)
	}

	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("creating GCM: %w", err)
	}

	nonceSize := aesGCM.NonceSize()
	if len(ciphertext) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := aesGCM.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("decrypting: %w", err)
	}

	return string(plaintext), nil
}

// ValidateNumber runs a Luhn checksum over a 13-19 digit card number.
func (v *CardVaultImpl) ValidateNumber(number string) bool {
	if len(number) < 13 || len(number) > 19 {
		return false
	}

	sum := 0
	double := false
	for i := len(number) - 1; i >= 0; i-- {
		c := number[i]
		if c < '0' || c > '9' {
			return false
		}
		digit := int(c - '0')
		if double {
			digit *= 2
			if digit > 9 {
				digit -= 9
			}
		}
		sum += digit
		double = !double
	}
	return sum%10 == 0
}

// DetectType identifies the issuer by prefix. No network call.
func (v *CardVaultImpl) DetectType(number string) domain.CardType {
	switch {
	case strings.HasPrefix(number, "4"):
		return domain.CardTypeVisa
	case hasPrefixInRange(number, 2, 51, 55), hasPrefixInRange(number, 4, 2221, 2720):
		return domain.CardTypeMastercard
	case strings.HasPrefix(number, "34"), strings.HasPrefix(number, "37"):
		return domain.CardTypeAmex
	case strings.HasPrefix(number, "6011"), strings.HasPrefix(number, "65"),
		hasPrefixInRange(number, 3, 644, 649):
		return domain.CardTypeDiscover
	}
	return domain.CardTypeUnknown
}

// hasPrefixInRange reports whether the first n digits of number form an
// integer in [lo, hi].
func hasPrefixInRange(number string, n, lo, hi int) bool {
	if len(number) < n {
		return false
	}
	prefix := 0
	for i := 0; i < n; i++ {
		c := number[i]
		if c < '0' || c > '9' {
			return false
		}
		prefix = prefix*10 + int(c-'0')
	}
	return prefix >= lo && prefix <= hi
}

// ValidateCvv checks CVV length: 4 digits for Amex, 3 for everyone else.
func (v *CardVaultImpl) ValidateCvv(cvv string, cardType domain.CardType) bool {
	want := 3
	if cardType == domain.CardTypeAmex {
		want = 4
	}
	if len(cvv) != want {
		return false
	}
	for i := 0; i < len(cvv); i++ {
		if cvv[i] < '0' || cvv[i] > '9' {
			return false
		}
	}
	return true
}

// ValidateExpiry checks that month/year is a real month not before asOf.
// A card expires at the end of its expiry month.
func (v *CardVaultImpl) ValidateExpiry(month, year int, asOf time.Time) bool {
	if month < 1 || month > 12 {
		return false
	}
	if year < asOf.Year() {
		return false
	}
	if year == asOf.Year() && month < int(asOf.Month()) {
		return false
	}
	return true
}

// Mask renders a card number for display: first 4 and last 4 digits only.
// 15-digit numbers use the Amex grouping.
func (v *CardVaultImpl) Mask(number string) string {
	if len(number) < 8 {
		return strings.Repeat("*", len(number))
	}
	first, last := number[:4], number[len(number)-4:]
	if len(number) == 15 {
		return first + " ****** " + last
	}
	return first + strings.Repeat("*", len(number)-8) + last
}
