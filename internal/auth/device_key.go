package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// HashDeviceKey bcrypt hash stored in devices.device_key_hash.
func HashDeviceKey(key string) (string, error) {
	if key == "" {
		return "", errors.New("device key is empty")
	}
	b, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// VerifyDeviceKey compares key against a stored bcrypt hash.
// Devices without a hash never authenticate.
func VerifyDeviceKey(hash *string, key string) bool {
	if hash == nil || *hash == "" || key == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(*hash), []byte(key)) == nil
}
