package utils

import "golang.org/x/crypto/bcrypt"

// HashDeviceSecret returns the bcrypt hash of a device secret using
// the given cost. Only the hash is stored; the raw secret stays on the
// client device and is the sole credential of an anonymous account.
func HashDeviceSecret(plain string, cost int) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// VerifyDeviceSecret safely compares a stored bcrypt hash and a
// presented device secret.
func VerifyDeviceSecret(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
