package utils

import "golang.org/x/crypto/bcrypt"

// HashPassword hashes an admin password with bcrypt at the default cost.
// Admin logins are rare enough that the cost is not a concern.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(hash), err
}

// CheckPassword reports whether the plaintext matches the stored hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
