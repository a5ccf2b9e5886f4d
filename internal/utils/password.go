package utils

import "golang.org/x/crypto/bcrypt"

// HashPassword derives a bcrypt hash at the given cost.  The cost is
// taken from config (BCRYPT_COST) so tests can run at the minimum.
func HashPassword(plain string, cost int) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// VerifyPassword reports whether plain matches the stored hash.  A
// malformed hash verifies as false instead of erroring.
func VerifyPassword(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
