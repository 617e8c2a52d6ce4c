package authsession

// maskToken masks a token or secret by showing the first 3 and last 4
// characters. Values shorter than 8 characters are fully masked.
func maskToken(secret string) string {
	if len(secret) <= 8 {
		return "***"
	}
	return secret[:3] + "***" + secret[len(secret)-4:]
}
