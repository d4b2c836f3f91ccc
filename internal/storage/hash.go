package storage

// Content hashes are 32-byte SHA-256 digests carried as 64-character
// lowercase hex strings. The digest itself lives in the document vault;
// records only reference it.

// ValidHash reports whether s is a well-formed content hash.
func ValidHash(s string) bool {
	if len(s) != 64 {
		return false
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
