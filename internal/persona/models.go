package persona

// Person is one civil-registry record. The store is reference data populated
// once at bootstrap; records are never mutated after that.
type Person struct {
	DNI             string // PII; 8 decimal digits, unique
	PaternalSurname string // PII
	MaternalSurname string // PII
	GivenNames      string // PII
	BirthDate       string // ISO date, YYYY-MM-DD
	Sex             string // "M" or "F"
	CivilStatus     string // optional; empty when the schema variant lacks the column
	Birthplace      string // optional; empty when the schema variant lacks the column
	Address         string // optional
}

// ValidDNI reports whether s has the exact shape of a national ID:
// eight characters, all decimal digits. It deliberately accepts leading
// zeros ("01234568" is a real DNI).
func ValidDNI(s string) bool {
	if len(s) != 8 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
