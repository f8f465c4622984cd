package rabbit

import (
	"encoding/json"

	"reniec/internal/persona"
	"reniec/internal/platform/config"
)

// dniFromBody pulls the identifier out of a request body. Callers send
// either {"dni": "..."} or {"data": {"dni": "..."}}; anything else,
// including unparseable bodies, degrades to the empty string and takes the
// invalid-input path.
func dniFromBody(body []byte) string {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	if s, ok := payload["dni"].(string); ok && s != "" {
		return s
	}
	if data, ok := payload["data"].(map[string]any); ok {
		if s, ok := data["dni"].(string); ok {
			return s
		}
	}
	return ""
}

// ReplyFormatter renders lookup outcomes into the envelope a caller
// ecosystem expects. Formatters are presentation adapters; the lookup
// semantics behind them are identical.
type ReplyFormatter interface {
	// Found renders a hit.
	Found(p *persona.Person) []byte
	// NotFound renders a miss. Invalid identifiers use the same shape;
	// dni is the (possibly empty) identifier to echo where the format
	// calls for one.
	NotFound(dni string) []byte
	// Failure renders a processing error with a human-readable message.
	Failure(message string) []byte
}

// FormatterFor returns the formatter for a configured reply format.
func FormatterFor(f config.ReplyFormat) ReplyFormatter {
	if f == config.ReplyFormatBank {
		return BankFormatter{}
	}
	return PersonFormatter{}
}

// personFields is the record as the calling ecosystem names it: Spanish
// column names with the two surnames camel-cased. Optional fields are
// omitted when the record has no value, matching what callers already
// tolerate.
type personFields struct {
	DNI             string `json:"dni"`
	Nombres         string `json:"nombres"`
	ApellidoPat     string `json:"apellidoPat"`
	ApellidoMat     string `json:"apellidoMat"`
	FechaNaci       string `json:"fecha_naci,omitempty"`
	Sexo            string `json:"sexo,omitempty"`
	Direccion       string `json:"direccion,omitempty"`
	EstadoCivil     string `json:"estado_civil,omitempty"`
	LugarNacimiento string `json:"lugar_nacimiento,omitempty"`
}

func toPersonFields(p *persona.Person) *personFields {
	return &personFields{
		DNI:             p.DNI,
		Nombres:         p.GivenNames,
		ApellidoPat:     p.PaternalSurname,
		ApellidoMat:     p.MaternalSurname,
		FechaNaci:       p.BirthDate,
		Sexo:            p.Sex,
		Direccion:       p.Address,
		EstadoCivil:     p.CivilStatus,
		LugarNacimiento: p.Birthplace,
	}
}

// PersonFormatter is the canonical envelope: ok, person, error. A miss is
// ok=false with the NOT_FOUND classification; a processing failure carries
// its message in the same error slot.
type PersonFormatter struct{}

type personReply struct {
	OK     bool          `json:"ok"`
	Person *personFields `json:"person"`
	Error  *string       `json:"error"`
}

func (PersonFormatter) Found(p *persona.Person) []byte {
	return mustJSON(personReply{OK: true, Person: toPersonFields(p)})
}

func (PersonFormatter) NotFound(string) []byte {
	e := "NOT_FOUND"
	return mustJSON(personReply{Error: &e})
}

func (PersonFormatter) Failure(message string) []byte {
	return mustJSON(personReply{Error: &message})
}

// BankFormatter is the envelope the bank service already consumes: lookups
// are always ok=true with a data.valid flag, hits carry a person alias of
// the same data object, and only real processing failures flip ok to false.
type BankFormatter struct{}

type bankReply struct {
	OK     bool       `json:"ok"`
	Data   *bankData  `json:"data,omitempty"`
	Person *bankData  `json:"person"`
	Error  *bankError `json:"error"`
}

// bankData repeats the record fields rather than embedding personFields so
// a miss marshals to exactly {"valid": false, "dni": "..."}.
type bankData struct {
	Valid           bool   `json:"valid"`
	DNI             string `json:"dni"`
	Nombres         string `json:"nombres,omitempty"`
	ApellidoPat     string `json:"apellidoPat,omitempty"`
	ApellidoMat     string `json:"apellidoMat,omitempty"`
	FechaNaci       string `json:"fecha_naci,omitempty"`
	Sexo            string `json:"sexo,omitempty"`
	Direccion       string `json:"direccion,omitempty"`
	EstadoCivil     string `json:"estado_civil,omitempty"`
	LugarNacimiento string `json:"lugar_nacimiento,omitempty"`
}

type bankError struct {
	Message string `json:"message"`
}

func (BankFormatter) Found(p *persona.Person) []byte {
	data := &bankData{
		Valid:           true,
		DNI:             p.DNI,
		Nombres:         p.GivenNames,
		ApellidoPat:     p.PaternalSurname,
		ApellidoMat:     p.MaternalSurname,
		FechaNaci:       p.BirthDate,
		Sexo:            p.Sex,
		Direccion:       p.Address,
		EstadoCivil:     p.CivilStatus,
		LugarNacimiento: p.Birthplace,
	}
	return mustJSON(bankReply{OK: true, Data: data, Person: data})
}

func (BankFormatter) NotFound(dni string) []byte {
	return mustJSON(bankReply{OK: true, Data: &bankData{Valid: false, DNI: dni}})
}

func (BankFormatter) Failure(message string) []byte {
	return mustJSON(bankReply{Error: &bankError{Message: message}})
}

func mustJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		// Unreachable for these fixed shapes; keep the protocol alive anyway.
		return []byte(`{"ok":false,"person":null,"error":"ENCODING_ERROR"}`)
	}
	return b
}
