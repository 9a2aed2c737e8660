package domain

// Urgency é o nível de urgência inferido do texto.
type Urgency string

const (
	UrgencyHigh   Urgency = "alta"
	UrgencyMedium Urgency = "media"
	UrgencyLow    Urgency = "baixa"
)

// EntitySet guarda os dados do lead acumulados entre as mensagens.
// Todos os campos são opcionais; string vazia / zero significa ausente.
type EntitySet struct {
	Name     string  `json:"name,omitempty"`
	Email    string  `json:"email,omitempty"`
	Phone    string  `json:"phone,omitempty"`
	Company  string  `json:"company,omitempty"`
	Budget   float64 `json:"budget,omitempty"`
	Urgency  Urgency `json:"urgency,omitempty"`
	Interest Topic   `json:"interest,omitempty"`
}

// Merge aplica other sobre e campo a campo. Um campo ausente em other
// nunca apaga um valor existente.
func (e EntitySet) Merge(other EntitySet) EntitySet {
	if other.Name != "" {
		e.Name = other.Name
	}
	if other.Email != "" {
		e.Email = other.Email
	}
	if other.Phone != "" {
		e.Phone = other.Phone
	}
	if other.Company != "" {
		e.Company = other.Company
	}
	if other.Budget > 0 {
		e.Budget = other.Budget
	}
	if other.Urgency != "" {
		e.Urgency = other.Urgency
	}
	if other.Interest != TopicNone {
		e.Interest = other.Interest
	}
	return e
}

// EffectiveUrgency devolve a urgência conhecida ou "media" quando o
// cliente nunca indicou prazo.
func (e EntitySet) EffectiveUrgency() Urgency {
	if e.Urgency == "" {
		return UrgencyMedium
	}
	return e.Urgency
}

// Count devolve quantos campos identificadores foram extraídos.
// Urgência não conta.
func (e EntitySet) Count() int {
	n := 0
	for _, v := range []string{e.Name, e.Email, e.Phone, e.Company} {
		if v != "" {
			n++
		}
	}
	if e.Budget > 0 {
		n++
	}
	return n
}

// HasContact é true quando há e-mail ou telefone.
func (e EntitySet) HasContact() bool {
	return e.Email != "" || e.Phone != ""
}
