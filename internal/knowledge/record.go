package knowledge

// Origin identifies which tier of the knowledge base a record belongs to.
// It is set by the writer when the record enters the store and is never
// inferred from the display provenance string.
type Origin string

const (
	OriginCurated     Origin = "curated"
	OriginContributed Origin = "user-contributed"
)

type ClinicalSafety struct {
	Toxicity         string   `json:"toxicity"`
	DrugInteractions []string `json:"drugInteractions"`
	Warnings         []string `json:"warnings"`
}

// PlantRecord is a single knowledge fact about a medicinal plant.
// Records are immutable once stored; corrections are new records.
type PlantRecord struct {
	ScientificName   string         `json:"scientificName"`
	LocalName        string         `json:"localName"`
	Properties       []string       `json:"properties"`
	MolecularProfile []string       `json:"molecularProfile"`
	ClinicalSafety   ClinicalSafety `json:"clinicalSafety"`
	// Provenance is a free-text citation shown to the user.
	Provenance string `json:"provenance"`
	Origin     Origin `json:"origin"`
}
