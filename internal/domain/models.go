package domain

import "time"

// Upload is the inbound payload for an ingestion: the uploaded bytes plus the
// filename the client declared.
type Upload struct {
	Filename string
	Data     []byte
}

// Ingredient is one line of a recipe's ingredient list. Quantities are kept
// as free-form strings ("2", "500", "a pinch") exactly as the structuring
// service returns them.
type Ingredient struct {
	Amount string `json:"amount"`
	Unit   string `json:"unit"`
	Name   string `json:"name"`
}

// StructuredRecipe is the canonical schema produced by the structuring stage.
// After validation all four fields are present: a missing title is defaulted
// and missing sequences become empty, never nil.
type StructuredRecipe struct {
	Title       string       `json:"title"`
	Ingredients []Ingredient `json:"ingredients"`
	Steps       []string     `json:"steps"`
	Equipment   []string     `json:"equipment"`
}

// RecipeRecord is the persisted entity: a structured recipe plus audit
// metadata. It is created exactly once per successful ingestion and never
// updated; ID and CreatedAt are assigned by the store on insert.
type RecipeRecord struct {
	ID int64 `json:"id"`
	StructuredRecipe
	OriginalFilename string    `json:"original_filename"`
	RawOCRText       string    `json:"raw_ocr_text"`
	CreatedAt        time.Time `json:"created_at"`
}

// RecipeSummary is a lightweight view of a record for listings.
type RecipeSummary struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}
