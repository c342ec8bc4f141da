package models

// UpsertResult reports the id of the row holding a uniqueness key and
// whether this call created it.
type UpsertResult struct {
	ID      int64 `json:"id"`
	Created bool  `json:"created"`
}
