package core

// CategoryCount is the number of stored transactions for one category.
type CategoryCount struct {
	Category Category
	Count    int64
	Total    int64
}

// IngestSummary is the user-visible outcome of one ingestion run.
type IngestSummary struct {
	BatchID    string
	Source     string
	Parsed     int
	Inserted   int
	Skipped    int
	Failed     int
	ByCategory []CategoryCount
}
