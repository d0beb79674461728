package resource

// Neighbor is an id returned by approximate search with its similarity.
type Neighbor struct {
	ID         string
	Similarity float64
}

// Candidate is a retrieved resource and its cosine similarity to the query.
type Candidate struct {
	Resource   *Resource
	Similarity float64
}
