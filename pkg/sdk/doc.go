// Package resmatch embeds the resource matching engine in a Go process.
//
// The client talks to Valkey directly and runs the same pipeline the HTTP
// service runs: retrieval, eligibility, ranking, explanation, feedback
// capture and periodic learning.
//
//	client, _ := resmatch.New(ctx,
//	    resmatch.WithValkey("localhost:6379", ""),
//	    resmatch.WithVectorDimensions(384),
//	)
//	defer client.Close()
//
//	_, _ = client.PutResource(ctx, "food-bank-12", attrs, vec)
//	set, _ := client.Recommend(ctx, resmatch.Request{
//	    QueryID:   "q-1",
//	    Embedding: queryVec,
//	    Intent:    resmatch.Intent{PrimaryNeed: "food"},
//	})
//	_, _ = client.SubmitFeedback(ctx, resmatch.Feedback{
//	    QueryID:    set.QueryID,
//	    ResourceID: set.Recommendations[0].ResourceID,
//	    Helpful:    true,
//	    Timestamp:  time.Now(),
//	})
//	_, _ = client.RunLearning(ctx)
package resmatch
