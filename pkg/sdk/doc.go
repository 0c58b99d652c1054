// Package semdex provides a Go client for the semdex document embedding and
// semantic search service.
//
//	client := semdex.New("http://localhost:8080")
//
//	res, _ := client.Ingest(ctx, "doc-1", semdex.IngestRequest{
//	    Content: "full document text ...",
//	    Title:   "Quarterly Report",
//	})
//
//	job, _ := client.JobStatus(ctx, "doc-1")
//
//	hits, _ := client.Search(ctx, semdex.SearchRequest{
//	    Query:     "revenue growth drivers",
//	    Limit:     5,
//	    Threshold: 0.7,
//	})
package semdex
