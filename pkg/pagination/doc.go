// Package pagination provides batched parallel fetching of listing pages.
//
// The listing site serves one page of records per request. This package runs
// the fetch, extract and normalize pipeline over a page range either
// sequentially or in fixed-size concurrent batches with a pause in between.
//
// Example usage:
//
//	c, _ := client.New(client.DefaultConfig())
//	fetcher := pagination.NewBatchFetcher(c, nil, pagination.DefaultConfig())
//	result, err := fetcher.FetchBatched(ctx, 10)
//	rows := ranking.Reduce(result.Rows)
//
// The batch fetcher:
//   - Partitions pages 1..N into consecutive batches of BatchSize
//   - Starts one goroutine per page of a batch and joins them all
//   - Merges successful pages in page order on the calling goroutine
//   - Drops failed pages (no retry) and records them in Result.Failures
//   - Pauses between batches, never after the last one
//
// Sequential mode stops at the first failing page and returns its error.
package pagination
