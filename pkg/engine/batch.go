package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/openfroyo/nodeflow/pkg/graph"
)

// DefaultMaxParallel is the worker count of a batch when none is given.
const DefaultMaxParallel = 4

// BatchOptions configures EvaluateBatch.
type BatchOptions struct {
	// MaxParallel is the maximum number of documents evaluated at once.
	MaxParallel int

	// FailFast stops handing out documents after the first failure.
	FailFast bool

	// Engine is applied to every engine the batch creates.
	Engine Options
}

// BatchResult is the outcome for one document of a batch.
type BatchResult struct {
	Document    string       `json:"document"`
	Report      *Report      `json:"report,omitempty"`
	Diagnostics []Diagnostic `json:"diagnostics,omitempty"`
	Error       string       `json:"error,omitempty"`
	Err         error        `json:"-"`
}

// EvaluateBatch evaluates documents in parallel, each on its own engine over reg. Results are
// returned in input order. The error joins every per-document failure; documents skipped
// after a FailFast stop carry context.Canceled.
func EvaluateBatch(ctx context.Context, docs []graph.Document, reg *Registry, opts BatchOptions) ([]BatchResult, error) {
	results := make([]BatchResult, len(docs))
	if len(docs) == 0 {
		return results, nil
	}

	workerCount := opts.MaxParallel
	if workerCount <= 0 {
		workerCount = DefaultMaxParallel
	}
	if len(docs) < workerCount {
		workerCount = len(docs)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	workQueue := make(chan int, len(docs))
	for i := range docs {
		workQueue <- i
	}
	close(workQueue)

	var wg sync.WaitGroup
	for w := 0; w < workerCount; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range workQueue {
				results[i] = evaluateOne(ctx, docs[i], reg, opts.Engine)
				if results[i].Err == nil {
					continue
				}
				results[i].Error = results[i].Err.Error()
				if opts.FailFast {
					cancel()
				}
			}
		}()
	}
	wg.Wait()

	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.Document, r.Err))
		}
	}
	return results, errors.Join(errs...)
}

func evaluateOne(ctx context.Context, doc graph.Document, reg *Registry, opts Options) BatchResult {
	result := BatchResult{Document: doc.Name}
	if err := ctx.Err(); err != nil {
		result.Err = err
		return result
	}

	g, err := graph.FromDocument(doc)
	if err != nil {
		result.Err = NewInvalidError(fmt.Sprintf("document %q does not load", doc.Name), err)
		return result
	}
	e := New(g, reg, opts)
	result.Report, result.Err = e.Evaluate(ctx)
	if result.Err == nil {
		result.Diagnostics = e.Diagnostics(ctx)
	}
	return result
}
