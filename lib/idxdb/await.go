package idxdb

import (
	"context"
	"fmt"

	"github.com/ValentinKolb/idxdb/lib/host"
	"github.com/hashicorp/go-multierror"
)

// --------------------------------------------------------------------------
// Request and transaction bridging
// --------------------------------------------------------------------------

// await blocks until req settles or ctx is done
func await(ctx context.Context, req *host.Request) (any, error) {
	return req.Wait(ctx)
}

// awaitAll waits for every request and returns the results in request order.
// Failures of individual requests are joined; a done context stops waiting.
func awaitAll(ctx context.Context, reqs []*host.Request) ([]any, error) {
	results := make([]any, len(reqs))
	var errs *multierror.Error
	for i, req := range reqs {
		v, err := req.Wait(ctx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			errs = multierror.Append(errs, fmt.Errorf("record %d: %w", i, err))
			continue
		}
		results[i] = v
	}
	return results, errs.ErrorOrNil()
}

// commit commits tx and waits for the outcome. The transaction is aborted if
// ctx is done first.
func commit(ctx context.Context, tx host.Transaction) error {
	if err := tx.Commit(); err != nil {
		return err
	}
	select {
	case <-tx.Done():
		return tx.Err()
	case <-ctx.Done():
		_ = tx.Abort()
		<-tx.Done()
		if err := tx.Err(); err == nil {
			// committed before the abort got through
			return nil
		}
		return ctx.Err()
	}
}

// abort rolls back tx. It is a no-op on a finished transaction.
func abort(tx host.Transaction) {
	if err := tx.Abort(); err == nil {
		<-tx.Done()
	}
}
