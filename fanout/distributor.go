// Package fanout distributes a newly created entity reference into every
// recipient's bounded feed, and pushes serialized activity payloads to
// remote endpoints for the federated case. Distribution is push-model:
// write amplification at creation time in exchange for cheap feed reads.
package fanout

import (
	"context"

	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"

	"github.com/goliatone/go-entity-store/delivery"
)

// FeedWriter is the slice of the feed service the distributor needs.
type FeedWriter interface {
	Prepend(ctx context.Context, recipient string, ref uint32) (bool, error)
}

// Failure records one recipient that could not be delivered to.
type Failure struct {
	Recipient string
	Err       error
}

// Result reports the outcome of one distribution pass. A non-empty Failed
// set does not invalidate the Delivered set: because feed prepends are
// idempotent, the caller may re-run distribution over just the failed
// recipients, or even over the full set, without duplicating deliveries.
type Result struct {
	Delivered []string
	Failed    []Failure
}

// FailedRecipients returns just the recipient keys of the failed set, in
// the shape Distribute accepts for a retry pass.
func (r Result) FailedRecipients() []string {
	if len(r.Failed) == 0 {
		return nil
	}
	out := make([]string, len(r.Failed))
	for i, f := range r.Failed {
		out[i] = f.Recipient
	}
	return out
}

// Complete reports whether every recipient was delivered to.
func (r Result) Complete() bool {
	return len(r.Failed) == 0
}

// Distributor fans entity references out to recipient feeds. Jobs started
// through StartJob are tracked in a concurrent map so callers can observe
// and retry partial deliveries.
type Distributor struct {
	feeds   FeedWriter
	deliver delivery.Deliverer
	log     *zap.Logger
	jobs    *xsync.MapOf[string, *Job]
}

// New builds a Distributor. deliverer may be nil when the deployment has no
// remote recipients; DistributeRemote then fails every URI.
func New(feeds FeedWriter, deliverer delivery.Deliverer, log *zap.Logger) *Distributor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Distributor{
		feeds:   feeds,
		deliver: deliverer,
		log:     log.Named("fanout"),
		jobs:    xsync.NewMapOf[string, *Job](),
	}
}

// Distribute prepends ref into every recipient's feed. Recipient keys are
// deduplicated first. A failing recipient never blocks delivery to the
// rest; failures are collected in the result. The pass is safe to re-run:
// recipients that already hold the reference are silent no-ops.
func (d *Distributor) Distribute(ctx context.Context, ref uint32, recipients []string) Result {
	var result Result
	for _, recipient := range dedupe(recipients) {
		if err := ctx.Err(); err != nil {
			result.Failed = append(result.Failed, Failure{Recipient: recipient, Err: err})
			continue
		}
		if _, err := d.feeds.Prepend(ctx, recipient, ref); err != nil {
			d.log.Warn("feed delivery failed",
				zap.Uint32("ref", ref),
				zap.String("recipient", recipient),
				zap.Error(err))
			result.Failed = append(result.Failed, Failure{Recipient: recipient, Err: err})
			continue
		}
		result.Delivered = append(result.Delivered, recipient)
	}
	return result
}

// DistributeRemote posts payload to every destination URI through the HTTP
// delivery collaborator. Same batch semantics as Distribute: individual
// failures are collected, not fatal.
func (d *Distributor) DistributeRemote(ctx context.Context, payload []byte, uris []string) Result {
	var result Result
	for _, uri := range dedupe(uris) {
		if err := ctx.Err(); err != nil {
			result.Failed = append(result.Failed, Failure{Recipient: uri, Err: err})
			continue
		}
		if d.deliver == nil {
			result.Failed = append(result.Failed, Failure{Recipient: uri, Err: delivery.ErrDeliver.New("no deliverer configured")})
			continue
		}
		if err := d.deliver.Deliver(ctx, uri, payload); err != nil {
			d.log.Warn("remote delivery failed", zap.String("uri", uri), zap.Error(err))
			result.Failed = append(result.Failed, Failure{Recipient: uri, Err: err})
			continue
		}
		result.Delivered = append(result.Delivered, uri)
	}
	return result
}

func dedupe(keys []string) []string {
	seen := make(map[string]bool, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}
