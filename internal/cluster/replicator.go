package cluster

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/errgroup"

	"github.com/courierchat/courier/infra/metrics"
	"github.com/courierchat/courier/internal/bus"
	"github.com/courierchat/courier/internal/domain/model"
	"github.com/courierchat/courier/pkg/wire"
)

// dedupWindow bounds the replay-suppression cache on replicas. Two leaders
// in a partition can assign overlapping message ids, so dedup is keyed by
// the natural message key instead.
const dedupWindow = 4096

// Job is one fan-out unit: the leader re-issues the same logical operation,
// already re-tagged with the leader source, to every peer.
type Job struct {
	Op      string          `json:"op"`
	Payload json.RawMessage `json:"payload"`
}

// Replicator fans client-acknowledged writes out to the peer table.
// Fan-out is best-effort and fire-and-forget: the write is durable on the
// leader before the job is published, per-peer calls are bounded by the
// heartbeat interval, and failures are swallowed — the failure sweep reaps
// peers that stay unreachable.
type Replicator struct {
	membership *Membership
	dispatcher bus.Dispatcher
	logger     *slog.Logger
	metrics    *metrics.Metrics
	timeout    time.Duration

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker

	seen *lru.Cache[string, struct{}]
}

func NewReplicator(m *Membership, d bus.Dispatcher, logger *slog.Logger, mt *metrics.Metrics, perPeerTimeout time.Duration) (*Replicator, error) {
	seen, err := lru.New[string, struct{}](dedupWindow)
	if err != nil {
		return nil, err
	}
	return &Replicator{
		membership: m,
		dispatcher: d,
		logger:     logger,
		metrics:    mt,
		timeout:    perPeerTimeout,
		breakers:   make(map[string]*gobreaker.CircuitBreaker),
		seen:       seen,
	}, nil
}

// FanOut publishes a replication job for the given operation. req must
// already carry the leader source tag. Publish failures are logged and
// swallowed; the client's write was acknowledged from the leader's state.
func (r *Replicator) FanOut(ctx context.Context, op string, req any) {
	payload, err := json.Marshal(req)
	if err != nil {
		r.logger.Error("fan-out request marshal failed", "op", op, "err", err)
		return
	}
	if err := r.dispatcher.Publish(ctx, bus.TopicReplicate, Job{Op: op, Payload: payload}); err != nil {
		r.logger.Error("fan-out publish failed", "op", op, "err", err)
	}
}

// Seen records the message's natural key and reports whether it was already
// applied here. Used on the replica apply path to stay idempotent under
// duplicate leader re-issues.
func (r *Replicator) Seen(m model.Message) bool {
	ok, _ := r.seen.ContainsOrAdd(m.Key(), struct{}{})
	return ok
}

// RegisterHandlers attaches the fan-out consumer to the bus router.
func (r *Replicator) RegisterHandlers(router *message.Router, sub message.Subscriber) {
	router.AddConsumerHandler("replicate_fanout", bus.TopicReplicate, sub, r.handleReplicate)
}

func (r *Replicator) handleReplicate(msg *message.Message) error {
	var job Job
	if err := json.Unmarshal(msg.Payload, &job); err != nil {
		r.logger.Error("replicate job decode failed", "msg_id", msg.UUID, "err", err)
		return nil // terminal: a poison job must not wedge the pipeline
	}

	peers := r.membership.Peers()
	if len(peers) == 0 {
		return nil
	}

	g, ctx := errgroup.WithContext(msg.Context())
	for _, peer := range peers {
		g.Go(func() error {
			if err := r.applyToPeer(ctx, peer.ID, job); err != nil {
				if r.metrics != nil {
					r.metrics.ReplicationFailures.Inc()
				}
				r.logger.Warn("fan-out to peer failed", "peer_id", peer.ID, "op", job.Op, "err", err)
			}
			return nil
		})
	}
	g.Wait()
	return nil
}

func (r *Replicator) applyToPeer(ctx context.Context, peerID string, job Job) error {
	cb := r.breaker(peerID)
	_, err := cb.Execute(func() (any, error) {
		callCtx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()

		conn, err := r.membership.PeerHandle(callCtx, peerID)
		if err != nil {
			return nil, err
		}

		// Streaming writes are applied by draining the replica's stream;
		// the frames themselves are irrelevant on this side.
		if job.Op == wire.OpGetPendingMessage {
			st, err := conn.Stream(callCtx, job.Op, job.Payload)
			if err != nil {
				return nil, err
			}
			defer st.Close()
			for {
				var item wire.PendingMessageResponse
				if err := st.Recv(&item); err != nil {
					if errors.Is(err, io.EOF) {
						return nil, nil
					}
					return nil, err
				}
			}
		}

		return nil, conn.Call(callCtx, job.Op, job.Payload, nil)
	})
	return err
}

func (r *Replicator) breaker(peerID string) *gobreaker.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cb, ok := r.breakers[peerID]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "fanout-" + peerID,
		MaxRequests: 1,
		Timeout:     5 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			r.logger.Info("fan-out breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	r.breakers[peerID] = cb
	return cb
}
