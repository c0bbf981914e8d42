package listener

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/fekuna/omnipos-inventory-sync/internal/inventory"
	"github.com/fekuna/omnipos-inventory-sync/internal/model"
	"github.com/fekuna/omnipos-inventory-sync/internal/telemetry"
	"github.com/fekuna/omnipos-inventory-sync/pkg/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ResyncFunc performs a full re-fetch after pushes may have been missed.
type ResyncFunc func(ctx context.Context) error

type Config struct {
	// IdleTimeout bounds the wait for the next message; 0 waits forever.
	IdleTimeout time.Duration
	// ReconnectInterval is the minimum spacing between connection attempts.
	ReconnectInterval time.Duration
}

// InventoryListener keeps one push connection open and forwards every
// decoded product to the reconciler as a remote delta.
type InventoryListener struct {
	source  inventory.Source
	rec     inventory.Reconciler
	decoder *Decoder
	resync  ResyncFunc
	limiter *rate.Limiter
	idle    time.Duration
	metrics *telemetry.Metrics
	logger  logger.ZapLogger
}

func NewInventoryListener(source inventory.Source, rec inventory.Reconciler, decoder *Decoder, resync ResyncFunc, cfg Config, metrics *telemetry.Metrics, log logger.ZapLogger) *InventoryListener {
	every := rate.Inf
	if cfg.ReconnectInterval > 0 {
		every = rate.Every(cfg.ReconnectInterval)
	}
	return &InventoryListener{
		source:  source,
		rec:     rec,
		decoder: decoder,
		resync:  resync,
		limiter: rate.NewLimiter(every, 1),
		idle:    cfg.IdleTimeout,
		metrics: metrics,
		logger:  log.With(zap.String("transport", source.Name())),
	}
}

// Start blocks until ctx is cancelled. Cancelling ctx closes the connection
// and no delta is submitted afterwards.
func (l *InventoryListener) Start(ctx context.Context) {
	l.logger.Info("Starting inventory stream listener")
	// gap is set whenever pushes may have been missed since the last full
	// fetch. The caller fetched right before Start.
	gap := false
	for {
		if err := l.limiter.Wait(ctx); err != nil {
			l.logger.Info("Stopping inventory stream listener")
			return
		}

		stream, err := l.source.Open(ctx)
		if err != nil {
			if ctx.Err() != nil {
				l.logger.Info("Stopping inventory stream listener")
				return
			}
			l.logger.Error("Failed to open inventory stream", zap.Error(err))
			gap = true
			continue
		}

		session := uuid.New().String()
		log := l.logger.With(zap.String("session_id", session))
		if gap {
			l.metrics.Reconnect(ctx, l.source.Name())
			log.Info("Inventory stream reconnected, resyncing")
			if l.resync != nil {
				if err := l.resync(ctx); err != nil && ctx.Err() == nil {
					log.Error("Resync after reconnect failed", zap.Error(err))
				}
			}
			gap = false
		} else {
			log.Info("Inventory stream connected")
		}

		err = l.consume(ctx, stream, log)
		_ = stream.Close()

		if ctx.Err() != nil {
			l.logger.Info("Stopping inventory stream listener")
			return
		}
		log.Warn("Inventory stream disconnected", zap.Error(err))
		gap = true
	}
}

func (l *InventoryListener) consume(ctx context.Context, stream inventory.Stream, log logger.ZapLogger) error {
	for {
		msg, err := l.next(ctx, stream)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return errors.New("stream closed by server")
			}
			return err
		}
		l.processMessage(ctx, msg, log)
	}
}

func (l *InventoryListener) next(ctx context.Context, stream inventory.Stream) ([]byte, error) {
	if l.idle <= 0 {
		return stream.Next(ctx)
	}
	nctx, cancel := context.WithTimeout(ctx, l.idle)
	defer cancel()
	msg, err := stream.Next(nctx)
	if err != nil && ctx.Err() == nil && errors.Is(nctx.Err(), context.DeadlineExceeded) {
		return nil, errors.New("stream idle timeout")
	}
	return msg, err
}

func (l *InventoryListener) processMessage(ctx context.Context, value []byte, log logger.ZapLogger) {
	payload, err := l.decoder.Decode(value)
	if err != nil {
		derr := &inventory.StreamDecodeError{Source: l.source.Name(), Err: err}
		l.metrics.DecodeError(ctx, l.source.Name())
		log.Warn("Dropping malformed inventory message", zap.Error(derr), zap.Int("bytes", len(value)))
		return
	}

	if err := l.rec.SubmitRemote(ctx, payload.ToDelta(model.SourceStream)); err != nil {
		if ctx.Err() != nil {
			return
		}
		log.Error("Failed to submit remote delta", zap.String("product_id", payload.ID), zap.Error(err))
	}
}
