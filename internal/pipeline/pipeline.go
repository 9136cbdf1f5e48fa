// Package pipeline runs the producer and consumer side by side and joins
// them.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Stage is one long-lived side of the pipeline.
type Stage interface {
	Run(ctx context.Context) error
}

// Run starts producer and consumer on their own goroutines and waits for
// both. The producer closes the queue on exit, so the consumer returns once
// it has drained everything already enqueued. The returned error joins both
// stage errors.
func Run(ctx context.Context, producer, consumer Stage, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("pipeline")

	var (
		wg                   sync.WaitGroup
		producerErr, consErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		producerErr = producer.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		consErr = consumer.Run(ctx)
	}()
	wg.Wait()

	if producerErr != nil {
		producerErr = fmt.Errorf("producer: %w", producerErr)
	}
	if consErr != nil {
		consErr = fmt.Errorf("consumer: %w", consErr)
	}
	err := errors.Join(producerErr, consErr)
	if err != nil {
		logger.Warn("pipeline finished with errors", zap.Error(err))
		return err
	}
	logger.Info("pipeline finished")
	return nil
}
