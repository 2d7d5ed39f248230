package image

import (
	"context"

	"go.uber.org/zap"
)

// fetchFunc produces the images of one backend call.
type fetchFunc func(ctx context.Context, index int) ([][]byte, error)

// gatherImages calls fetch until total images are collected or calls run
// out. Each call is expected to yield one image. With stopOnEmpty an empty
// call ends the loop early. An error after at least one image returns the
// partial set; an error before any image is returned as is.
func gatherImages(ctx context.Context, total int, stopOnEmpty bool, fetch fetchFunc, logger *zap.Logger) ([][]byte, error) {
	images := make([][]byte, 0, total)

	for i := 0; i < total && len(images) < total; i++ {
		if err := ctx.Err(); err != nil {
			if len(images) > 0 {
				break
			}
			return nil, err
		}

		chunk, err := fetch(ctx, i)
		if err != nil {
			if len(images) == 0 {
				return nil, err
			}
			logger.Warn("image request failed, keeping partial result",
				zap.Int("index", i),
				zap.Int("collected", len(images)),
				zap.Error(err))
			break
		}
		if len(chunk) == 0 {
			if stopOnEmpty {
				logger.Debug("empty image response, stopping", zap.Int("index", i))
				break
			}
			continue
		}
		for _, img := range chunk {
			if len(images) == total {
				break
			}
			images = append(images, img)
		}
	}

	if len(images) > 0 && len(images) < total {
		logger.Warn("fewer images than requested",
			zap.Int("requested", total),
			zap.Int("received", len(images)))
	}
	return images, nil
}
