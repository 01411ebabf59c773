package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"go.uber.org/zap"

	appErrors "github.com/noah-isme/college-portal-api/pkg/errors"
)

const (
	registrationNumberMin = 100000
	registrationNumberMax = 999999
	maxRollNumber         = 99

	defaultAllocationAttempts = 20
)

// IdentifierStore exposes the lookups identifier allocation depends on.
type IdentifierStore interface {
	ExistsByRegistrationNumber(ctx context.Context, number string) (bool, error)
	MaxRollNumber(ctx context.Context, className string) (int, error)
}

// IdentifierAllocator hands out registration (GR) numbers and per-class roll numbers for new students.
type IdentifierAllocator struct {
	store       IdentifierStore
	maxAttempts int
	metrics     *MetricsService
	logger      *zap.Logger
	randInt     func(n int64) (int64, error)
}

// NewIdentifierAllocator constructs an allocator. maxAttempts <= 0 falls back to 20.
func NewIdentifierAllocator(store IdentifierStore, maxAttempts int, metrics *MetricsService, logger *zap.Logger) *IdentifierAllocator {
	if maxAttempts <= 0 {
		maxAttempts = defaultAllocationAttempts
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IdentifierAllocator{
		store:       store,
		maxAttempts: maxAttempts,
		metrics:     metrics,
		logger:      logger,
		randInt:     cryptoRandInt,
	}
}

// MaxAttempts reports the bound shared by the draw loop and the enrollment insert loop.
func (a *IdentifierAllocator) MaxAttempts() int {
	return a.maxAttempts
}

// AllocateRegistrationNumber draws uniformly from [100000, 999999] until an unused value is found.
func (a *IdentifierAllocator) AllocateRegistrationNumber(ctx context.Context) (string, error) {
	span := int64(registrationNumberMax - registrationNumberMin + 1)
	for attempt := 0; attempt < a.maxAttempts; attempt++ {
		if attempt > 0 {
			a.metrics.RecordAllocationRetry(IdentifierKindRegistration)
		}
		n, err := a.randInt(span)
		if err != nil {
			return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to draw registration number")
		}
		candidate := strconv.FormatInt(registrationNumberMin+n, 10)

		taken, err := a.store.ExistsByRegistrationNumber(ctx, candidate)
		if err != nil {
			return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check registration number")
		}
		if !taken {
			return candidate, nil
		}
	}
	a.logger.Warn("registration number space exhausted", zap.Int("attempts", a.maxAttempts))
	return "", appErrors.Clone(appErrors.ErrIdentifierExhausted, "")
}

// AllocateRollNumber returns the next two-digit roll number for className, starting at "01".
func (a *IdentifierAllocator) AllocateRollNumber(ctx context.Context, className string) (string, error) {
	if strings.TrimSpace(className) == "" {
		return "", appErrors.Clone(appErrors.ErrClassNotFound, "")
	}

	highest, err := a.store.MaxRollNumber(ctx, className)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read roll numbers")
	}

	next := highest + 1
	if next > maxRollNumber {
		return "", appErrors.Clone(appErrors.ErrClassRollFull, fmt.Sprintf("class %s has no roll numbers left", className))
	}
	return fmt.Sprintf("%02d", next), nil
}

func cryptoRandInt(n int64) (int64, error) {
	v, err := rand.Int(rand.Reader, big.NewInt(n))
	if err != nil {
		return 0, err
	}
	return v.Int64(), nil
}
