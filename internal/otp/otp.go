package otp

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/madhavpai09/velo/internal/models"
	"github.com/madhavpai09/velo/internal/observability"
	"github.com/madhavpai09/velo/internal/storage"
)

// CodeLength is the number of digits in a pickup verification code.
const CodeLength = 4

var codeSpace = big.NewInt(10000)

// Generate returns a fresh 4-digit numeric code. Codes come from a CSPRNG so
// they are not guessable from earlier rides; they are never reused across
// rides because each ride gets its own call.
func Generate() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpace)
	if err != nil {
		return "", fmt.Errorf("otp: %w", err)
	}
	return fmt.Sprintf("%0*d", CodeLength, n.Int64()), nil
}

// Verifier checks a submitted code against the one stored on the ride and, on
// an exact match while the ride is accepted, advances it to in_progress. The
// check-and-advance is a single guarded update in the store, so a repeated or
// concurrent verify cannot double-fire.
//
// There is deliberately no lockout on failed attempts; callers may rate-limit
// upstream.
type Verifier struct {
	rides storage.RideStore
	log   *slog.Logger
}

func NewVerifier(rides storage.RideStore, log *slog.Logger) *Verifier {
	return &Verifier{rides: rides, log: log}
}

func (v *Verifier) Verify(ctx context.Context, rideID, code string) (*models.Ride, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		observability.OTPRejected.Inc()
		return nil, fmt.Errorf("empty code: %w", models.ErrInvalidOTP)
	}
	ride, err := v.rides.VerifyOTP(ctx, rideID, code)
	if err != nil {
		observability.OTPRejected.Inc()
		v.log.Info("otp rejected", "ride_id", rideID)
		return nil, err
	}
	observability.OTPVerified.Inc()
	v.log.Info("otp verified", "ride_id", rideID, "driver_id", ride.DriverID)
	return ride, nil
}
