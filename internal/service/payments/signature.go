package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// The provider signs each delivery with a Slotbook-Signature header of the
// form "t=<unix>,v1=<hex>", where v1 is HMAC-SHA256 over "<unix>.<body>" with
// the shared webhook secret. The timestamp bounds replay of captured
// deliveries.

var ErrInvalidSignature = errors.New("invalid webhook signature")

func verifySignature(secret string, header string, payload []byte, now time.Time, tolerance time.Duration) error {
	ts, sig, err := parseSignatureHeader(header)
	if err != nil {
		return err
	}

	if tolerance > 0 {
		issued := time.Unix(ts, 0)
		if issued.Before(now.Add(-tolerance)) || issued.After(now.Add(tolerance)) {
			return fmt.Errorf("%w: timestamp outside tolerance", ErrInvalidSignature)
		}
	}

	expected := computeSignature(secret, ts, payload)
	if !hmac.Equal([]byte(sig), []byte(expected)) {
		return ErrInvalidSignature
	}
	return nil
}

func parseSignatureHeader(header string) (ts int64, sig string, err error) {
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			ts, err = strconv.ParseInt(v, 10, 64)
			if err != nil {
				return 0, "", fmt.Errorf("%w: bad timestamp", ErrInvalidSignature)
			}
		case "v1":
			sig = v
		}
	}
	if ts == 0 || sig == "" {
		return 0, "", fmt.Errorf("%w: missing timestamp or signature", ErrInvalidSignature)
	}
	return ts, sig, nil
}

func computeSignature(secret string, ts int64, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(ts, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// SignPayload produces a header the verifier accepts. It exists for tests and
// local tooling that replays provider events.
func SignPayload(secret string, payload []byte, at time.Time) string {
	ts := at.Unix()
	return fmt.Sprintf("t=%d,v1=%s", ts, computeSignature(secret, ts, payload))
}
