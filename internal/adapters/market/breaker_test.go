package market

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
)

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	setupTest(t)

	inner := NewMockClient().SetError(errors.New("provider down"))
	client := NewBreakerClient(inner, 3, time.Minute)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := client.GetCurrentPrice(ctx, "AAPL"); err == nil {
			t.Fatalf("call %d: expected provider error", i)
		}
	}

	if client.State() != gobreaker.StateOpen {
		t.Fatalf("breaker state = %s, want open", client.State())
	}

	// Open breaker fails fast without touching the provider.
	before := inner.Calls()
	_, err := client.GetCurrentPrice(ctx, "AAPL")
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("error = %v, want ErrOpenState", err)
	}
	if inner.Calls() != before {
		t.Error("open breaker must not call the provider")
	}
}

func TestBreakerPassesThroughOnSuccess(t *testing.T) {
	setupTest(t)

	inner := NewMockClient().SetPrice("AAPL", 187.25)
	client := NewBreakerClient(inner, 3, time.Minute)

	price, err := client.GetCurrentPrice(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("GetCurrentPrice() error = %v", err)
	}
	if price.String() != "187.25" {
		t.Errorf("price = %s, want 187.25", price)
	}
	if client.State() != gobreaker.StateClosed {
		t.Errorf("breaker state = %s, want closed", client.State())
	}
}

func TestBreakerRecoversAfterCooldown(t *testing.T) {
	setupTest(t)

	inner := NewMockClient().SetError(errors.New("provider down"))
	client := NewBreakerClient(inner, 2, 30*time.Millisecond)

	ctx := context.Background()
	client.GetCurrentPrice(ctx, "AAPL")
	client.GetCurrentPrice(ctx, "AAPL")

	if client.State() != gobreaker.StateOpen {
		t.Fatalf("breaker state = %s, want open", client.State())
	}

	inner.SetError(nil).SetPrice("AAPL", 190)
	time.Sleep(50 * time.Millisecond)

	price, err := client.GetCurrentPrice(ctx, "AAPL")
	if err != nil {
		t.Fatalf("GetCurrentPrice() after cooldown error = %v", err)
	}
	if price.String() != "190" {
		t.Errorf("price = %s, want 190", price)
	}
}
