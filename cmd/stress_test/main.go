package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/rl1809/cart-checkout/internal/adapter/handler"
	"github.com/rl1809/cart-checkout/internal/core/domain"
)

type options struct {
	baseURL       string
	sessions      int
	totalRequests int
	variants      int
	timeout       time.Duration
}

func main() {
	var opts options

	cmd := &cobra.Command{
		Use:   "stress_test",
		Short: "Fire concurrent add-to-cart requests and verify no increment is lost",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts)
		},
		SilenceUsage: true,
	}
	cmd.Flags().StringVar(&opts.baseURL, "url", "http://localhost:8080", "cart service base URL")
	cmd.Flags().IntVar(&opts.sessions, "sessions", 5, "number of concurrent sessions")
	cmd.Flags().IntVar(&opts.totalRequests, "requests", 50, "add-to-cart requests per session")
	cmd.Flags().IntVar(&opts.variants, "variants", 3, "distinct variants per session")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 5*time.Second, "per request timeout")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options) error {
	client := &http.Client{Timeout: opts.timeout}

	sessions := make([]string, opts.sessions)
	for i := range sessions {
		sessions[i] = "stress-" + uuid.NewString()
	}

	// Counters
	var successCount atomic.Int32
	var conflictCount atomic.Int32
	var failCount atomic.Int32

	// Spawn concurrent requests
	var wg sync.WaitGroup
	start := time.Now()

	for _, session := range sessions {
		for i := 0; i < opts.totalRequests; i++ {
			wg.Add(1)
			go func(session string, n int) {
				defer wg.Done()

				variantID := int64(n%opts.variants) + 1
				status, err := post(ctx, client, opts.baseURL+"/api/cart/add", session, handler.ItemRequest{
					Item: domain.LineItem{
						ID:      variantID * 100,
						Name:    fmt.Sprintf("Stress item %d", variantID),
						Price:   decimal.NewFromFloat(9.99),
						Variant: domain.Variant{VariantID: variantID, Quantity: 1},
					},
				})
				switch {
				case err != nil:
					failCount.Add(1)
				case status == http.StatusOK:
					successCount.Add(1)
				case status == http.StatusConflict:
					conflictCount.Add(1)
				default:
					failCount.Add(1)
				}
			}(session, i)
		}
	}

	wg.Wait()
	elapsed := time.Since(start)

	// Results
	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Sessions:         %d\n", opts.sessions)
	fmt.Printf("Total Requests:   %d\n", opts.sessions*opts.totalRequests)
	fmt.Printf("Successful:       %d\n", successCount.Load())
	fmt.Printf("Conflicts:        %d\n", conflictCount.Load())
	fmt.Printf("Failed:           %d\n", failCount.Load())
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	// Every accepted add must be reflected in the badge count
	failed := false
	perSession := make(map[string]int)
	for _, session := range sessions {
		view, err := getCart(ctx, client, opts.baseURL, session)
		if err != nil {
			return err
		}
		perSession[session] = view.ItemCount
	}

	total := 0
	for _, count := range perSession {
		total += count
	}
	if int32(total) == successCount.Load() {
		fmt.Printf("PASS: %d accepted adds, %d items across all carts\n", successCount.Load(), total)
	} else {
		fmt.Printf("FAIL: %d accepted adds but carts hold %d items\n", successCount.Load(), total)
		failed = true
	}

	if failed {
		return fmt.Errorf("stress test failed")
	}
	return nil
}

func post(ctx context.Context, client *http.Client, url, session string, body any) (int, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(handler.SessionHeader, session)

	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}

func getCart(ctx context.Context, client *http.Client, baseURL, session string) (handler.CartView, error) {
	var view handler.CartView
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/api/cart", nil)
	if err != nil {
		return view, err
	}
	req.Header.Set(handler.SessionHeader, session)

	resp, err := client.Do(req)
	if err != nil {
		return view, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return view, fmt.Errorf("get cart %s: status %d", session, resp.StatusCode)
	}
	return view, json.NewDecoder(resp.Body).Decode(&view)
}
