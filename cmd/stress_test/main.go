package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/rl1809/stock-transfer/internal/adapter/backend"
	"github.com/rl1809/stock-transfer/internal/adapter/storage"
	"github.com/rl1809/stock-transfer/internal/core/service"
)

const (
	totalRequests = 50
	backendDelay  = 200 * time.Millisecond
)

// fakeClinicBackend serves the reference endpoints and counts transfer POSTs.
func fakeClinicBackend(posts *atomic.Int32) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/accounts/clinics/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"id":1,"name":"Main Warehouse","is_main_inventory":true},{"id":3,"name":"City Hearing Clinic"}]`)
	})
	mux.HandleFunc("/api/clinical/inventory/flat-list/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":[{"id":7,"stock_type":"Bulk","stock":50,"product_name":"Domes"}]}`)
	})
	mux.HandleFunc("/api/clinical/inventory/serial/list/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[]`)
	})
	mux.HandleFunc("/api/clinical/inventory/transfer/", func(w http.ResponseWriter, r *http.Request) {
		posts.Add(1)
		time.Sleep(backendDelay)
		fmt.Fprint(w, `{"message":"Transfer created","transferred_count":1}`)
	})
	return httptest.NewServer(mux)
}

func main() {
	ctx := context.Background()
	logger := zap.NewNop()

	var posts atomic.Int32
	srv := fakeClinicBackend(&posts)
	defer srv.Close()

	// Initialize Redis
	mr, err := miniredis.Run()
	if err != nil {
		panic(err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	// Initialize adapters and services
	client, err := backend.NewHTTPClient(backend.Config{
		BaseURL:       srv.URL + "/api/",
		Timeout:       5 * time.Second,
		ClinicsPath:   "accounts/clinics/",
		InventoryPath: "clinical/inventory/flat-list/",
		SerialsPath:   "clinical/inventory/serial/list/",
		TransferPath:  "clinical/inventory/transfer/",
	}, logger)
	if err != nil {
		panic(err)
	}
	cache := storage.NewRedisAdapter(rdb, time.Hour)

	loader := service.NewReferenceLoader(client, logger, nil)
	if _, err := loader.Load(ctx); err != nil {
		panic(err)
	}
	transfers := service.NewTransferService(client, loader, cache, nil, logger, nil)
	sessions := service.NewSessionService(loader, transfers, client, cache, logger, nil)

	// Compose one cart
	sess := sessions.Open(ctx)
	must(sessions.SetDestination(ctx, sess.ID, "3"))
	must(sessions.SelectItem(ctx, sess.ID, 7))
	must(sessions.SetStagingQuantity(ctx, sess.ID, 4))
	must(sessions.AddLine(ctx, sess.ID))

	// Counters
	var successCount, inFlightCount, otherCount atomic.Int32

	// Spawn concurrent submits
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			_, _, err := sessions.Submit(ctx, sess.ID)
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, service.ErrSubmissionInFlight):
				inFlightCount.Add(1)
			default:
				otherCount.Add(1)
			}
		}()
	}

	wg.Wait()
	elapsed := time.Since(start)

	// Results
	success := successCount.Load()
	inFlight := inFlightCount.Load()
	other := otherCount.Load()

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Total Submits:    %d\n", totalRequests)
	fmt.Printf("Successful:       %d\n", success)
	fmt.Printf("In Flight:        %d\n", inFlight)
	fmt.Printf("Other Failures:   %d\n", other)
	fmt.Printf("Backend POSTs:    %d\n", posts.Load())
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	// Late submits may find the cart already cleared and fail validation; no
	// path may reach the backend twice.
	if success == 1 && posts.Load() == 1 {
		fmt.Println("PASS: Exactly 1 transfer reached the backend")
	} else {
		fmt.Printf("FAIL: Expected 1 success/1 POST, got %d/%d\n", success, posts.Load())
	}

	view, err := sessions.View(ctx, sess.ID)
	if err != nil {
		panic(err)
	}
	if len(view.Lines) == 0 {
		fmt.Println("PASS: Cart cleared after submit")
	} else {
		fmt.Printf("FAIL: Expected empty cart, got %d lines\n", len(view.Lines))
	}
}

func must(_ service.SessionView, err error) {
	if err != nil {
		panic(err)
	}
}
