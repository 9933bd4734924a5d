package sundaythoughts

import (
	"sync"
	"testing"
	"time"
)

func TestLoginLimiterAllow(t *testing.T) {
	tests := []struct {
		name string
		max  int
		ips  []string
		want []bool
	}{
		{"under budget", 3, []string{"a", "a", "a"}, []bool{true, true, true}},
		{"over budget", 2, []string{"a", "a", "a", "a"}, []bool{true, true, false, false}},
		{"separate addresses", 1, []string{"a", "b", "a", "b"}, []bool{true, true, false, false}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewLoginLimiter(tt.max, time.Minute)
			defer l.Stop()
			for i, ip := range tt.ips {
				if got := l.Allow(ip); got != tt.want[i] {
					t.Fatalf("attempt %d from %s: Allow = %v, want %v", i, ip, got, tt.want[i])
				}
			}
		})
	}
}

func TestLoginLimiterWindowSlides(t *testing.T) {
	l := NewLoginLimiter(1, 100*time.Millisecond)
	defer l.Stop()

	if !l.Allow("198.51.100.7") || l.Allow("198.51.100.7") {
		t.Fatal("second attempt inside the window should be refused")
	}
	time.Sleep(150 * time.Millisecond)
	if !l.Allow("198.51.100.7") {
		t.Fatal("attempt after the window should be allowed")
	}
}

// Reader logins only spend the budget on addresses that are not allowed.
func TestLoginLimiterRecordsFailuresOnly(t *testing.T) {
	l := NewLoginLimiter(2, time.Minute)
	defer l.Stop()
	ip := "198.51.100.8"

	for i := 0; i < 10; i++ {
		if !l.Check(ip) {
			t.Fatalf("check %d refused without any failures", i)
		}
	}
	l.Record(ip)
	if !l.Check(ip) {
		t.Fatal("one failure should leave budget")
	}
	l.Record(ip)
	if l.Check(ip) {
		t.Fatal("two failures should exhaust the budget")
	}
}

func TestLoginLimiterConcurrent(t *testing.T) {
	l := NewLoginLimiter(20, time.Minute)
	defer l.Stop()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Allow("198.51.100.9") {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if allowed != 20 {
		t.Fatalf("allowed %d concurrent attempts, want 20", allowed)
	}
}
