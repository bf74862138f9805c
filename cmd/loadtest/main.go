package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"maps"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	storefrontv1 "github.com/vladislavdragonenkov/storefront/api/storefront/v1"
)

const (
	idempotencyHeader = "idempotency-key"
	scenarioMethod    = "scenario"
)

type loadMode string

const (
	// modeBrowse: корзина и предпросмотр, без заказа.
	modeBrowse         loadMode = "browse"
	modeCheckout       loadMode = "checkout"
	modeCheckoutCancel loadMode = "checkout-cancel"
)

type config struct {
	addr        string
	total       int
	totalSet    bool
	duration    time.Duration
	concurrency int
	connections int
	timeout     time.Duration
	mode        loadMode
	cancelRate  int
	userTag     string
	storeID     string
	productID   string
	qty         int
	lat         float64
	lng         float64
	serviceCode string
	voucherCode string
	outputPath  string
}

type latencySummary struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

type methodReport struct {
	Calls     int64            `json:"calls"`
	Success   int64            `json:"success"`
	Failed    int64            `json:"failed"`
	ErrorRate float64          `json:"error_rate"`
	Codes     map[string]int64 `json:"codes"`
	LatencyMs latencySummary   `json:"latency_ms"`
}

type report struct {
	StartedAt         time.Time               `json:"started_at"`
	Mode              loadMode                `json:"mode"`
	DurationSeconds   float64                 `json:"duration_seconds"`
	TotalScenarios    int64                   `json:"total_scenarios"`
	SuccessScenarios  int64                   `json:"success_scenarios"`
	FailedScenarios   int64                   `json:"failed_scenarios"`
	BlockedCheckouts  int64                   `json:"blocked_checkouts"`
	ErrorRate         float64                 `json:"error_rate"`
	RPS               float64                 `json:"rps"`
	ScenarioLatencyMs latencySummary          `json:"scenario_latency_ms"`
	Methods           map[string]methodReport `json:"methods"`
}

type methodStats struct {
	calls     int64
	failed    int64
	codes     map[string]int64
	latencies []float64
}

// collector копит задержки и коды ответов по методам.
type collector struct {
	mu      sync.Mutex
	methods map[string]*methodStats
	blocked int64
}

func newCollector() *collector {
	return &collector{methods: make(map[string]*methodStats)}
}

func (c *collector) record(method string, latency time.Duration, code codes.Code) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats, ok := c.methods[method]
	if !ok {
		stats = &methodStats{codes: make(map[string]int64)}
		c.methods[method] = stats
	}
	stats.calls++
	if code != codes.OK {
		stats.failed++
	}
	stats.codes[code.String()]++
	stats.latencies = append(stats.latencies, float64(latency.Microseconds())/1000.0)
}

// recordBlocked отмечает предпросмотр, который не разрешил оформление.
func (c *collector) recordBlocked() {
	c.mu.Lock()
	c.blocked++
	c.mu.Unlock()
}

func (s *methodStats) report() methodReport {
	return methodReport{
		Calls:     s.calls,
		Success:   s.calls - s.failed,
		Failed:    s.failed,
		ErrorRate: ratio(s.failed, s.calls),
		Codes:     maps.Clone(s.codes),
		LatencyMs: buildLatencySummary(s.latencies),
	}
}

func (c *collector) buildReport(mode loadMode, startedAt time.Time, duration time.Duration) report {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := report{
		StartedAt:        startedAt.UTC(),
		Mode:             mode,
		DurationSeconds:  duration.Seconds(),
		BlockedCheckouts: c.blocked,
		Methods:          make(map[string]methodReport, len(c.methods)),
	}
	for name, stats := range c.methods {
		result.Methods[name] = stats.report()
	}

	if scenario, ok := result.Methods[scenarioMethod]; ok {
		result.TotalScenarios = scenario.Calls
		result.SuccessScenarios = scenario.Success
		result.FailedScenarios = scenario.Failed
		result.ErrorRate = scenario.ErrorRate
		result.ScenarioLatencyMs = scenario.LatencyMs
	}
	if duration > 0 {
		result.RPS = float64(result.TotalScenarios) / duration.Seconds()
	}
	return result
}

func parseConfig(args []string, output io.Writer) (config, error) {
	fs := flag.NewFlagSet("loadtest", flag.ContinueOnError)
	fs.SetOutput(output)

	var (
		cfg       config
		modeValue string
	)
	fs.StringVar(&cfg.addr, "addr", "localhost:50051", "gRPC target address")
	fs.IntVar(&cfg.total, "total", 200, "total scenarios in count mode; with -duration only used when set explicitly")
	fs.DurationVar(&cfg.duration, "duration", 0, "optional time-based run duration (e.g. 5m)")
	fs.IntVar(&cfg.concurrency, "concurrency", 20, "number of concurrent workers")
	fs.IntVar(&cfg.connections, "connections", 10, "number of gRPC client connections")
	fs.DurationVar(&cfg.timeout, "timeout", 5*time.Second, "per-RPC timeout")
	fs.StringVar(&modeValue, "mode", string(modeCheckout), "load mode: browse | checkout | checkout-cancel")
	fs.IntVar(&cfg.cancelRate, "cancel-rate", 0, "cancel probability in percent for checkout mode (0..100)")
	fs.StringVar(&cfg.userTag, "user-tag", "load", "user id prefix")
	fs.StringVar(&cfg.storeID, "store", "store-bdg", "store id for the cart")
	fs.StringVar(&cfg.productID, "product", "milk-1l", "product id to add")
	fs.IntVar(&cfg.qty, "qty", 1, "quantity per cart")
	fs.Float64Var(&cfg.lat, "lat", -6.8915, "delivery latitude")
	fs.Float64Var(&cfg.lng, "lng", 107.6107, "delivery longitude")
	fs.StringVar(&cfg.serviceCode, "service", "REG", "shipping service code")
	fs.StringVar(&cfg.voucherCode, "voucher", "", "optional voucher code")
	fs.StringVar(&cfg.outputPath, "output", "", "optional JSON report output file path")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "total" {
			cfg.totalSet = true
		}
	})

	mode, err := parseMode(modeValue)
	if err != nil {
		return cfg, err
	}
	cfg.mode = mode

	switch {
	case cfg.duration < 0:
		return cfg, errors.New("duration must be >= 0")
	case cfg.duration == 0 && cfg.total <= 0:
		return cfg, errors.New("total must be > 0 when duration is not set")
	case cfg.duration > 0 && cfg.totalSet && cfg.total <= 0:
		return cfg, errors.New("total must be > 0 when explicitly set with duration")
	case cfg.concurrency <= 0:
		return cfg, errors.New("concurrency must be > 0")
	case cfg.connections <= 0:
		return cfg, errors.New("connections must be > 0")
	case cfg.timeout <= 0:
		return cfg, errors.New("timeout must be > 0")
	case cfg.qty <= 0:
		return cfg, errors.New("qty must be > 0")
	case cfg.cancelRate < 0 || cfg.cancelRate > 100:
		return cfg, errors.New("cancel-rate must be between 0 and 100")
	case strings.TrimSpace(cfg.userTag) == "":
		return cfg, errors.New("user-tag is required")
	case strings.TrimSpace(cfg.storeID) == "" || strings.TrimSpace(cfg.productID) == "":
		return cfg, errors.New("store and product are required")
	}
	return cfg, nil
}

func parseMode(value string) (loadMode, error) {
	mode := loadMode(strings.TrimSpace(value))
	switch mode {
	case modeBrowse, modeCheckout, modeCheckoutCancel:
		return mode, nil
	default:
		return "", fmt.Errorf("unsupported mode: %s", value)
	}
}

func main() {
	cfg, err := parseConfig(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		_, _ = fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	conns := make([]*grpc.ClientConn, 0, cfg.connections)
	clients := make([]storefrontv1.StorefrontServiceClient, 0, cfg.connections)
	for range cfg.connections {
		conn, dialErr := grpc.NewClient(cfg.addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if dialErr != nil {
			_, _ = fmt.Fprintf(os.Stderr, "failed to create grpc client connection: %v\n", dialErr)
			os.Exit(1)
		}
		conns = append(conns, conn)
		clients = append(clients, storefrontv1.NewStorefrontServiceClient(conn))
	}
	defer func() {
		for _, conn := range conns {
			_ = conn.Close()
		}
	}()

	result := runLoad(context.Background(), clients, cfg)
	printReport(os.Stdout, result, cfg)
	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "failed to write report: %v\n", err)
			os.Exit(1)
		}
	}
	if result.FailedScenarios > 0 {
		os.Exit(1)
	}
}

// runLoad раздаёт сценарии воркерам и собирает отчёт.
func runLoad(ctx context.Context, clients []storefrontv1.StorefrontServiceClient, cfg config) report {
	startedAt := time.Now()
	runID := fmt.Sprintf("%d-%d", startedAt.UnixNano(), os.Getpid())
	col := newCollector()

	jobs := make(chan int, cfg.concurrency*2)
	var g errgroup.Group
	for worker := range cfg.concurrency {
		client := clients[worker%len(clients)]
		g.Go(func() error {
			for id := range jobs {
				// ошибка сценария уже учтена в collector
				_ = runScenario(ctx, client, cfg, id, runID, col)
			}
			return nil
		})
	}

	dispatchJobs(jobs, cfg)
	_ = g.Wait()

	return col.buildReport(cfg.mode, startedAt, time.Since(startedAt))
}

func dispatchJobs(jobs chan<- int, cfg config) {
	defer close(jobs)

	if cfg.duration <= 0 {
		for i := range cfg.total {
			jobs <- i
		}
		return
	}

	timer := time.NewTimer(cfg.duration)
	defer timer.Stop()

	for i := 0; ; i++ {
		if cfg.totalSet && i >= cfg.total {
			return
		}
		select {
		case <-timer.C:
			return
		case jobs <- i:
		}
	}
}

// runScenario: корзина, предпросмотр, затем по режиму заказ и отмена.
// Отказ предпросмотра (CanCheckout=false) не считается ошибкой сценария.
func runScenario(
	ctx context.Context,
	client storefrontv1.StorefrontServiceClient,
	cfg config,
	index int,
	runID string,
	col *collector,
) (err error) {
	start := time.Now()
	defer func() { col.record(scenarioMethod, time.Since(start), grpcCode(err)) }()

	userID := fmt.Sprintf("%s-%s-%d", cfg.userTag, runID, index)
	_, err = call(ctx, col, "AddToCart", cfg.timeout, "", func(ctx context.Context) (*storefrontv1.CartResponse, error) {
		return client.AddToCart(ctx, &storefrontv1.AddToCartRequest{
			UserId:    userID,
			StoreId:   cfg.storeID,
			ProductId: cfg.productID,
			Qty:       int32(cfg.qty),
		})
	})
	if err != nil {
		return err
	}

	address := &storefrontv1.Address{Id: "addr-" + userID, Lat: cfg.lat, Lng: cfg.lng}
	preview, err := call(ctx, col, "PreviewCheckout", cfg.timeout, "", func(ctx context.Context) (*storefrontv1.PreviewCheckoutResponse, error) {
		return client.PreviewCheckout(ctx, &storefrontv1.PreviewCheckoutRequest{
			UserId:       userID,
			Address:      address,
			HasAddresses: true,
			VoucherCode:  cfg.voucherCode,
			ServiceCode:  cfg.serviceCode,
		})
	})
	if err != nil {
		return err
	}
	if cfg.mode == modeBrowse {
		return nil
	}
	if preview.Preview == nil || !preview.Preview.CanCheckout {
		col.recordBlocked()
		return nil
	}

	placed, err := call(ctx, col, "PlaceOrder", cfg.timeout, fmt.Sprintf("lt-place-%s-%d", runID, index), func(ctx context.Context) (*storefrontv1.PlaceOrderResponse, error) {
		return client.PlaceOrder(ctx, &storefrontv1.PlaceOrderRequest{
			UserId:       userID,
			Address:      address,
			HasAddresses: true,
			VoucherCode:  cfg.voucherCode,
			ServiceCode:  cfg.serviceCode,
		})
	})
	if err != nil {
		return err
	}
	if placed.Order == nil || placed.Order.Id == "" {
		return status.Error(codes.Internal, "place response returned empty order id")
	}

	if cfg.mode == modeCheckoutCancel || shouldCancelScenario(index, cfg.cancelRate) {
		_, err = call(ctx, col, "CancelOrder", cfg.timeout, fmt.Sprintf("lt-cancel-%s-%d", runID, index), func(ctx context.Context) (*storefrontv1.OrderResponse, error) {
			return client.CancelOrder(ctx, &storefrontv1.CancelOrderRequest{OrderId: placed.Order.Id, Reason: "load-cancel"})
		})
	}
	return err
}

// call выполняет RPC с таймаутом и idempotency-key, если он задан.
func call[Resp any](
	ctx context.Context,
	col *collector,
	method string,
	timeout time.Duration,
	idempotencyKey string,
	fn func(context.Context) (*Resp, error),
) (*Resp, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if idempotencyKey != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, idempotencyHeader, idempotencyKey)
	}

	resp, err := fn(ctx)
	col.record(method, time.Since(start), grpcCode(err))
	return resp, err
}

func grpcCode(err error) codes.Code {
	if err == nil {
		return codes.OK
	}
	return status.Code(err)
}

func shouldCancelScenario(index, cancelRate int) bool {
	switch {
	case cancelRate <= 0:
		return false
	case cancelRate >= 100:
		return true
	default:
		return index%100 < cancelRate
	}
}

func writeJSONReport(path string, result report) error {
	cleanPath := filepath.Clean(path)
	if cleanPath == "." || cleanPath == string(filepath.Separator) {
		return errors.New("output path must point to a file")
	}
	if cleanPath == ".." || strings.HasPrefix(cleanPath, ".."+string(filepath.Separator)) {
		return fmt.Errorf("output path must be inside current directory: %s", path)
	}

	// #nosec G304 -- путь задаётся явно флагом -output.
	file, err := os.Create(cleanPath)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

func printReport(w io.Writer, result report, cfg config) {
	_, _ = fmt.Fprintln(w, "Load test summary")
	_, _ = fmt.Fprintf(w, "mode=%s run=%s total=%d success=%d failed=%d blocked=%d error_rate=%.4f\n",
		cfg.mode, runTarget(cfg),
		result.TotalScenarios, result.SuccessScenarios, result.FailedScenarios,
		result.BlockedCheckouts, result.ErrorRate,
	)
	_, _ = fmt.Fprintf(w, "duration=%.2fs rps=%.2f\n", result.DurationSeconds, result.RPS)
	l := result.ScenarioLatencyMs
	_, _ = fmt.Fprintf(w, "scenario latency ms: min=%.2f avg=%.2f p50=%.2f p95=%.2f p99=%.2f max=%.2f\n",
		l.Min, l.Avg, l.P50, l.P95, l.P99, l.Max)

	names := slices.Sorted(maps.Keys(result.Methods))
	for _, name := range names {
		if name == scenarioMethod {
			continue
		}
		stats := result.Methods[name]
		_, _ = fmt.Fprintf(w, "%s: calls=%d success=%d failed=%d error_rate=%.4f p95=%.2fms\n",
			name, stats.Calls, stats.Success, stats.Failed, stats.ErrorRate, stats.LatencyMs.P95)
	}
}

func runTarget(cfg config) string {
	switch {
	case cfg.duration <= 0:
		return fmt.Sprintf("count:%d", cfg.total)
	case cfg.totalSet:
		return fmt.Sprintf("duration:%s,max-total:%d", cfg.duration, cfg.total)
	default:
		return fmt.Sprintf("duration:%s", cfg.duration)
	}
}

func buildLatencySummary(values []float64) latencySummary {
	if len(values) == 0 {
		return latencySummary{}
	}

	sorted := slices.Clone(values)
	slices.Sort(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}
	return latencySummary{
		Min: sorted[0],
		Max: sorted[len(sorted)-1],
		Avg: sum / float64(len(sorted)),
		P50: percentile(sorted, 50),
		P95: percentile(sorted, 95),
		P99: percentile(sorted, 99),
	}
}

// percentile: линейная интерполяция по отсортированному срезу.
func percentile(sorted []float64, p float64) float64 {
	switch len(sorted) {
	case 0:
		return 0
	case 1:
		return sorted[0]
	}

	rank := (p / 100.0) * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}
	weight := rank - float64(lower)
	return sorted[lower] + (sorted[upper]-sorted[lower])*weight
}

func ratio(failed, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(failed) / float64(total)
}
