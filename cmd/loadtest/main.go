// Команда loadtest гоняет сценарии корзины через gRPC CartService и печатает
// сводку: сколько корзин прошло, сколько сломалось и задержки по методам.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	grpcsvc "github.com/spraynsniff/storefront/internal/service/grpc"
)

// Сценарии нагрузки.
const (
	scenarioAdd      = "add"
	scenarioAddSet   = "add-set"
	scenarioCheckout = "add-set-clear"
)

// opScenario — имя, под которым в отчёте учитывается сценарий целиком.
const opScenario = "scenario"

type options struct {
	addr     string
	carts    int
	duration time.Duration
	workers  int
	conns    int
	timeout  time.Duration
	scenario string
	lines    int
	price    decimal.Decimal
	prefix   string
	asJSON   bool
}

// cartClient — методы CartService, которые вызывает сценарий.
type cartClient interface {
	AddItem(ctx context.Context, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	SetQuantity(ctx context.Context, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	ClearCart(ctx context.Context, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	GetCart(ctx context.Context, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
}

// opSummary — сводка по одному методу.
type opSummary struct {
	Calls  int            `json:"calls"`
	Failed int            `json:"failed"`
	Codes  map[string]int `json:"codes"`
	MeanMs float64        `json:"mean_ms"`
	P50Ms  float64        `json:"p50_ms"`
	P95Ms  float64        `json:"p95_ms"`
	MaxMs  float64        `json:"max_ms"`
}

type summary struct {
	Scenario    string               `json:"scenario"`
	Carts       int                  `json:"carts"`
	Failed      int                  `json:"failed"`
	Elapsed     time.Duration        `json:"elapsed_ns"`
	CartsPerSec float64              `json:"carts_per_sec"`
	Ops         map[string]opSummary `json:"ops"`
}

type sample struct {
	took time.Duration
	code codes.Code
}

// recorder копит задержки всех вызовов до конца прогона.
type recorder struct {
	mu      sync.Mutex
	samples map[string][]sample
}

func newRecorder() *recorder {
	return &recorder{samples: make(map[string][]sample)}
}

func (r *recorder) add(op string, took time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples[op] = append(r.samples[op], sample{took: took, code: status.Code(err)})
}

func (r *recorder) summarize(scenario string, elapsed time.Duration) summary {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := summary{Scenario: scenario, Elapsed: elapsed, Ops: make(map[string]opSummary, len(r.samples))}
	for op, samples := range r.samples {
		s.Ops[op] = summarizeOp(samples)
	}
	if sc, ok := s.Ops[opScenario]; ok {
		s.Carts = sc.Calls
		s.Failed = sc.Failed
	}
	if elapsed > 0 {
		s.CartsPerSec = float64(s.Carts) / elapsed.Seconds()
	}
	return s
}

func summarizeOp(samples []sample) opSummary {
	out := opSummary{Calls: len(samples), Codes: make(map[string]int)}
	if len(samples) == 0 {
		return out
	}

	ms := make([]float64, len(samples))
	var total float64
	for i, s := range samples {
		if s.code != codes.OK {
			out.Failed++
		}
		out.Codes[s.code.String()]++
		ms[i] = float64(s.took.Microseconds()) / 1000
		total += ms[i]
	}
	sort.Float64s(ms)

	out.MeanMs = total / float64(len(ms))
	out.P50Ms = nearestRank(ms, 0.50)
	out.P95Ms = nearestRank(ms, 0.95)
	out.MaxMs = ms[len(ms)-1]
	return out
}

// nearestRank — перцентиль q (0..1) отсортированной выборки методом ближайшего ранга.
func nearestRank(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(q*float64(len(sorted))+0.999999) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func (o options) validate() error {
	switch o.scenario {
	case scenarioAdd, scenarioAddSet, scenarioCheckout:
	default:
		return fmt.Errorf("unknown scenario %q (use add|add-set|add-set-clear)", o.scenario)
	}
	switch {
	case o.carts <= 0:
		return errors.New("--carts must be > 0")
	case o.duration < 0:
		return errors.New("--duration must be >= 0")
	case o.workers <= 0:
		return errors.New("--workers must be > 0")
	case o.conns <= 0:
		return errors.New("--conns must be > 0")
	case o.timeout <= 0:
		return errors.New("--timeout must be > 0")
	case o.lines <= 0:
		return errors.New("--lines must be > 0")
	case strings.TrimSpace(o.prefix) == "":
		return errors.New("--prefix is required")
	}
	return nil
}

func newRootCmd(stdout io.Writer, dial func(addr string) (cartClient, func(), error)) *cobra.Command {
	opts := options{}
	var price string

	cmd := &cobra.Command{
		Use:           "loadtest",
		Short:         "Drive cart scenarios against the storefront gRPC API",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := decimal.NewFromString(strings.TrimSpace(price))
			if err != nil {
				return fmt.Errorf("--price: %w", err)
			}
			opts.price = p
			if err := opts.validate(); err != nil {
				return err
			}

			clients := make([]cartClient, 0, opts.conns)
			for i := 0; i < opts.conns; i++ {
				client, closeFn, err := dial(opts.addr)
				if err != nil {
					return err
				}
				defer closeFn()
				clients = append(clients, client)
			}

			result := runLoad(cmd.Context(), opts, clients)
			if err := writeSummary(stdout, result, opts.asJSON); err != nil {
				return err
			}
			if result.Failed > 0 {
				return fmt.Errorf("%d of %d carts failed", result.Failed, result.Carts)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.addr, "addr", "localhost:50051", "gRPC address of the storefront")
	f.IntVar(&opts.carts, "carts", 400, "number of carts to run through the scenario")
	f.DurationVar(&opts.duration, "duration", 0, "stop dispatching new carts after this long (0 = no limit)")
	f.IntVar(&opts.workers, "workers", 40, "concurrent scenario workers")
	f.IntVar(&opts.conns, "conns", 4, "gRPC connections shared by workers")
	f.DurationVar(&opts.timeout, "timeout", 5*time.Second, "per-call timeout")
	f.StringVar(&opts.scenario, "scenario", scenarioAdd, "add | add-set | add-set-clear")
	f.IntVar(&opts.lines, "lines", 3, "distinct products added to every cart")
	f.StringVar(&price, "price", "25000", "unit price of every product")
	f.StringVar(&opts.prefix, "prefix", "load", "cart id prefix")
	f.BoolVar(&opts.asJSON, "json", false, "print the summary as JSON")
	return cmd
}

func dialCartService(addr string) (cartClient, func(), error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return grpcsvc.NewCartServiceClient(conn), func() { _ = conn.Close() }, nil
}

func main() {
	if err := newRootCmd(os.Stdout, dialCartService).Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "loadtest:", err)
		os.Exit(1)
	}
}

func runLoad(ctx context.Context, opts options, clients []cartClient) summary {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.duration)
		defer cancel()
	}

	started := time.Now()
	runID := started.Format("150405.000")
	rec := newRecorder()

	ids := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < opts.workers; w++ {
		wg.Add(1)
		go func(client cartClient) {
			defer wg.Done()
			for id := range ids {
				cartID := fmt.Sprintf("%s-%s-%d", opts.prefix, runID, id)
				_ = runScenario(client, opts, cartID, rec)
			}
		}(clients[w%len(clients)])
	}

dispatch:
	for i := 0; i < opts.carts; i++ {
		select {
		case <-ctx.Done():
			break dispatch
		case ids <- i:
		}
	}
	close(ids)
	wg.Wait()

	return rec.summarize(opts.scenario, time.Since(started))
}

// runScenario наполняет корзину cartID и сверяет итоговый count с ожидаемым.
func runScenario(client cartClient, opts options, cartID string, rec *recorder) (err error) {
	started := time.Now()
	defer func() { rec.add(opScenario, time.Since(started), err) }()

	want := 0
	for i := 0; i < opts.lines; i++ {
		add := map[string]any{
			"cart_id":    cartID,
			"product_id": fmt.Sprintf("p-%d", i),
			"name":       fmt.Sprintf("Load product %d", i),
			"price":      opts.price.String(),
			"quantity":   1,
		}
		if _, err = invoke(client.AddItem, "AddItem", opts.timeout, add, rec); err != nil {
			return err
		}
		want++
	}

	if opts.scenario != scenarioAdd {
		set := map[string]any{"cart_id": cartID, "product_id": "p-0", "quantity": 3}
		if _, err = invoke(client.SetQuantity, "SetQuantity", opts.timeout, set, rec); err != nil {
			return err
		}
		want += 2
	}
	if opts.scenario == scenarioCheckout {
		if _, err = invoke(client.ClearCart, "ClearCart", opts.timeout, map[string]any{"cart_id": cartID}, rec); err != nil {
			return err
		}
		want = 0
	}

	view, err := invoke(client.GetCart, "GetCart", opts.timeout, map[string]any{"cart_id": cartID}, rec)
	if err != nil {
		return err
	}
	if got := int(view.GetFields()["count"].GetNumberValue()); got != want {
		return status.Errorf(codes.DataLoss, "cart %s: count %d, want %d", cartID, got, want)
	}
	return nil
}

type unaryCall func(ctx context.Context, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)

func invoke(fn unaryCall, op string, timeout time.Duration, fields map[string]any, rec *recorder) (*structpb.Struct, error) {
	req, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	started := time.Now()
	resp, err := fn(ctx, req)
	rec.add(op, time.Since(started), err)
	return resp, err
}

func writeSummary(w io.Writer, s summary, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	}

	sc := s.Ops[opScenario]
	_, _ = fmt.Fprintf(w, "scenario=%s carts=%d failed=%d elapsed=%s carts/s=%.1f\n",
		s.Scenario, s.Carts, s.Failed, s.Elapsed.Round(time.Millisecond), s.CartsPerSec)
	_, _ = fmt.Fprintf(w, "cart latency: mean=%.2fms p50=%.2fms p95=%.2fms max=%.2fms\n",
		sc.MeanMs, sc.P50Ms, sc.P95Ms, sc.MaxMs)

	ops := make([]string, 0, len(s.Ops))
	for op := range s.Ops {
		if op != opScenario {
			ops = append(ops, op)
		}
	}
	sort.Strings(ops)
	for _, op := range ops {
		o := s.Ops[op]
		_, err := fmt.Fprintf(w, "  %-12s calls=%d failed=%d p95=%.2fms\n", op, o.Calls, o.Failed, o.P95Ms)
		if err != nil {
			return err
		}
	}
	return nil
}
